package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database when POSTGRES_TEST_DSN is set.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return NewStore(pool, nil)
}

type note struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Tag   string `json:"tag"`
}

func TestStoreCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	coll := "notes_" + uuid.NewString()[:8]

	var changes []docstore.ChangeType
	cancel, err := s.Subscribe(ctx, coll, func(ch docstore.Change) { changes = append(changes, ch.Type) })
	require.NoError(t, err)
	defer cancel()

	id, err := s.Add(ctx, coll, note{Title: "first", Tag: "a"})
	require.NoError(t, err)
	_, err = s.Add(ctx, coll, note{Title: "second", Tag: "b"})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, coll, id, map[string]any{"title": "renamed", "id": "ignored"}))
	got, err := docstore.GetAs[note](ctx, s, coll, id)
	require.NoError(t, err)
	assert.Equal(t, note{ID: id, Title: "renamed", Tag: "a"}, got)

	list, err := docstore.ListAs[note](ctx, s, coll)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, id, list[0].ID)

	tagged, err := docstore.WhereAs[note](ctx, s, coll, "tag", "b")
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "second", tagged[0].Title)

	require.NoError(t, s.Delete(ctx, coll, id))
	_, err = s.Get(ctx, coll, id)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, coll, id, map[string]any{"title": "x"}), docstore.ErrNotFound)

	assert.Equal(t, []docstore.ChangeType{
		docstore.ChangeAdded, docstore.ChangeAdded, docstore.ChangeModified, docstore.ChangeRemoved,
	}, changes)
}
