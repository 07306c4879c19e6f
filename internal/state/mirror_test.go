package state

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorReplaysAndFollowsChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger, _ := test.NewNullLogger()
	store := docstore.NewMemory()

	existing, err := store.Add(ctx, domain.CollectionProducts, domain.Product{Name: "Serum", Quantity: 4})
	require.NoError(t, err)

	m := NewMirror(store, logger)
	require.NoError(t, m.Start(ctx))
	defer m.Close()

	var (
		mu   sync.Mutex
		seen []docstore.ChangeType
	)
	stop := m.OnChange(func(ch docstore.Change) {
		mu.Lock()
		seen = append(seen, ch.Type)
		mu.Unlock()
	})

	snap := m.Snapshot()
	require.Len(t, snap.Products, 1)
	assert.Equal(t, existing, snap.Products[0].ID)

	second, err := store.Add(ctx, domain.CollectionProducts, domain.Product{Name: "Wax", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, domain.CollectionProducts, existing, map[string]any{"quantity": 9}))
	_, err = store.Add(ctx, domain.CollectionLeads, domain.Lead{Name: "Arun", Status: domain.LeadNew})
	require.NoError(t, err)

	snap = m.Snapshot()
	require.Len(t, snap.Products, 2)
	assert.Equal(t, 9, snap.Products[0].Quantity)
	assert.Equal(t, second, snap.Products[1].ID)
	assert.Len(t, snap.Leads, 1)

	require.NoError(t, store.Delete(ctx, domain.CollectionProducts, existing))
	snap = m.Snapshot()
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "Wax", snap.Products[0].Name)

	stop()
	_, err = store.Add(ctx, domain.CollectionCustomers, domain.Customer{Name: "Dev"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []docstore.ChangeType{
		docstore.ChangeAdded, docstore.ChangeModified, docstore.ChangeAdded, docstore.ChangeRemoved,
	}, seen)
	assert.Len(t, m.Snapshot().Customers, 1)
}

func TestMirrorCloseStopsUpdates(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	store := docstore.NewMemory()

	m := NewMirror(store, logger)
	require.NoError(t, m.Start(ctx))
	m.Close()

	_, err := store.Add(ctx, domain.CollectionOrders, domain.Order{InvoiceNumber: "INV-20261017-01"})
	require.NoError(t, err)
	assert.Empty(t, m.Snapshot().Orders)
}

func productChange(typ docstore.ChangeType, id, name string, at time.Time) docstore.Change {
	data := []byte(fmt.Sprintf(`{"id":%q,"name":%q}`, id, name))
	return docstore.Change{
		Type:       typ,
		Collection: domain.CollectionProducts,
		ID:         id,
		Doc:        docstore.Document{ID: id, Collection: domain.CollectionProducts, Data: data, UpdatedAt: at},
		At:         at,
	}
}

func TestMirrorDropsOlderVersions(t *testing.T) {
	logger, _ := test.NewNullLogger()
	m := NewMirror(docstore.NewMemory(), logger)
	var applied []string
	m.OnChange(func(ch docstore.Change) {
		name, _ := docstore.FieldString(ch.Doc.Data, "name")
		applied = append(applied, name)
	})

	t0 := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	m.apply(productChange(docstore.ChangeAdded, "p1", "v1", t0))
	m.apply(productChange(docstore.ChangeModified, "p1", "v3", t0.Add(2*time.Second)))
	m.apply(productChange(docstore.ChangeModified, "p1", "v2", t0.Add(time.Second)))

	snap := m.Snapshot()
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "v3", snap.Products[0].Name)
	assert.Equal(t, []string{"v1", "v3"}, applied)
}

func TestMirrorRemovalBeatsLateReplay(t *testing.T) {
	logger, _ := test.NewNullLogger()
	m := NewMirror(docstore.NewMemory(), logger)

	t0 := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	// removal delivered live before the replayed copy of the same version
	m.apply(productChange(docstore.ChangeRemoved, "p1", "gone", t0))
	m.apply(productChange(docstore.ChangeAdded, "p1", "gone", t0))
	assert.Empty(t, m.Snapshot().Products)

	// an older modification arriving after the removal
	m.apply(productChange(docstore.ChangeModified, "p1", "older", t0.Add(-time.Second)))
	assert.Empty(t, m.Snapshot().Products)

	// a later write with the same id is a new document
	m.apply(productChange(docstore.ChangeAdded, "p1", "again", t0.Add(time.Second)))
	snap := m.Snapshot()
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "again", snap.Products[0].Name)

	// the old removal arriving late does not drop the newer document
	m.apply(productChange(docstore.ChangeRemoved, "p1", "gone", t0))
	assert.Len(t, m.Snapshot().Products, 1)
}

// Another subscriber rewrites the document from inside its handler, so the
// nested newer change can reach the mirror before the outer older one.
func TestMirrorMatchesStoreWhenHandlersWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger, _ := test.NewNullLogger()
	store := docstore.NewMemory()

	m := NewMirror(store, logger)
	require.NoError(t, m.Start(ctx))
	defer m.Close()

	unsub, err := store.Subscribe(ctx, domain.CollectionProducts, func(ch docstore.Change) {
		if name, _ := docstore.FieldString(ch.Doc.Data, "name"); ch.Type == docstore.ChangeModified && name == "A" {
			_ = store.Update(ctx, domain.CollectionProducts, ch.ID, map[string]any{"name": "B"})
		}
	})
	require.NoError(t, err)
	defer unsub()

	for i := 0; i < 40; i++ {
		id, err := store.Add(ctx, domain.CollectionProducts, domain.Product{Name: "draft"})
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, domain.CollectionProducts, id, map[string]any{"name": "A"}))

		stored, err := docstore.GetAs[domain.Product](ctx, store, domain.CollectionProducts, id)
		require.NoError(t, err)
		require.Equal(t, "B", stored.Name)

		var mirrored string
		for _, p := range m.Snapshot().Products {
			if p.ID == id {
				mirrored = p.Name
			}
		}
		require.Equal(t, "B", mirrored, "trial %d", i)
	}
}
