package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store keeps every collection in one JSONB table. Writes are announced
// on Feed after they commit.
type Store struct {
	DB   DB
	Feed docstore.Feed
}

var _ docstore.Store = (*Store)(nil)

func NewStore(db DB, feed docstore.Feed) *Store {
	if feed == nil {
		feed = docstore.NewLocalFeed()
	}
	return &Store{DB: db, Feed: feed}
}

func (s *Store) Add(ctx context.Context, collection string, data any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	if id == "" {
		return fmt.Errorf("set %s: empty id", collection)
	}
	raw, err := docstore.EncodeObject(data, id)
	if err != nil {
		return err
	}

	var (
		created, updated time.Time
		inserted         bool
	)
	err = s.DB.QueryRow(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = GREATEST(now(), documents.updated_at + interval '1 microsecond')
		RETURNING created_at, updated_at, (xmax = 0)`,
		collection, id, string(raw),
	).Scan(&created, &updated, &inserted)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}

	typ := docstore.ChangeModified
	if inserted {
		typ = docstore.ChangeAdded
	}
	d := docstore.Document{ID: id, Collection: collection, Data: raw, CreatedAt: created, UpdatedAt: updated}
	return s.publish(ctx, typ, d)
}

func (s *Store) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	raw, err := docstore.PatchJSON(patch)
	if err != nil {
		return err
	}
	d, err := s.scanOne(s.DB.QueryRow(ctx, `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = GREATEST(now(), updated_at + interval '1 microsecond')
		WHERE collection = $1 AND id = $2
		RETURNING id, data, created_at, updated_at`,
		collection, id, string(raw),
	), collection)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return s.publish(ctx, docstore.ChangeModified, d)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	d, err := s.scanOne(s.DB.QueryRow(ctx, `
		DELETE FROM documents
		WHERE collection = $1 AND id = $2
		RETURNING id, data, created_at, updated_at`,
		collection, id,
	), collection)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return s.publish(ctx, docstore.ChangeRemoved, d)
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	d, err := s.scanOne(s.DB.QueryRow(ctx, `
		SELECT id, data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2`,
		collection, id,
	), collection)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return d, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, data, created_at, updated_at
		FROM documents
		WHERE collection = $1
		ORDER BY seq`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return collectDocs(rows, collection)
}

func (s *Store) Where(ctx context.Context, collection, field, value string) ([]docstore.Document, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND data->>$2 = $3
		ORDER BY seq`, collection, field, value)
	if err != nil {
		return nil, fmt.Errorf("query %s where %s: %w", collection, field, err)
	}
	return collectDocs(rows, collection)
}

func (s *Store) Subscribe(ctx context.Context, collection string, fn docstore.Handler) (func(), error) {
	return docstore.SubscribeWithReplay(ctx, s.Feed, s, collection, fn)
}

func (s *Store) publish(ctx context.Context, typ docstore.ChangeType, d docstore.Document) error {
	return s.Feed.Publish(ctx, docstore.Change{
		Type:       typ,
		Collection: d.Collection,
		ID:         d.ID,
		Doc:        d,
		At:         d.UpdatedAt,
	})
}

func (s *Store) scanOne(row pgx.Row, collection string) (docstore.Document, error) {
	var (
		d    = docstore.Document{Collection: collection}
		data []byte
	)
	if err := row.Scan(&d.ID, &data, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, err
	}
	d.Data = data
	return d, nil
}

func collectDocs(rows pgx.Rows, collection string) ([]docstore.Document, error) {
	defer rows.Close()
	var out []docstore.Document
	for rows.Next() {
		d := docstore.Document{Collection: collection}
		var data []byte
		if err := rows.Scan(&d.ID, &data, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Data = data
		out = append(out, d)
	}
	return out, rows.Err()
}
