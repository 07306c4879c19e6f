package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memDoc struct {
	doc Document
	seq int64
}

// Memory is an in-memory Store, safe for concurrent use. Intended for tests
// and local development.
type Memory struct {
	mu    sync.RWMutex
	seq   int64
	colls map[string]map[string]memDoc
	feed  *LocalFeed
	now   func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		colls: make(map[string]map[string]memDoc),
		feed:  NewLocalFeed(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Add(ctx context.Context, collection string, data any) (string, error) {
	id := uuid.NewString()
	if err := m.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, data any) error {
	if id == "" {
		return fmt.Errorf("set %s: empty id", collection)
	}
	raw, err := EncodeObject(data, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	coll := m.colls[collection]
	if coll == nil {
		coll = make(map[string]memDoc)
		m.colls[collection] = coll
	}
	typ := ChangeModified
	prev, exists := coll[id]
	now := m.stamp(prev.doc.UpdatedAt)
	if !exists {
		typ = ChangeAdded
		m.seq++
		prev = memDoc{seq: m.seq, doc: Document{CreatedAt: now}}
	}
	d := Document{ID: id, Collection: collection, Data: raw, CreatedAt: prev.doc.CreatedAt, UpdatedAt: now}
	coll[id] = memDoc{doc: d, seq: prev.seq}
	m.mu.Unlock()

	return m.feed.Publish(ctx, Change{Type: typ, Collection: collection, ID: id, Doc: d, At: now})
}

func (m *Memory) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	m.mu.Lock()
	cur, ok := m.colls[collection][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	raw, err := MergePatch(cur.doc.Data, patch)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	now := m.stamp(cur.doc.UpdatedAt)
	cur.doc.Data = raw
	cur.doc.UpdatedAt = now
	m.colls[collection][id] = cur
	d := cur.doc
	m.mu.Unlock()

	return m.feed.Publish(ctx, Change{Type: ChangeModified, Collection: collection, ID: id, Doc: d, At: now})
}

// stamp returns the write time for a document last written at prev. It is
// always after prev so readers can order versions by UpdatedAt.
func (m *Memory) stamp(prev time.Time) time.Time {
	now := m.now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	cur, ok := m.colls[collection][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	delete(m.colls[collection], id)
	now := m.now()
	m.mu.Unlock()

	return m.feed.Publish(ctx, Change{Type: ChangeRemoved, Collection: collection, ID: id, Doc: cur.doc, At: now})
}

func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cur, ok := m.colls[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	return cur.doc, nil
}

func (m *Memory) List(_ context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	items := make([]memDoc, 0, len(m.colls[collection]))
	for _, d := range m.colls[collection] {
		items = append(items, d)
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	out := make([]Document, 0, len(items))
	for _, it := range items {
		out = append(out, it.doc)
	}
	return out, nil
}

func (m *Memory) Where(ctx context.Context, collection, field, value string) ([]Document, error) {
	docs, err := m.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, d := range docs {
		if v, ok := FieldString(d.Data, field); ok && v == value {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) Subscribe(ctx context.Context, collection string, fn Handler) (func(), error) {
	return SubscribeWithReplay(ctx, m.feed, m, collection, fn)
}
