// Package state keeps an in-memory copy of every collection, refreshed by
// store subscriptions, and fans changes out to listeners.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/sirupsen/logrus"
)

type Snapshot struct {
	Products     []domain.Product
	Orders       []domain.Order
	Customers    []domain.Customer
	Leads        []domain.Lead
	Referrals    []domain.Referral
	StockHistory []domain.StockHistoryEntry
}

type Listener func(docstore.Change)

// tombstoneTTL bounds how long a removal is remembered. Late copies of a
// removed document arriving within it are ignored.
const tombstoneTTL = 10 * time.Minute

type tombstone struct {
	version time.Time // UpdatedAt of the last stored version
	seen    time.Time
}

type collection struct {
	order   []string
	docs    map[string]docstore.Document
	removed map[string]tombstone
}

func newCollection() *collection {
	return &collection{docs: make(map[string]docstore.Document), removed: make(map[string]tombstone)}
}

// upsert stores d unless a newer version, or the removal of a version at
// least as new, has already been applied.
func (c *collection) upsert(d docstore.Document) bool {
	if cur, ok := c.docs[d.ID]; ok {
		if d.UpdatedAt.Before(cur.UpdatedAt) {
			return false
		}
		c.docs[d.ID] = d
		return true
	}
	if ts, ok := c.removed[d.ID]; ok {
		if !d.UpdatedAt.After(ts.version) {
			return false
		}
		delete(c.removed, d.ID)
	}
	c.docs[d.ID] = d
	c.order = append(c.order, d.ID)
	return true
}

func (c *collection) remove(d docstore.Document, now time.Time) bool {
	cur, ok := c.docs[d.ID]
	if ok && cur.UpdatedAt.After(d.UpdatedAt) {
		// removal of an older incarnation
		return false
	}
	if ts, seen := c.removed[d.ID]; !seen || d.UpdatedAt.After(ts.version) {
		c.removed[d.ID] = tombstone{version: d.UpdatedAt, seen: now}
	}
	for id, ts := range c.removed {
		if now.Sub(ts.seen) > tombstoneTTL {
			delete(c.removed, id)
		}
	}
	if !ok {
		return false
	}
	delete(c.docs, d.ID)
	for i, id := range c.order {
		if id == d.ID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Mirror must be started before it reflects anything.
type Mirror struct {
	store docstore.Store
	log   logrus.FieldLogger

	mu    sync.RWMutex
	colls map[string]*collection

	lmu       sync.RWMutex
	nextID    int
	listeners map[int]Listener

	cancels []func()
}

func NewMirror(store docstore.Store, log logrus.FieldLogger) *Mirror {
	colls := make(map[string]*collection, len(domain.Collections))
	for _, c := range domain.Collections {
		colls[c] = newCollection()
	}
	return &Mirror{store: store, log: log, colls: colls, listeners: make(map[int]Listener)}
}

// Start subscribes to every collection. Subscriptions end with ctx or
// Close.
func (m *Mirror) Start(ctx context.Context) error {
	for _, c := range domain.Collections {
		cancel, err := m.store.Subscribe(ctx, c, m.apply)
		if err != nil {
			m.Close()
			return fmt.Errorf("subscribe %s: %w", c, err)
		}
		m.cancels = append(m.cancels, cancel)
	}
	m.log.WithField("collections", len(domain.Collections)).Info("state mirror started")
	return nil
}

func (m *Mirror) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}

// OnChange registers fn for every change applied to the mirror. fn runs on
// the writer's goroutine and must not block.
func (m *Mirror) OnChange(fn Listener) (cancel func()) {
	m.lmu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.lmu.Lock()
			delete(m.listeners, id)
			m.lmu.Unlock()
		})
	}
}

// apply folds ch into the mirror. Changes may arrive out of order; stale
// ones are dropped and listeners only see what was applied.
func (m *Mirror) apply(ch docstore.Change) {
	m.mu.Lock()
	c, ok := m.colls[ch.Collection]
	if !ok {
		c = newCollection()
		m.colls[ch.Collection] = c
	}
	doc := ch.Doc
	doc.ID = ch.ID
	var applied bool
	switch ch.Type {
	case docstore.ChangeAdded, docstore.ChangeModified:
		applied = c.upsert(doc)
	case docstore.ChangeRemoved:
		applied = c.remove(doc, time.Now())
	}
	m.mu.Unlock()
	if !applied {
		return
	}

	m.lmu.RLock()
	ls := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.lmu.RUnlock()
	for _, l := range ls {
		l(ch)
	}
}

// Documents returns the raw documents of a collection in creation order.
func (m *Mirror) Documents(name string) []docstore.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.colls[name]
	if !ok {
		return nil
	}
	out := make([]docstore.Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.docs[id])
	}
	return out
}

func (m *Mirror) Snapshot() Snapshot {
	return Snapshot{
		Products:     decodeAll[domain.Product](m, domain.CollectionProducts),
		Orders:       decodeAll[domain.Order](m, domain.CollectionOrders),
		Customers:    decodeAll[domain.Customer](m, domain.CollectionCustomers),
		Leads:        decodeAll[domain.Lead](m, domain.CollectionLeads),
		Referrals:    decodeAll[domain.Referral](m, domain.CollectionReferrals),
		StockHistory: decodeAll[domain.StockHistoryEntry](m, domain.CollectionStockHistory),
	}
}

// decodeAll skips documents that no longer match the entity shape.
func decodeAll[T any](m *Mirror, name string) []T {
	docs := m.Documents(name)
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		t, err := docstore.Decode[T](d)
		if err != nil {
			m.log.WithError(err).WithField("collection", name).Warn("skip undecodable document")
			continue
		}
		out = append(out, t)
	}
	return out
}
