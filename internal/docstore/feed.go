package docstore

import (
	"context"
	"sync"
)

// Feed fans changes out to subscribers of a collection.
type Feed interface {
	Publish(ctx context.Context, ch Change) error
	Subscribe(collection string, fn Handler) (cancel func())
}

// LocalFeed is an in-process Feed. Handlers run synchronously on the
// publishing goroutine.
type LocalFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{subs: make(map[string]map[int]Handler)}
}

func (f *LocalFeed) Publish(_ context.Context, ch Change) error {
	f.mu.RLock()
	hs := make([]Handler, 0, len(f.subs[ch.Collection]))
	for _, h := range f.subs[ch.Collection] {
		hs = append(hs, h)
	}
	f.mu.RUnlock()

	for _, h := range hs {
		h(ch)
	}
	return nil
}

func (f *LocalFeed) Subscribe(collection string, fn Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	if f.subs[collection] == nil {
		f.subs[collection] = make(map[int]Handler)
	}
	f.subs[collection][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[collection], id)
			f.mu.Unlock()
		})
	}
}

// SubscribeWithReplay registers fn on feed, then replays the current
// documents of s. A change written between the two steps may reach fn
// before the replayed copy of the same document, and live changes to one
// document may arrive out of order. Handlers that keep state must compare
// Doc.UpdatedAt and remember removals rather than apply in arrival order.
func SubscribeWithReplay(ctx context.Context, feed Feed, s Store, collection string, fn Handler) (func(), error) {
	cancelFeed := feed.Subscribe(collection, fn)
	docs, err := s.List(ctx, collection)
	if err != nil {
		cancelFeed()
		return nil, err
	}
	for _, d := range docs {
		fn(Change{Type: ChangeAdded, Collection: collection, ID: d.ID, Doc: d, At: d.UpdatedAt})
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelFeed()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return cancel, nil
}
