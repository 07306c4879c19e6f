package redisx

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *InvoiceSequencer, *TokenCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, &InvoiceSequencer{RDB: rdb}, &TokenCache{RDB: rdb}
}

func TestInvoiceSequencerSeedsOncePerDay(t *testing.T) {
	mr, seq, _ := newRedis(t)
	ctx := context.Background()

	calls := 0
	seed := func(context.Context, string) (int, error) {
		calls++
		return 4, nil
	}

	n, err := seq.Next(ctx, "INV-20261017", seed)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	n, err = seq.Next(ctx, "INV-20261017", seed)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 1, calls)

	assert.True(t, mr.Exists(fmt.Sprintf(KeyInvoiceSeq, "INV-20261017")))
	assert.Equal(t, TTLInvoiceSeq, mr.TTL(fmt.Sprintf(KeyInvoiceSeq, "INV-20261017")))
}

func TestInvoiceSequencerConcurrent(t *testing.T) {
	_, seq, _ := newRedis(t)
	seed := func(context.Context, string) (int, error) { return 0, nil }

	const n = 30
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := seq.Next(context.Background(), "INV-20261017", seed)
			assert.NoError(t, err)
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestInvoiceSequencerSeedError(t *testing.T) {
	_, seq, _ := newRedis(t)
	_, err := seq.Next(context.Background(), "INV-20261017", func(context.Context, string) (int, error) {
		return 0, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestTokenCache(t *testing.T) {
	_, _, tc := newRedis(t)
	ctx := context.Background()

	id, err := tc.Lookup(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, tc.Put(ctx, "abc123", "order-1"))
	id, err = tc.Lookup(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "order-1", id)
}
