package orders

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const invoicePrefix = "INV"

// InvoicePrefix is the day part shared by every invoice issued on t's
// calendar day, e.g. INV-20260314.
func InvoicePrefix(t time.Time) string {
	return invoicePrefix + "-" + t.Format("20060102")
}

// FormatInvoiceNumber pads seq to at least two digits.
func FormatInvoiceNumber(t time.Time, seq int) string {
	return fmt.Sprintf("%s-%02d", InvoicePrefix(t), seq)
}

// SeedFunc reports the last sequence used under prefix in storage: the
// number of invoices carrying it, or the highest suffix if that is larger
// (invoices may have been deleted).
type SeedFunc func(ctx context.Context, prefix string) (int, error)

// Sequencer issues the next daily sequence number for prefix. seed is
// consulted for a prefix the sequencer has not seen yet.
type Sequencer interface {
	Next(ctx context.Context, prefix string, seed SeedFunc) (int, error)
}

// LocalSequencer issues max(seed, last issued)+1 under a mutex, so
// concurrent creations in one process never collide.
type LocalSequencer struct {
	mu   sync.Mutex
	last map[string]int
}

func NewLocalSequencer() *LocalSequencer {
	return &LocalSequencer{last: make(map[string]int)}
}

func (l *LocalSequencer) Next(ctx context.Context, prefix string, seed SeedFunc) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := seed(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if last := l.last[prefix]; last > n {
		n = last
	}
	n++
	l.last[prefix] = n
	// drop other days
	for k := range l.last {
		if k != prefix {
			delete(l.last, k)
		}
	}
	return n, nil
}

// invoiceSeq returns the sequence suffix of invoice when it belongs to
// prefix.
func invoiceSeq(invoice, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(invoice, prefix+"-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
