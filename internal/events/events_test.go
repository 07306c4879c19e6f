package events

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterWrapsPayload(t *testing.T) {
	rec := &Recorder{}
	em := &Emitter{Pub: rec, Producer: "bizops-api"}

	err := em.Emit(context.Background(), TopicOrderCreated, EventOrderCreated, "o-1", OrderCreatedPayload{
		OrderID: "o-1", InvoiceNumber: "INV-20260101-01", TotalAmount: decimal.RequireFromString("262.4"),
	})
	require.NoError(t, err)
	require.Len(t, rec.Events, 1)

	got := rec.Events[0]
	assert.Equal(t, TopicOrderCreated, got.Topic)
	assert.Equal(t, EventOrderCreated, got.Envelope.EventType)
	assert.Equal(t, 1, got.Envelope.EventVersion)
	assert.Equal(t, "bizops-api", got.Envelope.Producer)
	assert.Equal(t, "o-1", got.Envelope.CorrelationID)
	assert.NotEmpty(t, got.Envelope.EventID)

	p, err := UnwrapPayload[OrderCreatedPayload](got.Envelope.Payload)
	require.NoError(t, err)
	assert.Equal(t, "INV-20260101-01", p.InvoiceNumber)
	assert.True(t, p.TotalAmount.Equal(decimal.RequireFromString("262.4")))
}

func TestNilEmitterDrops(t *testing.T) {
	var em *Emitter
	assert.NoError(t, em.Emit(context.Background(), TopicOrderPaid, EventOrderPaid, "x", struct{}{}))
	assert.NoError(t, (&Emitter{}).Emit(context.Background(), TopicOrderPaid, EventOrderPaid, "x", struct{}{}))
}
