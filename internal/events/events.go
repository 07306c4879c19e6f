package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TopicOrderCreated     = "bizops.order.created"
	TopicOrderPaid        = "bizops.order.paid"
	TopicStockAdjusted    = "bizops.stock.adjusted"
	TopicReferralCreated  = "bizops.referral.created"
	TopicReferralRewarded = "bizops.referral.reward_paid"
	TopicLeadConverted    = "bizops.lead.converted"
	TopicDailyDigest      = "bizops.digest.daily"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventOrderPaid        = "OrderPaid"
	EventStockAdjusted    = "StockAdjusted"
	EventReferralCreated  = "ReferralCreated"
	EventReferralRewarded = "ReferralRewardPaid"
	EventLeadConverted    = "LeadConverted"
	EventDailyDigest      = "DailyDigest"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually the document id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads ----

type OrderCreatedPayload struct {
	OrderID       string          `json:"order_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    string          `json:"customer_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

type OrderPaidPayload struct {
	OrderID            string          `json:"order_id"`
	InvoiceNumber      string          `json:"invoice_number"`
	CustomerID         string          `json:"customer_id"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	ReferralCodeMinted string          `json:"referral_code_minted,omitempty"`
}

type StockAdjustedPayload struct {
	ProductID         string `json:"product_id"`
	Change            int    `json:"change"`
	Reason            string `json:"reason"`
	ResultingQuantity int    `json:"resulting_quantity"`
	LowStock          bool   `json:"low_stock"`
}

type ReferralPayload struct {
	ReferralID   string          `json:"referral_id"`
	ReferrerID   string          `json:"referrer_id"`
	RefereeID    string          `json:"referee_id"`
	OrderID      string          `json:"order_id"`
	RewardAmount decimal.Decimal `json:"reward_amount"`
}

type LeadConvertedPayload struct {
	LeadID     string `json:"lead_id"`
	CustomerID string `json:"customer_id"`
}

// Publisher delivers an envelope to a topic.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key []byte, env Envelope) error
}

// Emitter builds envelopes. A nil Emitter or nil Publisher drops events.
type Emitter struct {
	Pub      Publisher
	Producer string
}

func (e *Emitter) Emit(ctx context.Context, topic, eventType, correlationID string, payload any) error {
	if e == nil || e.Pub == nil {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Producer,
		CorrelationID: correlationID,
		Payload:       b,
	}
	return e.Pub.PublishEvent(ctx, topic, []byte(correlationID), env)
}

// Recorder keeps published envelopes in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

type Recorded struct {
	Topic    string
	Envelope Envelope
}

func (r *Recorder) PublishEvent(_ context.Context, topic string, _ []byte, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Topic: topic, Envelope: env})
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, ev := range r.Events {
		out = append(out, ev.Envelope.EventType)
	}
	return out
}

func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
