package kafka

import (
	"context"
	"strconv"

	"github.com/ariefcatur/go-bizops/internal/events"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// EventPublisher sends domain event envelopes through a Producer.
type EventPublisher struct {
	P *Producer
}

var _ events.Publisher = (*EventPublisher)(nil)

func (e *EventPublisher) PublishEvent(ctx context.Context, topic string, key []byte, env events.Envelope) error {
	return e.P.Publish(ctx, topic, key, MustMarshal(env), eventHeaders(env)...)
}

func eventHeaders(env events.Envelope) []kafka.Header {
	return []kafka.Header{
		{Key: HeaderEventType, Value: []byte(env.EventType)},
		{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
	}
}
