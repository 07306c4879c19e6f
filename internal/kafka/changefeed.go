package kafka

import (
	"context"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const TopicDocChanges = "bizops.docs.changed"

// ChangeFeed routes document changes through a Kafka topic so every API
// process sees writes made by the others. Subscribers are served from a
// local fan-out fed by the consumer; Run must be started for them to
// receive anything.
type ChangeFeed struct {
	Topic string

	prod  *Producer
	cons  *Consumer
	local *docstore.LocalFeed
	log   logrus.FieldLogger
}

var _ docstore.Feed = (*ChangeFeed)(nil)

// NewChangeFeed consumes with group, which must be unique per process.
func NewChangeFeed(brokers []string, group string, prod *Producer, log logrus.FieldLogger) *ChangeFeed {
	return &ChangeFeed{
		Topic: TopicDocChanges,
		prod:  prod,
		cons: NewConsumer(ConsumerConfig{
			Brokers:    brokers,
			Group:      group,
			Topic:      TopicDocChanges,
			Workers:    1,
			FromLatest: true,
		}, log),
		local: docstore.NewLocalFeed(),
		log:   log,
	}
}

func (f *ChangeFeed) Publish(ctx context.Context, ch docstore.Change) error {
	return f.prod.Publish(ctx, f.Topic, []byte(ch.Collection+"/"+ch.ID), MustMarshal(ch))
}

func (f *ChangeFeed) Subscribe(collection string, fn docstore.Handler) func() {
	return f.local.Subscribe(collection, fn)
}

// Run dispatches consumed changes until ctx ends.
func (f *ChangeFeed) Run(ctx context.Context) error {
	return f.cons.Start(ctx, f.handle)
}

func (f *ChangeFeed) handle(ctx context.Context, m kafka.Message) error {
	ch, err := UnmarshalChange(m.Value)
	if err != nil {
		// poison message, skip it
		f.log.WithError(err).WithField("offset", m.Offset).Warn("drop undecodable change")
		return nil
	}
	return f.local.Publish(ctx, ch)
}
