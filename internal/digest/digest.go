// Package digest runs the scheduled notification digest.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-bizops/internal/events"
	"github.com/ariefcatur/go-bizops/internal/reports"
	"github.com/ariefcatur/go-bizops/internal/state"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Snapshotter interface {
	Snapshot() state.Snapshot
}

type Payload struct {
	Date          string                `json:"date"`
	Notifications reports.Notifications `json:"notifications"`
}

type Job struct {
	State    Snapshotter
	Events   *events.Emitter
	Log      logrus.FieldLogger
	Location *time.Location
	Now      func() time.Time
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// Run computes today's notification counts, logs them and emits a digest
// event.
func (j *Job) Run(ctx context.Context) (Payload, error) {
	now := j.now()
	loc := j.Location
	if loc == nil {
		loc = time.Local
	}
	p := Payload{
		Date:          now.In(loc).Format(time.DateOnly),
		Notifications: reports.BuildNotifications(j.State.Snapshot(), now, loc),
	}
	j.Log.WithFields(logrus.Fields{
		"date":            p.Date,
		"low_stock":       p.Notifications.LowStock,
		"follow_ups_due":  p.Notifications.FollowUpsDue,
		"unpaid_invoices": p.Notifications.UnpaidInvoices,
		"pending_rewards": p.Notifications.PendingRewards,
	}).Info("daily digest")

	if err := j.Events.Emit(ctx, events.TopicDailyDigest, events.EventDailyDigest, p.Date, p); err != nil {
		return p, fmt.Errorf("publish digest: %w", err)
	}
	return p, nil
}

// Schedule registers the job on a new cron in the job's location. An empty
// spec returns a nil cron.
func Schedule(spec string, j *Job) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	loc := j.Location
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := j.Run(ctx); err != nil {
			j.Log.WithError(err).Warn("digest run failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("digest schedule %q: %w", spec, err)
	}
	return c, nil
}
