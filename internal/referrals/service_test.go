package referrals

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/events"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() (*Service, *events.Recorder) {
	logger, _ := test.NewNullLogger()
	rec := &events.Recorder{}
	clock := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	return &Service{
		Store:  docstore.NewMemory(),
		Events: &events.Emitter{Pub: rec, Producer: "test"},
		Log:    logger,
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	}, rec
}

func TestRecordIsIdempotentPerOrder(t *testing.T) {
	ctx := context.Background()
	s, rec := newService()

	ref, created, err := s.Record(ctx, "priya", "dev", "order-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.ReferralCompleted, ref.Status)
	assert.True(t, DefaultReward.Equal(ref.RewardAmount))

	again, created, err := s.Record(ctx, "priya", "dev", "order-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ref.ID, again.ID)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, []string{events.EventReferralCreated}, rec.Types())
}

func TestRecordValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newService()

	_, _, err := s.Record(ctx, "priya", "priya", "order-1")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, _, err = s.Record(ctx, "", "dev", "order-1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCustomReward(t *testing.T) {
	s, _ := newService()
	s.Reward = decimal.NewFromInt(250)
	ref, _, err := s.Record(context.Background(), "priya", "dev", "order-9")
	require.NoError(t, err)
	assert.Equal(t, "250", ref.RewardAmount.String())
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	s, rec := newService()
	ref, _, err := s.Record(ctx, "priya", "dev", "order-1")
	require.NoError(t, err)

	paid, err := s.Settle(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReferralRewardPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	stored, err := s.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReferralRewardPaid, stored.Status)

	_, err = s.Settle(ctx, ref.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = s.Settle(ctx, "nope")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	assert.Equal(t, []string{events.EventReferralCreated, events.EventReferralRewarded}, rec.Types())
}

func TestListAndSummarize(t *testing.T) {
	ctx := context.Background()
	s, _ := newService()
	first, _, err := s.Record(ctx, "priya", "dev", "o1")
	require.NoError(t, err)
	_, _, err = s.Record(ctx, "priya", "arun", "o2")
	require.NoError(t, err)
	_, _, err = s.Record(ctx, "meera", "kiran", "o3")
	require.NoError(t, err)
	_, err = s.Settle(ctx, first.ID)
	require.NoError(t, err)

	mine, err := s.List(ctx, "priya")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "o2", mine[0].OrderID, "newest first")

	sum := Summarize(mine)
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, "1000", sum.Earned.String())
	assert.Equal(t, "500", sum.Paid.String())
	assert.Equal(t, "500", sum.Pending.String())
}
