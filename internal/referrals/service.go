package referrals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/events"
	"github.com/ariefcatur/go-bizops/internal/metrics"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var DefaultReward = decimal.NewFromInt(500)

type Service struct {
	Store  docstore.Store
	Events *events.Emitter
	Log    logrus.FieldLogger
	Now    func() time.Time
	Reward decimal.Decimal
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) reward() decimal.Decimal {
	if s.Reward.IsZero() {
		return DefaultReward
	}
	return s.Reward
}

// Record creates the Completed reward for orderID. A second call for the
// same order returns the existing record with created=false.
func (s *Service) Record(ctx context.Context, referrerID, refereeID, orderID string) (ref domain.Referral, created bool, err error) {
	if referrerID == "" || refereeID == "" || orderID == "" {
		return domain.Referral{}, false, domain.Invalid("referrer, referee and order are required")
	}
	if referrerID == refereeID {
		return domain.Referral{}, false, domain.Invalid("a customer cannot refer themselves")
	}

	existing, err := docstore.WhereAs[domain.Referral](ctx, s.Store, domain.CollectionReferrals, "orderId", orderID)
	if err != nil {
		return domain.Referral{}, false, err
	}
	if len(existing) > 0 {
		return existing[0], false, nil
	}

	ref = domain.Referral{
		ReferrerID:   referrerID,
		RefereeID:    refereeID,
		OrderID:      orderID,
		RewardAmount: s.reward(),
		Status:       domain.ReferralCompleted,
		CreatedAt:    s.now(),
	}
	id, err := s.Store.Add(ctx, domain.CollectionReferrals, ref)
	if err != nil {
		return domain.Referral{}, false, fmt.Errorf("create referral: %w", err)
	}
	ref.ID = id
	metrics.RecordReferralCreated()

	log := s.Log.WithFields(logrus.Fields{"referral_id": id, "referrer_id": referrerID, "order_id": orderID})
	log.Info("referral reward recorded")
	if err := s.Events.Emit(ctx, events.TopicReferralCreated, events.EventReferralCreated, id, payload(ref)); err != nil {
		log.WithError(err).Warn("publish referral event")
	}
	return ref, true, nil
}

// Settle moves a Completed referral to RewardPaid.
func (s *Service) Settle(ctx context.Context, id string) (domain.Referral, error) {
	ref, err := s.Get(ctx, id)
	if err != nil {
		return domain.Referral{}, err
	}
	if ref.Status != domain.ReferralCompleted {
		return domain.Referral{}, fmt.Errorf("%w: referral %s is %s", domain.ErrInvalidTransition, id, ref.Status)
	}

	now := s.now()
	if err := s.Store.Update(ctx, domain.CollectionReferrals, id, map[string]any{
		"status": domain.ReferralRewardPaid,
		"paidAt": now,
	}); err != nil {
		return domain.Referral{}, fmt.Errorf("settle referral %s: %w", id, err)
	}
	ref.Status = domain.ReferralRewardPaid
	ref.PaidAt = &now

	if err := s.Events.Emit(ctx, events.TopicReferralRewarded, events.EventReferralRewarded, id, payload(ref)); err != nil {
		s.Log.WithError(err).WithField("referral_id", id).Warn("publish referral event")
	}
	return ref, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Referral, error) {
	ref, err := docstore.GetAs[domain.Referral](ctx, s.Store, domain.CollectionReferrals, id)
	if err != nil {
		return domain.Referral{}, fmt.Errorf("referral %s: %w", id, err)
	}
	return ref, nil
}

// List returns referrals newest first, optionally for one referrer.
func (s *Service) List(ctx context.Context, referrerID string) ([]domain.Referral, error) {
	var (
		refs []domain.Referral
		err  error
	)
	if referrerID != "" {
		refs, err = docstore.WhereAs[domain.Referral](ctx, s.Store, domain.CollectionReferrals, "referrerId", referrerID)
	} else {
		refs, err = docstore.ListAs[domain.Referral](ctx, s.Store, domain.CollectionReferrals)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].CreatedAt.After(refs[j].CreatedAt) })
	return refs, nil
}

type Summary struct {
	Count   int             `json:"count"`
	Earned  decimal.Decimal `json:"earned"`
	Paid    decimal.Decimal `json:"paid"`
	Pending decimal.Decimal `json:"pending"`
}

func Summarize(refs []domain.Referral) Summary {
	sum := Summary{Earned: decimal.Zero, Paid: decimal.Zero, Pending: decimal.Zero}
	for _, r := range refs {
		sum.Count++
		sum.Earned = sum.Earned.Add(r.RewardAmount)
		switch r.Status {
		case domain.ReferralRewardPaid:
			sum.Paid = sum.Paid.Add(r.RewardAmount)
		case domain.ReferralCompleted:
			sum.Pending = sum.Pending.Add(r.RewardAmount)
		}
	}
	return sum
}

func payload(r domain.Referral) events.ReferralPayload {
	return events.ReferralPayload{
		ReferralID:   r.ID,
		ReferrerID:   r.ReferrerID,
		RefereeID:    r.RefereeID,
		OrderID:      r.OrderID,
		RewardAmount: r.RewardAmount,
	}
}
