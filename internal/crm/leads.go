package crm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/events"
	"github.com/sirupsen/logrus"
)

type LeadInput struct {
	Name         string     `json:"name" validate:"required"`
	Email        string     `json:"email" validate:"omitempty,email"`
	Phone        string     `json:"phone"`
	Source       string     `json:"source"`
	Notes        string     `json:"notes"`
	FollowUpDate *time.Time `json:"followUpDate"`
	ReferralCode string     `json:"referralCode"`
}

type LeadPatch struct {
	Name          *string    `json:"name,omitempty"`
	Email         *string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string    `json:"phone,omitempty"`
	Source        *string    `json:"source,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	FollowUpDate  *time.Time `json:"followUpDate,omitempty"`
	ClearFollowUp bool       `json:"clearFollowUp,omitempty"`
}

func (s *Service) CreateLead(ctx context.Context, in LeadInput) (domain.Lead, []string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Lead{}, nil, domain.Invalid("lead name is required")
	}

	now := s.now()
	l := domain.Lead{
		Name:         name,
		Email:        strings.TrimSpace(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		Source:       in.Source,
		Status:       domain.LeadNew,
		Notes:        in.Notes,
		FollowUpDate: in.FollowUpDate,
		ReferralCode: strings.TrimSpace(in.ReferralCode),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	attr := s.attribute(ctx, in.ReferralCode)
	if attr.referrer != nil {
		l.ReferredByID = attr.referrer.ID
		l.Source = attr.source
	}

	id, err := s.Store.Add(ctx, domain.CollectionLeads, l)
	if err != nil {
		return domain.Lead{}, attr.warnings, fmt.Errorf("create lead: %w", err)
	}
	l.ID = id
	return l, attr.warnings, nil
}

func (s *Service) UpdateLead(ctx context.Context, id string, in LeadPatch) (domain.Lead, error) {
	l, err := s.GetLead(ctx, id)
	if err != nil {
		return domain.Lead{}, err
	}
	patch := map[string]any{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return domain.Lead{}, domain.Invalid("lead name is required")
		}
		l.Name = strings.TrimSpace(*in.Name)
		patch["name"] = l.Name
	}
	if in.Email != nil {
		l.Email = strings.TrimSpace(*in.Email)
		patch["email"] = l.Email
	}
	if in.Phone != nil {
		l.Phone = strings.TrimSpace(*in.Phone)
		patch["phone"] = l.Phone
	}
	if in.Source != nil {
		l.Source = *in.Source
		patch["source"] = l.Source
	}
	if in.Notes != nil {
		l.Notes = *in.Notes
		patch["notes"] = l.Notes
	}
	switch {
	case in.ClearFollowUp:
		l.FollowUpDate = nil
		patch["followUpDate"] = nil
	case in.FollowUpDate != nil:
		l.FollowUpDate = in.FollowUpDate
		patch["followUpDate"] = l.FollowUpDate
	}
	if len(patch) == 0 {
		return l, nil
	}
	l.UpdatedAt = s.now()
	patch["updatedAt"] = l.UpdatedAt
	if err := s.Store.Update(ctx, domain.CollectionLeads, id, patch); err != nil {
		return domain.Lead{}, fmt.Errorf("update lead %s: %w", id, err)
	}
	return l, nil
}

// SetLeadStatus changes the pipeline stage. Converted is only reachable
// through ConvertLead.
func (s *Service) SetLeadStatus(ctx context.Context, id string, status domain.LeadStatus) (domain.Lead, error) {
	if !status.Valid() {
		return domain.Lead{}, domain.Invalid("unknown lead status %q", status)
	}
	if status == domain.LeadConverted {
		return domain.Lead{}, fmt.Errorf("%w: use lead conversion to mark a lead Converted", domain.ErrInvalidTransition)
	}
	l, err := s.GetLead(ctx, id)
	if err != nil {
		return domain.Lead{}, err
	}
	if l.Status == status {
		return l, nil
	}
	if !domain.CanTransitionLead(l.Status, status) {
		return domain.Lead{}, fmt.Errorf("%w: lead %s is %s", domain.ErrInvalidTransition, id, l.Status)
	}
	l.Status = status
	l.UpdatedAt = s.now()
	if err := s.Store.Update(ctx, domain.CollectionLeads, id, map[string]any{
		"status":    l.Status,
		"updatedAt": l.UpdatedAt,
	}); err != nil {
		return domain.Lead{}, fmt.Errorf("update lead %s: %w", id, err)
	}
	return l, nil
}

// ConvertLead turns a Qualified lead into a customer carrying its contact
// details, source and referral attribution.
func (s *Service) ConvertLead(ctx context.Context, id string) (domain.Customer, domain.Lead, error) {
	l, err := s.GetLead(ctx, id)
	if err != nil {
		return domain.Customer{}, domain.Lead{}, err
	}
	if l.Status != domain.LeadQualified {
		return domain.Customer{}, domain.Lead{}, fmt.Errorf("%w: only Qualified leads can be converted, lead %s is %s",
			domain.ErrInvalidTransition, id, l.Status)
	}

	now := s.now()
	c := domain.Customer{
		Name:         l.Name,
		Email:        l.Email,
		Phone:        l.Phone,
		Source:       l.Source,
		ReferredByID: l.ReferredByID,
		LeadID:       l.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	cid, err := s.Store.Add(ctx, domain.CollectionCustomers, c)
	if err != nil {
		return domain.Customer{}, domain.Lead{}, fmt.Errorf("convert lead %s: %w", id, err)
	}
	c.ID = cid

	log := s.Log.WithFields(logrus.Fields{"lead_id": id, "customer_id": cid})
	l.Status = domain.LeadConverted
	l.CustomerID = cid
	l.UpdatedAt = now
	if err := s.Store.Update(ctx, domain.CollectionLeads, id, map[string]any{
		"status":     l.Status,
		"customerId": cid,
		"updatedAt":  now,
	}); err != nil {
		// customer exists but the lead still shows Qualified
		log.WithError(err).Error("lead not marked converted")
		return c, domain.Lead{}, fmt.Errorf("mark lead %s converted: %w", id, err)
	}
	log.Info("lead converted")

	if err := s.Events.Emit(ctx, events.TopicLeadConverted, events.EventLeadConverted, id, events.LeadConvertedPayload{
		LeadID: id, CustomerID: cid,
	}); err != nil {
		log.WithError(err).Warn("publish lead event")
	}
	return c, l, nil
}

func (s *Service) GetLead(ctx context.Context, id string) (domain.Lead, error) {
	l, err := docstore.GetAs[domain.Lead](ctx, s.Store, domain.CollectionLeads, id)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("lead %s: %w", id, err)
	}
	return l, nil
}

// ListLeads returns leads newest first, optionally filtered by status.
func (s *Service) ListLeads(ctx context.Context, status domain.LeadStatus) ([]domain.Lead, error) {
	var (
		ls  []domain.Lead
		err error
	)
	if status != "" {
		ls, err = docstore.WhereAs[domain.Lead](ctx, s.Store, domain.CollectionLeads, "status", string(status))
	} else {
		ls, err = docstore.ListAs[domain.Lead](ctx, s.Store, domain.CollectionLeads)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ls, func(i, j int) bool { return ls[i].CreatedAt.After(ls[j].CreatedAt) })
	return ls, nil
}

func (s *Service) DeleteLead(ctx context.Context, id string) error {
	if err := s.Store.Delete(ctx, domain.CollectionLeads, id); err != nil {
		return fmt.Errorf("delete lead %s: %w", id, err)
	}
	return nil
}
