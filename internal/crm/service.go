// Package crm manages leads and customers, including referral-code
// attribution and lead conversion.
package crm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/events"
	"github.com/sirupsen/logrus"
)

const DefaultLookupTimeout = 3 * time.Second

type Service struct {
	Store  docstore.Store
	Events *events.Emitter
	Log    logrus.FieldLogger
	Now    func() time.Time

	CodePrefix    string        // referral code prefix, "NH" when empty
	LookupTimeout time.Duration // referral code lookup, DefaultLookupTimeout when zero
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type CustomerInput struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Source       string `json:"source"`
	ReferralCode string `json:"referralCode"` // code of the referring customer

	// ReferredByID attributes the customer directly, without a code. Not
	// settable from JSON; takes precedence over ReferralCode.
	ReferredByID string `json:"-"`
}

type CustomerPatch struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
	Source  *string `json:"source,omitempty"`
}

// CreateCustomer stores a customer. An unknown referral code yields a
// warning, not an error.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (domain.Customer, []string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Customer{}, nil, domain.Invalid("customer name is required")
	}

	now := s.now()
	c := domain.Customer{
		Name:      name,
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Address:   in.Address,
		Source:    in.Source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var attr attribution
	if in.ReferredByID != "" {
		ref, err := s.GetCustomer(ctx, in.ReferredByID)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.Customer{}, nil, domain.Invalid("referrer %s not found", in.ReferredByID)
		}
		if err != nil {
			return domain.Customer{}, nil, err
		}
		attr = attribution{referrer: &ref, source: "Referral by " + ref.Name}
	} else {
		attr = s.attribute(ctx, in.ReferralCode)
	}
	if attr.referrer != nil {
		c.ReferredByID = attr.referrer.ID
		c.Source = attr.source
	}

	id, err := s.Store.Add(ctx, domain.CollectionCustomers, c)
	if err != nil {
		return domain.Customer{}, attr.warnings, fmt.Errorf("create customer: %w", err)
	}
	c.ID = id
	return c, attr.warnings, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, in CustomerPatch) (domain.Customer, error) {
	c, err := s.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	patch := map[string]any{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return domain.Customer{}, domain.Invalid("customer name is required")
		}
		c.Name = strings.TrimSpace(*in.Name)
		patch["name"] = c.Name
	}
	if in.Email != nil {
		c.Email = strings.TrimSpace(*in.Email)
		patch["email"] = c.Email
	}
	if in.Phone != nil {
		c.Phone = strings.TrimSpace(*in.Phone)
		patch["phone"] = c.Phone
	}
	if in.Address != nil {
		c.Address = *in.Address
		patch["address"] = c.Address
	}
	if in.Source != nil {
		c.Source = *in.Source
		patch["source"] = c.Source
	}
	if len(patch) == 0 {
		return c, nil
	}
	c.UpdatedAt = s.now()
	patch["updatedAt"] = c.UpdatedAt
	if err := s.Store.Update(ctx, domain.CollectionCustomers, id, patch); err != nil {
		return domain.Customer{}, fmt.Errorf("update customer %s: %w", id, err)
	}
	return c, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	c, err := docstore.GetAs[domain.Customer](ctx, s.Store, domain.CollectionCustomers, id)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", id, err)
	}
	return c, nil
}

// ListCustomers returns customers newest first.
func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	cs, err := docstore.ListAs[domain.Customer](ctx, s.Store, domain.CollectionCustomers)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].CreatedAt.After(cs[j].CreatedAt) })
	return cs, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.Store.Delete(ctx, domain.CollectionCustomers, id); err != nil {
		return fmt.Errorf("delete customer %s: %w", id, err)
	}
	return nil
}
