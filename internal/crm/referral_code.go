package crm

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
)

const (
	defaultCodePrefix = "NH"
	codeAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	mintAttempts      = 5
)

type attribution struct {
	referrer *domain.Customer
	source   string
	warnings []string
}

// attribute resolves a referral code typed into a form. Lookup failures
// degrade to a warning so the record is still created.
func (s *Service) attribute(ctx context.Context, code string) attribution {
	code = strings.TrimSpace(code)
	if code == "" {
		return attribution{}
	}
	ref, ok, err := s.ResolveReferralCode(ctx, code)
	if err != nil {
		s.Log.WithError(err).WithField("referral_code", code).Warn("referral code lookup failed")
		return attribution{warnings: []string{fmt.Sprintf("could not verify referral code %q", code)}}
	}
	if !ok {
		return attribution{warnings: []string{fmt.Sprintf("referral code %q not found", code)}}
	}
	return attribution{referrer: &ref, source: "Referral by " + ref.Name}
}

// ResolveReferralCode finds the customer owning code (trimmed). The lookup
// is bounded by LookupTimeout.
func (s *Service) ResolveReferralCode(ctx context.Context, code string) (domain.Customer, bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Customer{}, false, nil
	}
	timeout := s.LookupTimeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cs, err := docstore.WhereAs[domain.Customer](ctx, s.Store, domain.CollectionCustomers, "referralCode", code)
	if err != nil {
		return domain.Customer{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Customer{}, false, err
	}
	if len(cs) == 0 {
		return domain.Customer{}, false, nil
	}
	return cs[0], true, nil
}

// EnsureReferralCode returns the customer's code, minting and persisting
// one if the customer has none. minted reports whether a new code was
// written.
func (s *Service) EnsureReferralCode(ctx context.Context, customerID string) (code string, minted bool, err error) {
	c, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return "", false, err
	}
	if c.ReferralCode != "" {
		return c.ReferralCode, false, nil
	}

	for i := 0; i < mintAttempts; i++ {
		candidate, err := s.newCode(c.ID)
		if err != nil {
			return "", false, err
		}
		taken, err := s.Store.Where(ctx, domain.CollectionCustomers, "referralCode", candidate)
		if err != nil {
			return "", false, err
		}
		if len(taken) > 0 {
			continue
		}
		if err := s.Store.Update(ctx, domain.CollectionCustomers, c.ID, map[string]any{
			"referralCode": candidate,
			"updatedAt":    s.now(),
		}); err != nil {
			return "", false, fmt.Errorf("store referral code for %s: %w", c.ID, err)
		}
		s.Log.WithField("customer_id", c.ID).WithField("referral_code", candidate).Info("referral code issued")
		return candidate, true, nil
	}
	return "", false, fmt.Errorf("no free referral code for customer %s after %d attempts", c.ID, mintAttempts)
}

// newCode builds <prefix>-<first 4 of id>-<4 random chars>.
func (s *Service) newCode(customerID string) (string, error) {
	prefix := s.CodePrefix
	if prefix == "" {
		prefix = defaultCodePrefix
	}
	idPart := strings.ToUpper(strings.ReplaceAll(customerID, "-", ""))
	if len(idPart) > 4 {
		idPart = idPart[:4]
	}
	var b strings.Builder
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < 4; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("referral code entropy: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return prefix + "-" + idPart + "-" + b.String(), nil
}
