package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
)

// InvoiceView is the read-only invoice shown behind a share link. Totals
// are recomputed from the line items, not read from the stored order.
type InvoiceView struct {
	InvoiceNumber string               `json:"invoiceNumber"`
	IssuedAt      time.Time            `json:"issuedAt"`
	PaidAt        *time.Time           `json:"paidAt,omitempty"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	PaymentMethod string               `json:"paymentMethod,omitempty"`
	CustomerName  string               `json:"customerName"`
	CustomerEmail string               `json:"customerEmail,omitempty"`
	CustomerPhone string               `json:"customerPhone,omitempty"`
	Items         []domain.LineItem    `json:"items"`
	Totals        Totals               `json:"totals"`
}

// PublicInvoice resolves token as a share token first and as an invoice
// number second.
func (s *Service) PublicInvoice(ctx context.Context, token string) (InvoiceView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return InvoiceView{}, fmt.Errorf("invoice: %w", docstore.ErrNotFound)
	}
	o, err := s.findByToken(ctx, token)
	if err != nil {
		return InvoiceView{}, err
	}

	items := make([]domain.LineItem, len(o.Items))
	for i, it := range o.Items {
		it.LineTotal = LineTotal(it.UnitPrice, it.Discount, it.Quantity)
		items[i] = it
	}
	v := InvoiceView{
		InvoiceNumber: o.InvoiceNumber,
		IssuedAt:      o.CreatedAt,
		PaidAt:        o.PaidAt,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		CustomerName:  o.CustomerName,
		Items:         items,
		Totals:        ComputeTotals(items, o.ServiceFee),
	}
	if c, err := s.CRM.GetCustomer(ctx, o.CustomerID); err == nil {
		v.CustomerName = c.Name
		v.CustomerEmail = c.Email
		v.CustomerPhone = c.Phone
	}
	return v, nil
}

func (s *Service) findByToken(ctx context.Context, token string) (domain.Order, error) {
	if s.Tokens != nil {
		if id, err := s.Tokens.Lookup(ctx, token); err == nil && id != "" {
			o, err := s.Get(ctx, id)
			if err == nil {
				return o, nil
			}
			if !errors.Is(err, docstore.ErrNotFound) {
				return domain.Order{}, err
			}
		}
	}
	for _, field := range []string{"shareToken", "invoiceNumber"} {
		found, err := docstore.WhereAs[domain.Order](ctx, s.Store, domain.CollectionOrders, field, token)
		if err != nil {
			return domain.Order{}, err
		}
		if len(found) > 0 {
			return found[0], nil
		}
	}
	return domain.Order{}, fmt.Errorf("invoice %q: %w", token, docstore.ErrNotFound)
}
