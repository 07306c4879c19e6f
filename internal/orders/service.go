package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-bizops/internal/crm"
	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/events"
	"github.com/ariefcatur/go-bizops/internal/inventory"
	"github.com/ariefcatur/go-bizops/internal/metrics"
	"github.com/ariefcatur/go-bizops/internal/referrals"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ItemInput struct {
	ProductID string          `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Discount  decimal.Decimal `json:"discount"` // per unit
}

type CreateInput struct {
	CustomerID    string          `json:"customerId" validate:"required"`
	Items         []ItemInput     `json:"items" validate:"required,min=1,dive"`
	ServiceFee    decimal.Decimal `json:"serviceFee"`
	PaymentMethod string          `json:"paymentMethod"`
	Notes         string          `json:"notes"`
}

// TokenCache maps public share tokens to order ids.
type TokenCache interface {
	Put(ctx context.Context, token, orderID string) error
	Lookup(ctx context.Context, token string) (string, error)
}

type Service struct {
	Store     docstore.Store
	Inventory *inventory.Service
	CRM       *crm.Service
	Referrals *referrals.Service
	Sequencer Sequencer
	Tokens    TokenCache // optional
	Events    *events.Emitter
	Log       logrus.FieldLogger
	Now       func() time.Time
	Location  *time.Location // invoice calendar day

	// one Unpaid→Paid workflow at a time per process
	payMu sync.Mutex
}

func (s *Service) now() time.Time {
	t := time.Now()
	if s.Now != nil {
		t = s.Now()
	}
	if s.Location != nil {
		t = t.In(s.Location)
	}
	return t
}

// Create validates the items against the catalog and stores an Unpaid
// invoice. Stock is not touched until payment.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Order, error) {
	if len(in.Items) == 0 {
		return domain.Order{}, domain.Invalid("an order needs at least one item")
	}
	if in.ServiceFee.IsNegative() {
		return domain.Order{}, domain.Invalid("service fee cannot be negative")
	}
	cust, err := s.CRM.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.Order{}, domain.Invalid("customer %s not found", in.CustomerID)
		}
		return domain.Order{}, err
	}

	items := make([]domain.LineItem, 0, len(in.Items))
	requested := map[string]int{}
	products := map[string]domain.Product{}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return domain.Order{}, domain.Invalid("invalid quantity for product %s", it.ProductID)
		}
		p, ok := products[it.ProductID]
		if !ok {
			p, err = s.Inventory.GetProduct(ctx, it.ProductID)
			if err != nil {
				if errors.Is(err, docstore.ErrNotFound) {
					return domain.Order{}, domain.Invalid("product not found: %s", it.ProductID)
				}
				return domain.Order{}, err
			}
			products[p.ID] = p
		}
		if it.Discount.IsNegative() || it.Discount.GreaterThan(p.SellingPrice) {
			return domain.Order{}, domain.Invalid("discount for %s must be between 0 and the unit price", p.Name)
		}
		requested[p.ID] += it.Quantity
		items = append(items, domain.LineItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			SKU:         p.SKU,
			Quantity:    it.Quantity,
			UnitPrice:   p.SellingPrice,
			Discount:    it.Discount,
			LineTotal:   LineTotal(p.SellingPrice, it.Discount, it.Quantity),
		})
	}
	if short := shortfalls(requested, products); len(short) > 0 {
		return domain.Order{}, &domain.StockError{Details: short}
	}

	now := s.now()
	prefix := InvoicePrefix(now)
	seq, err := s.Sequencer.Next(ctx, prefix, s.lastInvoiceSeq)
	if err != nil {
		return domain.Order{}, fmt.Errorf("invoice sequence: %w", err)
	}

	totals := ComputeTotals(items, in.ServiceFee)
	o := domain.Order{
		CustomerID:    cust.ID,
		CustomerName:  cust.Name,
		Items:         items,
		InvoiceNumber: FormatInvoiceNumber(now, seq),
		ShareToken:    strings.ReplaceAll(uuid.NewString(), "-", ""),
		Subtotal:      totals.Subtotal,
		ServiceFee:    totals.ServiceFee,
		Tax:           totals.Tax,
		TotalAmount:   totals.Total,
		PaymentStatus: domain.PaymentUnpaid,
		PaymentMethod: in.PaymentMethod,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	id, err := s.Store.Add(ctx, domain.CollectionOrders, o)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	o.ID = id
	metrics.RecordOrderCreated()

	log := s.Log.WithFields(logrus.Fields{"order_id": id, "invoice": o.InvoiceNumber})
	if s.Tokens != nil {
		if err := s.Tokens.Put(ctx, o.ShareToken, id); err != nil {
			log.WithError(err).Warn("cache share token")
		}
	}
	if err := s.Events.Emit(ctx, events.TopicOrderCreated, events.EventOrderCreated, id, events.OrderCreatedPayload{
		OrderID: id, InvoiceNumber: o.InvoiceNumber, CustomerID: o.CustomerID, TotalAmount: o.TotalAmount,
	}); err != nil {
		log.WithError(err).Warn("publish order event")
	}
	log.WithField("total", o.TotalAmount.String()).Info("invoice created")
	return o, nil
}

// lastInvoiceSeq seeds the sequencer from stored orders.
func (s *Service) lastInvoiceSeq(ctx context.Context, prefix string) (int, error) {
	docs, err := s.Store.List(ctx, domain.CollectionOrders)
	if err != nil {
		return 0, err
	}
	count, highest := 0, 0
	for _, d := range docs {
		inv, _ := docstore.FieldString(d.Data, "invoiceNumber")
		if n, ok := invoiceSeq(inv, prefix); ok {
			count++
			if n > highest {
				highest = n
			}
		}
	}
	if highest > count {
		return highest, nil
	}
	return count, nil
}

type PaymentResult struct {
	Order        domain.Order     `json:"order"`
	ReferralCode string           `json:"referralCode,omitempty"` // set when minted by this payment
	Referral     *domain.Referral `json:"referral,omitempty"`     // set when created by this payment
}

// SetPaymentStatus records a payment status change. Unpaid→Paid deducts
// stock for every line item (all items are checked before any write), then
// applies the referral side effects. Paid→Unpaid is rejected.
func (s *Service) SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus, method string) (PaymentResult, error) {
	if !status.Valid() {
		return PaymentResult{}, domain.Invalid("unknown payment status %q", status)
	}

	s.payMu.Lock()
	defer s.payMu.Unlock()

	o, err := s.Get(ctx, id)
	if err != nil {
		return PaymentResult{}, err
	}
	log := s.Log.WithFields(logrus.Fields{"order_id": id, "invoice": o.InvoiceNumber})

	if o.PaymentStatus == status {
		if method != "" && method != o.PaymentMethod {
			o.PaymentMethod = method
			o.UpdatedAt = s.now()
			if err := s.Store.Update(ctx, domain.CollectionOrders, id, map[string]any{
				"paymentMethod": method,
				"updatedAt":     o.UpdatedAt,
			}); err != nil {
				return PaymentResult{}, fmt.Errorf("update order %s: %w", id, err)
			}
		}
		return PaymentResult{Order: o}, nil
	}
	if status == domain.PaymentUnpaid {
		return PaymentResult{}, fmt.Errorf("%w: invoice %s is already Paid", domain.ErrInvalidTransition, o.InvoiceNumber)
	}

	// stock may have moved since the invoice was issued; checked and
	// deducted under the inventory lock
	lines := make([]inventory.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, inventory.Line{ProductID: it.ProductID, ProductName: it.ProductName, Quantity: it.Quantity})
	}
	if _, err := s.Inventory.DeductAll(ctx, lines, fmt.Sprintf("Sale (Invoice %s)", o.InvoiceNumber)); err != nil {
		var stock *domain.StockError
		if errors.As(err, &stock) {
			metrics.RecordPaymentUpdate(false)
			log.WithError(err).Warn("payment rejected")
			return PaymentResult{}, err
		}
		log.WithError(err).Error("stock deduction failed mid-payment")
		return PaymentResult{}, fmt.Errorf("deduct stock: %w", err)
	}

	now := s.now()
	if method != "" {
		o.PaymentMethod = method
	}
	o.PaymentStatus = domain.PaymentPaid
	o.PaidAt = &now
	o.UpdatedAt = now
	if err := s.Store.Update(ctx, domain.CollectionOrders, id, map[string]any{
		"paymentStatus": o.PaymentStatus,
		"paymentMethod": o.PaymentMethod,
		"paidAt":        now,
		"updatedAt":     now,
	}); err != nil {
		log.WithError(err).Error("stock deducted but order not marked paid")
		return PaymentResult{}, fmt.Errorf("mark order %s paid: %w", id, err)
	}
	metrics.RecordPaymentUpdate(true)
	log.Info("invoice paid")

	res := PaymentResult{Order: o}
	if err := s.applyReferralEffects(ctx, o, &res); err != nil {
		log.WithError(err).Error("referral side effects failed after payment")
		return res, err
	}

	if err := s.Events.Emit(ctx, events.TopicOrderPaid, events.EventOrderPaid, id, events.OrderPaidPayload{
		OrderID: id, InvoiceNumber: o.InvoiceNumber, CustomerID: o.CustomerID,
		TotalAmount: o.TotalAmount, ReferralCodeMinted: res.ReferralCode,
	}); err != nil {
		log.WithError(err).Warn("publish order event")
	}
	return res, nil
}

// applyReferralEffects mints the customer's code on their first paid order
// and records the referrer's reward when the customer was referred.
func (s *Service) applyReferralEffects(ctx context.Context, o domain.Order, res *PaymentResult) error {
	cust, err := s.CRM.GetCustomer(ctx, o.CustomerID)
	if errors.Is(err, docstore.ErrNotFound) {
		s.Log.WithField("order_id", o.ID).Warn("customer deleted, referral effects skipped")
		return nil
	}
	if err != nil {
		return err
	}

	if cust.ReferralCode == "" {
		first, err := s.isFirstPaid(ctx, cust.ID, o.ID)
		if err != nil {
			return err
		}
		if first {
			code, minted, err := s.CRM.EnsureReferralCode(ctx, cust.ID)
			if err != nil {
				return fmt.Errorf("referral code: %w", err)
			}
			if minted {
				res.ReferralCode = code
			}
		}
	}

	if cust.ReferredByID != "" {
		ref, created, err := s.Referrals.Record(ctx, cust.ReferredByID, cust.ID, o.ID)
		if err != nil {
			return fmt.Errorf("referral reward: %w", err)
		}
		if created {
			res.Referral = &ref
		}
	}
	return nil
}

func (s *Service) isFirstPaid(ctx context.Context, customerID, orderID string) (bool, error) {
	orders, err := docstore.WhereAs[domain.Order](ctx, s.Store, domain.CollectionOrders, "customerId", customerID)
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if o.ID != orderID && o.PaymentStatus == domain.PaymentPaid {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	o, err := docstore.GetAs[domain.Order](ctx, s.Store, domain.CollectionOrders, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, err)
	}
	return o, nil
}

// List returns orders newest first, optionally for one customer.
func (s *Service) List(ctx context.Context, customerID string) ([]domain.Order, error) {
	var (
		list []domain.Order
		err  error
	)
	if customerID != "" {
		list, err = docstore.WhereAs[domain.Order](ctx, s.Store, domain.CollectionOrders, "customerId", customerID)
	} else {
		list, err = docstore.ListAs[domain.Order](ctx, s.Store, domain.CollectionOrders)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// Delete removes the invoice. Stock deducted by a paid invoice is not
// restored.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Store.Delete(ctx, domain.CollectionOrders, id); err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	return nil
}

func shortfalls(requested map[string]int, products map[string]domain.Product) []domain.StockShortfall {
	var out []domain.StockShortfall
	for pid, qty := range requested {
		p := products[pid]
		if p.Quantity < qty {
			out = append(out, domain.StockShortfall{
				ProductID: pid, ProductName: p.Name, Required: qty, Available: p.Quantity,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
