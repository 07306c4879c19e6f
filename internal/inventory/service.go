package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/events"
	"github.com/ariefcatur/go-bizops/internal/metrics"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const ReasonInitialStock = "Initial stock"

type ProductInput struct {
	Name              string          `json:"name" validate:"required"`
	SKU               string          `json:"sku"`
	Dealer            string          `json:"dealer"`
	Category          string          `json:"category"`
	CostPrice         decimal.Decimal `json:"costPrice"`
	SellingPrice      decimal.Decimal `json:"sellingPrice"`
	Quantity          int             `json:"quantity" validate:"gte=0"`
	LowStockThreshold int             `json:"lowStockThreshold" validate:"gte=0"`
}

// ProductPatch holds editable fields; quantity is changed only through the
// stock ledger.
type ProductPatch struct {
	Name              *string          `json:"name,omitempty"`
	SKU               *string          `json:"sku,omitempty"`
	Dealer            *string          `json:"dealer,omitempty"`
	Category          *string          `json:"category,omitempty"`
	CostPrice         *decimal.Decimal `json:"costPrice,omitempty"`
	SellingPrice      *decimal.Decimal `json:"sellingPrice,omitempty"`
	LowStockThreshold *int             `json:"lowStockThreshold,omitempty"`
}

type Service struct {
	Store  docstore.Store
	Events *events.Emitter
	Log    logrus.FieldLogger
	Now    func() time.Time

	// serializes read-modify-write of product quantities
	mu sync.Mutex
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	if err := validateProduct(in.Name, in.CostPrice, in.SellingPrice, in.LowStockThreshold); err != nil {
		return domain.Product{}, err
	}
	if in.Quantity < 0 {
		return domain.Product{}, domain.Invalid("quantity cannot be negative")
	}

	now := s.now()
	p := domain.Product{
		Name:              strings.TrimSpace(in.Name),
		SKU:               strings.TrimSpace(in.SKU),
		Dealer:            in.Dealer,
		Category:          in.Category,
		CostPrice:         in.CostPrice,
		SellingPrice:      in.SellingPrice,
		Quantity:          in.Quantity,
		LowStockThreshold: in.LowStockThreshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	id, err := s.Store.Add(ctx, domain.CollectionProducts, p)
	if err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	p.ID = id

	if p.Quantity > 0 {
		if err := s.appendHistory(ctx, p.ID, p.Quantity, ReasonInitialStock, p.Quantity); err != nil {
			s.Log.WithError(err).WithField("product_id", p.ID).Error("initial stock history not recorded")
		}
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductPatch) (domain.Product, error) {
	cur, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	patch := map[string]any{}
	if in.Name != nil {
		cur.Name = strings.TrimSpace(*in.Name)
		patch["name"] = cur.Name
	}
	if in.SKU != nil {
		cur.SKU = strings.TrimSpace(*in.SKU)
		patch["sku"] = cur.SKU
	}
	if in.Dealer != nil {
		cur.Dealer = *in.Dealer
		patch["dealer"] = cur.Dealer
	}
	if in.Category != nil {
		cur.Category = *in.Category
		patch["category"] = cur.Category
	}
	if in.CostPrice != nil {
		cur.CostPrice = *in.CostPrice
		patch["costPrice"] = cur.CostPrice
	}
	if in.SellingPrice != nil {
		cur.SellingPrice = *in.SellingPrice
		patch["sellingPrice"] = cur.SellingPrice
	}
	if in.LowStockThreshold != nil {
		cur.LowStockThreshold = *in.LowStockThreshold
		patch["lowStockThreshold"] = cur.LowStockThreshold
	}
	if err := validateProduct(cur.Name, cur.CostPrice, cur.SellingPrice, cur.LowStockThreshold); err != nil {
		return domain.Product{}, err
	}
	if len(patch) == 0 {
		return cur, nil
	}
	cur.UpdatedAt = s.now()
	patch["updatedAt"] = cur.UpdatedAt

	if err := s.Store.Update(ctx, domain.CollectionProducts, id, patch); err != nil {
		return domain.Product{}, fmt.Errorf("update product %s: %w", id, err)
	}
	return cur, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := docstore.GetAs[domain.Product](ctx, s.Store, domain.CollectionProducts, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, err)
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	ps, err := docstore.ListAs[domain.Product](ctx, s.Store, domain.CollectionProducts)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ps, func(i, j int) bool { return strings.ToLower(ps[i].Name) < strings.ToLower(ps[j].Name) })
	return ps, nil
}

// DeleteProduct removes the product; its stock history is kept.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.Store.Delete(ctx, domain.CollectionProducts, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	return nil
}

// AdjustStock applies a manual delta. The resulting quantity may not go
// below zero.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int, reason string) (domain.Product, error) {
	if delta == 0 {
		return domain.Product{}, domain.Invalid("stock change must not be zero")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Manual adjustment"
	}
	return s.apply(ctx, id, delta, reason)
}

// Deduct removes qty units for a sale.
func (s *Service) Deduct(ctx context.Context, id string, qty int, reason string) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, domain.Invalid("deduct quantity must be positive")
	}
	return s.apply(ctx, id, -qty, reason)
}

// Line is one product quantity taken by DeductAll.
type Line struct {
	ProductID   string
	ProductName string // reported when the product no longer exists
	Quantity    int
}

// DeductAll removes every line under one lock and returns the products in
// first-seen order. All lines are checked first; on any shortfall nothing
// is written and the StockError lists every product that cannot be served.
func (s *Service) DeductAll(ctx context.Context, lines []Line, reason string) ([]domain.Product, error) {
	requested := map[string]int{}
	var ids []string
	names := map[string]string{}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, domain.Invalid("deduct quantity must be positive")
		}
		if _, seen := requested[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
			names[l.ProductID] = l.ProductName
		}
		requested[l.ProductID] += l.Quantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	products := make(map[string]domain.Product, len(ids))
	var short []domain.StockShortfall
	for _, id := range ids {
		p, err := s.GetProduct(ctx, id)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			short = append(short, domain.StockShortfall{ProductID: id, ProductName: names[id], Required: requested[id]})
			continue
		case err != nil:
			return nil, err
		}
		if p.Quantity < requested[id] {
			short = append(short, domain.StockShortfall{
				ProductID: id, ProductName: p.Name, Required: requested[id], Available: p.Quantity,
			})
		}
		products[id] = p
	}
	if len(short) > 0 {
		sort.Slice(short, func(i, j int) bool { return short[i].ProductID < short[j].ProductID })
		return nil, &domain.StockError{Details: short}
	}

	// one ledger row per line
	for _, l := range lines {
		updated, err := s.write(ctx, products[l.ProductID], -l.Quantity, reason)
		if err != nil {
			return nil, err
		}
		products[l.ProductID] = updated
	}
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, products[id])
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, id string, delta int, reason string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if p.Quantity+delta < 0 {
		return domain.Product{}, &domain.StockError{Details: []domain.StockShortfall{{
			ProductID: p.ID, ProductName: p.Name, Required: -delta, Available: p.Quantity,
		}}}
	}
	return s.write(ctx, p, delta, reason)
}

// write persists a checked quantity change; s.mu must be held.
func (s *Service) write(ctx context.Context, p domain.Product, delta int, reason string) (domain.Product, error) {
	id := p.ID
	next := p.Quantity + delta
	now := s.now()
	if err := s.Store.Update(ctx, domain.CollectionProducts, id, map[string]any{
		"quantity":  next,
		"updatedAt": now,
	}); err != nil {
		return domain.Product{}, fmt.Errorf("update stock %s: %w", id, err)
	}
	p.Quantity = next
	p.UpdatedAt = now
	metrics.RecordStockChange(delta)

	log := s.Log.WithFields(logrus.Fields{"product_id": id, "change": delta, "quantity": next})
	if err := s.appendHistory(ctx, id, delta, reason, next); err != nil {
		// quantity already moved; the ledger row is lost
		log.WithError(err).Error("stock history not recorded")
	}
	if err := s.Events.Emit(ctx, events.TopicStockAdjusted, events.EventStockAdjusted, id, events.StockAdjustedPayload{
		ProductID: id, Change: delta, Reason: reason, ResultingQuantity: next, LowStock: p.LowStock(),
	}); err != nil {
		log.WithError(err).Warn("publish stock event")
	}
	if p.LowStock() {
		log.Info("product at or below low-stock threshold")
	}
	return p, nil
}

func (s *Service) appendHistory(ctx context.Context, productID string, change int, reason string, resulting int) error {
	_, err := s.Store.Add(ctx, domain.CollectionStockHistory, domain.StockHistoryEntry{
		ProductID:         productID,
		Change:            change,
		Reason:            reason,
		ResultingQuantity: resulting,
		Date:              s.now(),
	})
	return err
}

// History returns the ledger of a product, newest first.
func (s *Service) History(ctx context.Context, productID string) ([]domain.StockHistoryEntry, error) {
	hs, err := docstore.WhereAs[domain.StockHistoryEntry](ctx, s.Store, domain.CollectionStockHistory, "productId", productID)
	if err != nil {
		return nil, err
	}
	slices.Reverse(hs)
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Date.After(hs[j].Date) })
	return hs, nil
}

func validateProduct(name string, cost, sell decimal.Decimal, threshold int) error {
	if strings.TrimSpace(name) == "" {
		return domain.Invalid("product name is required")
	}
	if cost.IsNegative() || sell.IsNegative() {
		return domain.Invalid("prices cannot be negative")
	}
	if threshold < 0 {
		return domain.Invalid("low stock threshold cannot be negative")
	}
	return nil
}
