package inventory

import (
	"context"
	"errors"
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

func newService(t *testing.T) (*Service, *events.Recorder) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	rec := &events.Recorder{}
	clock := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	return &Service{
		Store:  docstore.NewMemory(),
		Events: &events.Emitter{Pub: rec, Producer: "test"},
		Log:    logger,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}, rec
}

func TestCreateProductRecordsInitialStock(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	p, err := s.CreateProduct(ctx, ProductInput{
		Name: "Hair Serum", SKU: "HS-01",
		CostPrice: decimal.NewFromInt(40), SellingPrice: decimal.NewFromInt(90),
		Quantity: 12, LowStockThreshold: 3,
	})
	require.NoError(t, err)

	hist, err := s.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 12, hist[0].Change)
	assert.Equal(t, ReasonInitialStock, hist[0].Reason)
	assert.Equal(t, 12, hist[0].ResultingQuantity)

	empty, err := s.CreateProduct(ctx, ProductInput{Name: "Comb"})
	require.NoError(t, err)
	hist, err = s.History(ctx, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestCreateProductValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	cases := map[string]ProductInput{
		"blank name":         {Name: "  "},
		"negative quantity":  {Name: "x", Quantity: -1},
		"negative price":     {Name: "x", SellingPrice: decimal.NewFromInt(-5)},
		"negative threshold": {Name: "x", LowStockThreshold: -2},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.CreateProduct(ctx, in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestAdjustStockLedger(t *testing.T) {
	ctx := context.Background()
	s, rec := newService(t)
	p, err := s.CreateProduct(ctx, ProductInput{Name: "Shampoo", Quantity: 5, LowStockThreshold: 2})
	require.NoError(t, err)

	p, err = s.AdjustStock(ctx, p.ID, 10, "Restock from dealer")
	require.NoError(t, err)
	assert.Equal(t, 15, p.Quantity)

	p, err = s.AdjustStock(ctx, p.ID, -13, "")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Quantity)
	assert.True(t, p.LowStock())

	hist, err := s.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, -13, hist[0].Change)
	assert.Equal(t, "Manual adjustment", hist[0].Reason)
	assert.Equal(t, 2, hist[0].ResultingQuantity)
	assert.Equal(t, 10, hist[1].Change)
	assert.Equal(t, ReasonInitialStock, hist[2].Reason)

	stored, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Quantity)

	types := rec.Types()
	assert.Equal(t, []string{events.EventStockAdjusted, events.EventStockAdjusted}, types)
	last, err := events.UnwrapPayload[events.StockAdjustedPayload](rec.Events[1].Envelope.Payload)
	require.NoError(t, err)
	assert.True(t, last.LowStock)
}

func TestAdjustStockRejectsNegativeResult(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	p, err := s.CreateProduct(ctx, ProductInput{Name: "Wax", Quantity: 3})
	require.NoError(t, err)

	_, err = s.AdjustStock(ctx, p.ID, -4, "Damaged")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var se *domain.StockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 4, se.Details[0].Required)
	assert.Equal(t, 3, se.Details[0].Available)

	_, err = s.AdjustStock(ctx, p.ID, 0, "nothing")
	assert.ErrorIs(t, err, domain.ErrValidation)

	hist, err := s.History(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestUpdateProductLeavesQuantity(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	p, err := s.CreateProduct(ctx, ProductInput{Name: "Gel", Quantity: 7})
	require.NoError(t, err)

	name := "Hair Gel"
	price := decimal.RequireFromString("120.50")
	updated, err := s.UpdateProduct(ctx, p.ID, ProductPatch{Name: &name, SellingPrice: &price})
	require.NoError(t, err)
	assert.Equal(t, "Hair Gel", updated.Name)

	stored, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Quantity)
	assert.True(t, price.Equal(stored.SellingPrice))

	_, err = s.UpdateProduct(ctx, "missing", ProductPatch{Name: &name})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestListProductsSortedByName(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	for _, n := range []string{"conditioner", "Beard oil", "argan oil"} {
		_, err := s.CreateProduct(ctx, ProductInput{Name: n})
		require.NoError(t, err)
	}
	ps, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 3)
	assert.Equal(t, "argan oil", ps[0].Name)
	assert.Equal(t, "Beard oil", ps[1].Name)
	assert.Equal(t, "conditioner", ps[2].Name)
}

func TestDeductAllIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	a, err := s.CreateProduct(ctx, ProductInput{Name: "Dal", Quantity: 5})
	require.NoError(t, err)
	b, err := s.CreateProduct(ctx, ProductInput{Name: "Salt", Quantity: 3})
	require.NoError(t, err)

	_, err = s.DeductAll(ctx, []Line{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 2},
		{ProductID: "gone", ProductName: "Ghee", Quantity: 1},
	}, "Sale (Invoice INV-20261017-01)")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var se *domain.StockError
	require.True(t, errors.As(err, &se))
	require.Len(t, se.Details, 2)
	byID := map[string]domain.StockShortfall{}
	for _, d := range se.Details {
		byID[d.ProductID] = d
	}
	assert.Equal(t, 4, byID[b.ID].Required, "lines for one product are summed")
	assert.Equal(t, 3, byID[b.ID].Available)
	assert.Equal(t, "Ghee", byID["gone"].ProductName)
	assert.Equal(t, 0, byID["gone"].Available)

	stored, err := s.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Quantity, "nothing written on shortfall")

	ps, err := s.DeductAll(ctx, []Line{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 1},
		{ProductID: a.ID, Quantity: 1},
	}, "Sale (Invoice INV-20261017-02)")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, 2, ps[0].Quantity)
	assert.Equal(t, 2, ps[1].Quantity)

	hist, err := s.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, -1, hist[0].Change)
	assert.Equal(t, 2, hist[0].ResultingQuantity)
	assert.Equal(t, -2, hist[1].Change)
	assert.Equal(t, 3, hist[1].ResultingQuantity)
}
