package orders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-bizops/internal/crm"
	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/events"
	"github.com/ariefcatur/go-bizops/internal/inventory"
	"github.com/ariefcatur/go-bizops/internal/referrals"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *docstore.Memory
	inv    *inventory.Service
	crm    *crm.Service
	refs   *referrals.Service
	svc    *Service
	events *events.Recorder
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		store:  docstore.NewMemory(),
		events: &events.Recorder{},
		now:    time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	em := &events.Emitter{Pub: f.events, Producer: "test"}

	f.inv = &inventory.Service{Store: f.store, Events: em, Log: logger, Now: clock}
	f.crm = &crm.Service{Store: f.store, Events: em, Log: logger, Now: clock}
	f.refs = &referrals.Service{Store: f.store, Events: em, Log: logger, Now: clock, Reward: decimal.NewFromInt(500)}
	f.svc = &Service{
		Store:     f.store,
		Inventory: f.inv,
		CRM:       f.crm,
		Referrals: f.refs,
		Sequencer: NewLocalSequencer(),
		Events:    em,
		Log:       logger,
		Now:       clock,
		Location:  time.UTC,
	}
	return f
}

func (f *fixture) product(t *testing.T, name, price string, qty int) domain.Product {
	t.Helper()
	p, err := f.inv.CreateProduct(context.Background(), inventory.ProductInput{
		Name:         name,
		SKU:          strings.ToUpper(name),
		CostPrice:    decimal.RequireFromString(price).Div(decimal.NewFromInt(2)),
		SellingPrice: decimal.RequireFromString(price),
		Quantity:     qty,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) customer(t *testing.T, name, code string) domain.Customer {
	t.Helper()
	c, _, err := f.crm.CreateCustomer(context.Background(), crm.CustomerInput{Name: name, ReferralCode: code})
	require.NoError(t, err)
	return c
}

func (f *fixture) quantity(t *testing.T, id string) int {
	t.Helper()
	p, err := f.inv.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func TestComputeTotalsWorkedExample(t *testing.T) {
	items := []domain.LineItem{{
		UnitPrice: decimal.NewFromInt(100),
		Discount:  decimal.NewFromInt(10),
		Quantity:  2,
	}}
	got := ComputeTotals(items, decimal.NewFromInt(50))

	assert.True(t, got.Subtotal.Equal(decimal.NewFromInt(180)), got.Subtotal.String())
	assert.True(t, got.Tax.Equal(decimal.RequireFromString("32.4")), got.Tax.String())
	assert.True(t, got.Total.Equal(decimal.RequireFromString("262.4")), got.Total.String())
}

func TestComputeTotalsSumsLines(t *testing.T) {
	items := []domain.LineItem{
		{UnitPrice: decimal.RequireFromString("19.99"), Quantity: 3},
		{UnitPrice: decimal.RequireFromString("5.50"), Discount: decimal.RequireFromString("0.50"), Quantity: 4},
	}
	fee := decimal.RequireFromString("2.25")
	got := ComputeTotals(items, fee)

	lines := decimal.Zero
	for _, it := range items {
		lines = lines.Add(LineTotal(it.UnitPrice, it.Discount, it.Quantity))
	}
	assert.True(t, got.Subtotal.Equal(lines))
	assert.True(t, got.Total.Equal(lines.Add(got.Tax).Add(fee)))
	assert.True(t, got.Tax.Equal(lines.Mul(TaxRate).Round(2)))
}

func TestFormatInvoiceNumber(t *testing.T) {
	day := time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "INV-20260304-01", FormatInvoiceNumber(day, 1))
	assert.Equal(t, "INV-20260304-42", FormatInvoiceNumber(day, 42))
	assert.Equal(t, "INV-20260304-123", FormatInvoiceNumber(day, 123))
}

func TestCreateIssuesDailySequenceAndLeavesStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "rice", "100", 10)
	c := f.customer(t, "Asha", "")

	var numbers []string
	for i := 0; i < 3; i++ {
		o, err := f.svc.Create(ctx, CreateInput{
			CustomerID: c.ID,
			Items:      []ItemInput{{ProductID: p.ID, Quantity: 2, Discount: decimal.NewFromInt(10)}},
			ServiceFee: decimal.NewFromInt(50),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentUnpaid, o.PaymentStatus)
		assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("262.4")))
		assert.Equal(t, "Asha", o.CustomerName)
		assert.NotEmpty(t, o.ShareToken)
		numbers = append(numbers, o.InvoiceNumber)
	}
	assert.Equal(t, []string{"INV-20261017-01", "INV-20261017-02", "INV-20261017-03"}, numbers)
	assert.Equal(t, 10, f.quantity(t, p.ID), "creation must not touch stock")

	f.now = f.now.Add(24 * time.Hour)
	o, err := f.svc.Create(ctx, CreateInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "INV-20261018-01", o.InvoiceNumber)
}

func TestCreateSequenceSurvivesDeletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "oil", "20", 10)
	c := f.customer(t, "Ravi", "")
	in := CreateInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}}

	first, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, first.ID))

	// a fresh sequencer reseeds from storage: highest suffix wins over count
	f.svc.Sequencer = NewLocalSequencer()
	third, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "INV-20261017-02", second.InvoiceNumber)
	assert.Equal(t, "INV-20261017-03", third.InvoiceNumber)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "sugar", "40", 3)
	c := f.customer(t, "Meena", "")

	cases := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"unknown customer", CreateInput{CustomerID: "nope", Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}}, domain.ErrValidation},
		{"no items", CreateInput{CustomerID: c.ID}, domain.ErrValidation},
		{"unknown product", CreateInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: "ghost", Quantity: 1}}}, domain.ErrValidation},
		{"zero quantity", CreateInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 0}}}, domain.ErrValidation},
		{"discount above price", CreateInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 1, Discount: decimal.NewFromInt(41)}}}, domain.ErrValidation},
		{"negative fee", CreateInput{CustomerID: c.ID, ServiceFee: decimal.NewFromInt(-1), Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}}, domain.ErrValidation},
		{"over stock across lines", CreateInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 2}, {ProductID: p.ID, Quantity: 2}}}, domain.ErrInsufficientStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	orders, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestMarkPaidDeductsStockAndWritesLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "flour", "30", 10)
	c := f.customer(t, "Kiran", "")

	o, err := f.svc.Create(ctx, CreateInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 4}}})
	require.NoError(t, err)

	res, err := f.svc.SetPaymentStatus(ctx, o.ID, domain.PaymentPaid, "UPI")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, res.Order.PaymentStatus)
	assert.Equal(t, "UPI", res.Order.PaymentMethod)
	require.NotNil(t, res.Order.PaidAt)
	assert.Equal(t, 6, f.quantity(t, p.ID))

	hist, err := f.inv.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, -4, hist[0].Change)
	assert.Equal(t, "Sale (Invoice "+o.InvoiceNumber+")", hist[0].Reason)
	assert.Equal(t, 6, hist[0].ResultingQuantity)

	stored, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, stored.PaymentStatus)
}

func TestMarkPaidRejectsWholeUpdateWhenStockMoved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.product(t, "dal", "80", 5)
	b := f.product(t, "salt", "10", 5)
	c := f.customer(t, "Nila", "")

	o, err := f.svc.Create(ctx, CreateInput{CustomerID: c.ID, Items: []ItemInput{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 4},
	}})
	require.NoError(t, err)

	_, err = f.inv.AdjustStock(ctx, b.ID, -3, "Damaged")
	require.NoError(t, err)

	_, err = f.svc.SetPaymentStatus(ctx, o.ID, domain.PaymentPaid, "Cash")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var se *domain.StockError
	require.True(t, errors.As(err, &se))
	require.Len(t, se.Details, 1)
	assert.Equal(t, b.ID, se.Details[0].ProductID)
	assert.Equal(t, 2, se.Details[0].Available)

	assert.Equal(t, 5, f.quantity(t, a.ID), "no partial decrement")
	assert.Equal(t, 2, f.quantity(t, b.ID))
	stored, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnpaid, stored.PaymentStatus)
}

func TestMarkPaidRacingAdjustmentNeverDeductsPartially(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		f := newFixture(t)
		a := f.product(t, "dal", "80", 1)
		b := f.product(t, "salt", "10", 1)
		c := f.customer(t, "Nila", "")
		o, err := f.svc.Create(ctx, CreateInput{CustomerID: c.ID, Items: []ItemInput{
			{ProductID: a.ID, Quantity: 1},
			{ProductID: b.ID, Quantity: 1},
		}})
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = f.inv.AdjustStock(ctx, b.ID, -1, "Damaged")
		}()
		_, payErr := f.svc.SetPaymentStatus(ctx, o.ID, domain.PaymentPaid, "Cash")
		<-done

		if payErr != nil {
			require.ErrorIs(t, payErr, domain.ErrInsufficientStock)
			assert.Equal(t, 1, f.quantity(t, a.ID), "trial %d: dal deducted without payment", i)
		} else {
			assert.Equal(t, 0, f.quantity(t, a.ID))
		}
		assert.Equal(t, 0, f.quantity(t, b.ID))
	}
}

func TestMarkPaidTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "tea", "50", 10)
	referrer := f.customer(t, "Old Friend", "")
	code, _, err := f.crm.EnsureReferralCode(ctx, referrer.ID)
	require.NoError(t, err)
	c := f.customer(t, "Newbie", code)

	o, err := f.svc.Create(ctx, CreateInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 3}}})
	require.NoError(t, err)
	_, err = f.svc.SetPaymentStatus(ctx, o.ID, domain.PaymentPaid, "Cash")
	require.NoError(t, err)
	res, err := f.svc.SetPaymentStatus(ctx, o.ID, domain.PaymentPaid, "")
	require.NoError(t, err)
	assert.Empty(t, res.ReferralCode)
	assert.Nil(t, res.Referral)

	assert.Equal(t, 7, f.quantity(t, p.ID))
	refs, err := f.refs.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestPaidCannotGoBackToUnpaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "jam", "70", 2)
	c := f.customer(t, "Uma", "")
	o, err := f.svc.Create(ctx, CreateInput{CustomerID: c.ID, Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	_, err = f.svc.SetPaymentStatus(ctx, o.ID, domain.PaymentPaid, "")
	require.NoError(t, err)

	_, err = f.svc.SetPaymentStatus(ctx, o.ID, domain.PaymentUnpaid, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.SetPaymentStatus(ctx, o.ID, "Refunded", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReferralWorkflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "ghee", "200", 20)
	buy := func(custID string) domain.Order {
		o, err := f.svc.Create(ctx, CreateInput{CustomerID: custID, Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}})
		require.NoError(t, err)
		return o
	}

	// the referrer earns a code on their first paid order only
	ref := f.customer(t, "Priya", "")
	res, err := f.svc.SetPaymentStatus(ctx, buy(ref.ID).ID, domain.PaymentPaid, "Cash")
	require.NoError(t, err)
	require.NotEmpty(t, res.ReferralCode)
	assert.True(t, strings.HasPrefix(res.ReferralCode, "NH-"))
	assert.Nil(t, res.Referral, "unreferred customer creates no referral")

	res2, err := f.svc.SetPaymentStatus(ctx, buy(ref.ID).ID, domain.PaymentPaid, "Cash")
	require.NoError(t, err)
	assert.Empty(t, res2.ReferralCode)
	stored, err := f.crm.GetCustomer(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ReferralCode, stored.ReferralCode)

	// a referred customer pays: reward recorded once per paid order
	friend := f.customer(t, "Dev", "  "+res.ReferralCode+" ")
	assert.Equal(t, ref.ID, friend.ReferredByID)
	assert.Equal(t, "Referral by Priya", friend.Source)

	order := buy(friend.ID)
	paid, err := f.svc.SetPaymentStatus(ctx, order.ID, domain.PaymentPaid, "Card")
	require.NoError(t, err)
	require.NotNil(t, paid.Referral)
	assert.Equal(t, ref.ID, paid.Referral.ReferrerID)
	assert.Equal(t, friend.ID, paid.Referral.RefereeID)
	assert.Equal(t, order.ID, paid.Referral.OrderID)
	assert.True(t, paid.Referral.RewardAmount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, domain.ReferralCompleted, paid.Referral.Status)
	assert.NotEmpty(t, paid.ReferralCode, "referred customer gets their own code too")

	refs, err := f.refs.List(ctx, ref.ID)
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	assert.Contains(t, f.events.Types(), events.EventReferralCreated)
	assert.Contains(t, f.events.Types(), events.EventOrderPaid)
}

func TestPublicInvoiceByTokenOrNumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "soap", "100", 5)
	c := f.customer(t, "Lata", "")
	o, err := f.svc.Create(ctx, CreateInput{
		CustomerID: c.ID,
		Items:      []ItemInput{{ProductID: p.ID, Quantity: 2, Discount: decimal.NewFromInt(10)}},
		ServiceFee: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	for _, key := range []string{o.ShareToken, o.InvoiceNumber} {
		v, err := f.svc.PublicInvoice(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, o.InvoiceNumber, v.InvoiceNumber)
		assert.Equal(t, "Lata", v.CustomerName)
		assert.True(t, v.Totals.Total.Equal(decimal.RequireFromString("262.4")))
		assert.True(t, v.Items[0].LineTotal.Equal(decimal.NewFromInt(180)))
	}

	_, err = f.svc.PublicInvoice(ctx, "does-not-exist")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}
