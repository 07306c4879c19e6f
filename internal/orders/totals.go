package orders

import (
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/shopspring/decimal"
)

// TaxRate is applied to the item subtotal; the service fee is not taxed.
var TaxRate = decimal.RequireFromString("0.18")

type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	ServiceFee decimal.Decimal `json:"serviceFee"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
}

func LineTotal(unitPrice, discount decimal.Decimal, qty int) decimal.Decimal {
	return unitPrice.Sub(discount).Mul(decimal.NewFromInt(int64(qty)))
}

// ComputeTotals recomputes every line total from its price snapshot.
func ComputeTotals(items []domain.LineItem, serviceFee decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(LineTotal(it.UnitPrice, it.Discount, it.Quantity))
	}
	tax := subtotal.Mul(TaxRate).Round(2)
	return Totals{
		Subtotal:   subtotal,
		ServiceFee: serviceFee,
		Tax:        tax,
		Total:      subtotal.Add(tax).Add(serviceFee),
	}
}
