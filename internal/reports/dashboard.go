// Package reports derives dashboards, sales reports and notification
// counts from a state snapshot. Nothing here touches storage.
package reports

import (
	"sort"
	"time"

	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/state"
	"github.com/shopspring/decimal"
)

const recentLimit = 5

type Dashboard struct {
	Revenue                decimal.Decimal           `json:"revenue"`
	Outstanding            decimal.Decimal           `json:"outstanding"`
	OrderCount             int                       `json:"orderCount"`
	PaidOrders             int                       `json:"paidOrders"`
	UnpaidOrders           int                       `json:"unpaidOrders"`
	CustomerCount          int                       `json:"customerCount"`
	LeadCount              int                       `json:"leadCount"`
	LeadsByStatus          map[domain.LeadStatus]int `json:"leadsByStatus"`
	LeadConversionRate     float64                   `json:"leadConversionRate"` // percent
	ProductCount           int                       `json:"productCount"`
	LowStockCount          int                       `json:"lowStockCount"`
	InventoryCost          decimal.Decimal           `json:"inventoryCost"`
	InventoryRetail        decimal.Decimal           `json:"inventoryRetail"`
	PendingReferralRewards decimal.Decimal           `json:"pendingReferralRewards"`
	RecentOrders           []domain.Order            `json:"recentOrders"`
	LowStockProducts       []domain.Product          `json:"lowStockProducts"`
}

func BuildDashboard(s state.Snapshot) Dashboard {
	d := Dashboard{
		Revenue:                decimal.Zero,
		Outstanding:            decimal.Zero,
		InventoryCost:          decimal.Zero,
		InventoryRetail:        decimal.Zero,
		PendingReferralRewards: decimal.Zero,
		LeadsByStatus:          make(map[domain.LeadStatus]int, len(domain.LeadStatuses)),
		RecentOrders:           []domain.Order{},
		LowStockProducts:       []domain.Product{},
	}
	for _, st := range domain.LeadStatuses {
		d.LeadsByStatus[st] = 0
	}

	for _, o := range s.Orders {
		d.OrderCount++
		if o.PaymentStatus == domain.PaymentPaid {
			d.PaidOrders++
			d.Revenue = d.Revenue.Add(o.TotalAmount)
		} else {
			d.UnpaidOrders++
			d.Outstanding = d.Outstanding.Add(o.TotalAmount)
		}
	}
	d.RecentOrders = newestOrders(s.Orders, recentLimit)

	d.CustomerCount = len(s.Customers)

	for _, l := range s.Leads {
		d.LeadCount++
		d.LeadsByStatus[l.Status]++
	}
	d.LeadConversionRate = conversionRate(d.LeadsByStatus[domain.LeadConverted], d.LeadCount)

	for _, p := range s.Products {
		d.ProductCount++
		qty := decimal.NewFromInt(int64(p.Quantity))
		d.InventoryCost = d.InventoryCost.Add(p.CostPrice.Mul(qty))
		d.InventoryRetail = d.InventoryRetail.Add(p.SellingPrice.Mul(qty))
		if p.LowStock() {
			d.LowStockCount++
			d.LowStockProducts = append(d.LowStockProducts, p)
		}
	}
	sort.SliceStable(d.LowStockProducts, func(i, j int) bool {
		return d.LowStockProducts[i].Quantity < d.LowStockProducts[j].Quantity
	})

	for _, r := range s.Referrals {
		if r.Status == domain.ReferralCompleted {
			d.PendingReferralRewards = d.PendingReferralRewards.Add(r.RewardAmount)
		}
	}
	return d
}

// conversionRate is converted/total as a percentage with one decimal.
func conversionRate(converted, total int) float64 {
	if total == 0 {
		return 0
	}
	rate, _ := decimal.NewFromInt(int64(converted)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(1).
		Float64()
	return rate
}

func newestOrders(orders []domain.Order, n int) []domain.Order {
	out := make([]domain.Order, len(orders))
	copy(out, orders)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// effectiveDate is when an order counts as sold.
func effectiveDate(o domain.Order) time.Time {
	if o.PaidAt != nil {
		return *o.PaidAt
	}
	return o.CreatedAt
}
