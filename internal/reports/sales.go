package reports

import (
	"errors"
	"sort"
	"time"

	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	topProductsLimit = 5
	maxReportDays    = 366
)

var ErrBadRange = errors.New("invalid report range")

type DaySales struct {
	Date    string          `json:"date"` // YYYY-MM-DD
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

type ProductSales struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type SalesReport struct {
	From              string          `json:"from"`
	To                string          `json:"to"`
	Days              []DaySales      `json:"days"`
	TopProducts       []ProductSales  `json:"topProducts"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	TotalTax          decimal.Decimal `json:"totalTax"`
	TotalOrders       int             `json:"totalOrders"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
}

// BuildSalesReport covers paid orders whose payment date falls on a
// calendar day (in loc) between from and to inclusive. Every day in the
// range gets a row.
func BuildSalesReport(orders []domain.Order, from, to time.Time, loc *time.Location) (SalesReport, error) {
	if loc == nil {
		loc = time.Local
	}
	start := dayStart(from, loc)
	end := dayStart(to, loc)
	if end.Before(start) {
		return SalesReport{}, ErrBadRange
	}
	if end.Sub(start) > maxReportDays*24*time.Hour {
		return SalesReport{}, ErrBadRange
	}

	r := SalesReport{
		From:              start.Format(time.DateOnly),
		To:                end.Format(time.DateOnly),
		TotalRevenue:      decimal.Zero,
		TotalTax:          decimal.Zero,
		AverageOrderValue: decimal.Zero,
	}
	index := map[string]int{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		index[key] = len(r.Days)
		r.Days = append(r.Days, DaySales{Date: key, Revenue: decimal.Zero})
	}

	products := map[string]*ProductSales{}
	for _, o := range orders {
		if o.PaymentStatus != domain.PaymentPaid {
			continue
		}
		key := effectiveDate(o).In(loc).Format(time.DateOnly)
		i, ok := index[key]
		if !ok {
			continue
		}
		r.Days[i].Revenue = r.Days[i].Revenue.Add(o.TotalAmount)
		r.Days[i].Orders++
		r.TotalRevenue = r.TotalRevenue.Add(o.TotalAmount)
		r.TotalTax = r.TotalTax.Add(o.Tax)
		r.TotalOrders++

		for _, it := range o.Items {
			ps := products[it.ProductID]
			if ps == nil {
				ps = &ProductSales{ProductID: it.ProductID, ProductName: it.ProductName, Revenue: decimal.Zero}
				products[it.ProductID] = ps
			}
			ps.Quantity += it.Quantity
			ps.Revenue = ps.Revenue.Add(it.LineTotal)
		}
	}
	if r.TotalOrders > 0 {
		r.AverageOrderValue = r.TotalRevenue.Div(decimal.NewFromInt(int64(r.TotalOrders))).Round(2)
	}

	r.TopProducts = make([]ProductSales, 0, len(products))
	for _, ps := range products {
		r.TopProducts = append(r.TopProducts, *ps)
	}
	sort.Slice(r.TopProducts, func(i, j int) bool {
		a, b := r.TopProducts[i], r.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.ProductName < b.ProductName
	})
	if len(r.TopProducts) > topProductsLimit {
		r.TopProducts = r.TopProducts[:topProductsLimit]
	}
	return r, nil
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
