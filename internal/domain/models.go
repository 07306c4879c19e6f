package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CollectionProducts     = "products"
	CollectionOrders       = "orders"
	CollectionCustomers    = "customers"
	CollectionLeads        = "leads"
	CollectionReferrals    = "referrals"
	CollectionStockHistory = "stockHistory"
)

// Collections lists every collection the console mirrors.
var Collections = []string{
	CollectionProducts,
	CollectionOrders,
	CollectionCustomers,
	CollectionLeads,
	CollectionReferrals,
	CollectionStockHistory,
}

type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	SKU               string          `json:"sku"`
	Dealer            string          `json:"dealer"`
	Category          string          `json:"category"`
	CostPrice         decimal.Decimal `json:"costPrice"`
	SellingPrice      decimal.Decimal `json:"sellingPrice"`
	Quantity          int             `json:"quantity"`
	LowStockThreshold int             `json:"lowStockThreshold"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (p Product) LowStock() bool { return p.Quantity <= p.LowStockThreshold }

// LineItem prices are snapshots taken when the order is created.
type LineItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	SKU         string          `json:"sku,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type Order struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customerId"`
	CustomerName  string          `json:"customerName"`
	Items         []LineItem      `json:"items"`
	InvoiceNumber string          `json:"invoiceNumber"`
	ShareToken    string          `json:"shareToken"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	ServiceFee    decimal.Decimal `json:"serviceFee"`
	Tax           decimal.Decimal `json:"tax"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	PaymentMethod string          `json:"paymentMethod"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
}

type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address,omitempty"`
	Source       string    `json:"source"`
	ReferralCode string    `json:"referralCode,omitempty"`
	ReferredByID string    `json:"referredById,omitempty"`
	LeadID       string    `json:"leadId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Referral struct {
	ID           string          `json:"id"`
	ReferrerID   string          `json:"referrerId"`
	RefereeID    string          `json:"refereeId"`
	OrderID      string          `json:"orderId"`
	RewardAmount decimal.Decimal `json:"rewardAmount"`
	Status       ReferralStatus  `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	PaidAt       *time.Time      `json:"paidAt,omitempty"`
}

// StockHistoryEntry is an append-only ledger row; one per quantity change.
type StockHistoryEntry struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"productId"`
	Change            int       `json:"change"`
	Reason            string    `json:"reason"`
	ResultingQuantity int       `json:"resultingQuantity"`
	Date              time.Time `json:"date"`
}

type Lead struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Source       string     `json:"source"`
	Status       LeadStatus `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	FollowUpDate *time.Time `json:"followUpDate,omitempty"`
	ReferralCode string     `json:"referralCode,omitempty"`
	ReferredByID string     `json:"referredById,omitempty"`
	CustomerID   string     `json:"customerId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
