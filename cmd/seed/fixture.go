package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ariefcatur/go-bizops/internal/crm"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/inventory"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type fixture struct {
	Products  []productFixture  `yaml:"products"`
	Customers []customerFixture `yaml:"customers"`
	Leads     []leadFixture     `yaml:"leads"`
}

type productFixture struct {
	Name              string `yaml:"name"`
	SKU               string `yaml:"sku"`
	Dealer            string `yaml:"dealer"`
	Category          string `yaml:"category"`
	CostPrice         string `yaml:"costPrice"`
	SellingPrice      string `yaml:"sellingPrice"`
	Quantity          int    `yaml:"quantity"`
	LowStockThreshold int    `yaml:"lowStockThreshold"`
}

type customerFixture struct {
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
	Address string `yaml:"address"`
	Source  string `yaml:"source"`
	// ReferredBy names another customer in the same fixture.
	ReferredBy string `yaml:"referredBy"`
}

type leadFixture struct {
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	Phone        string `yaml:"phone"`
	Source       string `yaml:"source"`
	Status       string `yaml:"status"`
	Notes        string `yaml:"notes"`
	FollowUpDate string `yaml:"followUpDate"` // YYYY-MM-DD
}

func loadFixture(path string) (fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return fixture{}, err
	}
	return parseFixture(b)
}

func parseFixture(b []byte) (fixture, error) {
	var fx fixture
	if err := yaml.Unmarshal(b, &fx); err != nil {
		return fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return fx, nil
}

type summary struct {
	Products, Customers, Leads int
	Warnings                   []string
}

type seeder struct {
	inv *inventory.Service
	crm *crm.Service
}

// apply writes products, then customers (referrers before the customers
// they referred), then leads.
func (s seeder) apply(ctx context.Context, fx fixture) (summary, error) {
	var sum summary

	for _, p := range fx.Products {
		cost, err := money(p.CostPrice)
		if err != nil {
			return sum, fmt.Errorf("product %q cost: %w", p.Name, err)
		}
		sell, err := money(p.SellingPrice)
		if err != nil {
			return sum, fmt.Errorf("product %q price: %w", p.Name, err)
		}
		if _, err := s.inv.CreateProduct(ctx, inventory.ProductInput{
			Name: p.Name, SKU: p.SKU, Dealer: p.Dealer, Category: p.Category,
			CostPrice: cost, SellingPrice: sell,
			Quantity: p.Quantity, LowStockThreshold: p.LowStockThreshold,
		}); err != nil {
			return sum, fmt.Errorf("product %q: %w", p.Name, err)
		}
		sum.Products++
	}

	// referredBy resolves by name, so names must be unique
	names := map[string]bool{}
	for _, c := range fx.Customers {
		name := strings.TrimSpace(c.Name)
		if names[name] {
			return sum, fmt.Errorf("duplicate customer name %q in fixture", name)
		}
		names[name] = true
	}

	created := map[string]domain.Customer{}
	pending := fx.Customers
	for len(pending) > 0 {
		var next []customerFixture
		for _, c := range pending {
			in := crm.CustomerInput{Name: c.Name, Email: c.Email, Phone: c.Phone, Address: c.Address, Source: c.Source}
			if c.ReferredBy != "" {
				ref, ok := created[strings.TrimSpace(c.ReferredBy)]
				if !ok {
					next = append(next, c)
					continue
				}
				// referral codes are only issued on a first paid order
				in.ReferredByID = ref.ID
			}
			cust, warnings, err := s.crm.CreateCustomer(ctx, in)
			if err != nil {
				return sum, fmt.Errorf("customer %q: %w", c.Name, err)
			}
			sum.Warnings = append(sum.Warnings, warnings...)
			created[cust.Name] = cust
			sum.Customers++
		}
		if len(next) == len(pending) {
			return sum, fmt.Errorf("customer %q refers to unknown customer %q", next[0].Name, next[0].ReferredBy)
		}
		pending = next
	}

	for _, l := range fx.Leads {
		in := crm.LeadInput{Name: l.Name, Email: l.Email, Phone: l.Phone, Source: l.Source, Notes: l.Notes}
		if l.FollowUpDate != "" {
			t, err := time.Parse(time.DateOnly, l.FollowUpDate)
			if err != nil {
				return sum, fmt.Errorf("lead %q follow-up: %w", l.Name, err)
			}
			in.FollowUpDate = &t
		}
		lead, _, err := s.crm.CreateLead(ctx, in)
		if err != nil {
			return sum, fmt.Errorf("lead %q: %w", l.Name, err)
		}
		if st := domain.LeadStatus(l.Status); st != "" && st != domain.LeadNew {
			if _, err := s.crm.SetLeadStatus(ctx, lead.ID, st); err != nil {
				return sum, fmt.Errorf("lead %q status: %w", l.Name, err)
			}
		}
		sum.Leads++
	}
	return sum, nil
}

func money(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
