package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-bizops/internal/crm"
	"github.com/ariefcatur/go-bizops/internal/inventory"
	"github.com/ariefcatur/go-bizops/internal/metrics"
	"github.com/ariefcatur/go-bizops/internal/orders"
	"github.com/ariefcatur/go-bizops/internal/referrals"
	"github.com/ariefcatur/go-bizops/internal/state"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// API holds the services behind the HTTP surface.
type API struct {
	Inventory *inventory.Service
	CRM       *crm.Service
	Orders    *orders.Service
	Referrals *referrals.Service
	State     *state.Mirror
	Hub       *Hub
	Public    *RateLimiter // limits /public routes, nil disables
	Log       logrus.FieldLogger
	Location  *time.Location
	Now       func() time.Time
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *API) location() *time.Location {
	if a.Location != nil {
		return a.Location
	}
	return time.Local
}

func NewRouter(a *API) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	// long-lived, so outside the request timeout
	if a.Hub != nil {
		r.Get("/ws", a.Hub.ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		a.registerProducts(r)
		a.registerCustomers(r)
		a.registerLeads(r)
		a.registerOrders(r)
		a.registerReferrals(r)
		a.registerReports(r)
		a.registerPublic(r)
	})
	return r
}
