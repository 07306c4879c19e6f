package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/orders"
	"github.com/go-chi/chi/v5"
)

type paymentReq struct {
	Status domain.PaymentStatus `json:"status" validate:"required,oneof=Unpaid Paid"`
	Method string               `json:"method"`
}

func (a *API) registerOrders(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", a.listOrders)
		r.Post("/", a.createOrder)
		r.Get("/{id}", a.getOrder)
		r.Put("/{id}/payment", a.setPayment)
		r.Delete("/{id}", a.deleteOrder)
	})
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.Orders.List(r.Context(), r.URL.Query().Get("customerId"))
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, list)
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateInput
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	o, err := a.Orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusCreated, o)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, o)
}

func (a *API) setPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	res, err := a.Orders.SetPaymentStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Method)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, res)
}

// deleteOrder removes the invoice; stock already deducted stays deducted.
func (a *API) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := a.Orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, nil)
}
