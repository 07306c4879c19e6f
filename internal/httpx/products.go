package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-bizops/internal/inventory"
	"github.com/go-chi/chi/v5"
)

type stockAdjustReq struct {
	Change int    `json:"change" validate:"ne=0"`
	Reason string `json:"reason"`
}

func (a *API) registerProducts(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", a.listProducts)
		r.Post("/", a.createProduct)
		r.Get("/{id}", a.getProduct)
		r.Patch("/{id}", a.updateProduct)
		r.Delete("/{id}", a.deleteProduct)
		r.Post("/{id}/stock", a.adjustStock)
		r.Get("/{id}/history", a.stockHistory)
	})
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := a.Inventory.ListProducts(r.Context())
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, ps)
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	var req inventory.ProductInput
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	p, err := a.Inventory.CreateProduct(r.Context(), req)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusCreated, p)
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.Inventory.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, p)
}

func (a *API) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req inventory.ProductPatch
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	p, err := a.Inventory.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, p)
}

func (a *API) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.Inventory.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (a *API) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req stockAdjustReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	p, err := a.Inventory.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Change, req.Reason)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, p)
}

func (a *API) stockHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.Inventory.GetProduct(r.Context(), id); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	hs, err := a.Inventory.History(r.Context(), id)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, hs)
}
