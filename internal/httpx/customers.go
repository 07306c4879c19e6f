package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-bizops/internal/crm"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/referrals"
	"github.com/go-chi/chi/v5"
)

type leadStatusReq struct {
	Status domain.LeadStatus `json:"status" validate:"required"`
}

type convertResp struct {
	Customer domain.Customer `json:"customer"`
	Lead     domain.Lead     `json:"lead"`
}

type customerReferralsResp struct {
	Referrals []domain.Referral `json:"referrals"`
	Summary   referrals.Summary `json:"summary"`
}

func (a *API) registerCustomers(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", a.listCustomers)
		r.Post("/", a.createCustomer)
		r.Get("/{id}", a.getCustomer)
		r.Patch("/{id}", a.updateCustomer)
		r.Delete("/{id}", a.deleteCustomer)
		r.Get("/{id}/referrals", a.customerReferrals)
	})
}

func (a *API) registerLeads(r chi.Router) {
	r.Route("/leads", func(r chi.Router) {
		r.Get("/", a.listLeads)
		r.Post("/", a.createLead)
		r.Get("/{id}", a.getLead)
		r.Patch("/{id}", a.updateLead)
		r.Put("/{id}/status", a.setLeadStatus)
		r.Post("/{id}/convert", a.convertLead)
		r.Delete("/{id}", a.deleteLead)
	})
}

func (a *API) listCustomers(w http.ResponseWriter, r *http.Request) {
	cs, err := a.CRM.ListCustomers(r.Context())
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, cs)
}

func (a *API) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req crm.CustomerInput
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	c, warnings, err := a.CRM.CreateCustomer(r.Context(), req)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusCreated, c, warnings...)
}

func (a *API) getCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := a.CRM.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, c)
}

func (a *API) updateCustomer(w http.ResponseWriter, r *http.Request) {
	var req crm.CustomerPatch
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	c, err := a.CRM.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, c)
}

func (a *API) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := a.CRM.DeleteCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (a *API) customerReferrals(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.CRM.GetCustomer(r.Context(), id); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	refs, err := a.Referrals.List(r.Context(), id)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, customerReferralsResp{Referrals: refs, Summary: referrals.Summarize(refs)})
}

func (a *API) listLeads(w http.ResponseWriter, r *http.Request) {
	ls, err := a.CRM.ListLeads(r.Context(), domain.LeadStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, ls)
}

func (a *API) createLead(w http.ResponseWriter, r *http.Request) {
	var req crm.LeadInput
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	l, warnings, err := a.CRM.CreateLead(r.Context(), req)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusCreated, l, warnings...)
}

func (a *API) getLead(w http.ResponseWriter, r *http.Request) {
	l, err := a.CRM.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, l)
}

func (a *API) updateLead(w http.ResponseWriter, r *http.Request) {
	var req crm.LeadPatch
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	l, err := a.CRM.UpdateLead(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, l)
}

func (a *API) setLeadStatus(w http.ResponseWriter, r *http.Request) {
	var req leadStatusReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	l, err := a.CRM.SetLeadStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, l)
}

func (a *API) convertLead(w http.ResponseWriter, r *http.Request) {
	c, l, err := a.CRM.ConvertLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusCreated, convertResp{Customer: c, Lead: l})
}

func (a *API) deleteLead(w http.ResponseWriter, r *http.Request) {
	if err := a.CRM.DeleteLead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, nil)
}
