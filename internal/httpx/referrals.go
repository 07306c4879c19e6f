package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-bizops/internal/referrals"
	"github.com/go-chi/chi/v5"
)

type referralsResp struct {
	Referrals any               `json:"referrals"`
	Summary   referrals.Summary `json:"summary"`
}

func (a *API) registerReferrals(r chi.Router) {
	r.Route("/referrals", func(r chi.Router) {
		r.Get("/", a.listReferrals)
		r.Get("/{id}", a.getReferral)
		r.Post("/{id}/settle", a.settleReferral)
	})
}

func (a *API) listReferrals(w http.ResponseWriter, r *http.Request) {
	refs, err := a.Referrals.List(r.Context(), r.URL.Query().Get("referrerId"))
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, referralsResp{Referrals: refs, Summary: referrals.Summarize(refs)})
}

func (a *API) getReferral(w http.ResponseWriter, r *http.Request) {
	ref, err := a.Referrals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, ref)
}

func (a *API) settleReferral(w http.ResponseWriter, r *http.Request) {
	ref, err := a.Referrals.Settle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, ref)
}
