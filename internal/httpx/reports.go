package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/reports"
	"github.com/go-chi/chi/v5"
)

const defaultReportDays = 30

func (a *API) registerReports(r chi.Router) {
	r.Get("/dashboard", a.dashboard)
	r.Get("/reports/sales", a.salesReport)
	r.Get("/notifications", a.notifications)
}

func (a *API) dashboard(w http.ResponseWriter, r *http.Request) {
	ok(w, http.StatusOK, reports.BuildDashboard(a.State.Snapshot()))
}

// salesReport takes from/to as YYYY-MM-DD; the default is the last 30
// days.
func (a *API) salesReport(w http.ResponseWriter, r *http.Request) {
	loc := a.location()
	now := a.now().In(loc)
	to, err := parseDay(r.URL.Query().Get("to"), now, loc)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	from, err := parseDay(r.URL.Query().Get("from"), to.AddDate(0, 0, -(defaultReportDays-1)), loc)
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	rep, err := reports.BuildSalesReport(a.State.Snapshot().Orders, from, to, loc)
	if errors.Is(err, reports.ErrBadRange) {
		fail(w, http.StatusBadRequest, "from must not be after to, and the range is limited to a year")
		return
	}
	if err != nil {
		writeError(w, a.Log, r, err)
		return
	}
	ok(w, http.StatusOK, rep)
}

func (a *API) notifications(w http.ResponseWriter, r *http.Request) {
	ok(w, http.StatusOK, reports.BuildNotifications(a.State.Snapshot(), a.now(), a.location()))
}

func parseDay(s string, def time.Time, loc *time.Location) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, domain.Invalid("date %q must be YYYY-MM-DD", s)
	}
	return t, nil
}
