package reports

import (
	"time"

	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/state"
)

type Notifications struct {
	LowStock       int `json:"lowStock"`
	FollowUpsDue   int `json:"followUpsDue"`
	UnpaidInvoices int `json:"unpaidInvoices"`
	PendingRewards int `json:"pendingRewards"`
	Total          int `json:"total"`
}

// BuildNotifications counts items needing attention as of now. A follow-up
// is due when its date is today or earlier (in loc) and the lead is still
// open.
func BuildNotifications(s state.Snapshot, now time.Time, loc *time.Location) Notifications {
	if loc == nil {
		loc = time.Local
	}
	today := dayStart(now, loc)

	var n Notifications
	for _, p := range s.Products {
		if p.LowStock() {
			n.LowStock++
		}
	}
	for _, l := range s.Leads {
		if l.FollowUpDate == nil || l.Status == domain.LeadConverted || l.Status == domain.LeadLost {
			continue
		}
		if !dayStart(*l.FollowUpDate, loc).After(today) {
			n.FollowUpsDue++
		}
	}
	for _, o := range s.Orders {
		if o.PaymentStatus != domain.PaymentPaid {
			n.UnpaidInvoices++
		}
	}
	for _, r := range s.Referrals {
		if r.Status == domain.ReferralCompleted {
			n.PendingRewards++
		}
	}
	n.Total = n.LowStock + n.FollowUpsDue + n.UnpaidInvoices + n.PendingRewards
	return n
}
