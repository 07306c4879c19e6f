package domain

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "Unpaid"
	PaymentPaid   PaymentStatus = "Paid"
)

func (s PaymentStatus) Valid() bool { return s == PaymentUnpaid || s == PaymentPaid }

type ReferralStatus string

const (
	ReferralCompleted  ReferralStatus = "Completed"
	ReferralRewardPaid ReferralStatus = "RewardPaid"
)

type LeadStatus string

const (
	LeadNew       LeadStatus = "New"
	LeadContacted LeadStatus = "Contacted"
	LeadQualified LeadStatus = "Qualified"
	LeadLost      LeadStatus = "Lost"
	LeadConverted LeadStatus = "Converted"
)

var LeadStatuses = []LeadStatus{LeadNew, LeadContacted, LeadQualified, LeadLost, LeadConverted}

// Converted is terminal and reachable only through lead conversion; the
// other statuses can be set freely.
var leadNext = map[LeadStatus]map[LeadStatus]bool{
	LeadNew:       {LeadContacted: true, LeadQualified: true, LeadLost: true},
	LeadContacted: {LeadNew: true, LeadQualified: true, LeadLost: true},
	LeadQualified: {LeadNew: true, LeadContacted: true, LeadLost: true, LeadConverted: true},
	LeadLost:      {LeadNew: true, LeadContacted: true, LeadQualified: true},
	LeadConverted: {},
}

func (s LeadStatus) Valid() bool {
	_, ok := leadNext[s]
	return ok
}

func CanTransitionLead(from, to LeadStatus) bool {
	return leadNext[from][to]
}
