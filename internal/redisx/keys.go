package redisx

import "time"

const (
	// Daily invoice counter: invoice_seq:{INV-YYYYMMDD} -> last issued sequence
	KeyInvoiceSeq = "invoice_seq:%s"

	// Public share link: share_token:{token} -> order_id
	KeyShareToken = "share_token:%s"
)

var (
	TTLInvoiceSeq = 48 * time.Hour
	TTLShareToken = 30 * 24 * time.Hour
)
