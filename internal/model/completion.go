package model

import "time"

// Completion statuses. Completed, rejected and chargeback are terminal.
// Pending is persisted as-is for providers whose status tokens are neither a
// known success nor a known rejection; it never credits the ledger.
const (
	CompletionPending    = "pending"
	CompletionCompleted  = "completed"
	CompletionRejected   = "rejected"
	CompletionChargeback = "chargeback"
)

// OfferCompletion records one user finishing (or failing) one offer with a
// provider. At most one row may exist per
// (user_id, provider_id, transaction_id, offer_id) tuple; a unique index
// enforces this, not just the application-level check.
type OfferCompletion struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	ProviderID    string     `json:"provider_id"`
	OfferID       string     `json:"offer_id"` // provider-native id
	TransactionID string     `json:"transaction_id"`
	Points        int        `json:"points"`
	PayoutUSD     float64    `json:"payout_usd"`
	Status        string     `json:"status"`
	IPAddress     string     `json:"ip_address,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
	CompletedAt   time.Time  `json:"completed_at"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}
