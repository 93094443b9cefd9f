package model

import "time"

// Audit severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Audit event types emitted by the callback pipeline and its side effects.
const (
	EventMissingFields    = "callback_missing_fields"
	EventBadSignature     = "callback_bad_signature"
	EventDuplicate        = "callback_duplicate"
	EventInvalidAmount    = "callback_invalid_amount"
	EventAmountTooLarge   = "callback_amount_exceeds_ceiling"
	EventUnknownProvider  = "callback_unknown_provider"
	EventRateLimited      = "callback_rate_limited"
	EventCompletionStored = "completion_recorded"
	EventCredited         = "completion_credited"
	EventCommissionFailed = "referral_commission_failed"
)

// AuditEvent is one row of the append-only security/audit stream. Rejected
// callbacks are never persisted as completions; this stream is the forensics
// trail for them.
type AuditEvent struct {
	ID         int64     `json:"id"`
	EventType  string    `json:"event_type"`
	Severity   string    `json:"severity"`
	ProviderID string    `json:"provider_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
