// Package callback verifies inbound provider postbacks and drives them
// through to the ledger. Every rejection is audit-logged; only payloads
// that pass field, signature, duplicate and amount checks are persisted.
package callback

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/earnwall/earnwall/internal/ledger"
	"github.com/earnwall/earnwall/internal/model"
	"github.com/earnwall/earnwall/internal/provider"
	"github.com/earnwall/earnwall/internal/store"
)

// Sink receives pipeline telemetry. Implementations must not block; the
// request path does not wait on them.
type Sink interface {
	OnAudit(ev model.AuditEvent)
	OnCredit(c *model.OfferCompletion, result *ledger.CreditResult)
}

// NopSink discards telemetry.
type NopSink struct{}

func (NopSink) OnAudit(model.AuditEvent)                              {}
func (NopSink) OnCredit(*model.OfferCompletion, *ledger.CreditResult) {}

// Outcome is the processed result of one postback, carrying the HTTP
// status the transport layer should answer with.
type Outcome struct {
	Code       int
	Reason     string
	Completion *model.OfferCompletion
	Credit     *ledger.CreditResult
}

type Processor struct {
	registry     *provider.Registry
	ledger       *ledger.Service
	completions  *store.CompletionStore
	audit        *store.AuditStore
	sink         Sink
	maxPayoutUSD float64
	logger       *slog.Logger
}

func NewProcessor(
	registry *provider.Registry,
	ledgerSvc *ledger.Service,
	completions *store.CompletionStore,
	audit *store.AuditStore,
	sink Sink,
	maxPayoutUSD float64,
	logger *slog.Logger,
) *Processor {
	if sink == nil {
		sink = NopSink{}
	}
	return &Processor{
		registry:     registry,
		ledger:       ledgerSvc,
		completions:  completions,
		audit:        audit,
		sink:         sink,
		maxPayoutUSD: maxPayoutUSD,
		logger:       logger.With("component", "callback"),
	}
}

// Process runs one postback through the pipeline:
// fields, signature, duplicate, amount, then terminal status handling.
func (p *Processor) Process(providerID string, cb provider.Callback) Outcome {
	adapter := p.registry.Get(providerID)
	if adapter == nil {
		p.record(model.EventUnknownProvider, model.SeverityHigh, providerID, nil, cb,
			fmt.Sprintf("no active provider %q", providerID))
		return Outcome{Code: http.StatusNotFound, Reason: "unknown_provider"}
	}

	completion, cbErr := adapter.HandleCallback(cb)
	if cbErr != nil {
		switch cbErr.Reason {
		case provider.ReasonMissingFields:
			p.record(model.EventMissingFields, model.SeverityMedium, providerID, nil, cb, cbErr.Detail)
			return Outcome{Code: http.StatusBadRequest, Reason: cbErr.Reason}
		default:
			p.record(model.EventBadSignature, model.SeverityHigh, providerID, nil, cb, cbErr.Detail)
			return Outcome{Code: http.StatusUnauthorized, Reason: cbErr.Reason}
		}
	}

	existing, err := p.completions.GetByTuple(completion.UserID, completion.ProviderID, completion.TransactionID, completion.OfferID)
	if err != nil {
		p.logger.Error("duplicate check failed", "provider", providerID, "error", err)
		return Outcome{Code: http.StatusInternalServerError, Reason: "storage_error"}
	}
	if existing != nil && !supersedes(completion.Status, existing.Status) {
		p.record(model.EventDuplicate, model.SeverityMedium, providerID, completion, cb,
			"transaction "+completion.TransactionID+" already "+existing.Status)
		return Outcome{Code: http.StatusConflict, Reason: "duplicate", Completion: completion}
	}

	if completion.PayoutUSD <= 0 || completion.Points <= 0 {
		p.record(model.EventInvalidAmount, model.SeverityMedium, providerID, completion, cb,
			fmt.Sprintf("payout %.4f", completion.PayoutUSD))
		return Outcome{Code: http.StatusBadRequest, Reason: "invalid_amount"}
	}
	if completion.PayoutUSD > p.maxPayoutUSD {
		p.record(model.EventAmountTooLarge, model.SeverityHigh, providerID, completion, cb,
			fmt.Sprintf("payout %.2f exceeds ceiling %.2f", completion.PayoutUSD, p.maxPayoutUSD))
		return Outcome{Code: http.StatusBadRequest, Reason: "amount_exceeds_ceiling"}
	}

	if completion.Status == model.CompletionCompleted {
		return p.credit(providerID, completion, cb)
	}
	return p.recordOnly(providerID, completion, cb)
}

// supersedes reports whether a callback with the next status may rewrite a
// recorded row in the prev status. A pending row yields to any terminal
// callback; a credited row yields to a chargeback (recorded without a
// debit). Every other repeat of the tuple is a replay.
func supersedes(next, prev string) bool {
	switch prev {
	case model.CompletionPending:
		return next != model.CompletionPending
	case model.CompletionCompleted:
		return next == model.CompletionChargeback
	default:
		return false
	}
}

func (p *Processor) credit(providerID string, c *model.OfferCompletion, cb provider.Callback) Outcome {
	result, err := p.ledger.CreditCompletion(c)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost the race against a concurrent identical postback.
		p.record(model.EventDuplicate, model.SeverityMedium, providerID, c, cb,
			"transaction "+c.TransactionID+" already recorded")
		return Outcome{Code: http.StatusConflict, Reason: "duplicate", Completion: c}
	}
	if err != nil {
		p.logger.Error("credit failed", "provider", providerID, "user_id", c.UserID, "error", err)
		return Outcome{Code: http.StatusInternalServerError, Reason: "storage_error"}
	}

	p.record(model.EventCredited, model.SeverityLow, providerID, c, cb,
		fmt.Sprintf("credited %d points", result.Credited))
	if result.CommissionErr != nil {
		p.record(model.EventCommissionFailed, model.SeverityMedium, providerID, c, cb,
			result.CommissionErr.Error())
	}
	p.sink.OnCredit(c, result)

	p.logger.Info("completion credited",
		"provider", providerID, "user_id", c.UserID, "transaction_id", c.TransactionID,
		"points", c.Points, "commission", result.Commission)
	return Outcome{Code: http.StatusOK, Completion: c, Credit: result}
}

func (p *Processor) recordOnly(providerID string, c *model.OfferCompletion, cb provider.Callback) Outcome {
	err := p.ledger.RecordWithoutCredit(c)
	if errors.Is(err, store.ErrDuplicate) {
		p.record(model.EventDuplicate, model.SeverityMedium, providerID, c, cb,
			"transaction "+c.TransactionID+" already recorded")
		return Outcome{Code: http.StatusConflict, Reason: "duplicate", Completion: c}
	}
	if err != nil {
		p.logger.Error("record failed", "provider", providerID, "user_id", c.UserID, "error", err)
		return Outcome{Code: http.StatusInternalServerError, Reason: "storage_error"}
	}

	p.record(model.EventCompletionStored, model.SeverityLow, providerID, c, cb,
		fmt.Sprintf("recorded %s without credit", c.Status))
	p.logger.Info("completion recorded",
		"provider", providerID, "user_id", c.UserID, "transaction_id", c.TransactionID,
		"status", c.Status)
	return Outcome{Code: http.StatusOK, Completion: c}
}

// record writes one audit row and forwards it to the telemetry sink. An
// audit write failure is logged and swallowed so it cannot change the
// postback's outcome.
func (p *Processor) record(eventType, severity, providerID string, c *model.OfferCompletion, cb provider.Callback, detail string) {
	ev := model.AuditEvent{
		EventType:  eventType,
		Severity:   severity,
		ProviderID: providerID,
		IPAddress:  cb.IP,
		UserAgent:  cb.UserAgent,
		Detail:     detail,
	}
	if c != nil {
		ev.UserID = c.UserID
	}
	if err := p.audit.Append(&ev); err != nil {
		p.logger.Error("audit append failed", "event_type", eventType, "error", err)
	}
	p.sink.OnAudit(ev)
}
