// Package ledger owns balance mutation. All point credits flow through
// here so the completion row and the balance update commit together.
package ledger

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/earnwall/earnwall/internal/model"
	"github.com/earnwall/earnwall/internal/store"
)

// commissionDivisor yields the 10% referral commission, floored.
const commissionDivisor = 10

// CreditResult describes what a credit actually did.
type CreditResult struct {
	Credited   int64
	Commission int64
	ReferrerID string
	// CommissionErr is set when the earner was credited but the referral
	// commission could not be applied. The earner's credit stands.
	CommissionErr error
}

type Service struct {
	db          *sql.DB
	completions *store.CompletionStore
	profiles    *store.ProfileStore
	referrals   *store.ReferralStore
	logger      *slog.Logger
}

func New(db *sql.DB, completions *store.CompletionStore, profiles *store.ProfileStore, referrals *store.ReferralStore, logger *slog.Logger) *Service {
	return &Service{
		db:          db,
		completions: completions,
		profiles:    profiles,
		referrals:   referrals,
		logger:      logger.With("component", "ledger"),
	}
}

// CreditCompletion records a completed offer and credits the earner in one
// transaction. When the tuple already holds a pending row it is promoted in
// place; otherwise a fresh row is inserted, and a duplicate tuple surfaces
// as store.ErrDuplicate with nothing written, so a provider retry after a
// crash between insert and credit can never double-pay or half-pay.
//
// Referral commission is applied after the commit. It is deliberately
// best-effort: a commission failure is reported on the result but never
// rolls back the earner's credit.
func (s *Service) CreditCompletion(c *model.OfferCompletion) (*CreditResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin credit: %w", err)
	}
	defer tx.Rollback()

	promoted, err := s.completions.SupersedeTx(tx, c, model.CompletionPending)
	if err != nil {
		return nil, err
	}
	if !promoted {
		if err := s.completions.InsertTx(tx, c); err != nil {
			return nil, err
		}
	}
	points := int64(c.Points)
	if err := s.profiles.CreditTx(tx, c.UserID, points); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit credit: %w", err)
	}

	result := &CreditResult{Credited: points}
	s.applyCommission(c, result)
	return result, nil
}

// RecordWithoutCredit persists a completion that must not move the balance,
// such as pending or terminally rejected callbacks. A pending row for the
// tuple is rewritten in place; a chargeback additionally supersedes a
// credited row, recording the reversal while the balance stays additive-only.
func (s *Service) RecordWithoutCredit(c *model.OfferCompletion) error {
	from := []string{model.CompletionPending}
	if c.Status == model.CompletionChargeback {
		from = append(from, model.CompletionCompleted)
	}

	superseded, err := s.completions.Supersede(c, from...)
	if err != nil {
		return err
	}
	if superseded {
		return nil
	}
	return s.completions.Insert(c)
}

func (s *Service) applyCommission(c *model.OfferCompletion, result *CreditResult) {
	referrerID, err := s.referrals.Referrer(c.UserID)
	if err != nil {
		result.CommissionErr = err
		s.logger.Error("referrer lookup failed", "user_id", c.UserID, "error", err)
		return
	}
	if referrerID == "" {
		return
	}

	commission := result.Credited / commissionDivisor
	result.ReferrerID = referrerID
	if commission == 0 {
		return
	}

	if err := s.profiles.Credit(referrerID, commission); err != nil {
		result.CommissionErr = err
		s.logger.Error("commission credit failed",
			"referrer_id", referrerID, "user_id", c.UserID, "commission", commission, "error", err)
		return
	}
	result.Commission = commission
	if err := s.referrals.AddCommission(c.UserID, commission); err != nil {
		// The referrer already has the points; only the running total on
		// the edge is stale.
		result.CommissionErr = err
		s.logger.Error("commission tally failed", "user_id", c.UserID, "error", err)
	}
}
