package store

import (
	"database/sql"
	"fmt"

	"github.com/earnwall/earnwall/internal/model"
)

type ReferralStore struct {
	db *sql.DB
}

func NewReferralStore(db *sql.DB) *ReferralStore {
	return &ReferralStore{db: db}
}

// SetReferrer records the referred -> referrer edge. The edge is established
// once at signup; later writes for the same user are ignored.
func (s *ReferralStore) SetReferrer(referredID, referrerID string) error {
	_, err := s.db.Exec(
		`INSERT INTO referrals (referred_id, referrer_id) VALUES (?, ?) ON CONFLICT(referred_id) DO NOTHING`,
		referredID, referrerID,
	)
	if err != nil {
		return fmt.Errorf("set referrer: %w", err)
	}
	return nil
}

// Referrer returns the referrer for a user, or "" if the user was not referred.
func (s *ReferralStore) Referrer(referredID string) (string, error) {
	var referrerID string
	err := s.db.QueryRow(
		`SELECT referrer_id FROM referrals WHERE referred_id = ?`, referredID,
	).Scan(&referrerID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get referrer: %w", err)
	}
	return referrerID, nil
}

// AddCommission accumulates commission on the referral edge, atomically.
func (s *ReferralStore) AddCommission(referredID string, amount int64) error {
	_, err := s.db.Exec(
		`UPDATE referrals SET commission_earned = commission_earned + ?, updated_at = CURRENT_TIMESTAMP WHERE referred_id = ?`,
		amount, referredID,
	)
	if err != nil {
		return fmt.Errorf("add commission: %w", err)
	}
	return nil
}

// Get returns the referral edge for a referred user, or nil.
func (s *ReferralStore) Get(referredID string) (*model.Referral, error) {
	var r model.Referral
	err := s.db.QueryRow(
		`SELECT referred_id, referrer_id, commission_earned, created_at, updated_at FROM referrals WHERE referred_id = ?`,
		referredID,
	).Scan(&r.ReferredID, &r.ReferrerID, &r.CommissionEarned, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get referral: %w", err)
	}
	return &r, nil
}
