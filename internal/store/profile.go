package store

import (
	"database/sql"
	"fmt"

	"github.com/earnwall/earnwall/internal/model"
)

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Get returns a profile by user id, or nil if none exists yet.
func (s *ProfileStore) Get(userID string) (*model.Profile, error) {
	var p model.Profile
	err := s.db.QueryRow(
		`SELECT user_id, balance, total_earned, created_at, updated_at FROM profiles WHERE user_id = ?`,
		userID,
	).Scan(&p.UserID, &p.Balance, &p.TotalEarned, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// Credit adds points to balance and total_earned as a single atomic
// increment. Credits are additive-only; balance cannot go negative here.
func (s *ProfileStore) Credit(userID string, points int64) error {
	return creditProfile(s.db, userID, points)
}

// CreditTx is Credit inside an existing transaction.
func (s *ProfileStore) CreditTx(tx *sql.Tx, userID string, points int64) error {
	return creditProfile(tx, userID, points)
}

func creditProfile(e execer, userID string, points int64) error {
	// The row may not exist yet for a user whose first contact with the
	// system is a provider callback.
	if _, err := e.Exec(
		`INSERT INTO profiles (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`,
		userID,
	); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}

	_, err := e.Exec(
		`UPDATE profiles SET balance = balance + ?, total_earned = total_earned + ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		points, points, userID,
	)
	if err != nil {
		return fmt.Errorf("credit profile: %w", err)
	}
	return nil
}
