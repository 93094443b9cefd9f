package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/earnwall/earnwall/internal/model"
)

// ErrDuplicate is returned when a completion for the same
// (user, provider, transaction, offer) tuple already exists. The unique index
// raises it even when two callbacks race past the application-level check.
var ErrDuplicate = errors.New("completion already recorded")

type CompletionStore struct {
	db *sql.DB
}

func NewCompletionStore(db *sql.DB) *CompletionStore {
	return &CompletionStore{db: db}
}

const completionCols = `id, user_id, provider_id, offer_id, transaction_id, points, payout_usd, status, ip_address, user_agent, completed_at, verified_at`

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.OfferCompletion, error) {
	var c model.OfferCompletion
	var verifiedAt sql.NullTime

	err := scanner.Scan(
		&c.ID, &c.UserID, &c.ProviderID, &c.OfferID, &c.TransactionID,
		&c.Points, &c.PayoutUSD, &c.Status, &c.IPAddress, &c.UserAgent,
		&c.CompletedAt, &verifiedAt,
	)
	if err != nil {
		return nil, err
	}

	if verifiedAt.Valid {
		t := verifiedAt.Time
		c.VerifiedAt = &t
	}
	return &c, nil
}

// Insert persists a completion row. Sets c.ID and c.CompletedAt on success.
func (s *CompletionStore) Insert(c *model.OfferCompletion) error {
	return insertCompletion(s.db, c)
}

// InsertTx is Insert inside an existing transaction, used by the ledger so
// the row and the balance credit commit together.
func (s *CompletionStore) InsertTx(tx *sql.Tx, c *model.OfferCompletion) error {
	return insertCompletion(tx, c)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertCompletion(e execer, c *model.OfferCompletion) error {
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now().UTC()
	}

	result, err := e.Exec(
		`INSERT INTO completions (user_id, provider_id, offer_id, transaction_id, points, payout_usd, status, ip_address, user_agent, completed_at, verified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.ProviderID, c.OfferID, c.TransactionID,
		c.Points, c.PayoutUSD, c.Status, c.IPAddress, c.UserAgent,
		c.CompletedAt, c.VerifiedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert completion: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("completion id: %w", err)
	}
	c.ID = id
	return nil
}

// GetByTuple returns the completion recorded for the dedup tuple, or nil.
// Callers inspect its status to decide whether a new callback for the same
// tuple is a replay or a status transition.
func (s *CompletionStore) GetByTuple(userID, providerID, transactionID, offerID string) (*model.OfferCompletion, error) {
	row := s.db.QueryRow(
		`SELECT `+completionCols+` FROM completions WHERE user_id = ? AND provider_id = ? AND transaction_id = ? AND offer_id = ?`,
		userID, providerID, transactionID, offerID,
	)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion by tuple: %w", err)
	}
	return c, nil
}

// Supersede rewrites the tuple's existing row in place with the new status,
// points and payout, provided its current status is one of from. Returns
// false when no matching row exists, leaving the caller to insert. The
// unique index keeps the tuple at one row either way.
func (s *CompletionStore) Supersede(c *model.OfferCompletion, from ...string) (bool, error) {
	return supersedeCompletion(s.db, c, from)
}

// SupersedeTx is Supersede inside an existing transaction.
func (s *CompletionStore) SupersedeTx(tx *sql.Tx, c *model.OfferCompletion, from ...string) (bool, error) {
	return supersedeCompletion(tx, c, from)
}

func supersedeCompletion(e execer, c *model.OfferCompletion, from []string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now().UTC()
	}

	args := []any{c.Status, c.Points, c.PayoutUSD, c.IPAddress, c.UserAgent, c.CompletedAt,
		c.UserID, c.ProviderID, c.TransactionID, c.OfferID}
	for _, f := range from {
		args = append(args, f)
	}

	result, err := e.Exec(
		`UPDATE completions SET status = ?, points = ?, payout_usd = ?, ip_address = ?, user_agent = ?, completed_at = ?
		 WHERE user_id = ? AND provider_id = ? AND transaction_id = ? AND offer_id = ?
		   AND status IN (?`+strings.Repeat(", ?", len(from)-1)+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("supersede completion: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("supersede completion: %w", err)
	}
	return n > 0, nil
}

// GetByTransaction returns a provider's completion by transaction id, or nil.
func (s *CompletionStore) GetByTransaction(providerID, transactionID string) (*model.OfferCompletion, error) {
	row := s.db.QueryRow(
		`SELECT `+completionCols+` FROM completions WHERE provider_id = ? AND transaction_id = ?`,
		providerID, transactionID,
	)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

// ListByUser returns a user's completions, newest first.
func (s *CompletionStore) ListByUser(userID string, limit int) ([]model.OfferCompletion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM completions WHERE user_id = ? ORDER BY completed_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []model.OfferCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
