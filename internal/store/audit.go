package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/earnwall/earnwall/internal/model"
)

type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append adds one event to the append-only audit stream. Sets ev.ID and
// ev.CreatedAt on success.
func (s *AuditStore) Append(ev *model.AuditEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.Exec(
		`INSERT INTO audit_events (event_type, severity, provider_id, user_id, ip_address, user_agent, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventType, ev.Severity, ev.ProviderID, ev.UserID, ev.IPAddress, ev.UserAgent, ev.Detail, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("audit event id: %w", err)
	}
	ev.ID = id
	return nil
}

// ListRecent returns the newest events, optionally filtered by severity.
func (s *AuditStore) ListRecent(severity string, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT id, event_type, severity, provider_id, user_id, ip_address, user_agent, detail, created_at FROM audit_events`
	args := []any{}
	if severity != "" {
		query += ` WHERE severity = ?`
		args = append(args, severity)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		err := rows.Scan(
			&ev.ID, &ev.EventType, &ev.Severity, &ev.ProviderID, &ev.UserID,
			&ev.IPAddress, &ev.UserAgent, &ev.Detail, &ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
