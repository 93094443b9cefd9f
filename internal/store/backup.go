package store

import (
	"database/sql"
	"fmt"

	"github.com/earnwall/earnwall/internal/model"
)

type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

// Record logs one completed backup upload.
func (s *BackupStore) Record(objectKey string, sizeBytes int64) error {
	_, err := s.db.Exec(
		`INSERT INTO backup_runs (object_key, size_bytes) VALUES (?, ?)`,
		objectKey, sizeBytes,
	)
	if err != nil {
		return fmt.Errorf("record backup: %w", err)
	}
	return nil
}

// Latest returns the most recent backup run, or nil if none exists.
func (s *BackupStore) Latest() (*model.BackupRun, error) {
	var run model.BackupRun
	err := s.db.QueryRow(
		`SELECT id, object_key, size_bytes, created_at FROM backup_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&run.ID, &run.ObjectKey, &run.SizeBytes, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest backup: %w", err)
	}
	return &run, nil
}
