// Package backup snapshots the sqlite database, encrypts the snapshot,
// and uploads it to S3-compatible storage. The completions ledger is the
// system of record; the offer cache is rebuildable and rides along.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/earnwall/earnwall/internal/config"
	"github.com/earnwall/earnwall/internal/store"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Manager runs interval and on-demand encrypted backups.
type Manager struct {
	mu         sync.Mutex
	db         *sql.DB
	runs       *store.BackupStore
	client     s3Client
	bucket     string
	passphrase string
	interval   time.Duration
	logger     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager builds a backup manager. It is disabled (Enabled() false)
// unless the bucket, credentials and passphrase are all configured.
func NewManager(db *sql.DB, runs *store.BackupStore, cfg config.S3Config, passphrase string, interval time.Duration, logger *slog.Logger) *Manager {
	m := &Manager{
		db:         db,
		runs:       runs,
		bucket:     cfg.Bucket,
		passphrase: passphrase,
		interval:   interval,
		logger:     logger.With("component", "backup"),
	}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" && passphrase != "" {
		m.client = newS3Client(cfg)
	}
	return m
}

func newS3Client(cfg config.S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether backups are configured.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Start begins the interval backup loop. No-op when disabled or the
// interval is zero.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() || m.interval <= 0 {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.RunNow(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the interval loop and waits for an in-flight run to finish.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

// RunNow performs one backup: VACUUM INTO a temp snapshot, encrypt,
// upload, record. Returns the S3 object key. Only one run at a time.
func (m *Manager) RunNow(ctx context.Context) (string, error) {
	if !m.Enabled() {
		return "", fmt.Errorf("backup not configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := filepath.Join(os.TempDir(), fmt.Sprintf("earnwall-backup-%d.db", time.Now().UnixNano()))
	defer os.Remove(snapshot)

	// VACUUM INTO writes a consistent single-file copy without blocking
	// concurrent readers.
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return "", fmt.Errorf("snapshot database: %w", err)
	}

	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}

	encrypted, err := Encrypt(plaintext, m.passphrase)
	if err != nil {
		return "", fmt.Errorf("encrypt snapshot: %w", err)
	}

	key := fmt.Sprintf("earnwall/backup-%s.db.enc", time.Now().UTC().Format("2006-01-02T150405Z"))
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(encrypted),
		ContentLength: aws.Int64(int64(len(encrypted))),
	})
	if err != nil {
		return "", fmt.Errorf("upload backup: %w", err)
	}

	if err := m.runs.Record(key, int64(len(encrypted))); err != nil {
		m.logger.Error("record backup run failed", "key", key, "error", err)
	}

	m.logger.Info("backup uploaded", "key", key, "bytes", len(encrypted))
	return key, nil
}
