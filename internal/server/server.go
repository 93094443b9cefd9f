package server

import (
	"crypto/hmac"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/earnwall/earnwall/internal/aggregator"
	"github.com/earnwall/earnwall/internal/backup"
	"github.com/earnwall/earnwall/internal/callback"
	"github.com/earnwall/earnwall/internal/config"
	"github.com/earnwall/earnwall/internal/ledger"
	"github.com/earnwall/earnwall/internal/middleware"
	"github.com/earnwall/earnwall/internal/model"
	"github.com/earnwall/earnwall/internal/provider"
	"github.com/earnwall/earnwall/internal/push"
	"github.com/earnwall/earnwall/internal/store"
	ws "github.com/earnwall/earnwall/internal/websocket"
)

type Server struct {
	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger

	registry   *provider.Registry
	aggregator *aggregator.Aggregator
	postbackH  *callback.Handler
	hub        *ws.Hub

	auditStore *store.AuditStore
	pushStore  *store.PushStore
	pushSvc    *push.Service
	backupMgr  *backup.Manager

	rateLimiter *middleware.RateLimiter
}

func New(cfg *config.Config, db *sql.DB, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	completionStore := store.NewCompletionStore(db)
	profileStore := store.NewProfileStore(db)
	referralStore := store.NewReferralStore(db)
	offerCacheStore := store.NewOfferCacheStore(db)
	auditStore := store.NewAuditStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	registry := provider.NewRegistry(logger.With("component", "registry"))
	registry.Reload(cfg.Providers)

	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, pushStore, logger)

	ledgerSvc := ledger.New(db, completionStore, profileStore, referralStore, logger)
	sink := &telemetrySink{hub: hub, push: pushSvc}
	processor := callback.NewProcessor(registry, ledgerSvc, completionStore, auditStore, sink, cfg.MaxPayoutUSD, logger)

	return &Server{
		cfg:         cfg,
		db:          db,
		logger:      logger,
		registry:    registry,
		aggregator:  aggregator.New(registry, offerCacheStore, logger),
		postbackH:   callback.NewHandler(processor, logger),
		hub:         hub,
		auditStore:  auditStore,
		pushStore:   pushStore,
		pushSvc:     pushSvc,
		backupMgr:   backup.NewManager(db, backupStore, cfg.BackupS3, cfg.BackupPassphrase, cfg.BackupInterval, logger),
		rateLimiter: middleware.NewRateLimiter(),
	}
}

// BackupManager exposes the backup manager so main can run its interval
// loop alongside the HTTP server.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupMgr
}

// RateLimiter returns the limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Provider postbacks, rate limited per source IP.
	postback := s.rateLimited(s.postbackH.Postback)
	mux.HandleFunc("GET /postback/{provider}", postback)
	mux.HandleFunc("POST /postback/{provider}", postback)

	// Public API.
	mux.HandleFunc("GET /api/offers", s.listOffers)
	mux.HandleFunc("GET /api/offers/{id}/click", s.clickOffer)
	mux.HandleFunc("POST /api/push/subscribe", s.pushSubscribe)
	mux.HandleFunc("DELETE /api/push/subscribe", s.pushUnsubscribe)
	mux.HandleFunc("GET /health", s.health)

	// Operator endpoints.
	mux.HandleFunc("POST /admin/providers/reload", s.adminOnly(s.reloadProviders))
	mux.HandleFunc("GET /admin/providers", s.adminOnly(s.listProviders))
	mux.HandleFunc("GET /admin/audit", s.adminOnly(s.listAudit))
	mux.HandleFunc("GET /admin/events", s.adminOnly(ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"))))
	mux.HandleFunc("POST /admin/backup", s.adminOnly(s.runBackup))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rateLimited wraps a handler with the postback rate limit and records
// an audit event for each rejected request.
func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	onLimit := func(r *http.Request) {
		ev := model.AuditEvent{
			EventType:  model.EventRateLimited,
			Severity:   model.SeverityMedium,
			ProviderID: r.PathValue("provider"),
			IPAddress:  middleware.RealIP(r),
			UserAgent:  r.UserAgent(),
			Detail:     "postback rate limit exceeded",
		}
		if err := s.auditStore.Append(&ev); err != nil {
			s.logger.Error("audit append failed", "event_type", ev.EventType, "error", err)
		}
		s.hub.Broadcast(ws.NewMessage(ws.KindAudit, ev.ProviderID, "", map[string]any{
			"event_type": ev.EventType,
			"severity":   ev.Severity,
			"ip":         ev.IPAddress,
		}))
	}
	rl := middleware.RateLimit(s.rateLimiter, s.cfg.RateLimitPerMin, time.Minute, onLimit)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}

// adminOnly gates operator endpoints behind the shared admin key.
func (s *Server) adminOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey == "" ||
			!hmac.Equal([]byte(r.Header.Get("X-Admin-Key")), []byte(s.cfg.AdminKey)) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
