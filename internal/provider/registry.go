package provider

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/earnwall/earnwall/internal/config"
)

// Status reports whether a configured provider is serving traffic and,
// if not, why it was disabled.
type Status struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// Registry holds the active provider adapters. Reload swaps the whole
// set atomically so admin-triggered config reloads never expose a
// half-built view to concurrent callback handling.
type Registry struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	adapters map[string]Adapter
	statuses []Status
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		adapters: make(map[string]Adapter),
	}
}

// Reload rebuilds the adapter set from configuration. Providers with
// missing credentials are skipped with a recorded reason rather than
// failing the whole reload.
func (r *Registry) Reload(cfgs map[string]config.ProviderConfig) {
	adapters := make(map[string]Adapter, len(cfgs))
	statuses := make([]Status, 0, len(config.ProviderIDs))

	for _, id := range config.ProviderIDs {
		cfg := cfgs[id]
		if !cfg.Enabled {
			statuses = append(statuses, Status{ID: id, Reason: "disabled"})
			continue
		}
		adapter, err := buildAdapter(id, cfg, r.logger)
		if err != nil {
			r.logger.Warn("provider disabled", "provider", id, "reason", err)
			statuses = append(statuses, Status{ID: id, Reason: err.Error()})
			continue
		}
		adapters[id] = adapter
		statuses = append(statuses, Status{ID: id, Enabled: true})
	}

	r.mu.Lock()
	r.adapters = adapters
	r.statuses = statuses
	r.mu.Unlock()

	r.logger.Info("providers reloaded", "active", len(adapters), "configured", len(cfgs))
}

func buildAdapter(id string, cfg config.ProviderConfig, logger *slog.Logger) (Adapter, error) {
	switch id {
	case "adgem":
		if cfg.AppID == "" || cfg.APIKey == "" || cfg.Secret == "" {
			return nil, fmt.Errorf("adgem requires app id, api key and secret")
		}
		return NewAdGem(cfg, logger), nil
	case "cpx":
		if cfg.AppID == "" || cfg.Secret == "" {
			return nil, fmt.Errorf("cpx requires app id and secret")
		}
		return NewCPX(cfg, logger), nil
	case "offertoro":
		if cfg.AppID == "" || cfg.APIKey == "" || cfg.Secret == "" {
			return nil, fmt.Errorf("offertoro requires pub id, api key and secret")
		}
		return NewOfferToro(cfg, logger), nil
	case "bitlabs":
		if cfg.AppToken == "" || cfg.Secret == "" {
			return nil, fmt.Errorf("bitlabs requires app token and secret")
		}
		return NewBitLabs(cfg, logger), nil
	case "ayet":
		if cfg.AppID == "" || cfg.APIKey == "" || cfg.Secret == "" {
			return nil, fmt.Errorf("ayet requires adslot id, api key and secret")
		}
		return NewAyet(cfg, logger), nil
	case "wannads":
		if cfg.APIKey == "" || cfg.Secret == "" {
			return nil, fmt.Errorf("wannads requires api key and secret")
		}
		return NewWannads(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", id)
	}
}

// Get returns the adapter for id, or nil when the provider is unknown
// or disabled.
func (r *Registry) Get(id string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// Active returns the enabled adapters in stable configuration order.
func (r *Registry) Active() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, id := range config.ProviderIDs {
		if a, ok := r.adapters[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Statuses returns the enablement state recorded by the last Reload.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, len(r.statuses))
	copy(out, r.statuses)
	return out
}
