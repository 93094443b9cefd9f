// Package aggregator fans offer fetches out across the active providers
// and merges the results into one ranked list.
package aggregator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/earnwall/earnwall/internal/model"
	"github.com/earnwall/earnwall/internal/provider"
	"github.com/earnwall/earnwall/internal/store"
)

const (
	// Cache rows older than this are purged after every successful fetch.
	cachePurgeAge = time.Hour
	// When every provider fails, cached offers up to this old still serve.
	cacheFallbackAge = 2 * time.Hour
)

// Filter narrows the merged offer list. Zero values mean no constraint.
type Filter struct {
	Category  string
	MinPayout *float64
	MaxPayout *float64
	Countries []string
	Device    string
	Limit     int
	// PreferCache serves recently cached offers without contacting
	// providers when any are available.
	PreferCache bool
}

// Result is the aggregated offer list plus where it came from.
// Source is "live" when at least one provider answered, "cache" when
// the list was served from stored offers.
type Result struct {
	Offers    []model.Offer `json:"offers"`
	Source    string        `json:"source"`
	Providers []string      `json:"providers"`
}

// AdapterSource yields the currently enabled adapters. The provider
// registry satisfies it.
type AdapterSource interface {
	Active() []provider.Adapter
}

type Aggregator struct {
	registry AdapterSource
	cache    *store.OfferCacheStore
	logger   *slog.Logger
}

func New(registry AdapterSource, cache *store.OfferCacheStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		registry: registry,
		cache:    cache,
		logger:   logger.With("component", "aggregator"),
	}
}

// Offers fetches from every active provider concurrently. A provider
// that errors or panics is dropped from this response without affecting
// the others. It never returns an error to the caller: when no provider
// answers, recently cached offers are served instead, and failing that
// the list is simply empty.
func (a *Aggregator) Offers(ctx context.Context, userID string, filter Filter) Result {
	if filter.PreferCache {
		if cached, err := a.cache.ListFresh(cacheFallbackAge); err == nil && len(cached) > 0 {
			return Result{
				Offers:    apply(filter, cached),
				Source:    "cache",
				Providers: []string{},
			}
		}
	}

	adapters := a.registry.Active()

	var (
		mu        sync.Mutex
		merged    []model.Offer
		providers []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range adapters {
		g.Go(func() error {
			offers, err := a.fetchOne(gctx, adapter, userID)
			if err != nil {
				a.logger.Warn("provider fetch failed", "provider", adapter.ID(), "error", err)
				return nil
			}
			mu.Lock()
			merged = append(merged, offers...)
			providers = append(providers, adapter.ID())
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if len(providers) == 0 {
		return a.fromCache(filter)
	}

	sort.Strings(providers)
	merged = dedupe(merged)

	if err := a.cache.Upsert(merged); err != nil {
		a.logger.Error("cache upsert failed", "error", err)
	}
	if n, err := a.cache.PurgeOlderThan(cachePurgeAge); err != nil {
		a.logger.Error("cache purge failed", "error", err)
	} else if n > 0 {
		a.logger.Debug("purged stale cached offers", "count", n)
	}

	return Result{
		Offers:    apply(filter, merged),
		Source:    "live",
		Providers: providers,
	}
}

// fetchOne isolates a single adapter call, converting a panic into an
// error so one misbehaving provider cannot take down the request.
func (a *Aggregator) fetchOne(ctx context.Context, adapter provider.Adapter, userID string) (offers []model.Offer, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("provider fetch panicked", "provider", adapter.ID(), "panic", r)
			offers, err = nil, context.Canceled
		}
	}()
	return adapter.FetchOffers(ctx, userID)
}

func (a *Aggregator) fromCache(filter Filter) Result {
	cached, err := a.cache.ListFresh(cacheFallbackAge)
	if err != nil {
		a.logger.Error("cache fallback failed", "error", err)
		return Result{Offers: []model.Offer{}, Source: "cache", Providers: []string{}}
	}
	a.logger.Warn("all providers failed, serving cached offers", "count", len(cached))
	return Result{
		Offers:    apply(filter, cached),
		Source:    "cache",
		Providers: []string{},
	}
}

// dedupe keeps the first occurrence of each global offer id.
func dedupe(offers []model.Offer) []model.Offer {
	seen := make(map[string]struct{}, len(offers))
	out := offers[:0]
	for _, o := range offers {
		if _, ok := seen[o.ID]; ok {
			continue
		}
		seen[o.ID] = struct{}{}
		out = append(out, o)
	}
	return out
}

// apply filters and ranks the merged list, highest payout first.
func apply(filter Filter, offers []model.Offer) []model.Offer {
	out := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		if !matches(filter, o) {
			continue
		}
		out = append(out, o)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PayoutUSD > out[j].PayoutUSD
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func matches(f Filter, o model.Offer) bool {
	if !o.Active {
		return false
	}
	if f.Category != "" && o.Category != f.Category {
		return false
	}
	if f.MinPayout != nil && o.PayoutUSD < *f.MinPayout {
		return false
	}
	if f.MaxPayout != nil && o.PayoutUSD > *f.MaxPayout {
		return false
	}
	if len(f.Countries) > 0 && !anyFold(o.Countries, f.Countries) {
		return false
	}
	if f.Device != "" && !containsFold(o.Devices, f.Device) {
		return false
	}
	return true
}

// containsFold reports whether values contains want case-insensitively.
// An empty list means the offer has no restriction.
func containsFold(values []string, want string) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

// anyFold reports whether any requested country is eligible for the offer.
func anyFold(values, wants []string) bool {
	if len(values) == 0 {
		return true
	}
	for _, w := range wants {
		for _, v := range values {
			if strings.EqualFold(v, w) {
				return true
			}
		}
	}
	return false
}
