package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/earnwall/earnwall/internal/database"
	"github.com/earnwall/earnwall/internal/model"
	"github.com/earnwall/earnwall/internal/provider"
	"github.com/earnwall/earnwall/internal/store"
)

// fakeAdapter implements provider.Adapter for aggregation tests.
type fakeAdapter struct {
	id     string
	offers []model.Offer
	err    error
	panics bool
}

func (f *fakeAdapter) ID() string { return f.id }

func (f *fakeAdapter) FetchOffers(ctx context.Context, userID string) ([]model.Offer, error) {
	if f.panics {
		panic("adapter exploded")
	}
	return f.offers, f.err
}

func (f *fakeAdapter) OfferURL(nativeID, userID string) string { return "https://example.com" }

func (f *fakeAdapter) HandleCallback(cb provider.Callback) (*model.OfferCompletion, *provider.CallbackError) {
	return nil, nil
}

func (f *fakeAdapter) VerifyCompletion(ctx context.Context, transactionID string) (*model.OfferCompletion, error) {
	return nil, nil
}

type fakeSource struct {
	adapters []provider.Adapter
}

func (s *fakeSource) Active() []provider.Adapter { return s.adapters }

func offer(providerID, nativeID string, payout float64) model.Offer {
	return model.Offer{
		ID:         model.OfferID(providerID, nativeID),
		ProviderID: providerID,
		Title:      nativeID,
		Category:   model.CategoryApp,
		Points:     model.PointsForPayout(payout),
		PayoutUSD:  payout,
		URL:        "https://example.com/" + nativeID,
		Active:     true,
	}
}

func setupAggregator(t *testing.T, adapters ...provider.Adapter) (*Aggregator, *store.OfferCacheStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cache := store.NewOfferCacheStore(db)
	return New(&fakeSource{adapters: adapters}, cache, slog.Default()), cache
}

func TestOffersMergesAndSorts(t *testing.T) {
	agg, _ := setupAggregator(t,
		&fakeAdapter{id: "adgem", offers: []model.Offer{offer("adgem", "1", 0.50), offer("adgem", "2", 5.00)}},
		&fakeAdapter{id: "cpx", offers: []model.Offer{offer("cpx", "9", 2.00)}},
	)

	result := agg.Offers(context.Background(), "u1", Filter{})
	if result.Source != "live" {
		t.Errorf("source = %q, want live", result.Source)
	}
	if len(result.Providers) != 2 {
		t.Errorf("providers = %v", result.Providers)
	}
	if len(result.Offers) != 3 {
		t.Fatalf("offers = %d, want 3", len(result.Offers))
	}
	// Highest payout first.
	if result.Offers[0].ID != "adgem_2" || result.Offers[2].ID != "adgem_1" {
		t.Errorf("order = %v, %v, %v", result.Offers[0].ID, result.Offers[1].ID, result.Offers[2].ID)
	}
}

func TestOffersIsolatesFailingAdapter(t *testing.T) {
	agg, _ := setupAggregator(t,
		&fakeAdapter{id: "adgem", err: errors.New("upstream down")},
		&fakeAdapter{id: "cpx", offers: []model.Offer{offer("cpx", "9", 2.00)}},
		&fakeAdapter{id: "ayet", panics: true},
	)

	result := agg.Offers(context.Background(), "u1", Filter{})
	if result.Source != "live" {
		t.Errorf("source = %q, want live", result.Source)
	}
	if len(result.Providers) != 1 || result.Providers[0] != "cpx" {
		t.Errorf("providers = %v, want [cpx]", result.Providers)
	}
	if len(result.Offers) != 1 {
		t.Errorf("offers = %d, want 1", len(result.Offers))
	}
}

func TestOffersCacheFallback(t *testing.T) {
	agg, cache := setupAggregator(t,
		&fakeAdapter{id: "adgem", err: errors.New("down")},
		&fakeAdapter{id: "cpx", err: errors.New("down")},
	)

	if err := cache.Upsert([]model.Offer{offer("adgem", "1", 1.00)}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	result := agg.Offers(context.Background(), "u1", Filter{})
	if result.Source != "cache" {
		t.Fatalf("source = %q, want cache", result.Source)
	}
	if len(result.Offers) != 1 || result.Offers[0].ID != "adgem_1" {
		t.Errorf("offers = %+v", result.Offers)
	}
	if len(result.Providers) != 0 {
		t.Errorf("providers = %v, want empty", result.Providers)
	}
}

func TestOffersCacheFallbackIgnoresStale(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cache := store.NewOfferCacheStore(db)
	agg := New(&fakeSource{adapters: []provider.Adapter{&fakeAdapter{id: "adgem", err: errors.New("down")}}}, cache, slog.Default())

	if err := cache.Upsert([]model.Offer{offer("adgem", "1", 1.00)}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if _, err := db.Exec(`UPDATE offer_cache SET fetched_at = datetime('now', '-3 hours')`); err != nil {
		t.Fatalf("age cache: %v", err)
	}

	result := agg.Offers(context.Background(), "u1", Filter{})
	if result.Source != "cache" {
		t.Errorf("source = %q", result.Source)
	}
	if len(result.Offers) != 0 {
		t.Errorf("stale cache rows must not serve, got %d", len(result.Offers))
	}
}

func TestOffersSuccessRefreshesCache(t *testing.T) {
	agg, cache := setupAggregator(t,
		&fakeAdapter{id: "adgem", offers: []model.Offer{offer("adgem", "1", 1.00)}},
	)

	if result := agg.Offers(context.Background(), "u1", Filter{}); result.Source != "live" {
		t.Fatalf("source = %q", result.Source)
	}

	cached, err := cache.ListFresh(time.Hour)
	if err != nil {
		t.Fatalf("list cache: %v", err)
	}
	if len(cached) != 1 || cached[0].ID != "adgem_1" {
		t.Errorf("cache = %+v", cached)
	}
}

func TestOffersFilters(t *testing.T) {
	offers := []model.Offer{
		offer("adgem", "cheap", 0.25),
		offer("adgem", "mid", 2.00),
		offer("adgem", "rich", 20.00),
	}
	offers[1].Category = model.CategorySurvey
	offers[1].Countries = []string{"US"}
	offers[1].Devices = []string{model.DeviceMobile}
	offers[2].Countries = []string{"DE"}

	agg, _ := setupAggregator(t, &fakeAdapter{id: "adgem", offers: offers})

	min := 1.0
	result := agg.Offers(context.Background(), "u1", Filter{MinPayout: &min})
	if len(result.Offers) != 2 {
		t.Errorf("min filter: %d offers, want 2", len(result.Offers))
	}

	max := 5.0
	result = agg.Offers(context.Background(), "u1", Filter{MaxPayout: &max})
	if len(result.Offers) != 2 {
		t.Errorf("max filter: %d offers, want 2", len(result.Offers))
	}

	result = agg.Offers(context.Background(), "u1", Filter{Category: model.CategorySurvey})
	if len(result.Offers) != 1 || result.Offers[0].ID != "adgem_mid" {
		t.Errorf("category filter: %+v", result.Offers)
	}

	result = agg.Offers(context.Background(), "u1", Filter{Countries: []string{"US"}})
	// Offers without country restriction match everywhere.
	if len(result.Offers) != 2 {
		t.Errorf("country filter: %d offers, want 2", len(result.Offers))
	}

	result = agg.Offers(context.Background(), "u1", Filter{Device: model.DeviceDesktop})
	if len(result.Offers) != 2 {
		t.Errorf("device filter: %d offers, want 2", len(result.Offers))
	}

	result = agg.Offers(context.Background(), "u1", Filter{Limit: 1})
	if len(result.Offers) != 1 || result.Offers[0].ID != "adgem_rich" {
		t.Errorf("limit: %+v", result.Offers)
	}
}

func TestOffersDedupes(t *testing.T) {
	dup := offer("adgem", "1", 1.00)
	agg, _ := setupAggregator(t, &fakeAdapter{id: "adgem", offers: []model.Offer{dup, dup}})

	result := agg.Offers(context.Background(), "u1", Filter{})
	if len(result.Offers) != 1 {
		t.Errorf("offers = %d, want 1 after dedupe", len(result.Offers))
	}
}

func TestOffersInactiveFiltered(t *testing.T) {
	dead := offer("adgem", "dead", 9.00)
	dead.Active = false
	agg, _ := setupAggregator(t, &fakeAdapter{id: "adgem", offers: []model.Offer{dead, offer("adgem", "live", 1.00)}})

	result := agg.Offers(context.Background(), "u1", Filter{})
	if len(result.Offers) != 1 || result.Offers[0].ID != "adgem_live" {
		t.Errorf("offers = %+v", result.Offers)
	}
}

func TestOffersPreferCache(t *testing.T) {
	live := &fakeAdapter{id: "adgem", offers: []model.Offer{offer("adgem", "live", 5.00)}}
	agg, cache := setupAggregator(t, live)

	if err := cache.Upsert([]model.Offer{offer("cpx", "cached", 1.00)}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	result := agg.Offers(context.Background(), "u1", Filter{PreferCache: true})
	if result.Source != "cache" {
		t.Fatalf("source = %q, want cache", result.Source)
	}
	if len(result.Offers) != 1 || result.Offers[0].ID != "cpx_cached" {
		t.Errorf("offers = %+v", result.Offers)
	}
}
