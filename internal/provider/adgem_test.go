package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/earnwall/earnwall/internal/config"
	"github.com/earnwall/earnwall/internal/model"
)

const adgemTestSecret = "SECRET"

func newTestAdGem(t *testing.T) *AdGem {
	t.Helper()
	return NewAdGem(config.ProviderConfig{
		AppID:   "app1",
		APIKey:  "key1",
		Secret:  adgemTestSecret,
		Timeout: 5 * time.Second,
	}, slog.Default())
}

func adgemCallback(params url.Values) Callback {
	return Callback{
		Params:    params,
		RawQuery:  params.Encode(),
		IP:        "203.0.113.5",
		UserAgent: "adgem-postback",
	}
}

func TestAdGemCallbackCredits(t *testing.T) {
	a := newTestAdGem(t)

	params := url.Values{}
	params.Set("user_id", "u1")
	params.Set("offer_id", "42")
	params.Set("amount", "2.50")
	params.Set("status", "completed")
	params.Set("transaction_id", "tx-1")
	params.Set("signature", adgemSignature("u1", "42", "2.50", "completed", adgemTestSecret))

	c, cbErr := a.HandleCallback(adgemCallback(params))
	if cbErr != nil {
		t.Fatalf("unexpected callback error: %v", cbErr)
	}
	if c.UserID != "u1" || c.OfferID != "42" || c.TransactionID != "tx-1" {
		t.Errorf("identity fields = %q/%q/%q", c.UserID, c.OfferID, c.TransactionID)
	}
	if c.Points != 250 {
		t.Errorf("points = %d, want 250", c.Points)
	}
	if c.PayoutUSD != 2.50 {
		t.Errorf("payout = %v, want 2.50", c.PayoutUSD)
	}
	if c.Status != model.CompletionCompleted {
		t.Errorf("status = %q, want completed", c.Status)
	}
	if c.IPAddress != "203.0.113.5" {
		t.Errorf("ip = %q", c.IPAddress)
	}
}

func TestAdGemCallbackBadSignature(t *testing.T) {
	a := newTestAdGem(t)

	params := url.Values{}
	params.Set("user_id", "u1")
	params.Set("offer_id", "42")
	params.Set("amount", "2.50")
	params.Set("status", "completed")
	params.Set("signature", "deadbeef")

	_, cbErr := a.HandleCallback(adgemCallback(params))
	if cbErr == nil || cbErr.Reason != ReasonBadSignature {
		t.Fatalf("expected bad signature, got %v", cbErr)
	}
}

func TestAdGemCallbackTamperedAmount(t *testing.T) {
	a := newTestAdGem(t)

	params := url.Values{}
	params.Set("user_id", "u1")
	params.Set("offer_id", "42")
	params.Set("amount", "250.00") // signed for 2.50
	params.Set("status", "completed")
	params.Set("signature", adgemSignature("u1", "42", "2.50", "completed", adgemTestSecret))

	_, cbErr := a.HandleCallback(adgemCallback(params))
	if cbErr == nil || cbErr.Reason != ReasonBadSignature {
		t.Fatalf("tampered amount should fail signature, got %v", cbErr)
	}
}

func TestAdGemCallbackMissingFields(t *testing.T) {
	a := newTestAdGem(t)

	params := url.Values{}
	params.Set("user_id", "u1")

	_, cbErr := a.HandleCallback(adgemCallback(params))
	if cbErr == nil || cbErr.Reason != ReasonMissingFields {
		t.Fatalf("expected missing fields, got %v", cbErr)
	}
}

func TestAdGemCallbackNoSecretConfigured(t *testing.T) {
	a := NewAdGem(config.ProviderConfig{AppID: "app1", APIKey: "key1"}, slog.Default())

	params := url.Values{}
	params.Set("user_id", "u1")
	params.Set("offer_id", "42")
	params.Set("amount", "2.50")
	params.Set("status", "completed")
	params.Set("signature", adgemSignature("u1", "42", "2.50", "completed", ""))

	_, cbErr := a.HandleCallback(adgemCallback(params))
	if cbErr == nil || cbErr.Reason != ReasonBadSignature {
		t.Fatal("empty secret must fail closed")
	}
}

func TestAdGemCallbackJSONBody(t *testing.T) {
	a := newTestAdGem(t)

	body, _ := json.Marshal(map[string]any{
		"user_id":        "u1",
		"offer_id":       "42",
		"amount":         "2.50",
		"status":         "completed",
		"transaction_id": "tx-json",
		"signature":      adgemSignature("u1", "42", "2.50", "completed", adgemTestSecret),
	})

	c, cbErr := a.HandleCallback(Callback{Params: url.Values{}, Body: body})
	if cbErr != nil {
		t.Fatalf("unexpected callback error: %v", cbErr)
	}
	if c.TransactionID != "tx-json" || c.Points != 250 {
		t.Errorf("tx = %q points = %d", c.TransactionID, c.Points)
	}
}

func TestAdGemCallbackSynthesizesTransactionID(t *testing.T) {
	a := newTestAdGem(t)

	params := url.Values{}
	params.Set("user_id", "u1")
	params.Set("offer_id", "42")
	params.Set("amount", "2.50")
	params.Set("status", "completed")
	params.Set("signature", adgemSignature("u1", "42", "2.50", "completed", adgemTestSecret))

	c, cbErr := a.HandleCallback(adgemCallback(params))
	if cbErr != nil {
		t.Fatalf("unexpected callback error: %v", cbErr)
	}
	if c.TransactionID == "" {
		t.Error("transaction id should be synthesized when absent")
	}
}

func TestAdGemStatusMapping(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"completed", model.CompletionCompleted},
		{"approved", model.CompletionCompleted},
		{"1", model.CompletionCompleted},
		{"rejected", model.CompletionRejected},
		{"0", model.CompletionRejected},
		{"chargeback", model.CompletionChargeback},
		{"-1", model.CompletionChargeback},
		{"held", model.CompletionPending},
	}
	for _, tt := range tests {
		if got := adgemStatus(tt.token); got != tt.want {
			t.Errorf("adgemStatus(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func TestAdGemFetchOffers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("playerid") != "u1" {
			t.Errorf("playerid = %q", r.URL.Query().Get("playerid"))
		}
		json.NewEncoder(w).Encode(adgemOfferList{
			Status: "success",
			Data: []adgemOffer{
				{ID: 7, Name: "Install game", Category: "game", USDAmount: 1.25, IsActive: true},
				{ID: 8, Name: "Dead offer", USDAmount: 5, IsActive: false},
			},
		})
	}))
	defer srv.Close()

	a := newTestAdGem(t)
	a.baseURL = srv.URL

	offers, err := a.FetchOffers(context.Background(), "u1")
	if err != nil {
		t.Fatalf("fetch offers: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1 (inactive filtered)", len(offers))
	}
	o := offers[0]
	if o.ID != "adgem_7" || o.Points != 125 || o.Category != model.CategoryGame {
		t.Errorf("offer = %+v", o)
	}
	if !o.Active {
		t.Error("offer should be active")
	}
}

func TestAdGemFetchOffersRetriesServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(adgemOfferList{Data: []adgemOffer{{ID: 1, USDAmount: 0.5, IsActive: true}}})
	}))
	defer srv.Close()

	a := newTestAdGem(t)
	a.baseURL = srv.URL

	offers, err := a.FetchOffers(context.Background(), "u1")
	if err != nil {
		t.Fatalf("fetch offers: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(offers) != 1 {
		t.Errorf("got %d offers, want 1", len(offers))
	}
}
