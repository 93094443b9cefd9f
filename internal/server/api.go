package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/earnwall/earnwall/internal/aggregator"
	"github.com/earnwall/earnwall/internal/model"
)

type offersResponse struct {
	Offers    []model.Offer `json:"offers"`
	Source    string        `json:"source"`
	Providers int           `json:"providers"`
}

// listOffers handles GET /api/offers.
func (s *Server) listOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := aggregator.Filter{
		Category:    q.Get("category"),
		Device:      q.Get("device"),
		PreferCache: q.Get("prefer_cache") == "true",
	}
	if v := q.Get("min_payout"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinPayout = &f
		}
	}
	if v := q.Get("max_payout"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxPayout = &f
		}
	}
	if v := q.Get("countries"); v != "" {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				filter.Countries = append(filter.Countries, c)
			}
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	result := s.aggregator.Offers(r.Context(), q.Get("user_id"), filter)
	writeJSON(w, http.StatusOK, offersResponse{
		Offers:    result.Offers,
		Source:    result.Source,
		Providers: len(result.Providers),
	})
}

// clickOffer handles GET /api/offers/{id}/click: resolves the global
// offer id back to its provider and redirects to the attributed wall URL.
func (s *Server) clickOffer(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id required"})
		return
	}

	id := r.PathValue("id")
	providerID, nativeID, ok := strings.Cut(id, "_")
	if !ok || nativeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed offer id"})
		return
	}

	adapter := s.registry.Get(providerID)
	if adapter == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}

	target := adapter.OfferURL(nativeID, userID)
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, map[string]string{"url": target})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

type subscribeRequest struct {
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// pushSubscribe handles POST /api/push/subscribe.
func (s *Server) pushSubscribe(w http.ResponseWriter, r *http.Request) {
	if !s.pushSvc.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push not configured"})
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if req.UserID == "" || req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id, endpoint and keys required"})
		return
	}

	if err := s.pushStore.Upsert(req.UserID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		s.logger.Error("push subscribe failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "subscribed",
		"vapid_key": s.pushSvc.VAPIDPublicKey(),
	})
}

// pushUnsubscribe handles DELETE /api/push/subscribe.
func (s *Server) pushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint required"})
		return
	}

	if err := s.pushStore.DeleteByEndpoint(req.Endpoint); err != nil {
		s.logger.Error("push unsubscribe failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}
