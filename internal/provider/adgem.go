package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/earnwall/earnwall/internal/config"
	"github.com/earnwall/earnwall/internal/model"
)

// AdGem signs postbacks with MD5 over the concatenation
// user_id + offer_id + amount + status + secret.
type AdGem struct {
	cfg     config.ProviderConfig
	logger  *slog.Logger
	client  *http.Client
	baseURL string
	wallURL string
}

func NewAdGem(cfg config.ProviderConfig, logger *slog.Logger) *AdGem {
	return &AdGem{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: "https://api.adgem.com",
		wallURL: "https://wall.adgem.com",
	}
}

func (a *AdGem) ID() string { return "adgem" }

type adgemOffer struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	USDAmount   float64  `json:"usd_amount"`
	IconURL     string   `json:"icon_url"`
	Countries   []string `json:"countries"`
	Devices     []string `json:"devices"`
	Rating      float64  `json:"store_rating"`
	Conversions int      `json:"conversions"`
	Minutes     int      `json:"estimated_minutes"`
	Requires    []string `json:"requirements"`
	IsActive    bool     `json:"is_active"`
}

type adgemOfferList struct {
	Status string       `json:"status"`
	Data   []adgemOffer `json:"data"`
}

func (a *AdGem) FetchOffers(ctx context.Context, userID string) ([]model.Offer, error) {
	u := fmt.Sprintf("%s/v1/offers?appid=%s&apikey=%s&playerid=%s",
		a.baseURL, url.QueryEscape(a.cfg.AppID), url.QueryEscape(a.cfg.APIKey), url.QueryEscape(userID))

	var payload adgemOfferList
	if err := getJSON(ctx, a.client, u, nil, &payload); err != nil {
		return nil, fmt.Errorf("adgem: fetch offers: %w", err)
	}

	now := time.Now().UTC()
	offers := make([]model.Offer, 0, len(payload.Data))
	for _, raw := range payload.Data {
		if !raw.IsActive {
			continue
		}
		nativeID := strconv.Itoa(raw.ID)
		offers = append(offers, model.Offer{
			ID:               model.OfferID(a.ID(), nativeID),
			ProviderID:       a.ID(),
			Title:            raw.Name,
			Description:      raw.Description,
			Category:         normalizeCategory(raw.Category),
			Difficulty:       difficultyFor(raw.USDAmount),
			Points:           model.PointsForPayout(raw.USDAmount),
			PayoutUSD:        raw.USDAmount,
			EstimatedMinutes: raw.Minutes,
			Requirements:     raw.Requires,
			Countries:        raw.Countries,
			Devices:          normalizeDevices(raw.Devices),
			URL:              a.OfferURL(nativeID, userID),
			ImageURL:         raw.IconURL,
			Rating:           raw.Rating,
			CompletionCount:  raw.Conversions,
			Active:           true,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return offers, nil
}

func (a *AdGem) OfferURL(nativeID, userID string) string {
	return fmt.Sprintf("%s/wall?appid=%s&playerid=%s&offer_id=%s&c1=%s",
		a.wallURL, url.QueryEscape(a.cfg.AppID), url.QueryEscape(userID),
		url.QueryEscape(nativeID), newClickID())
}

func (a *AdGem) HandleCallback(cb Callback) (*model.OfferCompletion, *CallbackError) {
	params := cb.Params
	// AdGem can POST the postback as JSON; flatten body fields over the query.
	if len(cb.Body) > 0 {
		var body map[string]any
		if err := json.Unmarshal(cb.Body, &body); err == nil {
			merged := url.Values{}
			for k, vs := range params {
				merged[k] = vs
			}
			for k, v := range body {
				merged.Set(k, fmt.Sprint(v))
			}
			params = merged
		}
	}

	if cbErr := requireParams(params, "user_id", "offer_id", "amount", "status", "signature"); cbErr != nil {
		return nil, cbErr
	}
	if a.cfg.Secret == "" {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "postback secret not configured"}
	}

	userID := params.Get("user_id")
	offerID := params.Get("offer_id")
	amount := params.Get("amount")
	status := params.Get("status")

	want := adgemSignature(userID, offerID, amount, status, a.cfg.Secret)
	if !digestEqual(params.Get("signature"), want) {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "signature mismatch"}
	}

	// Non-numeric amounts parse to zero and are rejected by the processor's
	// amount validation.
	payout, _ := strconv.ParseFloat(amount, 64)

	txID := params.Get("transaction_id")
	if txID == "" {
		txID = synthesizeTxID()
	}

	return &model.OfferCompletion{
		UserID:        userID,
		ProviderID:    a.ID(),
		OfferID:       offerID,
		TransactionID: txID,
		Points:        model.PointsForPayout(payout),
		PayoutUSD:     payout,
		Status:        adgemStatus(status),
		IPAddress:     cb.IP,
		UserAgent:     cb.UserAgent,
	}, nil
}

// adgemSignature computes the postback signature exactly as AdGem's server
// does: MD5 over the raw string fields plus the shared secret.
func adgemSignature(userID, offerID, amount, status, secret string) string {
	return md5Hex(userID + offerID + amount + status + secret)
}

func adgemStatus(token string) string {
	switch token {
	case "completed", "approved", "1":
		return model.CompletionCompleted
	case "rejected", "0":
		return model.CompletionRejected
	case "chargeback", "-1":
		return model.CompletionChargeback
	default:
		return model.CompletionPending
	}
}

type adgemTxLookup struct {
	Data *struct {
		TransactionID string  `json:"transaction_id"`
		PlayerID      string  `json:"player_id"`
		OfferID       string  `json:"offer_id"`
		Amount        float64 `json:"amount"`
		Status        string  `json:"status"`
	} `json:"data"`
}

// VerifyCompletion queries AdGem's transaction API out of band.
func (a *AdGem) VerifyCompletion(ctx context.Context, transactionID string) (*model.OfferCompletion, error) {
	u := fmt.Sprintf("%s/v1/transactions?appid=%s&apikey=%s&transaction_id=%s",
		a.baseURL, url.QueryEscape(a.cfg.AppID), url.QueryEscape(a.cfg.APIKey), url.QueryEscape(transactionID))

	var payload adgemTxLookup
	if err := getJSON(ctx, a.client, u, nil, &payload); err != nil {
		return nil, fmt.Errorf("adgem: verify completion: %w", err)
	}
	if payload.Data == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	return &model.OfferCompletion{
		UserID:        payload.Data.PlayerID,
		ProviderID:    a.ID(),
		OfferID:       payload.Data.OfferID,
		TransactionID: payload.Data.TransactionID,
		Points:        model.PointsForPayout(payload.Data.Amount),
		PayoutUSD:     payload.Data.Amount,
		Status:        adgemStatus(payload.Data.Status),
		VerifiedAt:    &now,
	}, nil
}
