package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/earnwall/earnwall/internal/config"
	"github.com/earnwall/earnwall/internal/model"
)

// Ayet (ayeT-Studios) signs postbacks with HMAC-SHA256 over the query
// parameters sorted by key and joined as k=v pairs with &, excluding the
// signature parameter itself.
type Ayet struct {
	cfg     config.ProviderConfig
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

func NewAyet(cfg config.ProviderConfig, logger *slog.Logger) *Ayet {
	return &Ayet{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: "https://www.ayetstudios.com",
	}
}

func (a *Ayet) ID() string { return "ayet" }

type ayetOffer struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"conversion_type"`
	PayoutUSD   float64  `json:"payout_usd"`
	Countries   []string `json:"countries"`
	Platforms   []string `json:"platforms"`
	IconURL     string   `json:"icon"`
	Tasks       []string `json:"tasks"`
	Live        bool     `json:"live"`
}

type ayetOfferList struct {
	Offers []ayetOffer `json:"offers"`
}

func (a *Ayet) FetchOffers(ctx context.Context, userID string) ([]model.Offer, error) {
	u := fmt.Sprintf("%s/offerwall/api/offers?adslot_id=%s&apikey=%s&external_identifier=%s",
		a.baseURL, url.QueryEscape(a.cfg.AppID), url.QueryEscape(a.cfg.APIKey), url.QueryEscape(userID))

	var payload ayetOfferList
	if err := getJSON(ctx, a.client, u, nil, &payload); err != nil {
		return nil, fmt.Errorf("ayet: fetch offers: %w", err)
	}

	now := time.Now().UTC()
	offers := make([]model.Offer, 0, len(payload.Offers))
	for _, raw := range payload.Offers {
		if !raw.Live {
			continue
		}
		nativeID := strconv.Itoa(raw.ID)
		offers = append(offers, model.Offer{
			ID:           model.OfferID(a.ID(), nativeID),
			ProviderID:   a.ID(),
			Title:        raw.Name,
			Description:  raw.Description,
			Category:     normalizeCategory(raw.Category),
			Difficulty:   difficultyFor(raw.PayoutUSD),
			Points:       model.PointsForPayout(raw.PayoutUSD),
			PayoutUSD:    raw.PayoutUSD,
			Requirements: raw.Tasks,
			Countries:    raw.Countries,
			Devices:      normalizeDevices(raw.Platforms),
			URL:          a.OfferURL(nativeID, userID),
			ImageURL:     raw.IconURL,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return offers, nil
}

func (a *Ayet) OfferURL(nativeID, userID string) string {
	return fmt.Sprintf("%s/offers/open/%s?external_identifier=%s&offer_id=%s&custom_1=%s",
		a.baseURL, url.PathEscape(a.cfg.AppID), url.QueryEscape(userID),
		url.QueryEscape(nativeID), newClickID())
}

func (a *Ayet) HandleCallback(cb Callback) (*model.OfferCompletion, *CallbackError) {
	params := cb.Params
	if cbErr := requireParams(params, "external_identifier", "offer_id", "payout_usd", "transaction_id", "status", "sig"); cbErr != nil {
		return nil, cbErr
	}
	if a.cfg.Secret == "" {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "postback secret not configured"}
	}

	signed := sortedQuery(params, "sig")
	if !digestEqual(params.Get("sig"), hmacSHA256Hex(a.cfg.Secret, signed)) {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "signature mismatch"}
	}

	payout, _ := strconv.ParseFloat(params.Get("payout_usd"), 64)

	return &model.OfferCompletion{
		UserID:        params.Get("external_identifier"),
		ProviderID:    a.ID(),
		OfferID:       params.Get("offer_id"),
		TransactionID: params.Get("transaction_id"),
		Points:        model.PointsForPayout(payout),
		PayoutUSD:     payout,
		Status:        ayetStatus(params.Get("status")),
		IPAddress:     cb.IP,
		UserAgent:     cb.UserAgent,
	}, nil
}

func ayetStatus(token string) string {
	switch token {
	case "1", "completed":
		return model.CompletionCompleted
	case "0", "rejected":
		return model.CompletionRejected
	case "2", "chargeback":
		return model.CompletionChargeback
	default:
		return model.CompletionPending
	}
}

// VerifyCompletion is not offered by ayeT-Studios.
func (a *Ayet) VerifyCompletion(ctx context.Context, transactionID string) (*model.OfferCompletion, error) {
	return nil, nil
}
