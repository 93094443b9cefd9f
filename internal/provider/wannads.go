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

// Wannads signs postbacks with MD5 over sub_id + trans_id + reward + secret.
type Wannads struct {
	cfg     config.ProviderConfig
	logger  *slog.Logger
	client  *http.Client
	baseURL string
	wallURL string
}

func NewWannads(cfg config.ProviderConfig, logger *slog.Logger) *Wannads {
	return &Wannads{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: "https://api.wannads.com",
		wallURL: "https://earn.wannads.com",
	}
}

func (w *Wannads) ID() string { return "wannads" }

type wannadsOffer struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Reward       float64  `json:"reward"`
	Countries    []string `json:"countries"`
	Devices      []string `json:"devices"`
	Requirements []string `json:"requirements"`
	ImageURL     string   `json:"image_url"`
	Status       string   `json:"status"`
}

type wannadsOfferList struct {
	Offers []wannadsOffer `json:"offers"`
}

func (w *Wannads) FetchOffers(ctx context.Context, userID string) ([]model.Offer, error) {
	u := fmt.Sprintf("%s/v2/offers?apiKey=%s&subId=%s",
		w.baseURL, url.QueryEscape(w.cfg.APIKey), url.QueryEscape(userID))

	var payload wannadsOfferList
	if err := getJSON(ctx, w.client, u, nil, &payload); err != nil {
		return nil, fmt.Errorf("wannads: fetch offers: %w", err)
	}

	now := time.Now().UTC()
	offers := make([]model.Offer, 0, len(payload.Offers))
	for _, raw := range payload.Offers {
		if raw.Status != "active" {
			continue
		}
		nativeID := strconv.Itoa(raw.ID)
		offers = append(offers, model.Offer{
			ID:           model.OfferID(w.ID(), nativeID),
			ProviderID:   w.ID(),
			Title:        raw.Title,
			Description:  raw.Description,
			Category:     normalizeCategory(raw.Category),
			Difficulty:   difficultyFor(raw.Reward),
			Points:       model.PointsForPayout(raw.Reward),
			PayoutUSD:    raw.Reward,
			Requirements: raw.Requirements,
			Countries:    raw.Countries,
			Devices:      normalizeDevices(raw.Devices),
			URL:          w.OfferURL(nativeID, userID),
			ImageURL:     raw.ImageURL,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return offers, nil
}

func (w *Wannads) OfferURL(nativeID, userID string) string {
	return fmt.Sprintf("%s/wall?apiKey=%s&subId=%s&offerId=%s&s2=%s",
		w.wallURL, url.QueryEscape(w.cfg.APIKey), url.QueryEscape(userID),
		url.QueryEscape(nativeID), newClickID())
}

func (w *Wannads) HandleCallback(cb Callback) (*model.OfferCompletion, *CallbackError) {
	params := cb.Params
	if cbErr := requireParams(params, "sub_id", "trans_id", "reward", "status", "signature"); cbErr != nil {
		return nil, cbErr
	}
	if w.cfg.Secret == "" {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "postback secret not configured"}
	}

	subID := params.Get("sub_id")
	transID := params.Get("trans_id")
	reward := params.Get("reward")

	if !digestEqual(params.Get("signature"), wannadsSignature(subID, transID, reward, w.cfg.Secret)) {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "signature mismatch"}
	}

	payout, _ := strconv.ParseFloat(reward, 64)

	offerID := params.Get("offer_id")
	if offerID == "" {
		offerID = transID
	}

	return &model.OfferCompletion{
		UserID:        subID,
		ProviderID:    w.ID(),
		OfferID:       offerID,
		TransactionID: transID,
		Points:        model.PointsForPayout(payout),
		PayoutUSD:     payout,
		Status:        wannadsStatus(params.Get("status")),
		IPAddress:     cb.IP,
		UserAgent:     cb.UserAgent,
	}, nil
}

func wannadsSignature(subID, transID, reward, secret string) string {
	return md5Hex(subID + transID + reward + secret)
}

func wannadsStatus(token string) string {
	switch token {
	case "credited", "completed":
		return model.CompletionCompleted
	case "rejected":
		return model.CompletionRejected
	case "reversed", "chargeback":
		return model.CompletionChargeback
	default:
		return model.CompletionPending
	}
}

// VerifyCompletion is not offered by Wannads.
func (w *Wannads) VerifyCompletion(ctx context.Context, transactionID string) (*model.OfferCompletion, error) {
	return nil, nil
}
