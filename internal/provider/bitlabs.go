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

// BitLabs signs the entire postback query string: hash = HMAC-SHA256 over
// the raw query with the hash parameter removed, hex-encoded.
type BitLabs struct {
	cfg     config.ProviderConfig
	logger  *slog.Logger
	client  *http.Client
	baseURL string
	wallURL string
}

func NewBitLabs(cfg config.ProviderConfig, logger *slog.Logger) *BitLabs {
	return &BitLabs{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: "https://api.bitlabs.ai",
		wallURL: "https://web.bitlabs.ai",
	}
}

func (b *BitLabs) ID() string { return "bitlabs" }

type bitlabsOffer struct {
	ID            string   `json:"id"`
	AnchorText    string   `json:"anchor"`
	Description   string   `json:"description"`
	Type          string   `json:"type"`
	RewardUSD     string   `json:"reward_usd"`
	Minutes       int      `json:"duration_minutes"`
	Countries     []string `json:"countries"`
	Platforms     []string `json:"platforms"`
	Requirements  []string `json:"requirements"`
	ClickURL      string   `json:"click_url"`
	IconURL       string   `json:"icon_url"`
	IsActive      bool     `json:"is_active"`
}

type bitlabsOfferList struct {
	Data struct {
		Offers []bitlabsOffer `json:"offers"`
	} `json:"data"`
}

func (b *BitLabs) FetchOffers(ctx context.Context, userID string) ([]model.Offer, error) {
	u := fmt.Sprintf("%s/v1/client/offers?uid=%s", b.baseURL, url.QueryEscape(userID))
	header := http.Header{"X-Api-Token": []string{b.cfg.AppToken}}

	var payload bitlabsOfferList
	if err := getJSON(ctx, b.client, u, header, &payload); err != nil {
		return nil, fmt.Errorf("bitlabs: fetch offers: %w", err)
	}

	now := time.Now().UTC()
	offers := make([]model.Offer, 0, len(payload.Data.Offers))
	for _, raw := range payload.Data.Offers {
		if !raw.IsActive {
			continue
		}
		// BitLabs sends the reward as a decimal string.
		payout, err := strconv.ParseFloat(raw.RewardUSD, 64)
		if err != nil {
			continue
		}
		offers = append(offers, model.Offer{
			ID:               model.OfferID(b.ID(), raw.ID),
			ProviderID:       b.ID(),
			Title:            raw.AnchorText,
			Description:      raw.Description,
			Category:         normalizeCategory(raw.Type),
			Difficulty:       difficultyFor(payout),
			Points:           model.PointsForPayout(payout),
			PayoutUSD:        payout,
			EstimatedMinutes: raw.Minutes,
			Requirements:     raw.Requirements,
			Countries:        raw.Countries,
			Devices:          normalizeDevices(raw.Platforms),
			URL:              b.OfferURL(raw.ID, userID),
			ImageURL:         raw.IconURL,
			Active:           true,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return offers, nil
}

func (b *BitLabs) OfferURL(nativeID, userID string) string {
	return fmt.Sprintf("%s/?token=%s&uid=%s&offer_id=%s&tags=%s",
		b.wallURL, url.QueryEscape(b.cfg.AppToken), url.QueryEscape(userID),
		url.QueryEscape(nativeID), newClickID())
}

func (b *BitLabs) HandleCallback(cb Callback) (*model.OfferCompletion, *CallbackError) {
	params := cb.Params
	if cbErr := requireParams(params, "uid", "tx", "val", "type", "hash"); cbErr != nil {
		return nil, cbErr
	}
	if b.cfg.Secret == "" {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "postback secret not configured"}
	}

	signed := queryWithout(cb.RawQuery, "hash")
	if !digestEqual(params.Get("hash"), hmacSHA256Hex(b.cfg.Secret, signed)) {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "hash mismatch"}
	}

	payout, _ := strconv.ParseFloat(params.Get("val"), 64)

	txID := params.Get("tx")
	offerID := params.Get("offer_id")
	if offerID == "" {
		offerID = params.Get("survey_id")
	}
	if offerID == "" {
		offerID = txID
	}

	return &model.OfferCompletion{
		UserID:        params.Get("uid"),
		ProviderID:    b.ID(),
		OfferID:       offerID,
		TransactionID: txID,
		Points:        model.PointsForPayout(payout),
		PayoutUSD:     payout,
		Status:        bitlabsStatus(params.Get("type")),
		IPAddress:     cb.IP,
		UserAgent:     cb.UserAgent,
	}, nil
}

func bitlabsStatus(token string) string {
	switch token {
	case "COMPLETE", "COMPLETED":
		return model.CompletionCompleted
	case "SCREENOUT":
		return model.CompletionRejected
	case "RECONCILIATION":
		return model.CompletionChargeback
	default:
		return model.CompletionPending
	}
}

// VerifyCompletion is not offered by BitLabs.
func (b *BitLabs) VerifyCompletion(ctx context.Context, transactionID string) (*model.OfferCompletion, error) {
	return nil, nil
}
