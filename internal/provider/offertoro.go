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

// OfferToro signs postbacks with MD5 over oid + "-" + uid + "-" + secret.
// Its postback omits an explicit status on normal credits; absence means
// credited.
type OfferToro struct {
	cfg     config.ProviderConfig
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

func NewOfferToro(cfg config.ProviderConfig, logger *slog.Logger) *OfferToro {
	return &OfferToro{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: "https://www.offertoro.com",
	}
}

func (o *OfferToro) ID() string { return "offertoro" }

type offertoroOffer struct {
	OfferID     int      `json:"offer_id"`
	OfferName   string   `json:"offer_name"`
	Description string   `json:"offer_desc"`
	Category    string   `json:"category"`
	Payout      float64  `json:"payout"`
	Countries   []string `json:"countries"`
	Device      string   `json:"device"`
	ImageURL    string   `json:"image_url"`
	Enabled     int      `json:"enabled"`
}

type offertoroOfferList struct {
	Response struct {
		Offers []offertoroOffer `json:"offers"`
	} `json:"response"`
}

func (o *OfferToro) FetchOffers(ctx context.Context, userID string) ([]model.Offer, error) {
	u := fmt.Sprintf("%s/api/offers?pubid=%s&key=%s&uid=%s",
		o.baseURL, url.QueryEscape(o.cfg.AppID), url.QueryEscape(o.cfg.APIKey), url.QueryEscape(userID))

	var payload offertoroOfferList
	if err := getJSON(ctx, o.client, u, nil, &payload); err != nil {
		return nil, fmt.Errorf("offertoro: fetch offers: %w", err)
	}

	now := time.Now().UTC()
	offers := make([]model.Offer, 0, len(payload.Response.Offers))
	for _, raw := range payload.Response.Offers {
		if raw.Enabled != 1 {
			continue
		}
		nativeID := strconv.Itoa(raw.OfferID)
		offers = append(offers, model.Offer{
			ID:          model.OfferID(o.ID(), nativeID),
			ProviderID:  o.ID(),
			Title:       raw.OfferName,
			Description: raw.Description,
			Category:    normalizeCategory(raw.Category),
			Difficulty:  difficultyFor(raw.Payout),
			Points:      model.PointsForPayout(raw.Payout),
			PayoutUSD:   raw.Payout,
			Countries:   raw.Countries,
			Devices:     normalizeDevices([]string{raw.Device}),
			URL:         o.OfferURL(nativeID, userID),
			ImageURL:    raw.ImageURL,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return offers, nil
}

func (o *OfferToro) OfferURL(nativeID, userID string) string {
	return fmt.Sprintf("%s/ifr/show/%s/%s?oid=%s&clickid=%s",
		o.baseURL, url.PathEscape(o.cfg.AppID), url.PathEscape(userID),
		url.QueryEscape(nativeID), newClickID())
}

func (o *OfferToro) HandleCallback(cb Callback) (*model.OfferCompletion, *CallbackError) {
	params := cb.Params
	if cbErr := requireParams(params, "oid", "uid", "payout", "sig"); cbErr != nil {
		return nil, cbErr
	}
	if o.cfg.Secret == "" {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "postback secret not configured"}
	}

	oid := params.Get("oid")
	uid := params.Get("uid")
	if !digestEqual(params.Get("sig"), offertoroSignature(oid, uid, o.cfg.Secret)) {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "signature mismatch"}
	}

	payout, _ := strconv.ParseFloat(params.Get("payout"), 64)

	txID := params.Get("tx_id")
	if txID == "" {
		txID = synthesizeTxID()
	}

	status := params.Get("status")
	if status == "" {
		status = "1"
	}

	return &model.OfferCompletion{
		UserID:        uid,
		ProviderID:    o.ID(),
		OfferID:       oid,
		TransactionID: txID,
		Points:        model.PointsForPayout(payout),
		PayoutUSD:     payout,
		Status:        offertoroStatus(status),
		IPAddress:     cb.IP,
		UserAgent:     cb.UserAgent,
	}, nil
}

func offertoroSignature(oid, uid, secret string) string {
	return md5Hex(oid + "-" + uid + "-" + secret)
}

func offertoroStatus(token string) string {
	switch token {
	case "1", "credited":
		return model.CompletionCompleted
	case "2", "chargeback":
		return model.CompletionChargeback
	case "0", "rejected":
		return model.CompletionRejected
	default:
		return model.CompletionPending
	}
}

// VerifyCompletion is not offered by OfferToro.
func (o *OfferToro) VerifyCompletion(ctx context.Context, transactionID string) (*model.OfferCompletion, error) {
	return nil, nil
}
