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

// CPX (CPX Research) is survey-only. Postbacks carry
// hash = MD5(trans_id + "-" + secret); wall links carry
// secure_hash = MD5(user_id + "-" + secret).
type CPX struct {
	cfg     config.ProviderConfig
	logger  *slog.Logger
	client  *http.Client
	baseURL string
	wallURL string
}

func NewCPX(cfg config.ProviderConfig, logger *slog.Logger) *CPX {
	return &CPX{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: "https://live-api.cpx-research.com",
		wallURL: "https://offers.cpx-research.com",
	}
}

func (c *CPX) ID() string { return "cpx" }

type cpxSurvey struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	PayoutUSD    float64  `json:"payout_usd"`
	LOI          int      `json:"loi"` // length of interview, minutes
	Rating       float64  `json:"statistics_rating_avg"`
	CountryCodes []string `json:"country_codes"`
	Mobile       bool     `json:"is_mobile"`
	Desktop      bool     `json:"is_desktop"`
	Active       bool     `json:"is_active"`
}

type cpxSurveyList struct {
	Surveys []cpxSurvey `json:"surveys"`
}

func (c *CPX) FetchOffers(ctx context.Context, userID string) ([]model.Offer, error) {
	u := fmt.Sprintf("%s/api/get-surveys?app_id=%s&ext_user_id=%s&secure_hash=%s",
		c.baseURL, url.QueryEscape(c.cfg.AppID), url.QueryEscape(userID), cpxUserHash(userID, c.cfg.Secret))

	var payload cpxSurveyList
	if err := getJSON(ctx, c.client, u, nil, &payload); err != nil {
		return nil, fmt.Errorf("cpx: fetch surveys: %w", err)
	}

	now := time.Now().UTC()
	offers := make([]model.Offer, 0, len(payload.Surveys))
	for _, raw := range payload.Surveys {
		if !raw.Active {
			continue
		}
		var devices []string
		if raw.Mobile {
			devices = append(devices, "mobile")
		}
		if raw.Desktop {
			devices = append(devices, "desktop")
		}
		offers = append(offers, model.Offer{
			ID:               model.OfferID(c.ID(), raw.ID),
			ProviderID:       c.ID(),
			Title:            raw.Title,
			Category:         model.CategorySurvey,
			Difficulty:       difficultyFor(raw.PayoutUSD),
			Points:           model.PointsForPayout(raw.PayoutUSD),
			PayoutUSD:        raw.PayoutUSD,
			EstimatedMinutes: raw.LOI,
			Countries:        raw.CountryCodes,
			Devices:          normalizeDevices(devices),
			URL:              c.OfferURL(raw.ID, userID),
			Rating:           raw.Rating,
			Active:           true,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return offers, nil
}

func (c *CPX) OfferURL(nativeID, userID string) string {
	return fmt.Sprintf("%s/index.php?app_id=%s&ext_user_id=%s&secure_hash=%s&survey_id=%s&subid_1=%s",
		c.wallURL, url.QueryEscape(c.cfg.AppID), url.QueryEscape(userID),
		cpxUserHash(userID, c.cfg.Secret), url.QueryEscape(nativeID), newClickID())
}

func (c *CPX) HandleCallback(cb Callback) (*model.OfferCompletion, *CallbackError) {
	params := cb.Params
	if cbErr := requireParams(params, "user_id", "trans_id", "amount_usd", "status", "hash"); cbErr != nil {
		return nil, cbErr
	}
	if c.cfg.Secret == "" {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "postback secret not configured"}
	}

	transID := params.Get("trans_id")
	if !digestEqual(params.Get("hash"), cpxPostbackHash(transID, c.cfg.Secret)) {
		return nil, &CallbackError{Reason: ReasonBadSignature, Detail: "hash mismatch"}
	}

	payout, _ := strconv.ParseFloat(params.Get("amount_usd"), 64)

	offerID := params.Get("survey_id")
	if offerID == "" {
		offerID = transID
	}

	return &model.OfferCompletion{
		UserID:        params.Get("user_id"),
		ProviderID:    c.ID(),
		OfferID:       offerID,
		TransactionID: transID,
		Points:        model.PointsForPayout(payout),
		PayoutUSD:     payout,
		Status:        cpxStatus(params.Get("status")),
		IPAddress:     cb.IP,
		UserAgent:     cb.UserAgent,
	}, nil
}

func cpxPostbackHash(transID, secret string) string {
	return md5Hex(transID + "-" + secret)
}

func cpxUserHash(userID, secret string) string {
	return md5Hex(userID + "-" + secret)
}

func cpxStatus(token string) string {
	switch token {
	case "1":
		return model.CompletionCompleted
	case "2":
		return model.CompletionChargeback
	case "0":
		return model.CompletionRejected
	default:
		return model.CompletionPending
	}
}

// VerifyCompletion is not offered by CPX; the postback is authoritative.
func (c *CPX) VerifyCompletion(ctx context.Context, transactionID string) (*model.OfferCompletion, error) {
	return nil, nil
}
