package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Normalized offer categories. Provider-native category strings are mapped
// onto this fixed taxonomy during normalization.
const (
	CategorySurvey   = "survey"
	CategoryApp      = "app"
	CategoryGame     = "game"
	CategoryVideo    = "video"
	CategorySignup   = "signup"
	CategoryShopping = "shopping"
	CategoryOther    = "other"
)

// Difficulty tiers.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Eligible device classes.
const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
)

// Offer is one advertising unit normalized from a provider's native format.
// Its ID is globally unique as "{providerID}_{nativeID}".
type Offer struct {
	ID               string     `json:"id"`
	ProviderID       string     `json:"provider_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	Difficulty       string     `json:"difficulty"`
	Points           int        `json:"points"`
	PayoutUSD        float64    `json:"payout_usd"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	Requirements     []string   `json:"requirements,omitempty"`
	Countries        []string   `json:"countries,omitempty"`
	Devices          []string   `json:"devices,omitempty"`
	URL              string     `json:"url"`
	ImageURL         string     `json:"image_url,omitempty"`
	Rating           float64    `json:"rating,omitempty"`
	CompletionCount  int        `json:"completion_count,omitempty"`
	Active           bool       `json:"active"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// OfferID builds the global offer id for a provider-native id.
func OfferID(providerID, nativeID string) string {
	return fmt.Sprintf("%s_%s", providerID, nativeID)
}

// NativeID recovers the provider-native id from the global id.
func (o *Offer) NativeID() string {
	return strings.TrimPrefix(o.ID, o.ProviderID+"_")
}

// PointsForPayout converts a USD payout to internal points at the fixed
// 100 points per dollar ratio.
func PointsForPayout(payoutUSD float64) int {
	return int(math.Round(payoutUSD * 100))
}
