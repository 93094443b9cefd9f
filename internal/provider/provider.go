// Package provider implements one adapter per external offerwall network.
// Each adapter absorbs its network's wire format: offer list shape, postback
// field names, payout units, and the signature recipe the network mandates.
// The recipes are deliberately not unified behind a generic signer; they must
// match the external specs byte for byte.
package provider

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/earnwall/earnwall/internal/model"
)

// Callback is one inbound postback as received from a network, before any
// validation. Params carries query and form values; Body is the raw request
// body for networks that POST JSON.
type Callback struct {
	Params    url.Values
	RawQuery  string
	Body      []byte
	IP        string
	UserAgent string
}

// Rejection reasons produced by HandleCallback.
const (
	ReasonMissingFields = "missing_fields"
	ReasonBadSignature  = "bad_signature"
)

// CallbackError classifies why a callback was rejected before reaching a
// terminal status mapping.
type CallbackError struct {
	Reason string
	Detail string
}

func (e *CallbackError) Error() string {
	return e.Reason + ": " + e.Detail
}

// Adapter is the capability surface every network integration implements.
//
// FetchOffers returns the network's current offers normalized into the
// common shape; transport and decode failures are returned as errors and
// isolated by the aggregation gateway, never surfaced to end users.
//
// HandleCallback validates required fields and the network's signature, then
// maps the payload to a completion carrying a mapped status. Amount bounds
// and duplicate detection are the processor's concern, not the adapter's.
//
// VerifyCompletion is an optional out-of-band confirmation query; networks
// without one return (nil, nil).
type Adapter interface {
	ID() string
	FetchOffers(ctx context.Context, userID string) ([]model.Offer, error)
	OfferURL(nativeID, userID string) string
	HandleCallback(cb Callback) (*model.OfferCompletion, *CallbackError)
	VerifyCompletion(ctx context.Context, transactionID string) (*model.OfferCompletion, error)
}

// requireParams returns a missing-fields error naming every absent key.
func requireParams(v url.Values, keys ...string) *CallbackError {
	var missing []string
	for _, k := range keys {
		if v.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &CallbackError{Reason: ReasonMissingFields, Detail: "missing " + strings.Join(missing, ", ")}
	}
	return nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hmacSHA256Hex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// digestEqual compares two hex digests case-insensitively in constant time.
func digestEqual(a, b string) bool {
	return hmac.Equal([]byte(strings.ToLower(a)), []byte(strings.ToLower(b)))
}

// queryWithout rebuilds a raw query string with one parameter removed,
// preserving the original parameter order. Networks that sign the whole
// query string exclude the signature parameter itself.
func queryWithout(rawQuery, key string) string {
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || strings.HasPrefix(p, key+"=") || p == key {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "&")
}

// sortedQuery renders params as k=v pairs joined by &, sorted by key, with
// the given key excluded. Used by networks that sign a canonicalized form.
func sortedQuery(v url.Values, exclude string) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		if k == exclude {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+v.Get(k))
	}
	return strings.Join(pairs, "&")
}

// synthesizeTxID generates a transaction id for networks that omit one.
func synthesizeTxID() string {
	return uuid.NewString()
}

// newClickID generates a synthetic click id embedded in outbound offer URLs
// for later attribution.
func newClickID() string {
	return uuid.NewString()
}

// normalizeCategory maps a network's raw category string onto the fixed
// taxonomy.
func normalizeCategory(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "survey", "surveys", "research":
		return model.CategorySurvey
	case "app", "apps", "install", "installs", "cpi", "app_install":
		return model.CategoryApp
	case "game", "games", "gaming":
		return model.CategoryGame
	case "video", "videos", "watch":
		return model.CategoryVideo
	case "signup", "sign_up", "sign-up", "registration", "lead", "cpa":
		return model.CategorySignup
	case "shopping", "shop", "purchase", "cashback", "trial":
		return model.CategoryShopping
	default:
		return model.CategoryOther
	}
}

// normalizeDevices maps network device hints onto the mobile/desktop enum.
// An empty or unrecognized set means the offer runs anywhere.
func normalizeDevices(raw []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, r := range raw {
		switch strings.ToLower(strings.TrimSpace(r)) {
		case "android", "ios", "iphone", "ipad", "mobile", "tablet", "phone":
			add(model.DeviceMobile)
		case "desktop", "web", "windows", "mac", "macos", "linux", "pc":
			add(model.DeviceDesktop)
		}
	}
	if len(out) == 0 {
		return []string{model.DeviceMobile, model.DeviceDesktop}
	}
	return out
}

// difficultyFor assigns a tier from the payout size.
func difficultyFor(payoutUSD float64) string {
	switch {
	case payoutUSD < 1:
		return model.DifficultyEasy
	case payoutUSD < 10:
		return model.DifficultyMedium
	default:
		return model.DifficultyHard
	}
}
