// Package push delivers best-effort "points credited" web-push
// notifications. Delivery failures never affect the credit that
// triggered them.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/earnwall/earnwall/internal/model"
	"github.com/earnwall/earnwall/internal/store"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON sent to the push service.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Service handles sending web push notifications.
type Service struct {
	publicKey  string
	privateKey string
	subs       *store.PushStore
	logger     *slog.Logger
}

// NewService creates a push service with VAPID keys. Enabled() is false
// when the keys are absent, and NotifyCredit becomes a no-op.
func NewService(publicKey, privateKey string, subs *store.PushStore, logger *slog.Logger) *Service {
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
		subs:       subs,
		logger:     logger.With("component", "push"),
	}
}

// Enabled reports whether VAPID keys are configured.
func (s *Service) Enabled() bool {
	return s.publicKey != "" && s.privateKey != ""
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send sends a push notification to a single subscription.
func (s *Service) Send(sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      "mailto:noreply@earnwall.app",
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// NotifyCredit fans a credit notification out to every subscription the
// user has registered, pruning expired endpoints as it goes.
func (s *Service) NotifyCredit(userID string, points int) {
	if !s.Enabled() {
		return
	}

	subs, err := s.subs.ListByUser(userID)
	if err != nil {
		s.logger.Error("list push subscriptions failed", "user_id", userID, "error", err)
		return
	}

	payload := Payload{
		Title: "Points credited",
		Body:  fmt.Sprintf("%d points have been added to your balance", points),
		Tag:   "credit",
	}

	for i := range subs {
		sub := &subs[i]
		err := s.Send(sub, payload)
		if errors.Is(err, ErrExpired) {
			if derr := s.subs.DeleteByEndpoint(sub.Endpoint); derr != nil {
				s.logger.Error("prune expired subscription failed", "error", derr)
			}
			continue
		}
		if err != nil {
			s.logger.Warn("push delivery failed", "user_id", userID, "error", err)
		}
	}
}
