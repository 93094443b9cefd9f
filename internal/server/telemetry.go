package server

import (
	"github.com/earnwall/earnwall/internal/ledger"
	"github.com/earnwall/earnwall/internal/model"
	"github.com/earnwall/earnwall/internal/push"
	ws "github.com/earnwall/earnwall/internal/websocket"
)

// telemetrySink fans callback pipeline events out to the admin websocket
// feed and, on credit, to the earner's push subscriptions. Both paths
// are fire-and-forget.
type telemetrySink struct {
	hub  *ws.Hub
	push *push.Service
}

func (t *telemetrySink) OnAudit(ev model.AuditEvent) {
	t.hub.Broadcast(ws.NewMessage(ws.KindAudit, ev.ProviderID, ev.UserID, map[string]any{
		"event_type": ev.EventType,
		"severity":   ev.Severity,
		"detail":     ev.Detail,
		"ip":         ev.IPAddress,
	}))
}

func (t *telemetrySink) OnCredit(c *model.OfferCompletion, result *ledger.CreditResult) {
	t.hub.Broadcast(ws.NewMessage(ws.KindCredit, c.ProviderID, c.UserID, map[string]any{
		"transaction_id": c.TransactionID,
		"offer_id":       c.OfferID,
		"points":         result.Credited,
		"commission":     result.Commission,
		"referrer_id":    result.ReferrerID,
	}))
	go t.push.NotifyCredit(c.UserID, c.Points)
}
