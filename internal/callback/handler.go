package callback

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/earnwall/earnwall/internal/middleware"
	"github.com/earnwall/earnwall/internal/provider"
)

// Postback bodies are small; anything larger is not a legitimate callback.
const maxBodyBytes = 64 << 10

// Handler exposes the provider postback endpoint.
type Handler struct {
	processor *Processor
	logger    *slog.Logger
}

func NewHandler(processor *Processor, logger *slog.Logger) *Handler {
	return &Handler{
		processor: processor,
		logger:    logger.With("component", "postback"),
	}
}

type postbackResponse struct {
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Points        int    `json:"points,omitempty"`
}

// Postback handles GET/POST /postback/{provider}. Networks send credentials
// in the query string; some also POST a form or JSON body.
func (h *Handler) Postback(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("provider")

	params := url.Values{}
	for k, vs := range r.URL.Query() {
		params[k] = vs
	}

	var body []byte
	if r.Method == http.MethodPost {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			h.logger.Warn("postback body read failed", "provider", providerID, "error", err)
			writeJSON(w, http.StatusBadRequest, postbackResponse{Status: "error", Error: "bad_request"})
			return
		}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			if form, err := url.ParseQuery(string(body)); err == nil {
				for k, vs := range form {
					if params.Get(k) == "" {
						params[k] = vs
					}
				}
			}
		}
	}

	cb := provider.Callback{
		Params:    params,
		RawQuery:  r.URL.RawQuery,
		Body:      body,
		IP:        middleware.RealIP(r),
		UserAgent: r.UserAgent(),
	}

	outcome := h.processor.Process(providerID, cb)
	if outcome.Code != http.StatusOK {
		writeJSON(w, outcome.Code, postbackResponse{Status: "error", Error: outcome.Reason})
		return
	}
	writeJSON(w, http.StatusOK, postbackResponse{
		Status:        "ok",
		TransactionID: outcome.Completion.TransactionID,
		Points:        outcome.Completion.Points,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
