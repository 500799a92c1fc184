package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agenciamidas/capi-gateway/internal/config"
	"github.com/agenciamidas/capi-gateway/internal/dispatch"
	"github.com/agenciamidas/capi-gateway/internal/domain"
	"github.com/agenciamidas/capi-gateway/internal/metrics"
	"github.com/agenciamidas/capi-gateway/internal/normalizer"
	"github.com/agenciamidas/capi-gateway/internal/signature"
)

// Webhook bodies larger than this are someone else's problem.
const maxBodyBytes = 1 << 20

// Field renames applied to fluxlabs payloads before normalization. Fluxlabs
// uses its own spellings for fields every other provider sends directly.
var fluxlabsRenames = map[string]string{
	"customer_email": "email",
	"customer_phone": "phone",
	"customer_name":  "name",
	"transaction_id": "deposit_id",
	"amount":         "value",
	"event_type":     "type",
}

type WebhookHandler struct {
	cfg        *config.Config
	normalizer *normalizer.Normalizer
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

func NewWebhookHandler(cfg *config.Config, n *normalizer.Normalizer, d *dispatch.Dispatcher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{cfg: cfg, normalizer: n, dispatcher: d, logger: logger}
}

// Challenge handles the Meta-style GET verification handshake.
func (h *WebhookHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.cfg.VerifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte("forbidden"))
}

// Receive handles the generic provider channel.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.cfg.SharedSecret, nil, dispatch.Filter{})
}

// ReceiveFluxlabs handles the fluxlabs channel: its own secret, a field
// rename pass, and only fluxlabs-enabled pixels.
func (h *WebhookHandler) ReceiveFluxlabs(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.cfg.FluxlabsSecret, fluxlabsRenames, dispatch.Filter{FluxlabsOnly: true})
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, secret string, renames map[string]string, filter dispatch.Filter) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable_body")
		return
	}

	// The signature covers the exact raw bytes, never re-serialized JSON.
	if result := signature.Verify(raw, r.Header, secret); result != signature.OK {
		metrics.WebhooksReceived.WithLabelValues("auth_failed").Inc()
		h.logger.Warn("webhook rejected", "reason", result.String(), "remote", r.RemoteAddr)
		respondError(w, http.StatusUnauthorized, result.String())
		return
	}

	payload := map[string]any{}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		// A body that fails to parse is treated as empty, matching the
		// signature-only providers that post opaque bytes.
		_ = json.Unmarshal(raw, &payload)
	}
	applyRenames(payload, renames)

	outcome, err := h.normalizer.Normalize(r.Context(), payload, normalizer.FromRequest(r))
	if err != nil {
		h.logger.Error("normalization failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	switch outcome.Status {
	case domain.StatusRejected:
		metrics.WebhooksReceived.WithLabelValues("rejected").Inc()
		respondError(w, http.StatusBadRequest, outcome.Kind)
		return
	case domain.StatusIgnored:
		metrics.WebhooksReceived.WithLabelValues("ignored").Inc()
		if outcome.Reason == domain.IgnoreDuplicateDeposit {
			metrics.DuplicateDeposits.Inc()
		}
		respondIgnored(w, outcome.Reason)
		return
	}

	metrics.WebhooksReceived.WithLabelValues("admitted").Inc()

	if ids := pixelSubset(payload); len(ids) > 0 {
		filter.PixelIDs = ids
	}

	agg, err := h.dispatcher.Dispatch(r.Context(), outcome.Event, filter)
	if err != nil {
		if errors.Is(err, dispatch.ErrNoDestinations) {
			respondError(w, http.StatusInternalServerError, "missing_pixel_or_token")
			return
		}
		h.logger.Error("dispatch failed", "event_id", outcome.Event.EventID, "error", err)
		respondError(w, http.StatusInternalServerError, "capi_request_failed")
		return
	}

	first := agg.First()
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"event_id":        outcome.Event.EventID,
		"capi_status":     first.Status,
		"events_received": eventsReceived(first),
		"capi_response":   first.Body,
		"pixels_sent":     agg.Succeeded(),
		"all_results":     agg.Results,
	})
}

// pixelSubset reads an optional caller-supplied list of destination ids.
func pixelSubset(payload map[string]any) []string {
	raw, ok := payload["pixels"].([]any)
	if !ok {
		return nil
	}
	var ids []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

func applyRenames(payload map[string]any, renames map[string]string) {
	if len(renames) == 0 {
		return
	}
	for from, to := range renames {
		v, ok := payload[from]
		if !ok {
			continue
		}
		delete(payload, from)
		if _, exists := payload[to]; !exists {
			payload[to] = v
		}
	}
	delete(payload, "postback_url")
}

func eventsReceived(r domain.DispatchResult) int {
	body, ok := r.Body.(map[string]any)
	if !ok {
		return 0
	}
	n, ok := body["events_received"].(float64)
	if !ok {
		return 0
	}
	return int(n)
}
