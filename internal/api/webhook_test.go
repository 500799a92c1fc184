package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/agenciamidas/capi-gateway/internal/config"
	"github.com/agenciamidas/capi-gateway/internal/dispatch"
	"github.com/agenciamidas/capi-gateway/internal/domain"
	"github.com/agenciamidas/capi-gateway/internal/idempotency"
	"github.com/agenciamidas/capi-gateway/internal/normalizer"
)

type capturedEvent struct {
	pixelID string
	event   domain.CanonicalEvent
}

type testGateway struct {
	router   http.Handler
	captured *[]capturedEvent
}

// newTestGateway wires the full stack against a fake CAPI server.
func newTestGateway(t *testing.T, cfg *config.Config) testGateway {
	t.Helper()

	var captured []capturedEvent
	capi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Data []domain.CanonicalEvent `json:"data"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		pixelID := r.URL.Path[1 : len(r.URL.Path)-len("/events")]
		for _, ev := range req.Data {
			captured = append(captured, capturedEvent{pixelID: pixelID, event: ev})
		}
		json.NewEncoder(w).Encode(map[string]any{"events_received": len(req.Data)})
	}))
	t.Cleanup(capi.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	if len(cfg.Pixels) == 0 {
		cfg.Pixels = []domain.Pixel{{ID: "px-1", AccessToken: "tok", Name: "Main"}}
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "BRL"
	}
	if cfg.SpecialReferrer == "" {
		cfg.SpecialReferrer = "agenciamidas"
	}
	cfg.DropRedeposits = true

	norm := normalizer.New(idempotency.NewMemoryStore(), normalizer.Options{
		SpecialReferrer:     cfg.SpecialReferrer,
		DropRedeposits:      cfg.DropRedeposits,
		DefaultCurrency:     cfg.DefaultCurrency,
		AllowedEvents:       cfg.AllowedEvents,
		ExtraDepositAliases: cfg.DepositAliases,
	}, logger)
	disp := dispatch.New(dispatch.NewClient(capi.URL, ""), cfg.Pixels, nil, logger)
	webhook := NewWebhookHandler(cfg, norm, disp, logger)

	return testGateway{
		router:   NewRouter(webhook, HealthHandler(cfg.Pixels)),
		captured: &captured,
	}
}

func postJSON(t *testing.T, router http.Handler, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]any
	json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_SuccessEnvelope(t *testing.T) {
	gw := newTestGateway(t, &config.Config{})

	body := `{"type":"register_new_user","email":"joao@example.com"}`
	rec, resp := postJSON(t, gw.router, "/webhook", body, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if resp["ok"] != true {
		t.Error("expected ok:true")
	}
	if resp["event_id"] == "" || resp["event_id"] == nil {
		t.Error("expected event_id in response")
	}
	if resp["capi_status"] != float64(200) {
		t.Errorf("capi_status = %v, want 200", resp["capi_status"])
	}
	if resp["events_received"] != float64(1) {
		t.Errorf("events_received = %v, want 1", resp["events_received"])
	}
	if resp["pixels_sent"] != float64(1) {
		t.Errorf("pixels_sent = %v, want 1", resp["pixels_sent"])
	}
	if _, ok := resp["all_results"].([]any); !ok {
		t.Errorf("all_results missing: %v", resp)
	}

	if len(*gw.captured) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(*gw.captured))
	}
	if ev := (*gw.captured)[0].event; ev.EventName != domain.EventLead {
		t.Errorf("delivered event_name = %q, want Lead", ev.EventName)
	}
}

func TestWebhook_SignatureEnforcement(t *testing.T) {
	gw := newTestGateway(t, &config.Config{SharedSecret: "topsecret"})
	body := `{"type":"register_new_user"}`

	rec, resp := postJSON(t, gw.router, "/webhook", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned request: status = %d, want 401", rec.Code)
	}
	if resp["ok"] != false || resp["error"] != "missing_signature" {
		t.Errorf("unexpected error envelope: %v", resp)
	}

	rec, _ = postJSON(t, gw.router, "/webhook", body, map[string]string{"X-Signature": "sha256=deadbeef"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: status = %d, want 401", rec.Code)
	}

	rec, _ = postJSON(t, gw.router, "/webhook", body, map[string]string{"X-Signature": sign(body, "topsecret")})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid signature: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestWebhook_InvalidPurchaseRejected(t *testing.T) {
	gw := newTestGateway(t, &config.Config{})

	rec, resp := postJSON(t, gw.router, "/webhook", `{"event_name":"Purchase","custom_data":{}}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp["error"] != domain.RejectInvalidPurchase {
		t.Errorf("error = %v, want invalid_purchase_payload", resp["error"])
	}
	if len(*gw.captured) != 0 {
		t.Error("rejected event must never be dispatched, even partially")
	}
}

func TestWebhook_DuplicateDepositIgnored(t *testing.T) {
	gw := newTestGateway(t, &config.Config{})
	body := `{"type":"confirmed_deposit","value":100,"first_deposit":true,"transaction_id":"tx-1"}`

	rec, _ := postJSON(t, gw.router, "/webhook", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first deposit: status = %d", rec.Code)
	}

	rec, resp := postJSON(t, gw.router, "/webhook", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate: status = %d, want 200", rec.Code)
	}
	if resp["ignored"] != true || resp["reason"] != domain.IgnoreDuplicateDeposit {
		t.Errorf("expected duplicate_deposit envelope, got %v", resp)
	}
	if len(*gw.captured) != 1 {
		t.Errorf("duplicate must not dispatch, captured %d events", len(*gw.captured))
	}
}

func TestWebhook_Fluxlabs(t *testing.T) {
	cfg := &config.Config{
		FluxlabsSecret: "flux-secret",
		Pixels: []domain.Pixel{
			{ID: "px-generic", AccessToken: "t"},
			{ID: "px-flux", AccessToken: "t", FluxlabsEnabled: true},
		},
	}
	gw := newTestGateway(t, cfg)

	body := `{"event_type":"confirmed_deposit","amount":"25.00","customer_email":"x@y.com","transaction_id":"fl-1","first_deposit":true}`

	rec, _ := postJSON(t, gw.router, "/webhook/fluxlabs", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("fluxlabs route must enforce its own secret, status = %d", rec.Code)
	}

	rec, resp := postJSON(t, gw.router, "/webhook/fluxlabs", body, map[string]string{
		"X-Signature": sign(body, "flux-secret"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if resp["pixels_sent"] != float64(1) {
		t.Errorf("pixels_sent = %v, want only the fluxlabs-enabled pixel", resp["pixels_sent"])
	}

	if len(*gw.captured) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(*gw.captured))
	}
	got := (*gw.captured)[0]
	if got.pixelID != "px-flux" {
		t.Errorf("delivered to %q, want px-flux", got.pixelID)
	}
	if got.event.EventName != domain.EventPurchase {
		t.Errorf("event_name = %q, want Purchase after rename pass", got.event.EventName)
	}
	if got.event.CustomData["value"] != float64(25) {
		t.Errorf("value = %v, want renamed amount 25", got.event.CustomData["value"])
	}
}

func TestWebhook_NoEligiblePixels(t *testing.T) {
	cfg := &config.Config{
		FluxlabsSecret: "",
		Pixels:         []domain.Pixel{{ID: "px-generic", AccessToken: "t"}},
	}
	gw := newTestGateway(t, cfg)

	rec, resp := postJSON(t, gw.router, "/webhook/fluxlabs", `{"type":"user_created"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if resp["error"] != "missing_pixel_or_token" {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestWebhook_PixelSubset(t *testing.T) {
	cfg := &config.Config{
		Pixels: []domain.Pixel{
			{ID: "px-1", AccessToken: "t"},
			{ID: "px-2", AccessToken: "t"},
		},
	}
	gw := newTestGateway(t, cfg)

	rec, resp := postJSON(t, gw.router, "/webhook", `{"type":"user_created","pixels":["px-2"]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp["pixels_sent"] != float64(1) {
		t.Errorf("pixels_sent = %v, want 1", resp["pixels_sent"])
	}
	if len(*gw.captured) != 1 || (*gw.captured)[0].pixelID != "px-2" {
		t.Errorf("expected delivery only to px-2, got %+v", *gw.captured)
	}
}

func TestChallenge(t *testing.T) {
	gw := newTestGateway(t, &config.Config{VerifyToken: "verify-me"})

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Fatalf("challenge echo failed: %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad token: status = %d, want 403", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	cfg := &config.Config{
		Pixels: []domain.Pixel{
			{ID: "px-1", AccessToken: "t", Name: "Primary"},
			{ID: "px-2", AccessToken: "t", FluxlabsEnabled: true},
		},
	}
	gw := newTestGateway(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)

	if resp["ok"] != true || resp["pixels_configured"] != float64(2) {
		t.Errorf("unexpected health payload: %v", resp)
	}
	pixels, _ := resp["pixels"].([]any)
	if len(pixels) != 2 {
		t.Fatalf("expected 2 pixels, got %v", resp["pixels"])
	}
	first, _ := pixels[0].(map[string]any)
	if first["id"] != "px-1" || first["name"] != "Primary" || first["has_capability"] != false {
		t.Errorf("unexpected pixel entry: %v", first)
	}
	if _, leaked := first["access_token"]; leaked {
		t.Error("health must not expose access tokens")
	}
}
