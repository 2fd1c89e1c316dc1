package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatrelay/chat-relay/internal/config"
	"github.com/chatrelay/chat-relay/internal/domain"
	"github.com/chatrelay/chat-relay/internal/health"
	"github.com/chatrelay/chat-relay/internal/provider"
	"github.com/chatrelay/chat-relay/internal/ratelimit"
	"github.com/chatrelay/chat-relay/internal/services"
	"github.com/chatrelay/chat-relay/internal/session"
)

func init() { gin.SetMode(gin.TestMode) }

// staticProvider answers every prompt with a canned reply.
type staticProvider struct{}

func (staticProvider) Complete(_ context.Context, _ []domain.ChatMessage) (provider.Completion, error) {
	return provider.Completion{Content: "canned answer", TokensUsed: 1}, nil
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     1000,
		RateBurst:   1000,
		OTEL:        config.OTELConfig{ServiceName: "chat-relay-test"},
	}
}

func newRouter(t *testing.T, tracker *health.Tracker) *gin.Engine {
	t.Helper()
	svc := &services.ChatService{
		Store:          session.NewMemoryStore(20, time.Hour),
		Limiter:        ratelimit.NewSlidingWindow(100, time.Minute),
		Provider:       staticProvider{},
		Health:         tracker,
		SystemPrompt:   "be brief",
		MaxPromptRunes: 100,
		MaxAttempts:    1,
		BaseDelay:      time.Millisecond,
		MaxDelay:       time.Millisecond,
		AttemptTimeout: time.Second,
	}
	r := gin.New()
	RegisterRoutes(r, svc, tracker, nil, testConfig())
	return r
}

func TestHealth_AlwaysOK(t *testing.T) {
	r := newRouter(t, health.NewTracker(time.Minute))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestReady_ColdStartOK(t *testing.T) {
	r := newRouter(t, health.NewTracker(time.Minute))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("cold start readiness = %d, want 200", w.Code)
	}
}

func TestReady_DegradedAfterSilence(t *testing.T) {
	tracker := health.NewTracker(time.Nanosecond)
	r := newRouter(t, tracker)

	tracker.MarkSuccess()
	time.Sleep(2 * time.Millisecond)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["last_provider_success"] == nil {
		t.Fatalf("degraded response should include last success timestamp")
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	r := newRouter(t, health.NewTracker(time.Minute))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("metrics exposition missing expected families")
	}
}

func TestChatRoute_EndToEnd(t *testing.T) {
	r := newRouter(t, health.NewTracker(time.Minute))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"text":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["reply"] != "canned answer" {
		t.Fatalf("reply = %v", resp["reply"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("response should carry a request id")
	}
}

func TestClearSessionRoute(t *testing.T) {
	r := newRouter(t, health.NewTracker(time.Minute))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil)
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestNoRoute_JSONError(t *testing.T) {
	r := newRouter(t, health.NewTracker(time.Minute))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("fallback should be JSON, got %q", w.Body.String())
	}
	if body["code"] != "not_found" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestNoMethod_JSONError(t *testing.T) {
	r := newRouter(t, health.NewTracker(time.Minute))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/v1/chat", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCORS_DefaultAllowAll(t *testing.T) {
	r := newRouter(t, health.NewTracker(time.Minute))
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil)
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO = %q, want *", got)
	}
}
