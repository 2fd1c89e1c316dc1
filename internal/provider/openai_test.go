package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatrelay/chat-relay/internal/config"
	"github.com/chatrelay/chat-relay/internal/domain"
)

func newTestClient(url string) *OpenAI {
	return NewOpenAI(config.ProviderConfig{
		APIKey:    "test-key",
		BaseURL:   url,
		Model:     "test-model",
		MaxTokens: 100,
	})
}

func completionBody(content string, tokens int) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q}}],"usage":{"total_tokens":%d}}`, content, tokens)
}

func TestComplete_Success(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, completionBody("  hello there  ", 42))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Complete(context.Background(), []domain.ChatMessage{
		domain.NewChatMessage(domain.RoleSystem, "be brief"),
		domain.NewChatMessage(domain.RoleUser, "hi"),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Content != "hello there" {
		t.Fatalf("content = %q, want trimmed %q", out.Content, "hello there")
	}
	if out.TokensUsed != 42 {
		t.Fatalf("tokens = %d, want 42", out.TokensUsed)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "test-model" || len(gotReq.Messages) != 2 {
		t.Fatalf("unexpected wire request: %+v", gotReq)
	}
	if gotReq.Messages[0].Role != domain.RoleSystem || gotReq.Messages[1].Content != "hi" {
		t.Fatalf("messages not forwarded in order: %+v", gotReq.Messages)
	}
}

func TestComplete_StatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusUnprocessableEntity, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, `{"error":"nope"}`)
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			_, err := c.Complete(context.Background(), []domain.ChatMessage{
				domain.NewChatMessage(domain.RoleUser, "hi"),
			})
			if err == nil {
				t.Fatalf("expected error for status %d", tc.status)
			}
			var pe *Error
			if !errors.As(err, &pe) {
				t.Fatalf("error type = %T, want *Error", err)
			}
			if pe.Status != tc.status {
				t.Fatalf("Status = %d, want %d", pe.Status, tc.status)
			}
			if IsTransient(err) != tc.transient {
				t.Fatalf("IsTransient = %v, want %v", IsTransient(err), tc.transient)
			}
		})
	}
}

func TestComplete_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(srv.URL)
	_, err := c.Complete(context.Background(), []domain.ChatMessage{
		domain.NewChatMessage(domain.RoleUser, "hi"),
	})
	if err == nil {
		t.Fatalf("expected network error")
	}
	if !IsTransient(err) {
		t.Fatalf("network failure should be transient: %v", err)
	}
}

func TestComplete_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, completionBody("too late", 1))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := newTestClient(srv.URL)
	_, err := c.Complete(ctx, []domain.ChatMessage{
		domain.NewChatMessage(domain.RoleUser, "hi"),
	})
	if err == nil {
		t.Fatalf("expected deadline error")
	}
	if !IsCanceled(ctx, err) {
		t.Fatalf("IsCanceled should report deadline expiry: %v", err)
	}
}

func TestComplete_EmptyChoicesIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Complete(context.Background(), []domain.ChatMessage{
		domain.NewChatMessage(domain.RoleUser, "hi"),
	})
	if err == nil {
		t.Fatalf("expected error for empty choices")
	}
	if IsTransient(err) {
		t.Fatalf("empty choices should be permanent: %v", err)
	}
}

func TestComplete_EmptyContentIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody("   ", 5))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Complete(context.Background(), []domain.ChatMessage{
		domain.NewChatMessage(domain.RoleUser, "hi"),
	})
	if err == nil {
		t.Fatalf("expected error for blank completion")
	}
	if IsTransient(err) {
		t.Fatalf("blank completion should be permanent: %v", err)
	}
}

func TestComplete_MalformedJSONIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": [`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Complete(context.Background(), []domain.ChatMessage{
		domain.NewChatMessage(domain.RoleUser, "hi"),
	})
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if IsTransient(err) {
		t.Fatalf("malformed body should be permanent: %v", err)
	}
}

func TestIsTransient_UnknownErrorTreatedTransient(t *testing.T) {
	if !IsTransient(errors.New("mystery")) {
		t.Fatalf("unknown error kinds should default to transient")
	}
}
