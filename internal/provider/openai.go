package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chatrelay/chat-relay/internal/config"
	"github.com/chatrelay/chat-relay/internal/domain"
)

// maxErrorBodyLog caps how much of a provider error body is kept in messages.
const maxErrorBodyLog = 400

// OpenAI is a minimal client for an OpenAI-compatible chat completions
// endpoint. It performs exactly one request per Complete call; retry policy
// lives in the orchestrator.
type OpenAI struct {
	apiKey     string
	url        string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewOpenAI creates a provider client from config. The http.Client carries no
// timeout of its own; the caller bounds each attempt through ctx.
func NewOpenAI(cfg config.ProviderConfig) *OpenAI {
	return &OpenAI{
		apiKey:     cfg.APIKey,
		url:        cfg.BaseURL,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete implements Client against the chat completions wire format.
func (c *OpenAI) Complete(ctx context.Context, messages []domain.ChatMessage) (Completion, error) {
	wire := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, wireMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    wire,
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return Completion{}, &Error{Transient: false, Msg: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Completion{}, &Error{Transient: false, Msg: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Deadline, cancellation, DNS, refused connection: all worth retrying
		// (cancellation aborts the retry loop through ctx anyway).
		return Completion{}, &Error{Transient: true, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, &Error{Transient: true, Msg: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Completion{}, classifyStatus(resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Completion{}, &Error{
			Status:    resp.StatusCode,
			Transient: false,
			Msg:       "parse response: " + truncate(string(body), maxErrorBodyLog),
			Err:       err,
		}
	}

	out := Completion{}
	if parsed.Usage != nil {
		out.TokensUsed = parsed.Usage.TotalTokens
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, &Error{Status: resp.StatusCode, Transient: false, Msg: "empty choices"}
	}
	out.Content = strings.TrimSpace(parsed.Choices[0].Message.Content)
	if out.Content == "" {
		return Completion{}, &Error{Status: resp.StatusCode, Transient: false, Msg: "empty completion"}
	}
	return out, nil
}

// classifyStatus maps a non-2xx provider status to a classified error.
// 408/429 and all 5xx are retryable; every other client error is terminal
// (credentials, validation, content policy).
func classifyStatus(status int, body []byte) error {
	transient := status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
	return &Error{
		Status:    status,
		Transient: transient,
		Msg:       fmt.Sprintf("status %d: %s", status, truncate(string(body), maxErrorBodyLog)),
	}
}

// IsCanceled reports whether err stems from context cancellation or deadline
// expiry, which must abort the retry loop rather than consume its budget.
func IsCanceled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
