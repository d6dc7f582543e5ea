// Package provider is the HTTP client for OpenAI-compatible chat completion
// gateways (OpenRouter in production, the mock gateway in tests).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"botgw/internal/sse"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Completion is the assistant turn of a non-streaming call. Either Content
// or ToolCalls is populated, occasionally both.
type Completion struct {
	Message      ChatMessage
	FinishReason string
}

// Error is a non-2xx gateway response. Status distinguishes quota and
// billing failures, which callers surface to end users differently.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("ai gateway status %d: %s", e.Status, body)
}

func IsRateLimited(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Status == http.StatusTooManyRequests
}

func IsPaymentRequired(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Status == http.StatusPaymentRequired
}

type Client struct {
	APIKey  string
	BaseURL string
	Referer string
	Title   string
	HTTP    *http.Client
}

type completionRequest struct {
	Model      string        `json:"model"`
	Messages   []ChatMessage `json:"messages"`
	Tools      []Tool        `json:"tools,omitempty"`
	ToolChoice string        `json:"tool_choice,omitempty"`
	Stream     bool          `json:"stream,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Client) newRequest(ctx context.Context, payload any) (*http.Request, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.Referer != "" {
		req.Header.Set("HTTP-Referer", c.Referer)
	}
	if c.Title != "" {
		req.Header.Set("X-Title", c.Title)
	}
	return req, nil
}

// Complete performs one non-streaming completion. Passing tools enables
// function calling with tool_choice "auto".
func (c *Client) Complete(ctx context.Context, model string, messages []ChatMessage, tools []Tool) (Completion, error) {
	payload := completionRequest{Model: model, Messages: messages, Tools: tools}
	if len(tools) > 0 {
		payload.ToolChoice = "auto"
	}

	req, err := c.newRequest(ctx, payload)
	if err != nil {
		return Completion{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Completion{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Completion{}, &Error{Status: resp.StatusCode, Body: string(b)}
	}

	var out completionResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return Completion{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return Completion{}, errors.New("completion has no choices")
	}
	return Completion{Message: out.Choices[0].Message, FinishReason: out.Choices[0].FinishReason}, nil
}

// StreamComplete performs a streaming completion and invokes onToken for each
// content fragment as it arrives. It returns the concatenated reply. A non-nil
// error from onToken aborts the stream and is returned as-is.
func (c *Client) StreamComplete(ctx context.Context, model string, messages []ChatMessage, onToken func(string) error) (string, error) {
	req, err := c.newRequest(ctx, completionRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", &Error{Status: resp.StatusCode, Body: string(b)}
	}

	var (
		full strings.Builder
		dec  sse.Decoder
		buf  = make([]byte, 4096)
	)
	emit := func(fragments []string) error {
		for _, f := range fragments {
			full.WriteString(f)
			if onToken != nil {
				if err := onToken(f); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := emit(dec.Feed(buf[:n])); err != nil {
				return full.String(), err
			}
		}
		if dec.Done() {
			return full.String(), nil
		}
		if readErr != nil {
			if readErr == io.EOF {
				// upstream closed without [DONE]; keep what parsed
				if err := emit(dec.Flush()); err != nil {
					return full.String(), err
				}
				return full.String(), nil
			}
			return full.String(), readErr
		}
	}
}

// ShouldRetry reports whether a gateway call is worth retrying.
func ShouldRetry(err error, httpStatus int) bool {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return true
		}
		return false
	}
	if httpStatus == 429 || httpStatus == 408 {
		return true
	}
	if httpStatus >= 500 && httpStatus <= 599 {
		return true
	}
	return false
}

func Backoff(attempt int) time.Duration {
	base := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1400 * time.Millisecond}
	if attempt <= 0 {
		return base[0]
	}
	if attempt >= len(base) {
		return base[len(base)-1]
	}
	return base[attempt]
}
