package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompleteSendsAttributionHeaders(t *testing.T) {
	var gotAuth, gotReferer, gotTitle string
	var gotReq completionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := &Client{APIKey: "sk-test", BaseURL: srv.URL, Referer: "https://example.com", Title: "BotGenius Hub", HTTP: srv.Client()}
	out, err := c.Complete(context.Background(), "model-a", []ChatMessage{{Role: RoleUser, Content: "hello"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Message.Content != "hi" || out.FinishReason != "stop" {
		t.Fatalf("unexpected completion %+v", out)
	}
	if gotAuth != "Bearer sk-test" || gotReferer != "https://example.com" || gotTitle != "BotGenius Hub" {
		t.Fatalf("headers %q %q %q", gotAuth, gotReferer, gotTitle)
	}
	if gotReq.Model != "model-a" || gotReq.Stream || gotReq.ToolChoice != "" {
		t.Fatalf("request %+v", gotReq)
	}
}

func TestCompleteToolChoiceAutoWithTools(t *testing.T) {
	var gotReq completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"c1","type":"function","function":{"name":"search_products","arguments":"{\"query\":\"mug\"}"}}]},"finish_reason":"tool_calls"}]}`))
	}))
	defer srv.Close()

	c := &Client{APIKey: "k", BaseURL: srv.URL, HTTP: srv.Client()}
	tools := []Tool{{Type: "function", Function: Function{Name: "search_products"}}}
	out, err := c.Complete(context.Background(), "m", []ChatMessage{{Role: RoleUser, Content: "find a mug"}}, tools)
	if err != nil {
		t.Fatal(err)
	}
	if gotReq.ToolChoice != "auto" {
		t.Fatalf("tool_choice = %q", gotReq.ToolChoice)
	}
	if len(out.Message.ToolCalls) != 1 || out.Message.ToolCalls[0].Function.Name != "search_products" {
		t.Fatalf("tool calls %+v", out.Message.ToolCalls)
	}
}

func TestCompleteGatewayErrorsAreTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	c := &Client{APIKey: "k", BaseURL: srv.URL, HTTP: srv.Client()}
	_, err := c.Complete(context.Background(), "m", nil, nil)
	if !IsRateLimited(err) {
		t.Fatalf("want rate limit error, got %v", err)
	}
	if IsPaymentRequired(err) {
		t.Fatal("429 misread as 402")
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Status != 429 {
		t.Fatalf("want *Error with 429, got %v", err)
	}
}

func TestStreamCompleteRelaysTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream flag not set")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := &Client{APIKey: "k", BaseURL: srv.URL, HTTP: srv.Client()}
	var tokens []string
	full, err := c.StreamComplete(context.Background(), "m", []ChatMessage{{Role: RoleUser, Content: "hi"}}, func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if full != "Hello" {
		t.Fatalf("full = %q", full)
	}
	if strings.Join(tokens, "|") != "Hel|lo" {
		t.Fatalf("tokens %v", tokens)
	}
}

func TestStreamCompleteEOFWithoutDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n"))
	}))
	defer srv.Close()

	c := &Client{APIKey: "k", BaseURL: srv.URL, HTTP: srv.Client()}
	full, err := c.StreamComplete(context.Background(), "m", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if full != "partial" {
		t.Fatalf("full = %q", full)
	}
}

func TestStreamCompleteOnTokenAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	boom := errors.New("client went away")
	c := &Client{APIKey: "k", BaseURL: srv.URL, HTTP: srv.Client()}
	_, err := c.StreamComplete(context.Background(), "m", nil, func(string) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("want abort error, got %v", err)
	}
}

func TestShouldRetry(t *testing.T) {
	if !ShouldRetry(nil, 429) || !ShouldRetry(nil, 503) || !ShouldRetry(nil, 408) {
		t.Fatal("transient statuses must retry")
	}
	if ShouldRetry(nil, 400) || ShouldRetry(nil, 402) || ShouldRetry(errors.New("x"), 0) {
		t.Fatal("permanent failures must not retry")
	}
	if !ShouldRetry(context.DeadlineExceeded, 0) {
		t.Fatal("deadline must retry")
	}
}
