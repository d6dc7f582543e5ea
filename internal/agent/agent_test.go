package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"botgw/internal/commerce/shopify"
	"botgw/internal/domain"
	"botgw/internal/provider"
)

type scriptedAI struct {
	turns []provider.Completion
	calls [][]provider.ChatMessage
	err   error
}

func (s *scriptedAI) Complete(_ context.Context, _ string, messages []provider.ChatMessage, _ []provider.Tool) (provider.Completion, error) {
	if s.err != nil {
		return provider.Completion{}, s.err
	}
	cp := make([]provider.ChatMessage, len(messages))
	copy(cp, messages)
	s.calls = append(s.calls, cp)
	turn := s.turns[0]
	if len(s.turns) > 1 {
		s.turns = s.turns[1:]
	}
	return turn, nil
}

type fakeCommerce struct {
	searched  []string
	checkout  string
	searchErr error
}

func (f *fakeCommerce) SearchProducts(_ context.Context, query string, _ int) ([]shopify.Product, error) {
	f.searched = append(f.searched, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []shopify.Product{{ID: "p1", Title: "Blue Mug", Price: "USD 12.50"}}, nil
}

func (f *fakeCommerce) FeaturedProducts(context.Context, int) ([]shopify.Product, error) {
	return []shopify.Product{{ID: "p2", Title: "Red Mug"}}, nil
}

func (f *fakeCommerce) CreateCheckout(context.Context, string, int) (string, error) {
	return f.checkout, nil
}

func toolCallTurn(name, args string) provider.Completion {
	return provider.Completion{Message: provider.ChatMessage{
		Role: provider.RoleAssistant,
		ToolCalls: []provider.ToolCall{{
			ID: "call_1", Type: "function",
			Function: provider.FunctionCall{Name: name, Arguments: args},
		}},
	}, FinishReason: "tool_calls"}
}

func textTurn(s string) provider.Completion {
	return provider.Completion{Message: provider.ChatMessage{Role: provider.RoleAssistant, Content: s}, FinishReason: "stop"}
}

func TestRunPlainReply(t *testing.T) {
	ai := &scriptedAI{turns: []provider.Completion{textTurn("hello!")}}
	a := &Agent{AI: ai, Commerce: &fakeCommerce{}, Model: "m", MaxTurns: 8}

	got, err := a.Run(context.Background(), domain.BotConfig{}, "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello!" {
		t.Fatalf("reply = %q", got)
	}
	sys := ai.calls[0][0]
	if sys.Role != provider.RoleSystem || !strings.Contains(sys.Content, "helpful e-commerce sales assistant") {
		t.Fatalf("system prompt %+v", sys)
	}
}

func TestRunToolLoop(t *testing.T) {
	ai := &scriptedAI{turns: []provider.Completion{
		toolCallTurn("search_products", `{"query":"mug"}`),
		textTurn("Try the Blue Mug!"),
	}}
	commerce := &fakeCommerce{}
	a := &Agent{AI: ai, Commerce: commerce, Model: "m", MaxTurns: 8}

	got, err := a.Run(context.Background(), domain.BotConfig{Personality: "cheery"}, "any mugs?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Try the Blue Mug!" {
		t.Fatalf("reply = %q", got)
	}
	if len(commerce.searched) != 1 || commerce.searched[0] != "mug" {
		t.Fatalf("searches %v", commerce.searched)
	}

	// second call must carry the assistant turn and the tool result
	second := ai.calls[1]
	last := second[len(second)-1]
	if last.Role != provider.RoleTool || last.ToolCallID != "call_1" {
		t.Fatalf("tool message %+v", last)
	}
	var products []shopify.Product
	if err := json.Unmarshal([]byte(last.Content), &products); err != nil || len(products) != 1 {
		t.Fatalf("tool result %q", last.Content)
	}
	if second[len(second)-2].Role != provider.RoleAssistant {
		t.Fatal("assistant turn not appended before tool result")
	}
}

func TestRunFirstToolCallOnly(t *testing.T) {
	multi := provider.Completion{Message: provider.ChatMessage{
		Role: provider.RoleAssistant,
		ToolCalls: []provider.ToolCall{
			{ID: "c1", Type: "function", Function: provider.FunctionCall{Name: "search_products", Arguments: `{"query":"a"}`}},
			{ID: "c2", Type: "function", Function: provider.FunctionCall{Name: "search_products", Arguments: `{"query":"b"}`}},
		},
	}}
	ai := &scriptedAI{turns: []provider.Completion{multi, textTurn("done")}}
	commerce := &fakeCommerce{}
	a := &Agent{AI: ai, Commerce: commerce, Model: "m", MaxTurns: 8}

	if _, err := a.Run(context.Background(), domain.BotConfig{}, "x", nil); err != nil {
		t.Fatal(err)
	}
	if len(commerce.searched) != 1 || commerce.searched[0] != "a" {
		t.Fatalf("executed %v, want only first call", commerce.searched)
	}
}

func TestRunToolErrorFedBack(t *testing.T) {
	ai := &scriptedAI{turns: []provider.Completion{
		toolCallTurn("search_products", `{"query":"mug"}`),
		textTurn("sorry, store trouble"),
	}}
	commerce := &fakeCommerce{searchErr: errors.New("storefront down")}
	a := &Agent{AI: ai, Commerce: commerce, Model: "m", MaxTurns: 8}

	got, err := a.Run(context.Background(), domain.BotConfig{}, "x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "sorry, store trouble" {
		t.Fatalf("reply = %q", got)
	}
	second := ai.calls[1]
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "storefront down") {
		t.Fatalf("tool error not surfaced: %q", last.Content)
	}
}

func TestRunTurnBound(t *testing.T) {
	ai := &scriptedAI{turns: []provider.Completion{toolCallTurn("get_featured_products", `{}`)}}
	a := &Agent{AI: ai, Commerce: &fakeCommerce{}, Model: "m", MaxTurns: 3}

	got, err := a.Run(context.Background(), domain.BotConfig{}, "x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != fallbackReply {
		t.Fatalf("reply = %q", got)
	}
	if len(ai.calls) != 3 {
		t.Fatalf("turns = %d", len(ai.calls))
	}
}

func TestRunGatewayErrorPropagates(t *testing.T) {
	ai := &scriptedAI{err: &provider.Error{Status: 429, Body: "slow down"}}
	a := &Agent{AI: ai, Commerce: &fakeCommerce{}, Model: "m", MaxTurns: 8}

	_, err := a.Run(context.Background(), domain.BotConfig{}, "x", nil)
	if !provider.IsRateLimited(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunUnknownToolAndCheckout(t *testing.T) {
	ai := &scriptedAI{turns: []provider.Completion{
		toolCallTurn("delete_everything", `{}`),
		toolCallTurn("create_checkout", `{"variantId":"gid://shopify/ProductVariant/9"}`),
		textTurn("here is your link"),
	}}
	commerce := &fakeCommerce{checkout: "https://shop.example/checkout?channel=online_store"}
	a := &Agent{AI: ai, Commerce: commerce, Model: "m", MaxTurns: 8}

	got, err := a.Run(context.Background(), domain.BotConfig{}, "buy", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "here is your link" {
		t.Fatalf("reply = %q", got)
	}
	second := ai.calls[1]
	if !strings.Contains(second[len(second)-1].Content, "Unknown function") {
		t.Fatalf("unknown tool result %q", second[len(second)-1].Content)
	}
	third := ai.calls[2]
	if !strings.Contains(third[len(third)-1].Content, "checkoutUrl") {
		t.Fatalf("checkout result %q", third[len(third)-1].Content)
	}
}
