// Package agent runs the tool-calling loop for ecommerce bots. The model
// drives the conversation; the agent executes store tools and feeds results
// back until the model produces a plain reply.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"botgw/internal/commerce/shopify"
	"botgw/internal/domain"
	"botgw/internal/observability"
	"botgw/internal/provider"
)

const fallbackReply = "I'm sorry, I couldn't process that request."

type Completer interface {
	Complete(ctx context.Context, model string, messages []provider.ChatMessage, tools []provider.Tool) (provider.Completion, error)
}

type Commerce interface {
	SearchProducts(ctx context.Context, query string, limit int) ([]shopify.Product, error)
	FeaturedProducts(ctx context.Context, limit int) ([]shopify.Product, error)
	CreateCheckout(ctx context.Context, variantID string, quantity int) (string, error)
}

type Agent struct {
	AI       Completer
	Commerce Commerce
	Model    string
	MaxTurns int
}

// Tools returns the function definitions advertised to the model.
func Tools() []provider.Tool {
	return []provider.Tool{
		{
			Type: "function",
			Function: provider.Function{
				Name:        "search_products",
				Description: "Search for products in the store based on keywords, categories, or descriptions",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Search query (e.g., 'red shoes', 'electronics', 'gift')",
						},
						"limit": map[string]any{
							"type":        "number",
							"description": "Maximum number of products to return (default 5)",
						},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: provider.Function{
				Name:        "get_featured_products",
				Description: "Get featured or popular products from the store",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"limit": map[string]any{
							"type":        "number",
							"description": "Number of products to return (default 6)",
						},
					},
				},
			},
		},
		{
			Type: "function",
			Function: provider.Function{
				Name:        "create_checkout",
				Description: "Create a checkout link for a specific product variant",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"variantId": map[string]any{
							"type":        "string",
							"description": "The Shopify variant ID (starts with gid://shopify/ProductVariant/)",
						},
						"quantity": map[string]any{
							"type":        "number",
							"description": "Quantity to add (default 1)",
						},
					},
					"required": []string{"variantId"},
				},
			},
		},
	}
}

// SystemPrompt builds the sales-assistant persona from the bot config.
func SystemPrompt(cfg domain.BotConfig) string {
	personality := cfg.Personality
	if personality == "" {
		personality = "helpful"
	}
	return fmt.Sprintf(`You are a %s e-commerce sales assistant. %s

Your role is to help customers:
- Discover and recommend products
- Answer product questions
- Guide them through the purchase process
- Create shopping cart links for checkout

Be friendly, concise, and helpful. Use emojis occasionally to be engaging.
When recommending products, describe them enthusiastically but accurately.
Always provide clear next steps for the customer.`, personality, cfg.Description)
}

// Run executes the conversation until the model stops requesting tools or
// the turn bound is hit. Only the first tool call of each assistant turn is
// executed; models that batch calls get the remainder re-requested next turn.
func (a *Agent) Run(ctx context.Context, cfg domain.BotConfig, userMessage string, history []provider.ChatMessage) (string, error) {
	messages := make([]provider.ChatMessage, 0, len(history)+2)
	messages = append(messages, provider.ChatMessage{Role: provider.RoleSystem, Content: SystemPrompt(cfg)})
	messages = append(messages, history...)
	messages = append(messages, provider.ChatMessage{Role: provider.RoleUser, Content: userMessage})

	tools := Tools()
	maxTurns := a.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 8
	}

	for turn := 0; turn < maxTurns; turn++ {
		out, err := a.AI.Complete(ctx, a.Model, messages, tools)
		if err != nil {
			return "", err
		}
		msg := out.Message
		if len(msg.ToolCalls) == 0 {
			if msg.Content == "" {
				return fallbackReply, nil
			}
			return msg.Content, nil
		}

		call := msg.ToolCalls[0]
		result := a.execute(ctx, call)
		messages = append(messages, msg)
		messages = append(messages, provider.ChatMessage{
			Role:       provider.RoleTool,
			ToolCallID: call.ID,
			Content:    result,
		})
	}
	return fallbackReply, nil
}

// execute runs one tool call. Failures are reported to the model as a tool
// result rather than aborting the conversation, so it can apologize or try a
// different tool.
func (a *Agent) execute(ctx context.Context, call provider.ToolCall) string {
	name := call.Function.Name
	var args struct {
		Query     string `json:"query"`
		Limit     int    `json:"limit"`
		VariantID string `json:"variantId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		observability.ToolCalls.WithLabelValues(name, "error").Inc()
		return toolError(fmt.Errorf("invalid arguments: %w", err))
	}

	var (
		result any
		err    error
	)
	switch name {
	case "search_products":
		result, err = a.Commerce.SearchProducts(ctx, args.Query, args.Limit)
	case "get_featured_products":
		result, err = a.Commerce.FeaturedProducts(ctx, args.Limit)
	case "create_checkout":
		var url string
		url, err = a.Commerce.CreateCheckout(ctx, args.VariantID, args.Quantity)
		result = map[string]any{"checkoutUrl": url}
	default:
		observability.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return `{"error":"Unknown function"}`
	}

	if err != nil {
		observability.ToolCalls.WithLabelValues(name, "error").Inc()
		return toolError(err)
	}
	observability.ToolCalls.WithLabelValues(name, "ok").Inc()

	b, merr := json.Marshal(result)
	if merr != nil {
		return toolError(merr)
	}
	return string(b)
}

func toolError(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}
