// Package chatserver exposes the dashboard-facing streaming chat endpoints:
// the bot customizer chat and the AI builder chat. Both relay provider tokens
// as canonical SSE frames.
package chatserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"botgw/internal/observability"
	"botgw/internal/provider"
	"botgw/internal/sse"
)

const customizerPrompt = `You are an AI assistant helping users customize their chatbot. Your job is to understand their requests and modify the bot's configuration.

When a user asks to modify the bot, you should:
1. Understand what they want to change (personality, greeting, responses, etc.)
2. Explain what changes you'll make
3. Provide the updated configuration in a clear way

Available bot properties you can modify:
- personality: The bot's tone and style (friendly, professional, casual, etc.)
- greeting_message: The first message the bot sends
- name: The bot's display name
- description: What the bot is for

Be conversational, helpful, and explain changes clearly. Ask clarifying questions if needed.`

const builderPrompt = `You are an AI builder inside a bot platform.

You MUST:
- Ask at most 1 short clarifying question if required.
- Otherwise propose a concrete plan.
- ALWAYS end your answer with a fenced JSON block (` + "```json ... ```" + `) matching this schema:
{
  "bot": { "name": string, "platform": string, "bot_type": string, "personality": string, "greeting_message": string } | null,
  "brand": { "name": string, "industry": string | null, "description": string | null, "website": string | null } | null,
  "templates": [ { "name": string, "description": string, "platform": string, "category": string, "template_content": string } ] | null,
  "copy": { "greeting_variants": string[], "personality_variants": string[], "notes": string | null } | null
}

Only include sections relevant to the user's intent. For unused sections, return null.

Constraints:
- platform must be one of: whatsapp, telegram, instagram, facebook, shopify, slack, discord, email, sms, linkedin, tiktok, microsoft_teams, twitter
- bot_type must be one of: customer_service, lead_generation, content_automation, ecommerce
- category must be one of: greeting, ecommerce, support, marketing, general
`

const intentSchemaJSON = `{"type":"object","properties":{"createBot":{"type":"boolean"},"createTemplates":{"type":"boolean"},"createBrand":{"type":"boolean"},"createCopy":{"type":"boolean"}},"additionalProperties":false}`

var builderModels = map[string]bool{
	"qwen/qwen3-coder:free":         true,
	"google/gemini-3-flash-preview": true,
	"google/gemini-2.5-pro":         true,
	"openai/gpt-5.2":                true,
}

type Streamer interface {
	StreamComplete(ctx context.Context, model string, messages []provider.ChatMessage, onToken func(string) error) (string, error)
}

type API struct {
	AI Streamer

	// ChatModel serves the customizer chat; DefaultModel is the builder
	// fallback when the client names no model or an unknown one.
	ChatModel    string
	DefaultModel string
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/bot-chat", a.handleBotChat).Methods(http.MethodPost)
	r.HandleFunc("/v1/ai-chat", a.handleAIChat).Methods(http.MethodPost)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type chatRequest struct {
	Messages     []provider.ChatMessage `json:"messages"`
	BotID        string                 `json:"botId"`
	Intent       map[string]any         `json:"intent"`
	Model        string                 `json:"model"`
	DeepThinking bool                   `json:"deepThinking"`
}

func (a *API) handleBotChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	messages := append([]provider.ChatMessage{{Role: provider.RoleSystem, Content: customizerPrompt}}, req.Messages...)
	a.stream(w, r, "bot-chat", a.ChatModel, messages)
}

func (a *API) handleAIChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	model := req.Model
	if !builderModels[model] {
		model = a.DefaultModel
	}

	intent := req.Intent
	if intent == nil {
		intent = map[string]any{}
	}
	intentJSON, _ := json.MarshalIndent(intent, "", "  ")

	system := builderPrompt + "\n\nIntent flags: " + string(intentJSON)
	if req.DeepThinking {
		system += "\n\n**IMPORTANT**: Start every response with a numbered plan (max 5 steps), then proceed to execution."
	} else {
		system += "\n(Validate against schema: " + intentSchemaJSON + ")"
	}

	messages := append([]provider.ChatMessage{{Role: provider.RoleSystem, Content: system}}, req.Messages...)
	a.stream(w, r, "ai-chat", model, messages)
}

// stream relays provider tokens as canonical SSE frames. Headers are written
// lazily on the first token so pre-stream gateway failures can still go out
// as JSON errors with a real status code.
func (a *API) stream(w http.ResponseWriter, r *http.Request, endpoint, model string, messages []provider.ChatMessage) {
	flusher, canFlush := w.(http.Flusher)
	started := false

	onToken := func(tok string) error {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			started = true
		}
		if err := sse.WriteEvent(w, tok); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	}

	_, err := a.AI.StreamComplete(r.Context(), model, messages, onToken)
	if err != nil {
		observability.ChatStreams.WithLabelValues(endpoint, "error").Inc()
		if started {
			// stream already committed; drop the connection without [DONE]
			slog.Error("chat stream aborted", "endpoint", endpoint, "err", err)
			return
		}
		switch {
		case provider.IsRateLimited(err):
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again shortly.")
		case provider.IsPaymentRequired(err):
			writeError(w, http.StatusPaymentRequired, "AI credits required. Please add credits.")
		default:
			slog.Error("chat stream failed", "endpoint", endpoint, "err", err)
			writeError(w, http.StatusInternalServerError, "AI gateway error")
		}
		return
	}

	if !started {
		// provider produced no tokens; still a valid empty stream
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
	}
	_ = sse.WriteDone(w)
	if canFlush {
		flusher.Flush()
	}
	observability.ChatStreams.WithLabelValues(endpoint, "ok").Inc()
}
