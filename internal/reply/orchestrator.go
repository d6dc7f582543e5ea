// Package reply turns a canonical inbound message into the bot's reply text.
// Routing is by bot type: ecommerce bots go through the tool-calling agent,
// everything else gets a single completion with a platform-flavored persona.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"botgw/internal/domain"
	"botgw/internal/observability"
	"botgw/internal/provider"
)

const (
	fallbackReply    = "I'm sorry, I couldn't process that."
	fallbackReplySMS = "Error processing message."
)

type Completer interface {
	Complete(ctx context.Context, model string, messages []provider.ChatMessage, tools []provider.Tool) (provider.Completion, error)
}

type AgentRunner interface {
	Run(ctx context.Context, cfg domain.BotConfig, userMessage string, history []provider.ChatMessage) (string, error)
}

type Orchestrator struct {
	AI    Completer
	Agent AgentRunner

	ChatModel    string
	CompactModel string
}

// SystemPrompt builds the persona for non-ecommerce bots. Each platform has
// its own register and default personality; SMS and Twitter carry a length
// hint matching the platform's limits.
func SystemPrompt(p domain.Platform, cfg domain.BotConfig) string {
	personality := cfg.Personality
	switch p {
	case domain.PlatformDiscord:
		if personality == "" {
			personality = "helpful"
		}
		return fmt.Sprintf("You are a %s Discord bot. %s", personality, cfg.Description)
	case domain.PlatformTwitter:
		if personality == "" {
			personality = "concise"
		}
		return fmt.Sprintf("You are a %s Twitter assistant. Keep responses under 280 characters. %s", personality, cfg.Description)
	case domain.PlatformSMS:
		if personality == "" {
			personality = "concise"
		}
		return fmt.Sprintf("You are a %s SMS assistant. Keep responses under 160 characters. %s", personality, cfg.Description)
	case domain.PlatformGoogleBusiness:
		if personality == "" {
			personality = "professional"
		}
		return fmt.Sprintf("You are a %s Google Business Messages assistant. %s", personality, cfg.Description)
	default:
		if personality == "" {
			personality = "friendly"
		}
		return fmt.Sprintf("You are a %s chatbot. %s", personality, cfg.Description)
	}
}

func (o *Orchestrator) model(p domain.Platform) string {
	if p == domain.PlatformSMS || p == domain.PlatformTwitter {
		return o.CompactModel
	}
	return o.ChatModel
}

func fallback(p domain.Platform) string {
	if p == domain.PlatformSMS {
		return fallbackReplySMS
	}
	return fallbackReply
}

// Reply computes the outbound text for one inbound message. Provider failures
// degrade to a fallback reply instead of erroring: the webhook ack must go out
// as a 200 or the platform retries the delivery.
func (o *Orchestrator) Reply(ctx context.Context, bot domain.BotConfig, msg domain.CanonicalMessage) (string, error) {
	if bot.BotType == domain.BotTypeEcommerce && o.Agent != nil {
		text, err := o.Agent.Run(ctx, bot, msg.Text, nil)
		if err != nil {
			slog.Error("agent reply failed", "platform", msg.Platform, "err", err)
			return fallback(msg.Platform), nil
		}
		return text, nil
	}

	messages := []provider.ChatMessage{
		{Role: provider.RoleSystem, Content: SystemPrompt(msg.Platform, bot)},
		{Role: provider.RoleUser, Content: msg.Text},
	}

	start := time.Now()
	out, err := o.AI.Complete(ctx, o.model(msg.Platform), messages, nil)
	observability.ProviderLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		status := 0
		var pe *provider.Error
		if errors.As(err, &pe) {
			status = pe.Status
		}
		observability.ProviderRequests.WithLabelValues("error", strconv.Itoa(status)).Inc()
		slog.Error("provider reply failed", "platform", msg.Platform, "status", status, "err", err)
		return fallback(msg.Platform), nil
	}
	observability.ProviderRequests.WithLabelValues("ok", "200").Inc()

	if out.Message.Content == "" {
		return fallback(msg.Platform), nil
	}
	return out.Message.Content, nil
}
