// Package platform maps raw webhook payloads into canonical messages. Each
// platform has its own extractor; dispatch is by the platform in the route,
// never by sniffing payload shape.
package platform

import (
	"encoding/json"

	"botgw/internal/domain"
)

type whatsAppPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type telegramPayload struct {
	Message struct {
		Text string `json:"text"`
		From struct {
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
		} `json:"from"`
		Chat struct {
			ID json.Number `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type discordPayload struct {
	Type    int    `json:"type"`
	Content string `json:"content"`
	Data    struct {
		Content string `json:"content"`
	} `json:"data"`
	Member struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
	} `json:"member"`
	Author struct {
		Username string `json:"username"`
	} `json:"author"`
}

type twitterPayload struct {
	DirectMessageEvents []struct {
		MessageCreate struct {
			SenderID    string `json:"sender_id"`
			MessageData struct {
				Text string `json:"text"`
			} `json:"message_data"`
		} `json:"message_create"`
	} `json:"direct_message_events"`
	Text string `json:"text"`
	User string `json:"user"`
}

type smsPayload struct {
	// Twilio-style form-encoded bodies are translated to JSON by the edge
	// proxy; bare JSON senders use the lowercase fields.
	Body    string `json:"Body"`
	From    string `json:"From"`
	TextAlt string `json:"text"`
	FromAlt string `json:"from"`
}

type googleBusinessPayload struct {
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	Text           string `json:"text"`
	ConversationID string `json:"conversationId"`
	From           string `json:"from"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Normalize extracts the canonical message from a raw payload. ok is false
// when the payload is valid for the platform but carries no user message
// (status callbacks, read receipts, edits); such deliveries are acknowledged
// without a reply.
func Normalize(p domain.Platform, body []byte) (domain.CanonicalMessage, bool) {
	switch p {
	case domain.PlatformWhatsApp:
		return normalizeWhatsApp(body)
	case domain.PlatformTelegram:
		return normalizeTelegram(body)
	case domain.PlatformDiscord:
		return normalizeDiscord(body)
	case domain.PlatformTwitter:
		return normalizeTwitter(body)
	case domain.PlatformSMS:
		return normalizeSMS(body)
	case domain.PlatformGoogleBusiness:
		return normalizeGoogleBusiness(body)
	}
	return domain.CanonicalMessage{}, false
}

func normalizeWhatsApp(body []byte) (domain.CanonicalMessage, bool) {
	var p whatsAppPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.CanonicalMessage{}, false
	}
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 || len(p.Entry[0].Changes[0].Value.Messages) == 0 {
		return domain.CanonicalMessage{}, false
	}
	m := p.Entry[0].Changes[0].Value.Messages[0]
	if m.Text.Body == "" {
		return domain.CanonicalMessage{}, false
	}
	return domain.CanonicalMessage{
		SenderID: m.From,
		Text:     m.Text.Body,
		ReplyTo:  m.From,
		Platform: domain.PlatformWhatsApp,
	}, true
}

func normalizeTelegram(body []byte) (domain.CanonicalMessage, bool) {
	var p telegramPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.CanonicalMessage{}, false
	}
	if p.Message.Text == "" {
		return domain.CanonicalMessage{}, false
	}
	return domain.CanonicalMessage{
		SenderID: firstNonEmpty(p.Message.From.Username, p.Message.From.FirstName),
		Text:     p.Message.Text,
		ReplyTo:  p.Message.Chat.ID.String(),
		Platform: domain.PlatformTelegram,
	}, true
}

func normalizeDiscord(body []byte) (domain.CanonicalMessage, bool) {
	var p discordPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.CanonicalMessage{}, false
	}
	text := firstNonEmpty(p.Data.Content, p.Content)
	sender := firstNonEmpty(p.Member.User.Username, p.Author.Username)
	if text == "" || sender == "" {
		return domain.CanonicalMessage{}, false
	}
	return domain.CanonicalMessage{
		SenderID: sender,
		Text:     text,
		ReplyTo:  sender,
		Platform: domain.PlatformDiscord,
	}, true
}

func normalizeTwitter(body []byte) (domain.CanonicalMessage, bool) {
	var p twitterPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.CanonicalMessage{}, false
	}
	text := p.Text
	sender := p.User
	if len(p.DirectMessageEvents) > 0 {
		mc := p.DirectMessageEvents[0].MessageCreate
		text = firstNonEmpty(mc.MessageData.Text, text)
		sender = firstNonEmpty(mc.SenderID, sender)
	}
	if text == "" || sender == "" {
		return domain.CanonicalMessage{}, false
	}
	return domain.CanonicalMessage{
		SenderID: sender,
		Text:     text,
		ReplyTo:  sender,
		Platform: domain.PlatformTwitter,
	}, true
}

func normalizeSMS(body []byte) (domain.CanonicalMessage, bool) {
	var p smsPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.CanonicalMessage{}, false
	}
	text := firstNonEmpty(p.Body, p.TextAlt)
	from := firstNonEmpty(p.From, p.FromAlt)
	if text == "" || from == "" {
		return domain.CanonicalMessage{}, false
	}
	return domain.CanonicalMessage{
		SenderID: from,
		Text:     text,
		ReplyTo:  from,
		Platform: domain.PlatformSMS,
	}, true
}

func normalizeGoogleBusiness(body []byte) (domain.CanonicalMessage, bool) {
	var p googleBusinessPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.CanonicalMessage{}, false
	}
	text := firstNonEmpty(p.Message.Text, p.Text)
	sender := firstNonEmpty(p.ConversationID, p.From)
	if text == "" || sender == "" {
		return domain.CanonicalMessage{}, false
	}
	return domain.CanonicalMessage{
		SenderID: sender,
		Text:     text,
		ReplyTo:  sender,
		Platform: domain.PlatformGoogleBusiness,
	}, true
}

// IsDiscordPing reports whether the payload is Discord's type-1 verification
// ping. Pings must be answered before any logging or reply work.
func IsDiscordPing(body []byte) bool {
	var p struct {
		Type int `json:"type"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return false
	}
	return p.Type == 1
}
