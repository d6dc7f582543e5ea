package domain

type Platform string

const (
	PlatformWhatsApp       Platform = "whatsapp"
	PlatformTelegram       Platform = "telegram"
	PlatformDiscord        Platform = "discord"
	PlatformTwitter        Platform = "twitter"
	PlatformSMS            Platform = "sms"
	PlatformGoogleBusiness Platform = "google_business"
)

// ParsePlatform maps a route segment to a known platform. Dispatch is by the
// platform encoded in the webhook URL, never by payload shape.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(s) {
	case PlatformWhatsApp, PlatformTelegram, PlatformDiscord,
		PlatformTwitter, PlatformSMS, PlatformGoogleBusiness:
		return Platform(s), true
	}
	return "", false
}

type BotType string

const (
	BotTypeCustomerService   BotType = "customer_service"
	BotTypeLeadGeneration    BotType = "lead_generation"
	BotTypeContentAutomation BotType = "content_automation"
	BotTypeEcommerce         BotType = "ecommerce"
)

// CanonicalMessage is the platform-agnostic form of one inbound message.
// It exists only for the duration of a single webhook request. ReplyTo is the
// delivery address for the outbound reply; on most platforms it equals
// SenderID, on Telegram it is the chat id.
type CanonicalMessage struct {
	SenderID string
	Text     string
	ReplyTo  string
	Platform Platform
}

// BotConfig is the slice of a bot row the reply pipeline reads.
type BotConfig struct {
	Personality string
	Description string
	Greeting    string
	BotType     BotType
}
