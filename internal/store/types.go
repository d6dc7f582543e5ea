package store

import (
	"time"

	"botgw/internal/domain"
)

type Deployment struct {
	ID            string
	BotID         string
	Platform      domain.Platform
	WebhookSecret string
	Config        map[string]any
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Bot struct {
	ID          string
	UserID      string
	Name        string
	BotType     domain.BotType
	Personality string
	Greeting    string
	Description string
	IsActive    bool
}

// DeploymentWithBot is the unit the webhook path authenticates against:
// one active deployment joined with its owning bot.
type DeploymentWithBot struct {
	Deployment Deployment
	Bot        Bot
}

type WebhookLogInsert struct {
	ID             string
	DeploymentID   string
	RequestBody    any
	ResponseStatus int
	Error          string
	Now            time.Time
}

type WebhookLog struct {
	ID             string
	DeploymentID   string
	RequestBody    []byte
	ResponseStatus int
	Error          string
	CreatedAt      time.Time
}
