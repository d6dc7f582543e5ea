package outbound

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramClient struct {
	Bot *tgbotapi.BotAPI
}

// NewTelegramClient authenticates against the Bot API. The token comes from
// the deployment config, so a client is scoped to one bot.
func NewTelegramClient(token string) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &TelegramClient{Bot: bot}, nil
}

// Send delivers one text message to a chat. The Bot API library has no
// context support; cancellation is bounded by the library's HTTP timeout.
func (c *TelegramClient) Send(_ context.Context, chatID, text string) (int, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	msg := tgbotapi.NewMessage(id, text)
	if _, err := c.Bot.Send(msg); err != nil {
		return 0, err
	}
	return 200, nil
}
