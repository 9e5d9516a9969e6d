package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLen is Telegram's limit for one text message.
const maxMessageLen = 4096

// Sender is the part of *tgbotapi.BotAPI the sink needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink sends plain-text alerts to one chat.
type TelegramSink struct {
	bot    Sender
	chatID int64
}

// NewTelegramSink connects a bot with token.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return NewTelegramSinkWithSender(bot, chatID), nil
}

// NewTelegramSinkWithSender wraps an existing sender.
func NewTelegramSinkWithSender(bot Sender, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

func (s *TelegramSink) Name() string { return "telegram" }

// Send ignores ctx: the bot client carries its own HTTP timeout.
func (s *TelegramSink) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := []rune(PlainText(a))
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	msg := tgbotapi.NewMessage(s.chatID, string(text))
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}
