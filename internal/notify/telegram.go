package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
)

// Telegram sends position reports to a single chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

var _ Notifier = (*Telegram)(nil)

// NewTelegram connects a bot with token that reports to chatID.
func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, chatID, tgbotapi.APIEndpoint, logger)
}

// NewTelegramWithEndpoint is NewTelegram against a custom Bot API endpoint
// (a format string taking the token and method).
func NewTelegramWithEndpoint(token string, chatID int64, endpoint string, logger *zap.Logger) (*Telegram, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	logger = logger.Named("telegram")
	logger.Info("telegram bot connected", zap.String("username", api.Self.UserName))

	return &Telegram{api: api, chatID: chatID, logger: logger}, nil
}

// NotifyPosition sends the formatted position.
func (t *Telegram) NotifyPosition(ctx context.Context, p *domain.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, Format(p))
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	t.logger.Debug("position reported", zap.String("position", p.ID.String()))
	return nil
}
