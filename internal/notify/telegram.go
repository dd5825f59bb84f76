package notify

import (
	"context"

	"github.com/Shoffly/dealer-visits/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the subset of the bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes lifecycle messages into an ops chat. It is a
// sink only: callers must treat delivery failures as non-fatal.
type TelegramNotifier struct {
	bot    Sender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(bot Sender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}
}

// NewTelegramNotifierFromConfig dials the bot API. Returns nil without
// error when notifications are disabled.
func NewTelegramNotifierFromConfig(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	return NewTelegramNotifier(bot, cfg.ChatID, logger), nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if n == nil || n.bot == nil {
		return nil
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn().Err(err).Msg("telegram notify failed")
		return err
	}
	return nil
}
