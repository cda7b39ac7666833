package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/hanko/internal/contract"
	"github.com/harunnryd/hanko/internal/errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Escalator is the pluggable hook fired on the terminal timeout transition.
// The engine neither cancels nor re-queues the underlying task; it only
// notifies. Escalation failures are logged, never propagated.
type Escalator interface {
	Escalate(ctx context.Context, c *contract.ApprovalContract) error
}

// LogEscalator is the default: the timeout is surfaced in the structured log.
type LogEscalator struct{}

func (l *LogEscalator) Escalate(ctx context.Context, c *contract.ApprovalContract) error {
	slog.Warn("Approval escalation",
		"approval_id", c.ApprovalID,
		"task", c.Task,
		"requested_by", c.RequestedBy,
		"environment", c.Environment,
	)
	return nil
}

// TelegramEscalator notifies an operations chat when an approval expires
// unanswered.
type TelegramEscalator struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramEscalator(botToken string, chatID int64) (*TelegramEscalator, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init telegram bot")
	}

	slog.Info("Telegram escalation enabled", "user", bot.Self.UserName, "chat_id", chatID)
	return &TelegramEscalator{bot: bot, chatID: chatID}, nil
}

func (t *TelegramEscalator) Escalate(ctx context.Context, c *contract.ApprovalContract) error {
	text := fmt.Sprintf("Approval %s timed out without a decision.\nTask: %s\nRequested by: %s\nEnvironment: %s",
		c.ApprovalID, c.Task, c.RequestedBy, c.Environment)

	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "failed to send escalation message")
	}
	return nil
}
