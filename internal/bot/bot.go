// Package bot exposes the pipeline operations as Telegram commands.
package bot

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type API interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type ViewFunc func(ctx context.Context, sender Sender, update tgbotapi.Update) error

type Bot struct {
	api           API
	cmdViews      map[string]ViewFunc
	allowedChatID int64
	updateTimeout time.Duration
	logger        *slog.Logger
}

// New creates a bot. A non-zero allowedChatID restricts commands to that chat.
func New(api API, allowedChatID int64, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bot{
		api:           api,
		allowedChatID: allowedChatID,
		updateTimeout: 5 * time.Minute,
		logger:        logger,
	}
}

func (b *Bot) RegisterCmdView(cmd string, view ViewFunc) {
	if b.cmdViews == nil {
		b.cmdViews = make(map[string]ViewFunc)
	}

	b.cmdViews[cmd] = view
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("panic in view recovered", "panic", p)
		}
	}()

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	chatID := update.Message.Chat.ID
	if b.allowedChatID != 0 && chatID != b.allowedChatID {
		b.logger.Warn("command from unknown chat ignored", "chat", chatID)
		return
	}

	command := update.Message.Command()

	view, ok := b.cmdViews[command]
	if !ok {
		return
	}

	if err := view(ctx, b.api, update); err != nil {
		b.logger.Error("execute view failed", "command", command, "error", err)

		if _, sendErr := b.api.Send(tgbotapi.NewMessage(chatID, "Internal error")); sendErr != nil {
			b.logger.Error("send error message failed", "error", sendErr)
		}
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			updateCtx, updateCancel := context.WithTimeout(ctx, b.updateTimeout)
			b.handleUpdate(updateCtx, update)
			updateCancel()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
