package app

import (
	"context"
	"errors"
	"time"

	tele "gopkg.in/telebot.v3"
)

// Messenger is the outbound side the batch queue talks to.
// Both calls may fail; callers log and carry on.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) (tele.Editable, error)
	Edit(ctx context.Context, msg tele.Editable, text string) error
}

type botMessenger struct {
	bot      *tele.Bot
	attempts int
}

func newBotMessenger(b *tele.Bot) *botMessenger {
	return &botMessenger{bot: b, attempts: 3}
}

func (m *botMessenger) Send(ctx context.Context, chatID int64, text string) (tele.Editable, error) {
	var sent *tele.Message
	err := sendWithRetry(ctx, m.attempts, 500*time.Millisecond, func() error {
		msg, err := m.bot.Send(tele.ChatID(chatID), text, tele.NoPreview)
		if err != nil {
			return err
		}
		sent = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sent, nil
}

func (m *botMessenger) Edit(ctx context.Context, msg tele.Editable, text string) error {
	return sendWithRetry(ctx, m.attempts, 500*time.Millisecond, func() error {
		_, err := m.bot.Edit(msg, text, tele.NoPreview)
		if errors.Is(err, tele.ErrSameMessageContent) {
			return nil
		}
		return err
	})
}
