package telegram

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/bot"
)

// Handler consumes decoded chat events. The bot facade satisfies it.
type Handler interface {
	HandleEvent(ctx context.Context, ev bot.Event)
}

// Poller drives getUpdates and dispatches each update on its own
// goroutine, so one user's slow multi-step trade never stalls another's
// menu navigation.
type Poller struct {
	client  *Client
	handler Handler
	log     *zap.Logger
}

func NewPoller(client *Client, handler Handler, log *zap.Logger) *Poller {
	return &Poller{client: client, handler: handler, log: log}
}

// Run polls until ctx is cancelled. Transient API failures back off
// exponentially instead of spinning.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	retry := backoff.NewExponentialBackOff()
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := p.client.GetUpdates(ctx, offset, 50*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := retry.NextBackOff()
			p.log.Warn("poll failed", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			ev, ok := decodeEvent(u)
			if !ok {
				continue
			}
			go p.handler.HandleEvent(ctx, ev)
		}
	}
}

func decodeEvent(u Update) (bot.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		ev := bot.Event{
			UserID:     cb.From.ID,
			Callback:   cb.Data,
			CallbackID: cb.ID,
		}
		if cb.Message != nil {
			ev.ChatID = cb.Message.Chat.ID
			ev.MessageID = cb.Message.MessageID
		}
		return ev, ev.ChatID != 0 && ev.Callback != ""
	case u.Message != nil && u.Message.From != nil:
		m := u.Message
		return bot.Event{
			UserID: m.From.ID,
			ChatID: m.Chat.ID,
			Text:   m.Text,
		}, m.Text != ""
	default:
		return bot.Event{}, false
	}
}
