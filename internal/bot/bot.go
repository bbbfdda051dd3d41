// Package bot принимает обновления Telegram, ведет диалоги с подписчиками
// и пересылает сигналы из канала.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ivanoskov/signal_bot/internal/metrics"
)

type Bot struct {
	poller *Poller
	relay  *Relay
	router *Router
	events EventLog
	log    *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

func New(poller *Poller, relay *Relay, router *Router, events EventLog, log *slog.Logger) *Bot {
	return &Bot{
		poller: poller,
		relay:  relay,
		router: router,
		events: events,
		log:    log.With(slog.String("component", "bot")),
	}
}

// Start запускает long polling и блокируется до Stop или отмены ctx
func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
	defer cancel()

	b.running.Store(true)
	b.log.Info("bot started")
	b.events.Send(ctx, "[BOT] Запущен и готов")

	cursor := 0
	for b.running.Load() && ctx.Err() == nil {
		updates, next, err := b.poller.Poll(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.poller.Backoff(ctx, err)
			continue
		}
		// Курсор сдвигается до обработки, ошибки отдельных событий не приводят к повторной доставке
		cursor = next
		b.process(ctx, updates)
	}

	b.running.Store(false)
	b.log.Info("bot stopped")
	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer stopCancel()
	b.events.Send(stopCtx, "[BOT] Остановлен")
	return nil
}

// Stop сбрасывает флаг работы и прерывает текущий запрос
func (b *Bot) Stop() {
	b.running.Store(false)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

// Running сообщает, крутится ли цикл опроса
func (b *Bot) Running() bool {
	return b.running.Load()
}

func (b *Bot) process(ctx context.Context, updates []tgbotapi.Update) {
	if len(updates) == 0 {
		return
	}
	b.relayBatch(ctx, updates)
	for _, u := range updates {
		b.HandleUpdate(ctx, u)
	}
}

// relayBatch пересылает сигналы пачки; паника пересылки не мешает обработке сообщений
func (b *Bot) relayBatch(ctx context.Context, updates []tgbotapi.Update) {
	defer b.recoverPanic("relay", updates[0].UpdateID)
	b.relay.Relay(ctx, updates)
}

// HandleUpdate обрабатывает одно обновление; паника внутри обработчика не роняет цикл
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer b.recoverPanic("route", update.UpdateID)

	metrics.UpdatesTotal.WithLabelValues(updateKind(update)).Inc()
	b.router.Route(ctx, update)
}

func (b *Bot) recoverPanic(stage string, updateID int) {
	if p := recover(); p != nil {
		b.log.Error("panic while handling update",
			slog.String("stage", stage),
			slog.Int("update_id", updateID),
			slog.Any("panic", p),
			slog.String("stack", string(debug.Stack())))
	}
}

// HandleWebhook точка входа для webhook: одно обновление в теле запроса
func (b *Bot) HandleWebhook(ctx context.Context, body []byte) error {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("bot.HandleWebhook: %w", err)
	}

	b.process(ctx, []tgbotapi.Update{update})
	return nil
}

func updateKind(u tgbotapi.Update) string {
	switch {
	case u.Message != nil:
		return "message"
	case u.CallbackQuery != nil:
		return "callback_query"
	case u.ChannelPost != nil:
		return "channel_post"
	case u.EditedChannelPost != nil:
		return "edited_channel_post"
	default:
		return "other"
	}
}
