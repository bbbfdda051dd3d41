package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ivanoskov/signal_bot/internal/lib/sl"
	"github.com/ivanoskov/signal_bot/internal/metrics"
	"github.com/ivanoskov/signal_bot/internal/telegram"
)

// UpdateSource источник обновлений для long polling
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset, timeout int) ([]tgbotapi.Update, error)
}

// Poller забирает обновления с курсором offset
type Poller struct {
	source            UpdateSource
	timeout           time.Duration
	retryDelay        time.Duration
	rateLimitCooldown time.Duration
	log               *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewPoller(source UpdateSource, timeout, retryDelay, rateLimitCooldown time.Duration, log *slog.Logger) *Poller {
	return &Poller{
		source:            source,
		timeout:           timeout,
		retryDelay:        retryDelay,
		rateLimitCooldown: rateLimitCooldown,
		log:               log,
		sleep:             sleepCtx,
	}
}

// Poll запрашивает пачку обновлений начиная с cursor.
// Следующий курсор равен max(update_id)+1, для пустой пачки курсор не меняется.
// При ошибке возвращается тот же курсор.
func (p *Poller) Poll(ctx context.Context, cursor int) ([]tgbotapi.Update, int, error) {
	secs := int(p.timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	updates, err := p.source.GetUpdates(ctx, cursor, secs)
	if err != nil {
		return nil, cursor, err
	}

	next := cursor
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

// Backoff ждет перед следующим запросом после ошибки Poll.
// 429 выдерживает паузу не меньше retry_after от сервера.
func (p *Poller) Backoff(ctx context.Context, err error) {
	delay := p.retryDelay
	kind := "other"

	var rl *telegram.RateLimitError
	switch {
	case errors.As(err, &rl):
		kind = "rate_limit"
		delay = max(p.rateLimitCooldown, rl.RetryAfter)
		p.log.Warn("rate limited by telegram", slog.Duration("delay", delay))
	case telegram.IsTransient(err):
		kind = "transient"
		p.log.Debug("poll failed, retrying", sl.Err(err))
	default:
		p.log.Error("poll failed", sl.Err(err))
	}
	metrics.PollErrorsTotal.WithLabelValues(kind).Inc()

	_ = p.sleep(ctx, delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
