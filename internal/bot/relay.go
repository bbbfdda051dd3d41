package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ivanoskov/signal_bot/internal/lib/sl"
	"github.com/ivanoskov/signal_bot/internal/metrics"
	"golang.org/x/time/rate"
)

// Forwarder пересылка сообщений из канала
type Forwarder interface {
	Forward(ctx context.Context, fromChatID, toChatID int64, messageID int) error
}

// Recipients источник получателей сигналов
type Recipients interface {
	ActiveUserIDs(ctx context.Context) ([]int64, error)
	Admins() []int64
}

// WatermarkStore хранит водяную метку между перезапусками
type WatermarkStore interface {
	LoadWatermark(ctx context.Context) (int, bool, error)
	SaveWatermark(ctx context.Context, id int) error
}

// Relay пересылает новые посты сигнального канала активным подписчикам и админам.
// Водяная метка принадлежит циклу опроса, конкурентный вызов Relay не поддерживается.
type Relay struct {
	forwarder  Forwarder
	recipients Recipients
	events     EventLog
	store      WatermarkStore
	channelID  int64
	limiter    *rate.Limiter
	log        *slog.Logger

	watermark int
	loaded    bool
}

// NewRelay создает ретранслятор. store может быть nil, тогда метка живет только в памяти.
func NewRelay(forwarder Forwarder, recipients Recipients, events EventLog, store WatermarkStore,
	channelID int64, limiter *rate.Limiter, log *slog.Logger) *Relay {
	return &Relay{
		forwarder:  forwarder,
		recipients: recipients,
		events:     events,
		store:      store,
		channelID:  channelID,
		limiter:    limiter,
		log:        log.With(slog.String("component", "relay")),
	}
}

// Watermark наибольший уже обработанный message_id
func (r *Relay) Watermark() int {
	return r.watermark
}

// Relay обрабатывает пачку обновлений и возвращает число успешных пересылок
func (r *Relay) Relay(ctx context.Context, updates []tgbotapi.Update) int {
	if r.channelID == 0 {
		return 0
	}
	r.load(ctx)

	candidates := r.candidates(updates)
	if len(candidates) == 0 {
		return 0
	}
	// Метка сдвигается даже если пересылки не удались
	defer r.advance(ctx, candidates[len(candidates)-1])

	ids, err := r.recipients.ActiveUserIDs(ctx)
	if err != nil {
		r.log.Error("failed to load recipients, relay cycle skipped",
			slog.Any("message_ids", candidates), sl.Err(err))
		return 0
	}
	recipients := mergeRecipients(ids, r.recipients.Admins())

	forwarded := 0
	for _, msgID := range candidates {
		for _, userID := range recipients {
			if err := r.limiter.Wait(ctx); err != nil {
				r.log.Warn("relay interrupted", sl.Err(err))
				r.summary(ctx, candidates, forwarded)
				return forwarded
			}
			if err := r.forwarder.Forward(ctx, r.channelID, userID, msgID); err != nil {
				metrics.ForwardsTotal.WithLabelValues("failed").Inc()
				r.log.Warn("failed to forward signal",
					slog.Int("message_id", msgID), slog.Int64("user_id", userID), sl.Err(err))
				continue
			}
			metrics.ForwardsTotal.WithLabelValues("ok").Inc()
			forwarded++
		}
	}

	r.summary(ctx, candidates, forwarded)
	return forwarded
}

// candidates уникальные id постов канала выше метки, по возрастанию
func (r *Relay) candidates(updates []tgbotapi.Update) []int {
	var ids []int
	for _, u := range updates {
		post := u.ChannelPost
		if post == nil {
			post = u.EditedChannelPost
		}
		if post == nil || post.Chat == nil || post.Chat.ID != r.channelID {
			continue
		}
		if post.MessageID > r.watermark {
			ids = append(ids, post.MessageID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (r *Relay) summary(ctx context.Context, candidates []int, forwarded int) {
	if forwarded == 0 {
		return
	}
	r.events.Send(ctx, fmt.Sprintf("[SIGNAL FORWARDED] message_ids=%v, deliveries=%d", candidates, forwarded))
}

func (r *Relay) load(ctx context.Context) {
	if r.loaded || r.store == nil {
		return
	}
	id, ok, err := r.store.LoadWatermark(ctx)
	if err != nil {
		r.log.Warn("failed to load watermark", sl.Err(err))
		return
	}
	r.loaded = true
	if ok && id > r.watermark {
		r.watermark = id
		metrics.RelayWatermark.Set(float64(id))
	}
}

func (r *Relay) advance(ctx context.Context, id int) {
	if id <= r.watermark {
		return
	}
	r.watermark = id
	metrics.RelayWatermark.Set(float64(id))
	if r.store == nil {
		return
	}
	if err := r.store.SaveWatermark(ctx, id); err != nil {
		r.log.Warn("failed to persist watermark", slog.Int("watermark", id), sl.Err(err))
	}
}

// mergeRecipients объединение без повторов, порядок по возрастанию id
func mergeRecipients(lists ...[]int64) []int64 {
	var out []int64
	for _, l := range lists {
		out = append(out, l...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
