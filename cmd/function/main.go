package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ivanoskov/signal_bot/internal/bot"
	"github.com/ivanoskov/signal_bot/internal/cache"
	"github.com/ivanoskov/signal_bot/internal/config"
	"github.com/ivanoskov/signal_bot/internal/lib/sl"
	"github.com/ivanoskov/signal_bot/internal/repository"
	"github.com/ivanoskov/signal_bot/internal/service"
	"github.com/ivanoskov/signal_bot/internal/telegram"
	"golang.org/x/time/rate"
)

// Request структура входящего запроса от API Gateway
type Request struct {
	Body string `json:"body"`
}

// Response структура ответа для API Gateway
type Response struct {
	StatusCode int               `json:"statusCode"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Handler обрабатывает одно webhook-обновление. Хранилище должно быть внешним (Supabase),
// водяная метка пересылки хранится в Redis, если он настроен.
func Handler(ctx context.Context, request Request) (*Response, error) {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadConfig()
	if err != nil {
		return errorResponse(log, err)
	}

	var repo repository.Repository = repository.NewMemoryRepository()
	if cfg.UseSupabase() {
		repo, err = repository.NewSupabaseRepository(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return errorResponse(log, err)
		}
	}

	client, err := telegram.NewClient(cfg.TelegramToken, 10*time.Second)
	if err != nil {
		return errorResponse(log, err)
	}

	var watermarks bot.WatermarkStore
	if cfg.RedisAddr != "" {
		rdb, err := cache.InitServer(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return errorResponse(log, err)
		}
		defer func() {
			_ = rdb.Close()
		}()
		watermarks = rdb
	}

	events := telegram.NewChannelLog(client, cfg.LogChannelID, log)
	subs := service.NewSubscriptions(repo, client, events, cfg.AdminIDs, log)
	limiter := rate.NewLimiter(rate.Limit(cfg.SendRate), 1)

	relay := bot.NewRelay(client, subs, events, watermarks, cfg.SignalChannelID, limiter, log)
	router := bot.NewRouter(client, subs, events, bot.Options{
		Token:           cfg.TelegramToken,
		CryptoAddress:   cfg.CryptoAddress,
		SupportContact:  cfg.SupportContact,
		SignalPhotos:    cfg.SignalPhotos,
		SignalChannelID: cfg.SignalChannelID,
		LogChannelID:    cfg.LogChannelID,
	}, limiter, log)
	b := bot.New(nil, relay, router, events, log)

	if err := b.HandleWebhook(ctx, []byte(request.Body)); err != nil {
		return errorResponse(log, err)
	}

	return &Response{
		StatusCode: http.StatusOK,
		Body:       "",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}, nil
}

func errorResponse(log *slog.Logger, err error) (*Response, error) {
	log.Error("webhook failed", sl.Err(err))
	return &Response{
		StatusCode: http.StatusInternalServerError,
		Body:       err.Error(),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}, nil
}

func main() {
	// Точка входа для локального тестирования
}
