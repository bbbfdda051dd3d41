package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ivanoskov/signal_bot/internal/bot"
	"github.com/ivanoskov/signal_bot/internal/cache"
	"github.com/ivanoskov/signal_bot/internal/config"
	"github.com/ivanoskov/signal_bot/internal/lib/sl"
	"github.com/ivanoskov/signal_bot/internal/metrics"
	"github.com/ivanoskov/signal_bot/internal/repository"
	"github.com/ivanoskov/signal_bot/internal/scheduler"
	"github.com/ivanoskov/signal_bot/internal/service"
	"github.com/ivanoskov/signal_bot/internal/telegram"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", sl.Err(err))
		os.Exit(1)
	}
	log := setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("bot exited with error", sl.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	repo, err := newRepository(cfg, log)
	if err != nil {
		return err
	}

	client, err := telegram.NewClient(cfg.TelegramToken, cfg.PollTimeout+10*time.Second)
	if err != nil {
		return err
	}
	log.Info("authorized in telegram", slog.String("username", client.Username()))

	events := telegram.NewChannelLog(client, cfg.LogChannelID, log)
	subs := service.NewSubscriptions(repo, client, events, cfg.AdminIDs, log)
	limiter := rate.NewLimiter(rate.Limit(cfg.SendRate), 1)

	var (
		watermarks bot.WatermarkStore
		markers    scheduler.MarkerStore = cache.NewMemoryMarkers()
	)
	if cfg.RedisAddr != "" {
		rdb, err := cache.InitServer(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer func() {
			_ = rdb.Close()
		}()
		watermarks, markers = rdb, rdb
		log.Info("connected to redis", slog.String("addr", cfg.RedisAddr))
	}

	relay := bot.NewRelay(client, subs, events, watermarks, cfg.SignalChannelID, limiter, log)
	router := bot.NewRouter(client, subs, events, bot.Options{
		Token:           cfg.TelegramToken,
		CryptoAddress:   cfg.CryptoAddress,
		SupportContact:  cfg.SupportContact,
		SignalPhotos:    cfg.SignalPhotos,
		SignalChannelID: cfg.SignalChannelID,
		LogChannelID:    cfg.LogChannelID,
	}, limiter, log)
	poller := bot.NewPoller(client, cfg.PollTimeout, cfg.PollRetryDelay, cfg.RateLimitCooldown, log)
	b := bot.New(poller, relay, router, events, log)

	sweep, err := scheduler.NewLoop("sweep", cfg.SweepSchedule, cfg.SweepCooldown,
		scheduler.SweepJob(subs, cfg.ReminderHorizon, time.Now, log), log)
	if err != nil {
		return err
	}
	var backuper repository.Backuper
	if bk, ok := repo.(repository.Backuper); ok {
		backuper = bk
	}
	reporter := scheduler.NewReporter(subs, client, events, markers, backuper, cfg.BackupDir, cfg.LogChannelID, log)
	report, err := scheduler.NewLoop("report", cfg.ReportSchedule, cfg.ReportCooldown, reporter.Run, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Start(gctx)
	})
	g.Go(func() error {
		sweep.Run(gctx)
		return nil
	})
	g.Go(func() error {
		report.Run(gctx)
		return nil
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr, log)
		})
	}

	<-gctx.Done()
	log.Info("shutting down")
	b.Stop()
	sweep.Stop()
	report.Stop()
	return g.Wait()
}

func newRepository(cfg *config.Config, log *slog.Logger) (repository.Repository, error) {
	if cfg.UseSupabase() {
		log.Info("using supabase storage")
		return repository.NewSupabaseRepository(cfg.SupabaseURL, cfg.SupabaseKey)
	}
	log.Warn("supabase is not configured, data is kept in memory")
	return repository.NewMemoryRepository(), nil
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
