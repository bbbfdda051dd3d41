package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ivanoskov/signal_bot/internal/charts"
	"github.com/ivanoskov/signal_bot/internal/lib/sl"
	"github.com/ivanoskov/signal_bot/internal/model"
	"github.com/ivanoskov/signal_bot/internal/repository"
)

const (
	markerReport = "daily_report"
	markerBackup = "daily_backup"
	dayLayout    = "2006-01-02"
)

// Sweeper напоминания и истечение подписок
type Sweeper interface {
	SweepReminders(ctx context.Context, now time.Time, horizon time.Duration) (int, error)
	SweepExpirations(ctx context.Context, now time.Time) (int, error)
}

// SweepJob сначала напоминает о скором окончании, затем переводит истекшие в expired
func SweepJob(s Sweeper, horizon time.Duration, now func() time.Time, log *slog.Logger) Job {
	return func(ctx context.Context) error {
		t := now()
		reminded, err := s.SweepReminders(ctx, t, horizon)
		if err != nil {
			return fmt.Errorf("scheduler.SweepJob: %w", err)
		}
		expired, err := s.SweepExpirations(ctx, t)
		if err != nil {
			return fmt.Errorf("scheduler.SweepJob: %w", err)
		}
		log.Info("subscriptions checked", slog.Int("reminded", reminded), slog.Int("expired", expired))
		return nil
	}
}

// MarkerStore дневные отметки о выполненных задачах
type MarkerStore interface {
	Marker(ctx context.Context, name string) (string, error)
	SetMarker(ctx context.Context, name, value string) error
}

// StatsSource счетчики для отчета
type StatsSource interface {
	Stats(ctx context.Context, now time.Time) (*model.Stats, error)
}

// PhotoSender отправка диаграммы в лог-канал
type PhotoSender interface {
	SendPhoto(ctx context.Context, chatID int64, photo tgbotapi.RequestFileData, caption string) error
}

// EventLog лог-канал
type EventLog interface {
	Send(ctx context.Context, text string)
}

// Reporter раз в сутки отправляет отчет в лог-канал и делает резервную копию хранилища
type Reporter struct {
	stats        StatsSource
	charts       *charts.ChartGenerator
	sender       PhotoSender
	events       EventLog
	markers      MarkerStore
	backuper     repository.Backuper
	backupDir    string
	logChannelID int64
	log          *slog.Logger
	now          func() time.Time
}

// NewReporter backuper может быть nil, тогда копии не создаются
func NewReporter(stats StatsSource, sender PhotoSender, events EventLog, markers MarkerStore,
	backuper repository.Backuper, backupDir string, logChannelID int64, log *slog.Logger) *Reporter {
	return &Reporter{
		stats:        stats,
		charts:       charts.NewChartGenerator(),
		sender:       sender,
		events:       events,
		markers:      markers,
		backuper:     backuper,
		backupDir:    backupDir,
		logChannelID: logChannelID,
		log:          log.With(slog.String("component", "reporter")),
		now:          time.Now,
	}
}

// Run задача цикла отчетов. Ошибка отчета не мешает резервной копии.
func (r *Reporter) Run(ctx context.Context) error {
	now := r.now()
	day := now.Format(dayLayout)

	var errs []error
	if err := r.dailyReport(ctx, now, day); err != nil {
		errs = append(errs, err)
	}
	if err := r.backup(ctx, now, day); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Reporter) dailyReport(ctx context.Context, now time.Time, day string) error {
	const op = "scheduler.dailyReport"

	done, err := r.markers.Marker(ctx, markerReport)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if done == day {
		return nil
	}

	stats, err := r.stats.Stats(ctx, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	caption := dailyReportCaption(stats)

	if !r.sendChart(ctx, stats, caption) {
		r.events.Send(ctx, caption)
	}

	if err := r.markers.SetMarker(ctx, markerReport, day); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.log.Info("daily report sent", slog.String("day", day))
	return nil
}

// sendChart false если диаграмму отправить не удалось и нужен текстовый отчет
func (r *Reporter) sendChart(ctx context.Context, stats *model.Stats, caption string) bool {
	if r.logChannelID == 0 {
		return false
	}
	png, err := r.charts.StatusPie(stats)
	if err != nil {
		r.log.Warn("failed to render status chart", sl.Err(err))
		return false
	}
	if png == nil {
		return false
	}
	photo := tgbotapi.FileBytes{Name: "status.png", Bytes: png}
	if err := r.sender.SendPhoto(ctx, r.logChannelID, photo, caption); err != nil {
		r.log.Warn("failed to send status chart", sl.Err(err))
		return false
	}

	// Тарифы идут вторым графиком, без него отчет остается полным
	bar, err := r.charts.PlanBar(stats)
	if err != nil || bar == nil {
		return true
	}
	photo = tgbotapi.FileBytes{Name: "plans.png", Bytes: bar}
	if err := r.sender.SendPhoto(ctx, r.logChannelID, photo, "📊 Пользователи по тарифам"); err != nil {
		r.log.Warn("failed to send plan chart", sl.Err(err))
	}
	return true
}

func (r *Reporter) backup(ctx context.Context, now time.Time, day string) error {
	const op = "scheduler.backup"

	if r.backuper == nil {
		return nil
	}
	done, err := r.markers.Marker(ctx, markerBackup)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if done == day {
		return nil
	}

	path, err := r.backuper.Backup(ctx, r.backupDir, now)
	if err != nil {
		r.events.Send(ctx, "[ERROR] Не удалось создать резервную копию")
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := r.markers.SetMarker(ctx, markerBackup, day); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.log.Info("backup created", slog.String("path", path))
	r.events.Send(ctx, "[BACKUP] Резервная копия базы данных создана")
	return nil
}

func dailyReportCaption(s *model.Stats) string {
	return fmt.Sprintf("📆 Ежедневный отчёт\n\n👤 Новые пользователи: %d\n💰 Новых оплат: %d\n❌ Истекших подписок: %d\n📈 Активных подписок: %d",
		s.NewUsersToday, s.NewPaymentsToday, s.ExpiredToday, s.ActiveUsers)
}
