// Package scheduler содержит фоновые циклы: проверку подписок и ежедневный отчет.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/ivanoskov/signal_bot/internal/lib/sl"
	"github.com/ivanoskov/signal_bot/internal/metrics"
	"github.com/robfig/cron/v3"
)

// Job одна итерация фонового цикла
type Job func(ctx context.Context) error

// Loop запускает задачу по расписанию cron. После ошибки следующая попытка
// через cooldown, а не по расписанию.
type Loop struct {
	name     string
	schedule cron.Schedule
	job      Job
	cooldown time.Duration
	log      *slog.Logger

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	running atomic.Bool
}

// NewLoop разбирает расписание в стандартном формате cron или дескриптор вида "@every 1h"
func NewLoop(name, spec string, cooldown time.Duration, job Job, log *slog.Logger) (*Loop, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler.NewLoop %s: %w", name, err)
	}
	return &Loop{
		name:     name,
		schedule: schedule,
		job:      job,
		cooldown: cooldown,
		log:      log.With(slog.String("loop", name)),
		now:      time.Now,
		sleep:    sleepCtx,
	}, nil
}

// Run выполняет задачу сразу, затем по расписанию, до Stop или отмены ctx
func (l *Loop) Run(ctx context.Context) {
	l.running.Store(true)
	defer l.running.Store(false)
	l.log.Info("loop started")

	for l.running.Load() && ctx.Err() == nil {
		delay := l.iterate(ctx)
		if err := l.sleep(ctx, delay); err != nil {
			break
		}
	}
	l.log.Info("loop stopped")
}

// Stop завершает цикл на границе итерации
func (l *Loop) Stop() {
	l.running.Store(false)
}

// Running сообщает, работает ли цикл
func (l *Loop) Running() bool {
	return l.running.Load()
}

// iterate возвращает паузу до следующего запуска
func (l *Loop) iterate(ctx context.Context) time.Duration {
	if err := l.runJob(ctx); err != nil {
		metrics.SchedulerRunsTotal.WithLabelValues(l.name, "error").Inc()
		l.log.Error("job failed", slog.Duration("retry_in", l.cooldown), sl.Err(err))
		return l.cooldown
	}
	metrics.SchedulerRunsTotal.WithLabelValues(l.name, "ok").Inc()

	now := l.now()
	return l.schedule.Next(now).Sub(now)
}

func (l *Loop) runJob(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			l.log.Error("job panicked", slog.String("stack", string(debug.Stack())))
		}
	}()
	return l.job(ctx)
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
