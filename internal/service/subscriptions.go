package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ivanoskov/signal_bot/internal/lib/sl"
	"github.com/ivanoskov/signal_bot/internal/metrics"
	"github.com/ivanoskov/signal_bot/internal/model"
	"github.com/ivanoskov/signal_bot/internal/repository"
)

// Notifier отправляет сообщения пользователям
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string, markup any) error
}

// EventLog журнал операций (лог-канал)
type EventLog interface {
	Send(ctx context.Context, text string)
}

// Activation результат подтверждения оплаты
type Activation struct {
	User    model.User
	Plan    model.Plan
	EndDate *time.Time
}

// BulkResult итог массового подтверждения
type BulkResult struct {
	Confirmed  int
	Failed     int
	Candidates int
}

// Subscriptions управляет жизненным циклом подписок: выбор тарифа,
// заявки на оплату, подтверждение, истечение и напоминания.
type Subscriptions struct {
	repo     repository.Repository
	notifier Notifier
	events   EventLog
	admins   map[int64]struct{}
	log      *slog.Logger
	now      func() time.Time
}

func NewSubscriptions(repo repository.Repository, notifier Notifier, events EventLog, admins []int64, log *slog.Logger) *Subscriptions {
	set := make(map[int64]struct{}, len(admins))
	for _, id := range admins {
		set[id] = struct{}{}
	}
	return &Subscriptions{
		repo:     repo,
		notifier: notifier,
		events:   events,
		admins:   set,
		log:      log.With(slog.String("component", "subscriptions")),
		now:      time.Now,
	}
}

// IsAdmin проверяет, входит ли пользователь в список администраторов
func (s *Subscriptions) IsAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

// Admins идентификаторы администраторов по возрастанию
func (s *Subscriptions) Admins() []int64 {
	ids := make([]int64, 0, len(s.admins))
	for id := range s.admins {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Touch регистрирует пользователя при первом контакте или обновляет
// username и last_seen. created=true для нового пользователя.
func (s *Subscriptions) Touch(ctx context.Context, userID int64, username string) (user *model.User, created bool, err error) {
	const op = "service.Touch"
	now := s.now()

	user, err = s.repo.GetUser(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		user = model.NewUser(userID, username, now)
		if err := s.repo.CreateUser(ctx, user); err != nil {
			return nil, false, wrapStore(op, err)
		}
		s.events.Send(ctx, fmt.Sprintf("[NEW USER] @%s (ID: %d)", usernameOrUnknown(username), userID))
		return user, true, nil
	case err != nil:
		return nil, false, wrapStore(op, err)
	}

	// Только username и last_seen: статус мог смениться после чтения
	if err := s.repo.TouchUser(ctx, userID, username, now); err != nil {
		return nil, false, wrapStore(op, err)
	}
	if username != "" {
		user.Username = username
	}
	user.LastSeen = now
	user.ConversationState = user.ConversationState.Normalize()
	return user, false, nil
}

func (s *Subscriptions) SetState(ctx context.Context, userID int64, state model.ConversationState) error {
	const op = "service.SetState"

	err := s.repo.SetConversationState(ctx, userID, state.Normalize())
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: user %d not found: %w", op, userID, ErrInvalidState)
	}
	if err != nil {
		return wrapStore(op, err)
	}
	return nil
}

// SelectPlan создает открытую заявку (или перезаписывает тариф существующей)
// и переводит пользователя в pending.
func (s *Subscriptions) SelectPlan(ctx context.Context, userID int64, key model.PlanKey) (model.Plan, error) {
	const op = "service.SelectPlan"

	plan, ok := model.LookupPlan(key)
	if !ok {
		return model.Plan{}, fmt.Errorf("%s: unknown plan %q: %w", op, key, ErrInvalidState)
	}
	user, err := s.getUser(ctx, op, userID)
	if err != nil {
		return model.Plan{}, err
	}
	now := s.now()

	payment, err := s.openPayment(ctx, op, userID)
	if err != nil {
		return model.Plan{}, err
	}
	if payment == nil {
		payment = &model.Payment{UserID: userID, Username: user.Username, CreatedAt: now}
		payment.GenerateID()
		s.fillPayment(payment, plan.Key, now)
		if err := s.repo.CreatePayment(ctx, payment); err != nil {
			return model.Plan{}, wrapStore(op, err)
		}
	} else {
		// Новый цикл выбора тарифа
		s.fillPayment(payment, plan.Key, now)
		payment.ScreenshotFileID = ""
		payment.TxID = ""
		if err := s.repo.UpdatePayment(ctx, payment); err != nil {
			return model.Plan{}, wrapStore(op, err)
		}
	}

	// end_date есть только у активной подписки
	user.Status = model.StatusPending
	user.EndDate = nil
	user.Plan = plan.Key
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return model.Plan{}, wrapStore(op, err)
	}
	return plan, nil
}

func (s *Subscriptions) fillPayment(p *model.Payment, plan model.PlanKey, now time.Time) {
	p.Plan = plan
	p.Status = model.PaymentCreated
	p.UpdatedAt = now
}

// SubmitScreenshot сохраняет file_id скриншота в открытой заявке.
// Без открытой заявки создается новая по текущему тарифу пользователя.
func (s *Subscriptions) SubmitScreenshot(ctx context.Context, userID int64, fileID string) (*model.Payment, error) {
	const op = "service.SubmitScreenshot"

	user, err := s.getUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	payment, err := s.openPayment(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		payment = &model.Payment{
			UserID:           userID,
			Username:         user.Username,
			Plan:             user.Plan,
			ScreenshotFileID: fileID,
			Status:           model.PaymentScreenshotSubmitted,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		payment.GenerateID()
		if err := s.repo.CreatePayment(ctx, payment); err != nil {
			return nil, wrapStore(op, err)
		}
		return payment, nil
	}

	payment.ScreenshotFileID = fileID
	payment.Status = model.PaymentScreenshotSubmitted
	payment.UpdatedAt = now
	if err := s.repo.UpdatePayment(ctx, payment); err != nil {
		return nil, wrapStore(op, err)
	}
	return payment, nil
}

// SubmitTxID сохраняет хеш транзакции в открытой заявке
func (s *Subscriptions) SubmitTxID(ctx context.Context, userID int64, txid string) (*model.Payment, error) {
	const op = "service.SubmitTxID"

	txid = strings.TrimSpace(txid)
	if txid == "" {
		return nil, fmt.Errorf("%s: empty txid: %w", op, ErrInvalidState)
	}
	payment, err := s.openPayment(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%s: no open payment for %d: %w", op, userID, ErrInvalidState)
	}

	payment.TxID = txid
	payment.Status = model.PaymentReferenceSubmitted
	payment.UpdatedAt = s.now()
	if err := s.repo.UpdatePayment(ctx, payment); err != nil {
		return nil, wrapStore(op, err)
	}
	return payment, nil
}

// Confirm подтверждает оплату пользователя target от имени администратора admin
func (s *Subscriptions) Confirm(ctx context.Context, admin, target int64) (*Activation, error) {
	const op = "service.Confirm"

	if !s.IsAdmin(admin) {
		return nil, fmt.Errorf("%s: user %d: %w", op, admin, ErrUnauthorized)
	}
	user, err := s.repo.GetUser(ctx, target)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: user %d not found: %w", op, target, ErrInvalidState)
	}
	if err != nil {
		return nil, wrapStore(op, err)
	}
	if _, ok := model.LookupPlan(user.Plan); !ok {
		return nil, fmt.Errorf("%s: user %d has no plan: %w", op, target, ErrInvalidState)
	}
	payment, err := s.openPayment(ctx, op, target)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%s: user %d has no open payment: %w", op, target, ErrInvalidState)
	}

	return s.activate(ctx, op, user, payment, "confirm")
}

// BulkConfirmPending активирует всех pending-пользователей с выбранным тарифом.
// Ошибки по отдельным пользователям считаются и не прерывают обход.
func (s *Subscriptions) BulkConfirmPending(ctx context.Context, admin int64) (BulkResult, error) {
	const op = "service.BulkConfirmPending"

	if !s.IsAdmin(admin) {
		return BulkResult{}, fmt.Errorf("%s: user %d: %w", op, admin, ErrUnauthorized)
	}
	users, err := s.repo.UsersByStatus(ctx, model.StatusPending)
	if err != nil {
		return BulkResult{}, wrapStore(op, err)
	}

	var res BulkResult
	for i := range users {
		user := &users[i]
		if _, ok := model.LookupPlan(user.Plan); !ok {
			continue
		}
		res.Candidates++

		payment, err := s.openPayment(ctx, op, user.ID)
		if err == nil {
			_, err = s.activate(ctx, op, user, payment, "bulk")
		}
		if err != nil {
			res.Failed++
			s.log.Error("bulk confirm failed", slog.Int64("user_id", user.ID), sl.Err(err))
			continue
		}
		res.Confirmed++
	}

	s.events.Send(ctx, fmt.Sprintf("[QUICK CONFIRM] Подтверждено %d пользователей", res.Confirmed))
	return res, nil
}

// activate переводит пользователя в active; payment может быть nil
func (s *Subscriptions) activate(ctx context.Context, op string, user *model.User, payment *model.Payment, source string) (*Activation, error) {
	plan, _ := model.LookupPlan(user.Plan)
	now := s.now()

	if payment != nil {
		payment.Status = model.PaymentConfirmed
		payment.UpdatedAt = now
		if err := s.repo.UpdatePayment(ctx, payment); err != nil {
			return nil, wrapStore(op, err)
		}
	}
	user.Activate(plan, now)
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, wrapStore(op, err)
	}
	metrics.ActivationsTotal.WithLabelValues(source).Inc()

	if err := s.notifier.SendText(ctx, user.ID, activationText(plan, user.EndDate), nil); err != nil {
		s.log.Warn("failed to notify activated user", slog.Int64("user_id", user.ID), sl.Err(err))
	}
	s.events.Send(ctx, fmt.Sprintf("[CONFIRMED] user: %s (ID: %d), plan: %s, until: %s",
		user.DisplayName(), user.ID, plan.Name, EndDateText(user.EndDate)))

	return &Activation{User: *user, Plan: plan, EndDate: user.EndDate}, nil
}

// SweepExpirations переводит просроченные активные подписки в expired.
// Кандидаты только active, поэтому повторный запуск никого не уведомит дважды.
func (s *Subscriptions) SweepExpirations(ctx context.Context, now time.Time) (int, error) {
	const op = "service.SweepExpirations"

	users, err := s.repo.UsersExpiredAsOf(ctx, now)
	if err != nil {
		return 0, wrapStore(op, err)
	}

	expired := 0
	for i := range users {
		user := &users[i]
		end := EndDateText(user.EndDate)
		user.Expire(now)
		if err := s.repo.UpdateUser(ctx, user); err != nil {
			s.log.Error("failed to expire user", slog.Int64("user_id", user.ID), sl.Err(err))
			continue
		}
		expired++
		metrics.ExpirationsTotal.Inc()

		if err := s.notifier.SendText(ctx, user.ID, expiredText, nil); err != nil {
			s.log.Warn("failed to notify expired user", slog.Int64("user_id", user.ID), sl.Err(err))
		}
		s.events.Send(ctx, fmt.Sprintf("[EXPIRED] user: %s (ID: %d), ended: %s", user.DisplayName(), user.ID, end))
	}
	return expired, nil
}

// SweepReminders напоминает пользователям, чья подписка закончится в [now, now+horizon]
func (s *Subscriptions) SweepReminders(ctx context.Context, now time.Time, horizon time.Duration) (int, error) {
	const op = "service.SweepReminders"

	users, err := s.repo.UsersExpiringBetween(ctx, now, now.Add(horizon))
	if err != nil {
		return 0, wrapStore(op, err)
	}

	sent := 0
	for _, user := range users {
		if user.EndDate == nil {
			continue
		}
		if err := s.notifier.SendText(ctx, user.ID, reminderText(user.EndDate), nil); err != nil {
			s.log.Warn("failed to send reminder", slog.Int64("user_id", user.ID), sl.Err(err))
			continue
		}
		sent++
		metrics.RemindersTotal.Inc()
		s.events.Send(ctx, fmt.Sprintf("[REMINDER] user: %s (ID: %d), expires: %s",
			user.DisplayName(), user.ID, user.EndDate.Format(dateLayout)))
	}
	return sent, nil
}

// Stats агрегированные счетчики; "сегодня" считается от начала суток now
func (s *Subscriptions) Stats(ctx context.Context, now time.Time) (*model.Stats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	stats, err := s.repo.AggregateCounts(ctx, dayStart)
	if err != nil {
		return nil, wrapStore("service.Stats", err)
	}
	return stats, nil
}

func (s *Subscriptions) LatestPayments(ctx context.Context, limit int) ([]model.Payment, error) {
	payments, err := s.repo.LatestPayments(ctx, limit)
	if err != nil {
		return nil, wrapStore("service.LatestPayments", err)
	}
	return payments, nil
}

func (s *Subscriptions) Users(ctx context.Context, limit int) ([]model.User, error) {
	users, err := s.repo.ListUsers(ctx, limit)
	if err != nil {
		return nil, wrapStore("service.Users", err)
	}
	return users, nil
}

// Search ищет по числовому ID или подстроке username
func (s *Subscriptions) Search(ctx context.Context, query string) ([]model.User, error) {
	const op = "service.Search"

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		user, err := s.repo.GetUser(ctx, id)
		switch {
		case err == nil:
			return []model.User{*user}, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, wrapStore(op, err)
		}
	}
	users, err := s.repo.SearchUsers(ctx, query)
	if err != nil {
		return nil, wrapStore(op, err)
	}
	return users, nil
}

// ActiveUserIDs идентификаторы пользователей с активной подпиской
func (s *Subscriptions) ActiveUserIDs(ctx context.Context) ([]int64, error) {
	users, err := s.repo.UsersByStatus(ctx, model.StatusActive)
	if err != nil {
		return nil, wrapStore("service.ActiveUserIDs", err)
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// User возвращает пользователя; ErrInvalidState если он не найден
func (s *Subscriptions) User(ctx context.Context, userID int64) (*model.User, error) {
	return s.getUser(ctx, "service.User", userID)
}

func (s *Subscriptions) getUser(ctx context.Context, op string, userID int64) (*model.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: user %d not found: %w", op, userID, ErrInvalidState)
	}
	if err != nil {
		return nil, wrapStore(op, err)
	}
	return user, nil
}

// openPayment возвращает открытую заявку или nil
func (s *Subscriptions) openPayment(ctx context.Context, op string, userID int64) (*model.Payment, error) {
	payment, err := s.repo.GetOpenPayment(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStore(op, err)
	}
	return payment, nil
}

func usernameOrUnknown(username string) string {
	if username == "" {
		return "unknown"
	}
	return username
}
