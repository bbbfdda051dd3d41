package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ivanoskov/signal_bot/internal/lib/sl"
	"github.com/ivanoskov/signal_bot/internal/model"
	"github.com/ivanoskov/signal_bot/internal/service"
)

const (
	adminListLimit     = 20
	adminPaymentsLimit = 10
	searchResultsLimit = 10
)

func (r *Router) cmdUsers(ctx context.Context, req *request) error {
	users, err := r.subs.Users(ctx, adminListLimit)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		r.send(ctx, req.chatID, textNoUsers, nil)
		return nil
	}
	r.send(ctx, req.chatID, usersListText("👥 Список пользователей:", users), confirmKeyboard(users, false))
	return nil
}

func (r *Router) cbUsers(ctx context.Context, req *request) error {
	users, err := r.subs.Users(ctx, adminListLimit)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		r.send(ctx, req.chatID, textNoUsers, nil)
		return nil
	}
	r.send(ctx, req.chatID, usersListText("👥 Последние пользователи:", users), confirmKeyboard(users, true))
	return nil
}

func (r *Router) cmdConfirm(ctx context.Context, req *request) error {
	arg := strings.TrimSpace(req.msg.CommandArguments())
	if arg == "" {
		r.send(ctx, req.chatID, textConfirmUsage, nil)
		return nil
	}
	target, err := strconv.ParseInt(strings.Fields(arg)[0], 10, 64)
	if err != nil {
		r.send(ctx, req.chatID, textInvalidUserID, nil)
		return nil
	}
	return r.confirm(ctx, req, target)
}

func (r *Router) confirm(ctx context.Context, req *request, target int64) error {
	act, err := r.subs.Confirm(ctx, req.user.ID, target)
	if errors.Is(err, service.ErrInvalidState) {
		r.log.Info("confirm rejected", slog.Int64("target", target), sl.Err(err))
		r.send(ctx, req.chatID, fmt.Sprintf("❌ Не удалось подтвердить пользователя %d: нет пользователя, тарифа или открытой заявки", target), nil)
		return nil
	}
	if err != nil {
		return err
	}
	r.send(ctx, req.chatID, activatedAdminText(act), nil)
	return nil
}

func (r *Router) cmdPayments(ctx context.Context, req *request) error {
	payments, err := r.subs.LatestPayments(ctx, adminPaymentsLimit)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		r.send(ctx, req.chatID, textNoPayments, nil)
		return nil
	}
	r.send(ctx, req.chatID, paymentsText(payments), nil)
	return nil
}

func (r *Router) cmdBroadcast(ctx context.Context, req *request) error {
	text := strings.TrimSpace(req.msg.CommandArguments())
	if text == "" {
		r.send(ctx, req.chatID, textBroadcastUsage, nil)
		return nil
	}
	return r.broadcast(ctx, req, text)
}

// broadcast рассылает текст всем активным подписчикам с ограничением скорости
func (r *Router) broadcast(ctx context.Context, req *request, text string) error {
	ids, err := r.subs.ActiveUserIDs(ctx)
	if err != nil {
		return err
	}

	body := html.EscapeString(text)
	sent := 0
	for _, id := range ids {
		if err := r.limiter.Wait(ctx); err != nil {
			r.log.Warn("broadcast interrupted", sl.Err(err))
			break
		}
		if err := r.transport.SendText(ctx, id, body, nil); err != nil {
			r.log.Warn("broadcast delivery failed", slog.Int64("user_id", id), sl.Err(err))
			continue
		}
		sent++
	}

	r.events.Send(ctx, fmt.Sprintf("[BROADCAST] Сообщение доставлено %d пользователям", sent))
	r.send(ctx, req.chatID, fmt.Sprintf("✅ Сообщение отправлено %d пользователям", sent), nil)
	return nil
}

func (r *Router) cmdStats(ctx context.Context, req *request) error {
	stats, err := r.subs.Stats(ctx, r.now())
	if err != nil {
		return err
	}
	r.send(ctx, req.chatID, statsText(stats), nil)
	return nil
}

func (r *Router) cmdHelp(ctx context.Context, req *request) error {
	r.send(ctx, req.chatID, adminHelpText, nil)
	return nil
}

func (r *Router) cmdTestLog(ctx context.Context, req *request) error {
	r.events.Send(ctx, "[TEST] Тестовое сообщение от админа")
	r.send(ctx, req.chatID, textTestLogSent, nil)
	return nil
}

// cmdTestForward пересылает команду обратно администратору
func (r *Router) cmdTestForward(ctx context.Context, req *request) error {
	r.send(ctx, req.chatID, textTestForward, nil)
	if err := r.transport.Forward(ctx, req.chatID, req.chatID, req.msg.MessageID); err != nil {
		r.log.Warn("test forward failed", sl.Err(err))
		r.send(ctx, req.chatID, "❌ Ошибка тестовой пересылки", nil)
		return nil
	}
	r.send(ctx, req.chatID, textTestForwardOK, nil)
	return nil
}

func (r *Router) cmdTestDB(ctx context.Context, req *request) error {
	users, err := r.subs.Users(ctx, 0)
	if err != nil {
		r.log.Error("database check failed", sl.Err(err))
		r.send(ctx, req.chatID, "❌ Ошибка базы данных", nil)
		return nil
	}
	r.send(ctx, req.chatID, fmt.Sprintf("✅ База данных работает. Пользователей: %d", len(users)), nil)
	return nil
}

func (r *Router) showAdminPanel(ctx context.Context, req *request) error {
	stats, err := r.subs.Stats(ctx, r.now())
	if err != nil {
		return err
	}
	r.send(ctx, req.chatID, adminPanelText(stats), adminPanelKeyboard())
	return nil
}

func (r *Router) cbBroadcast(ctx context.Context, req *request) error {
	if err := r.setState(ctx, req, model.StateWaitingBroadcast); err != nil {
		return err
	}
	r.send(ctx, req.chatID, textBroadcastPrompt, nil)
	return nil
}

func (r *Router) cbSearch(ctx context.Context, req *request) error {
	if err := r.setState(ctx, req, model.StateWaitingUserSearch); err != nil {
		return err
	}
	r.send(ctx, req.chatID, textSearchPrompt, nil)
	return nil
}

func (r *Router) cbQuickActions(ctx context.Context, req *request) error {
	r.send(ctx, req.chatID, "⚡ Быстрые действия\n\n"+textChooseAction, quickActionsKeyboard())
	return nil
}

func (r *Router) cbAnalytics(ctx context.Context, req *request) error {
	now := r.now()
	stats, err := r.subs.Stats(ctx, now)
	if err != nil {
		return err
	}
	r.send(ctx, req.chatID, analyticsText(stats, now), nil)
	return nil
}

func (r *Router) cbSettings(ctx context.Context, req *request) error {
	r.send(ctx, req.chatID, settingsText(r.opts, len(r.subs.Admins())), nil)
	return nil
}

func (r *Router) cbConfirmAll(ctx context.Context, req *request) error {
	res, err := r.subs.BulkConfirmPending(ctx, req.user.ID)
	if err != nil {
		return err
	}
	if res.Candidates == 0 {
		r.send(ctx, req.chatID, textNoPending, nil)
		return nil
	}
	text := fmt.Sprintf("✅ Подтверждено %d из %d пользователей.", res.Confirmed, res.Candidates)
	if res.Failed > 0 {
		text += fmt.Sprintf("\n⚠️ Ошибок: %d", res.Failed)
	}
	r.send(ctx, req.chatID, text, nil)
	return nil
}

func (r *Router) cbTodayStats(ctx context.Context, req *request) error {
	now := r.now()
	stats, err := r.subs.Stats(ctx, now)
	if err != nil {
		return err
	}
	r.send(ctx, req.chatID, todayText(stats, now), nil)
	return nil
}

// cbUpdateStatuses внеочередной запуск проверки истекших подписок
func (r *Router) cbUpdateStatuses(ctx context.Context, req *request) error {
	n, err := r.subs.SweepExpirations(ctx, r.now())
	if err != nil {
		return err
	}
	r.events.Send(ctx, fmt.Sprintf("[QUICK UPDATE] Обновлено %d статусов", n))
	r.send(ctx, req.chatID, fmt.Sprintf("🔄 Обновлено статусов: %d пользователей", n), nil)
	return nil
}

func (r *Router) cbTestMessage(ctx context.Context, req *request) error {
	r.send(ctx, req.chatID, fmt.Sprintf("🧪 Тестовое сообщение от администратора\n\n⏰ Время: %s\n\n✅ Бот работает корректно!",
		r.now().Format("02.01.2006 15:04:05")), nil)
	r.events.Send(ctx, fmt.Sprintf("[QUICK TEST] Тестовое сообщение отправлено админом %d", req.user.ID))
	return nil
}

// handleBroadcastInput текст рассылки после кнопки "Рассылка"
func (r *Router) handleBroadcastInput(ctx context.Context, req *request) error {
	if err := r.setState(ctx, req, model.StateMenu); err != nil {
		return err
	}
	return r.admin(func(ctx context.Context, req *request) error {
		return r.broadcast(ctx, req, req.text)
	})(ctx, req)
}

func (r *Router) handleSearchInput(ctx context.Context, req *request) error {
	if err := r.setState(ctx, req, model.StateMenu); err != nil {
		return err
	}
	return r.admin(r.search)(ctx, req)
}

func (r *Router) search(ctx context.Context, req *request) error {
	users, err := r.subs.Search(ctx, req.text)
	if err != nil {
		return err
	}

	switch len(users) {
	case 0:
		r.send(ctx, req.chatID, fmt.Sprintf("❌ Пользователь '%s' не найден.\n\n💡 Попробуйте точный username или ID.",
			html.EscapeString(req.text)), nil)
	case 1:
		r.send(ctx, req.chatID, userInfoText(&users[0], r.now()), confirmKeyboard(users, true))
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "🔍 Найдено %d пользователей:\n\n", len(users))
		for i, u := range users {
			if i == searchResultsLimit {
				fmt.Fprintf(&b, "\n... и еще %d пользователей", len(users)-searchResultsLimit)
				break
			}
			fmt.Fprintf(&b, "%d. %s %s (ID: %d)\n", i+1, statusEmoji(u.Status), html.EscapeString(u.DisplayName()), u.ID)
		}
		b.WriteString("\n💡 Введите точный ID для подробной информации")
		r.send(ctx, req.chatID, b.String(), nil)
	}
	return nil
}
