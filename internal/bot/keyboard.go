package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ivanoskov/signal_bot/internal/model"
)

// Тексты кнопок reply-клавиатуры
const (
	btnSignals = "📈 Получать сигналы"
	btnPayment = "💰 Оплата"
	btnStatus  = "ℹ️ Мой статус"
	btnSupport = "🧾 Поддержка"
	btnHelp    = "❓ Помощь"
	btnHelpAlt = "🆘 Помощь"
	btnPaid    = "✅ Я оплатил"
	btnBack    = "↩️ Назад"
)

// Callback-данные inline-кнопок
const (
	cbPlanPrefix      = "plan_"
	cbConfirmPrefix   = "confirm_"
	cbAdminUsers      = "admin_users"
	cbAdminPayments   = "admin_payments"
	cbAdminStats      = "admin_stats"
	cbAdminBroadcast  = "admin_broadcast"
	cbAdminSearch     = "admin_search"
	cbAdminQuick      = "admin_quick"
	cbAdminAnalytics  = "admin_analytics"
	cbAdminSettings   = "admin_settings"
	cbBackMain        = "back_main"
	cbBackAdminPanel  = "back_admin_panel"
	cbQuickConfirmAll = "quick_confirm_all"
	cbQuickTodayStats = "quick_today_stats"
	cbQuickUpdate     = "quick_update_statuses"
	cbQuickTest       = "quick_test_message"
)

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnSignals)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnPayment)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnStatus)),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSupport),
			tgbotapi.NewKeyboardButton(btnHelp),
		),
	)
}

func backKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBack)),
	)
}

// planKeyboard по кнопке на тариф и "Назад"
func planKeyboard() tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for _, plan := range model.Plans() {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(planButtonText(plan))))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBack)))
	return tgbotapi.NewReplyKeyboard(rows...)
}

func paidKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnPaid)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBack)),
	)
}

func helpKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnSupport)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBack)),
	)
}

func supportKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnHelpAlt)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBack)),
	)
}

func planButtonText(plan model.Plan) string {
	return fmt.Sprintf("%s — $%d", plan.Name, plan.Price)
}

// planAliases все тексты, которыми можно выбрать тариф
func planAliases() map[string]model.PlanKey {
	aliases := map[string]model.PlanKey{"Lifetime": model.PlanLifetime}
	for _, plan := range model.Plans() {
		aliases[plan.Name] = plan.Key
		aliases[planButtonText(plan)] = plan.Key
		aliases[string(plan.Key)] = plan.Key
	}
	return aliases
}

func adminPanelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👥 Пользователи", cbAdminUsers),
			tgbotapi.NewInlineKeyboardButtonData("💰 Платежи", cbAdminPayments),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", cbAdminStats),
			tgbotapi.NewInlineKeyboardButtonData("📢 Рассылка", cbAdminBroadcast),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔍 Поиск пользователя", cbAdminSearch),
			tgbotapi.NewInlineKeyboardButtonData("⚡ Быстрые действия", cbAdminQuick),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📈 Аналитика", cbAdminAnalytics),
			tgbotapi.NewInlineKeyboardButtonData("⚙️ Настройки", cbAdminSettings),
		),
	)
}

func quickActionsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить все pending", cbQuickConfirmAll)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 Статистика за сегодня", cbQuickTodayStats)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄 Обновить статусы", cbQuickUpdate)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📤 Тестовое сообщение", cbQuickTest)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("↩️ Назад в панель", cbBackAdminPanel)),
	)
}

// confirmKeyboard кнопки подтверждения для pending-пользователей; nil если таких нет
func confirmKeyboard(users []model.User, withBack bool) any {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, u := range users {
		if u.Status != model.StatusPending {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить "+u.DisplayName(), fmt.Sprintf("%s%d", cbConfirmPrefix, u.ID)),
		))
	}
	if withBack {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("↩️ Назад в панель", cbBackAdminPanel),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
