package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/ivanoskov/signal_bot/internal/model"
	"github.com/ivanoskov/signal_bot/internal/service"
)

const (
	dateLayout     = "02.01.2006"
	dateTimeLayout = "02.01.2006 15:04"

	textUnauthorized     = "⛔ У вас нет прав администратора."
	textBackToMenu       = "Вы вернулись в главное меню."
	textChooseAction     = "Выберите действие:"
	textSendScreenshot   = "📸 Отправьте скриншот вашей транзакции."
	textScreenshotAsImg  = "📸 Отправьте скриншот транзакции изображением."
	textScreenshotOK     = "✅ Скрин получен! Теперь отправьте TXID транзакции."
	textTxIDPrompt       = "Введите TXID транзакции текстом или нажмите «↩️ Назад»."
	textTxIDAsText       = "✍️ Отправьте TXID транзакции текстом."
	textRequestSent      = "✅ Заявка отправлена! Ожидайте подтверждения администратора."
	textScreenshotFirst  = "⚠️ Сначала отправьте скриншот транзакции."
	textUnknownPlan      = "❌ Неверный тариф. Попробуйте еще раз."
	textNoOpenPayment    = "❌ Не найдена заявка на оплату. Начните заново из раздела 💰 Оплата."
	textSomethingWrong   = "❌ Произошла ошибка. Попробуйте позже."
	textBroadcastPrompt  = "✉️ Введите сообщение для рассылки всем активным пользователям."
	textSearchPrompt     = "🔍 Введите username или ID пользователя для поиска:"
	textNoUsers          = "👥 Пользователи не найдены"
	textNoPayments       = "💰 Платежи не найдены"
	textNoPending        = "✅ Нет пользователей со статусом 'pending' для подтверждения."
	textSignalsFollowUp  = "🔥 Хочешь получать сигналы первым? Выбери тариф в разделе 💰 Оплата."
	textBroadcastUsage   = "Использование: /broadcast &lt;сообщение&gt;"
	textConfirmUsage     = "Использование: /confirm &lt;user_id&gt;"
	textInvalidUserID    = "❌ Неверный ID пользователя"
	textTestForward      = "🧪 Тестовое сообщение для проверки пересылки"
	textTestForwardOK    = "✅ Тестовая пересылка выполнена"
	textTestLogSent      = "✅ Тестовое сообщение отправлено в лог-канал"
	textAdminPanelHeader = "⚙️ Панель администратора"
)

const welcomeText = `Добро пожаловать в PTT Trades!

Этот бот создан, чтобы давать тебе доступ к торговым сигналам и аналитике.
Здесь ты можешь получить сигналы, оплатить подписку, узнать свой статус и связаться с поддержкой.`

const signalsText = `PTT Trades — твой персональный помощник в мире Forex.

Ты получаешь не просто сигналы, а полные разборы сделок с аналитикой и сопровождением.

Каждый сигнал включает:
• Точку входа и выхода
• Логику входа и подтверждение структуры
• Сопровождение сделки
• Рекомендации по управлению рисками

Формат сигналов — как на примере выше: четко, лаконично, профессионально.`

func helpText(support string) string {
	return `🧠 <b>Раздел помощи</b>

❓ <b>Какой риск ставить на позицию?</b>
Если ты торгуешь на <b>проп-счёте</b>, риск строго <b>1%</b>.
Если это <b>личный депозит</b>, ставь риск от <b>1%</b> до комфортного значения по своей RM-системе.

📈 <b>Будет ли сопровождение по сделке?</b>
Да, каждая сделка сопровождается до тейка, стопа или перевода в безубыток.
Все обновления приходят автоматически в этом боте.

📞 Если остались вопросы, напиши администратору: ` + supportLink(support)
}

func supportText(support string) string {
	return `🧾 <b>Поддержка пользователей</b>

Если возникли вопросы или проблемы с оплатой, напиши напрямую 👇

👤 <b>Администратор:</b> ` + supportLink(support) + `

⏰ Ответ обычно в течение 1–2 часов.`
}

func supportLink(contact string) string {
	contact = strings.TrimPrefix(contact, "@")
	return fmt.Sprintf(`<a href="https://t.me/%s">@%s</a>`, html.EscapeString(contact), html.EscapeString(contact))
}

func paymentIntroText(address string) string {
	var b strings.Builder
	b.WriteString("💰 <b>Получите доступ к закрытым сигналам!</b>\n\n")
	b.WriteString("<b>Тарифы:</b>\n")
	for _, plan := range model.Plans() {
		fmt.Fprintf(&b, "• %s — <b>%d USDT (TRC20)</b>\n", plan.Name, plan.Price)
	}
	fmt.Fprintf(&b, "\n🪙 Оплата на адрес:\n<code>%s</code>\n\n", html.EscapeString(address))
	b.WriteString("После оплаты:\n1️⃣ Отправьте скриншот перевода\n2️⃣ Укажите TXID\n3️⃣ Дождитесь подтверждения администратора\n\n")
	b.WriteString("Выберите тариф 👇")
	return b.String()
}

func planInstructionsText(plan model.Plan, address string) string {
	return fmt.Sprintf(`💳 <b>Тариф: %s — $%d</b>

Оплатите <b>$%d USDT (TRC20)</b> на адрес:

<code>%s</code>

После перевода нажмите "%s".`, plan.Name, plan.Price, plan.Price, html.EscapeString(address), btnPaid)
}

func statusText(u *model.User, now time.Time) string {
	var b strings.Builder
	b.WriteString("ℹ️ Мой статус\n\n")

	switch u.Status {
	case model.StatusActive:
		fmt.Fprintf(&b, "✅ Подписка активна (%s)\n", model.PlanName(u.Plan, "—"))
		fmt.Fprintf(&b, "📅 Действует до: %s\n", service.EndDateText(u.EndDate))
		if u.EndDate != nil {
			fmt.Fprintf(&b, "⏳ Осталось дней: %d\n", u.DaysLeft(now))
		}
		b.WriteString("📡 Сигналы: приходят автоматически")
	case model.StatusPending:
		b.WriteString("⏳ Подписка ожидает подтверждения\n")
		b.WriteString("📋 Статус: платеж в обработке\n\n")
		b.WriteString("💬 Если прошло много времени, обратитесь в " + btnSupport)
	case model.StatusExpired:
		b.WriteString("❌ Подписка истекла\n")
		b.WriteString("💰 Для продления используйте раздел " + btnPayment)
	default:
		b.WriteString("❌ Подписка не активна\n")
		b.WriteString("💰 Для получения сигналов выберите тариф в разделе " + btnPayment)
	}

	if u.StartDate != nil {
		fmt.Fprintf(&b, "\n\n🚀 Начало подписки: %s", u.StartDate.Format(dateLayout))
	}
	fmt.Fprintf(&b, "\n📅 Дата регистрации: %s", u.JoinedAt.Format(dateLayout))
	return b.String()
}

func statusEmoji(s model.SubscriptionStatus) string {
	switch s {
	case model.StatusActive:
		return "✅"
	case model.StatusPending:
		return "⏳"
	default:
		return "❌"
	}
}

func paymentEmoji(s model.PaymentStatus) string {
	switch s {
	case model.PaymentConfirmed:
		return "✅"
	case model.PaymentReferenceSubmitted:
		return "⏳"
	case model.PaymentScreenshotSubmitted:
		return "📸"
	default:
		return "🕓"
	}
}

func usersListText(title string, users []model.User) string {
	var b strings.Builder
	b.WriteString(title + "\n\n")
	for _, u := range users {
		fmt.Fprintf(&b, "%s %s (ID: %d)\nСтатус: %s | План: %s",
			statusEmoji(u.Status), html.EscapeString(u.DisplayName()), u.ID, u.Status, model.PlanName(u.Plan, "none"))
		if u.IsActive() {
			b.WriteString(" | До: " + service.EndDateText(u.EndDate))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func paymentsText(payments []model.Payment) string {
	var b strings.Builder
	b.WriteString("💰 Последние платежи:\n\n")
	for _, p := range payments {
		txid := p.TxID
		if txid == "" {
			txid = "N/A"
		} else if r := []rune(txid); len(r) > 10 {
			txid = string(r[:10]) + "..."
		}
		name := "@unknown"
		if p.Username != "" {
			name = "@" + p.Username
		}
		fmt.Fprintf(&b, "%s %s (ID: %d) — %s\nTXID: %s\nСтатус: %s | Дата: %s\n\n",
			paymentEmoji(p.Status), html.EscapeString(name), p.UserID, model.PlanName(p.Plan, "—"),
			html.EscapeString(txid), p.Status, p.CreatedAt.Format(dateTimeLayout))
	}
	return strings.TrimRight(b.String(), "\n")
}

func userInfoText(u *model.User, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 Информация о пользователе\n\n🆔 ID: %d\n👤 Username: %s\n📊 Статус: %s\n💎 План: %s\n",
		u.ID, html.EscapeString(u.DisplayName()), u.Status, model.PlanName(u.Plan, "None"))
	fmt.Fprintf(&b, "📅 Регистрация: %s\n🕐 Последняя активность: %s",
		u.JoinedAt.Format(dateLayout), u.LastSeen.Format(dateTimeLayout))
	if u.StartDate != nil {
		fmt.Fprintf(&b, "\n🚀 Начало подписки: %s", u.StartDate.Format(dateLayout))
	}
	if u.IsActive() {
		if u.EndDate == nil {
			b.WriteString("\n♾️ Подписка: бессрочная")
		} else {
			fmt.Fprintf(&b, "\n📅 Подписка до: %s\n⏳ Осталось дней: %d", u.EndDate.Format(dateLayout), u.DaysLeft(now))
		}
	}
	return b.String()
}

func statsText(stats *model.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Статистика подписок:\n\n👥 Всего пользователей: %d\n💰 Платежей: %d\n✅ Активных подписок: %d\n⏳ Ожидают подтверждения: %d\n❌ Истекших: %d\n\nПо тарифам:",
		stats.TotalUsers, stats.TotalPayments, stats.ActiveUsers,
		stats.ByStatus[model.StatusPending], stats.ByStatus[model.StatusExpired])
	for _, plan := range model.Plans() {
		fmt.Fprintf(&b, "\n• %s: %d", plan.Name, stats.ByPlan[plan.Key])
	}
	return b.String()
}

func todayText(stats *model.Stats, now time.Time) string {
	return fmt.Sprintf("📊 Статистика за сегодня\n\n👤 Новые пользователи: %d\n💰 Новых оплат: %d\n❌ Истекших подписок: %d\n📈 Активных подписок: %d\n\n📅 Дата: %s",
		stats.NewUsersToday, stats.NewPaymentsToday, stats.ExpiredToday, stats.ActiveUsers, now.Format(dateLayout))
}

func analyticsText(stats *model.Stats, now time.Time) string {
	return "📈 Расширенная аналитика\n\n" + statsText(stats) + "\n\n" + todayText(stats, now)
}

func adminPanelText(stats *model.Stats) string {
	return fmt.Sprintf("%s\n\n📊 Быстрая статистика:\n👥 Всего пользователей: %d\n💰 Активных подписок: %d\n⏳ Ожидают подтверждения: %d\n\n%s",
		textAdminPanelHeader, stats.TotalUsers, stats.ActiveUsers, stats.ByStatus[model.StatusPending], textChooseAction)
}

const adminHelpText = `🔧 Админские команды:

/users - список пользователей
/confirm &lt;user_id&gt; - подтвердить оплату пользователя
/payments - последние платежи
/broadcast &lt;сообщение&gt; - рассылка активным пользователям
/stats - статистика бота
/test_log - тестовое сообщение в лог-канал
/test_forward - тестовая пересылка сообщения
/test_db - проверка подключения к базе
/admin, /panel - панель администратора
/help - справка по командам`

func settingsText(o Options, admins int) string {
	return fmt.Sprintf("⚙️ Настройки бота\n\n📱 Токен бота: %s\n👑 Админы: %d\n💰 Крипто-адрес: %s\n📊 Канал сигналов: %d\n📝 Лог-канал: %d",
		mask(o.Token), admins, html.EscapeString(mask(o.CryptoAddress)), o.SignalChannelID, o.LogChannelID)
}

// mask оставляет по краям не больше четверти строки
func mask(s string) string {
	r := []rune(s)
	keep := min(10, len(r)/4)
	if keep == 0 {
		return "***"
	}
	return string(r[:keep]) + "..." + string(r[len(r)-keep:])
}

func activatedAdminText(act *service.Activation) string {
	return fmt.Sprintf("✅ Пользователь %d активирован (%s, до %s)",
		act.User.ID, act.Plan.Name, service.EndDateText(act.EndDate))
}
