package service

import (
	"fmt"
	"time"

	"github.com/ivanoskov/signal_bot/internal/model"
)

const dateLayout = "02.01.2006"

func activationText(plan model.Plan, end *time.Time) string {
	return fmt.Sprintf("🎉 Подписка активирована!\n💎 Тариф: %s\n📅 Действует до: %s\n🔥 Добро пожаловать в закрытое сообщество!",
		plan.Name, EndDateText(end))
}

func reminderText(end *time.Time) string {
	return fmt.Sprintf("⚠️ Ваша подписка истекет завтра (%s). Продлите подписку для продолжения получения сигналов.",
		end.Format(dateLayout))
}

const expiredText = "❌ Ваша подписка истекла. Для продолжения получения сигналов продлите подписку."

// EndDateText дата окончания подписки или "бессрочно"
func EndDateText(end *time.Time) string {
	if end == nil {
		return "бессрочно"
	}
	return end.Format(dateLayout)
}
