package model

// ConversationState позиция пользователя в диалоге
type ConversationState string

const (
	StateMenu              ConversationState = "menu"
	StatePaymentIntro      ConversationState = "payment_intro"
	StateWaitingPayment    ConversationState = "waiting_payment"
	StateWaitingScreenshot ConversationState = "waiting_screenshot"
	StateWaitingTxID       ConversationState = "waiting_txid"

	// Состояния только для администраторов
	StateWaitingBroadcast  ConversationState = "waiting_broadcast_input"
	StateWaitingUserSearch ConversationState = "waiting_user_search_input"
)

// Таблица переходов для кнопки "Назад"
var backTransitions = map[ConversationState]ConversationState{
	StateWaitingTxID:       StateWaitingScreenshot,
	StateWaitingScreenshot: StatePaymentIntro,
	StatePaymentIntro:      StateMenu,
}

// Back возвращает состояние, в которое ведет кнопка "Назад".
// Для состояний вне таблицы это главное меню.
func (s ConversationState) Back() ConversationState {
	if next, ok := backTransitions[s]; ok {
		return next
	}
	return StateMenu
}

// Normalize заменяет пустое состояние на menu
func (s ConversationState) Normalize() ConversationState {
	if s == "" {
		return StateMenu
	}
	return s
}
