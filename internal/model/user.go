package model

import "time"

// SubscriptionStatus статус подписки пользователя
type SubscriptionStatus string

const (
	StatusNone    SubscriptionStatus = "none"
	StatusPending SubscriptionStatus = "pending"
	StatusActive  SubscriptionStatus = "active"
	StatusExpired SubscriptionStatus = "expired"
)

// User представляет подписчика бота. ID совпадает с Telegram ID.
type User struct {
	ID                int64              `json:"telegram_id"`
	Username          string             `json:"username,omitempty"`
	Status            SubscriptionStatus `json:"status"`
	Plan              PlanKey            `json:"plan,omitempty"`
	JoinedAt          time.Time          `json:"joined_at"`
	StartDate         *time.Time         `json:"start_date"`
	EndDate           *time.Time         `json:"end_date"`
	ExpiredAt         *time.Time         `json:"expired_at"`
	LastSeen          time.Time          `json:"last_seen"`
	ConversationState ConversationState  `json:"conversation_state"`
}

// NewUser создает пользователя при первом контакте
func NewUser(id int64, username string, now time.Time) *User {
	return &User{
		ID:                id,
		Username:          username,
		Status:            StatusNone,
		JoinedAt:          now,
		LastSeen:          now,
		ConversationState: StateMenu,
	}
}

// DisplayName возвращает @username или заглушку
func (u *User) DisplayName() string {
	if u == nil || u.Username == "" {
		return "@unknown"
	}
	return "@" + u.Username
}

// IsActive сообщает, действует ли подписка
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Activate переводит пользователя в статус active по тарифу plan.
// Для бессрочного тарифа дата окончания не выставляется.
func (u *User) Activate(plan Plan, now time.Time) {
	start := now
	u.Status = StatusActive
	u.Plan = plan.Key
	u.StartDate = &start
	u.EndDate = plan.EndDate(now)
	u.ExpiredAt = nil
}

// Expire переводит активную подписку в expired и сбрасывает дату окончания.
func (u *User) Expire(now time.Time) {
	expired := now
	u.Status = StatusExpired
	u.EndDate = nil
	u.ExpiredAt = &expired
}

// DaysLeft количество полных дней до окончания подписки
func (u *User) DaysLeft(now time.Time) int {
	if u.EndDate == nil {
		return 0
	}
	return int(u.EndDate.Sub(now).Hours() / 24)
}
