package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ivanoskov/signal_bot/internal/model"
)

// ErrNotFound возвращается, когда запись отсутствует в хранилище
var ErrNotFound = errors.New("record not found")

type Repository interface {
	// Пользователи
	GetUser(ctx context.Context, id int64) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, user *model.User) error
	// Точечные обновления, не затрагивающие статус и даты подписки.
	// Пустой username оставляет прежний.
	TouchUser(ctx context.Context, id int64, username string, lastSeen time.Time) error
	SetConversationState(ctx context.Context, id int64, state model.ConversationState) error
	ListUsers(ctx context.Context, limit int) ([]model.User, error)
	SearchUsers(ctx context.Context, query string) ([]model.User, error)
	UsersByStatus(ctx context.Context, status model.SubscriptionStatus) ([]model.User, error)
	// Активные пользователи с end_date в интервале [from, to]
	UsersExpiringBetween(ctx context.Context, from, to time.Time) ([]model.User, error)
	// Активные пользователи с end_date < now
	UsersExpiredAsOf(ctx context.Context, now time.Time) ([]model.User, error)

	// Платежи
	GetOpenPayment(ctx context.Context, userID int64) (*model.Payment, error)
	CreatePayment(ctx context.Context, payment *model.Payment) error
	UpdatePayment(ctx context.Context, payment *model.Payment) error
	LatestPayments(ctx context.Context, limit int) ([]model.Payment, error)

	// Статистика; dayStart начало текущих суток
	AggregateCounts(ctx context.Context, dayStart time.Time) (*model.Stats, error)
}

// Backuper создает снимок хранилища и возвращает путь к нему
type Backuper interface {
	Backup(ctx context.Context, dir string, now time.Time) (string, error)
}

// Snapshot формат резервной копии
type Snapshot struct {
	CreatedAt time.Time       `json:"created_at"`
	Users     []model.User    `json:"users"`
	Payments  []model.Payment `json:"payments"`
}
