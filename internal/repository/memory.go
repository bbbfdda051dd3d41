package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ivanoskov/signal_bot/internal/model"
)

// MemoryRepository хранит пользователей и платежи в памяти процесса.
// Используется для локального запуска без Supabase и в тестах.
type MemoryRepository struct {
	mu       sync.RWMutex
	users    map[int64]model.User
	payments map[string]model.Payment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[int64]model.User),
		payments: make(map[string]model.Payment),
	}
}

func (r *MemoryRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("repository.GetUser %d: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (r *MemoryRepository) CreateUser(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return fmt.Errorf("repository.CreateUser: user %d already exists", user.ID)
	}
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryRepository) UpdateUser(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return fmt.Errorf("repository.UpdateUser %d: %w", user.ID, ErrNotFound)
	}
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryRepository) TouchUser(ctx context.Context, id int64, username string, lastSeen time.Time) error {
	return r.patchUser("repository.TouchUser", id, func(u *model.User) {
		if username != "" {
			u.Username = username
		}
		u.LastSeen = lastSeen
	})
}

func (r *MemoryRepository) SetConversationState(ctx context.Context, id int64, state model.ConversationState) error {
	return r.patchUser("repository.SetConversationState", id, func(u *model.User) {
		u.ConversationState = state
	})
}

func (r *MemoryRepository) patchUser(op string, id int64, patch func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("%s %d: %w", op, id, ErrNotFound)
	}
	patch(&u)
	r.users[id] = u
	return nil
}

// ListUsers возвращает последних зарегистрированных пользователей
func (r *MemoryRepository) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	users := r.filterUsers(func(model.User) bool { return true })
	slices.SortFunc(users, func(a, b model.User) int {
		return b.JoinedAt.Compare(a.JoinedAt)
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (r *MemoryRepository) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	query = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(query), "@"))
	return r.filterUsers(func(u model.User) bool {
		return u.Username != "" && strings.Contains(strings.ToLower(u.Username), query)
	}), nil
}

func (r *MemoryRepository) UsersByStatus(ctx context.Context, status model.SubscriptionStatus) ([]model.User, error) {
	return r.filterUsers(func(u model.User) bool { return u.Status == status }), nil
}

func (r *MemoryRepository) UsersExpiringBetween(ctx context.Context, from, to time.Time) ([]model.User, error) {
	return r.filterUsers(func(u model.User) bool {
		return u.Status == model.StatusActive && u.EndDate != nil &&
			!u.EndDate.Before(from) && !u.EndDate.After(to)
	}), nil
}

func (r *MemoryRepository) UsersExpiredAsOf(ctx context.Context, now time.Time) ([]model.User, error) {
	return r.filterUsers(func(u model.User) bool {
		return u.Status == model.StatusActive && u.EndDate != nil && u.EndDate.Before(now)
	}), nil
}

func (r *MemoryRepository) GetOpenPayment(ctx context.Context, userID int64) (*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *model.Payment
	for _, p := range r.payments {
		if p.UserID != userID || !p.Open() {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			found = &p
		}
	}
	if found == nil {
		return nil, fmt.Errorf("repository.GetOpenPayment %d: %w", userID, ErrNotFound)
	}
	return found, nil
}

func (r *MemoryRepository) CreatePayment(ctx context.Context, payment *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment.GenerateID()
	r.payments[payment.ID] = *payment
	return nil
}

func (r *MemoryRepository) UpdatePayment(ctx context.Context, payment *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[payment.ID]; !ok {
		return fmt.Errorf("repository.UpdatePayment %s: %w", payment.ID, ErrNotFound)
	}
	r.payments[payment.ID] = *payment
	return nil
}

func (r *MemoryRepository) LatestPayments(ctx context.Context, limit int) ([]model.Payment, error) {
	r.mu.RLock()
	payments := make([]model.Payment, 0, len(r.payments))
	for _, p := range r.payments {
		payments = append(payments, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(payments, func(a, b model.Payment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}

func (r *MemoryRepository) AggregateCounts(ctx context.Context, dayStart time.Time) (*model.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := newStats()
	stats.TotalUsers = len(r.users)
	stats.TotalPayments = len(r.payments)
	for _, u := range r.users {
		countUser(stats, u, dayStart)
	}
	for _, p := range r.payments {
		if !p.CreatedAt.Before(dayStart) {
			stats.NewPaymentsToday++
		}
	}
	return stats, nil
}

// Backup сохраняет JSON-снимок в каталог dir
func (r *MemoryRepository) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	users, _ := r.ListUsers(ctx, 0)
	payments, _ := r.LatestPayments(ctx, 0)
	return writeSnapshot(dir, Snapshot{CreatedAt: now, Users: users, Payments: payments})
}

func (r *MemoryRepository) filterUsers(keep func(model.User) bool) []model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.User, 0)
	for _, u := range r.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b model.User) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func newStats() *model.Stats {
	return &model.Stats{
		ByStatus: make(map[model.SubscriptionStatus]int),
		ByPlan:   make(map[model.PlanKey]int),
	}
}

func countUser(stats *model.Stats, u model.User, dayStart time.Time) {
	status := u.Status
	if status == "" {
		status = model.StatusNone
	}
	stats.ByStatus[status]++
	if u.Plan != model.PlanNone {
		stats.ByPlan[u.Plan]++
	}
	if status == model.StatusActive {
		stats.ActiveUsers++
	}
	if !u.JoinedAt.Before(dayStart) {
		stats.NewUsersToday++
	}
	if u.ExpiredAt != nil && !u.ExpiredAt.Before(dayStart) {
		stats.ExpiredToday++
	}
}

func writeSnapshot(dir string, snapshot Snapshot) (string, error) {
	const op = "repository.writeSnapshot"

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	name := "backup_" + snapshot.CreatedAt.Format("2006-01-02") + "_" +
		strconv.FormatInt(snapshot.CreatedAt.Unix(), 10) + ".json"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return path, nil
}
