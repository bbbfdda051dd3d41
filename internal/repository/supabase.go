package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ivanoskov/signal_bot/internal/model"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

const (
	usersTable    = "users"
	paymentsTable = "payments"
)

var newestFirst = &postgrest.OrderOpts{Ascending: false}

type SupabaseRepository struct {
	client *supabase.Client
}

func NewSupabaseRepository(url, key string) (*SupabaseRepository, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, err
	}

	return &SupabaseRepository{
		client: client,
	}, nil
}

func (r *SupabaseRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	const op = "repository.GetUser"

	data, _, err := r.client.From(usersTable).
		Select("*", "", false).
		Eq("telegram_id", strconv.FormatInt(id, 10)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var users []model.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("%s: failed to parse users: %w", op, err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%s %d: %w", op, id, ErrNotFound)
	}
	return &users[0], nil
}

func (r *SupabaseRepository) CreateUser(ctx context.Context, user *model.User) error {
	_, _, err := r.client.From(usersTable).Insert(user, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("repository.CreateUser: %w", err)
	}
	return nil
}

func (r *SupabaseRepository) UpdateUser(ctx context.Context, user *model.User) error {
	_, _, err := r.client.From(usersTable).
		Update(user, "", "").
		Eq("telegram_id", strconv.FormatInt(user.ID, 10)).
		Execute()
	if err != nil {
		return fmt.Errorf("repository.UpdateUser: %w", err)
	}
	return nil
}

func (r *SupabaseRepository) TouchUser(ctx context.Context, id int64, username string, lastSeen time.Time) error {
	fields := map[string]any{"last_seen": lastSeen}
	if username != "" {
		fields["username"] = username
	}
	return r.patchUser("repository.TouchUser", id, fields)
}

func (r *SupabaseRepository) SetConversationState(ctx context.Context, id int64, state model.ConversationState) error {
	return r.patchUser("repository.SetConversationState", id, map[string]any{"conversation_state": state})
}

// patchUser обновляет только переданные колонки
func (r *SupabaseRepository) patchUser(op string, id int64, fields map[string]any) error {
	users, err := fetchUsers(op, r.client.From(usersTable).
		Update(fields, "representation", "").
		Eq("telegram_id", strconv.FormatInt(id, 10)))
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return fmt.Errorf("%s %d: %w", op, id, ErrNotFound)
	}
	return nil
}

func (r *SupabaseRepository) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	query := r.client.From(usersTable).
		Select("*", "", false).
		Order("joined_at", newestFirst)
	if limit > 0 {
		query = query.Limit(limit, "")
	}
	return fetchUsers("repository.ListUsers", query)
}

func (r *SupabaseRepository) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	q := r.client.From(usersTable).
		Select("*", "", false).
		Ilike("username", "%"+query+"%")
	return fetchUsers("repository.SearchUsers", q)
}

func (r *SupabaseRepository) UsersByStatus(ctx context.Context, status model.SubscriptionStatus) ([]model.User, error) {
	q := r.client.From(usersTable).
		Select("*", "", false).
		Eq("status", string(status))
	return fetchUsers("repository.UsersByStatus", q)
}

func (r *SupabaseRepository) UsersExpiringBetween(ctx context.Context, from, to time.Time) ([]model.User, error) {
	q := r.client.From(usersTable).
		Select("*", "", false).
		Eq("status", string(model.StatusActive)).
		Gte("end_date", from.Format(time.RFC3339)).
		Lte("end_date", to.Format(time.RFC3339))
	return fetchUsers("repository.UsersExpiringBetween", q)
}

func (r *SupabaseRepository) UsersExpiredAsOf(ctx context.Context, now time.Time) ([]model.User, error) {
	q := r.client.From(usersTable).
		Select("*", "", false).
		Eq("status", string(model.StatusActive)).
		Lt("end_date", now.Format(time.RFC3339))
	return fetchUsers("repository.UsersExpiredAsOf", q)
}

func (r *SupabaseRepository) GetOpenPayment(ctx context.Context, userID int64) (*model.Payment, error) {
	const op = "repository.GetOpenPayment"

	q := r.client.From(paymentsTable).
		Select("*", "", false).
		Eq("user_id", strconv.FormatInt(userID, 10)).
		Neq("status", string(model.PaymentConfirmed)).
		Order("created_at", newestFirst).
		Limit(1, "")
	payments, err := fetchPayments(op, q)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, fmt.Errorf("%s %d: %w", op, userID, ErrNotFound)
	}
	return &payments[0], nil
}

func (r *SupabaseRepository) CreatePayment(ctx context.Context, payment *model.Payment) error {
	payment.GenerateID()
	_, _, err := r.client.From(paymentsTable).Insert(payment, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("repository.CreatePayment: %w", err)
	}
	return nil
}

func (r *SupabaseRepository) UpdatePayment(ctx context.Context, payment *model.Payment) error {
	_, _, err := r.client.From(paymentsTable).
		Update(payment, "", "").
		Eq("id", payment.ID).
		Execute()
	if err != nil {
		return fmt.Errorf("repository.UpdatePayment: %w", err)
	}
	return nil
}

func (r *SupabaseRepository) LatestPayments(ctx context.Context, limit int) ([]model.Payment, error) {
	q := r.client.From(paymentsTable).
		Select("*", "", false).
		Order("created_at", newestFirst)
	if limit > 0 {
		q = q.Limit(limit, "")
	}
	return fetchPayments("repository.LatestPayments", q)
}

// AggregateCounts считает статистику на стороне клиента: таблицы небольшие,
// а PostgREST не дает GROUP BY без отдельной RPC-функции.
func (r *SupabaseRepository) AggregateCounts(ctx context.Context, dayStart time.Time) (*model.Stats, error) {
	users, err := fetchUsers("repository.AggregateCounts",
		r.client.From(usersTable).Select("telegram_id,status,plan,joined_at,expired_at", "", false))
	if err != nil {
		return nil, err
	}
	payments, err := fetchPayments("repository.AggregateCounts",
		r.client.From(paymentsTable).Select("id,created_at", "", false))
	if err != nil {
		return nil, err
	}

	stats := newStats()
	stats.TotalUsers = len(users)
	stats.TotalPayments = len(payments)
	for _, u := range users {
		countUser(stats, u, dayStart)
	}
	for _, p := range payments {
		if !p.CreatedAt.Before(dayStart) {
			stats.NewPaymentsToday++
		}
	}
	return stats, nil
}

// Backup выгружает обе таблицы в JSON-файл
func (r *SupabaseRepository) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	users, err := r.ListUsers(ctx, 0)
	if err != nil {
		return "", err
	}
	payments, err := r.LatestPayments(ctx, 0)
	if err != nil {
		return "", err
	}
	return writeSnapshot(dir, Snapshot{CreatedAt: now, Users: users, Payments: payments})
}

func fetchUsers(op string, q *postgrest.FilterBuilder) ([]model.User, error) {
	data, _, err := q.Execute()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var users []model.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("%s: failed to parse users: %w", op, err)
	}
	return users, nil
}

func fetchPayments(op string, q *postgrest.FilterBuilder) ([]model.Payment, error) {
	data, _, err := q.Execute()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var payments []model.Payment
	if err := json.Unmarshal(data, &payments); err != nil {
		return nil, fmt.Errorf("%s: failed to parse payments: %w", op, err)
	}
	return payments, nil
}
