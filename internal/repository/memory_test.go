package repository

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/signal_bot/internal/model"
)

func seedUser(t *testing.T, r *MemoryRepository, u *model.User) {
	t.Helper()
	require.NoError(t, r.CreateUser(context.Background(), u))
}

func TestMemoryRepository_UserCRUD(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()

	_, err := r.GetUser(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	u := model.NewUser(1, "alice", now)
	seedUser(t, r, u)
	assert.Error(t, r.CreateUser(ctx, u), "duplicate id must be rejected")

	u.Status = model.StatusPending
	require.NoError(t, r.UpdateUser(ctx, u))

	got, err := r.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	assert.ErrorIs(t, r.UpdateUser(ctx, model.NewUser(2, "", now)), ErrNotFound)
}

func TestMemoryRepository_PatchesKeepSubscription(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	month, _ := model.LookupPlan(model.PlanMonth)

	u := model.NewUser(1, "alice", now)
	u.Activate(month, now)
	seedUser(t, r, u)

	later := now.Add(time.Hour)
	require.NoError(t, r.TouchUser(ctx, 1, "", later))
	require.NoError(t, r.SetConversationState(ctx, 1, model.StateWaitingTxID))

	got, err := r.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, later, got.LastSeen)
	assert.Equal(t, model.StateWaitingTxID, got.ConversationState)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, u.EndDate, got.EndDate)

	require.NoError(t, r.TouchUser(ctx, 1, "alice2", later))
	got, _ = r.GetUser(ctx, 1)
	assert.Equal(t, "alice2", got.Username)

	assert.ErrorIs(t, r.TouchUser(ctx, 2, "", later), ErrNotFound)
	assert.ErrorIs(t, r.SetConversationState(ctx, 2, model.StateMenu), ErrNotFound)
}

func TestMemoryRepository_ExpiryQueries(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	month, _ := model.LookupPlan(model.PlanMonth)
	lifetime, _ := model.LookupPlan(model.PlanLifetime)

	expired := model.NewUser(1, "expired", now)
	expired.Activate(month, now.AddDate(0, 0, -31))
	seedUser(t, r, expired)

	expiring := model.NewUser(2, "expiring", now)
	expiring.Activate(month, now.AddDate(0, 0, -30).Add(6*time.Hour))
	seedUser(t, r, expiring)

	forever := model.NewUser(3, "forever", now)
	forever.Activate(lifetime, now.AddDate(-1, 0, 0))
	seedUser(t, r, forever)

	pending := model.NewUser(4, "pending", now)
	pending.Status = model.StatusPending
	seedUser(t, r, pending)

	gone, err := r.UsersExpiredAsOf(ctx, now)
	require.NoError(t, err)
	require.Len(t, gone, 1)
	assert.Equal(t, int64(1), gone[0].ID)

	soon, err := r.UsersExpiringBetween(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, soon, 1)
	assert.Equal(t, int64(2), soon[0].ID)

	active, err := r.UsersByStatus(ctx, model.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestMemoryRepository_OpenPayment(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()

	_, err := r.GetOpenPayment(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	closed := &model.Payment{UserID: 7, Plan: model.PlanMonth, Status: model.PaymentConfirmed, CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, r.CreatePayment(ctx, closed))
	open := &model.Payment{UserID: 7, Plan: model.PlanQuarter, Status: model.PaymentCreated, CreatedAt: now}
	require.NoError(t, r.CreatePayment(ctx, open))
	assert.NotEmpty(t, open.ID)

	got, err := r.GetOpenPayment(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, open.ID, got.ID)

	got.Status = model.PaymentConfirmed
	require.NoError(t, r.UpdatePayment(ctx, got))
	_, err = r.GetOpenPayment(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	latest, err := r.LatestPayments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, open.ID, latest[0].ID)
}

func TestMemoryRepository_SearchAndList(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()

	seedUser(t, r, model.NewUser(1, "TraderJoe", now.Add(-2*time.Hour)))
	seedUser(t, r, model.NewUser(2, "joanna", now.Add(-time.Hour)))
	seedUser(t, r, model.NewUser(3, "", now))

	found, err := r.SearchUsers(ctx, "@JO")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	list, err := r.ListUsers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].ID)
}

func TestMemoryRepository_AggregateCounts(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	dayStart := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	month, _ := model.LookupPlan(model.PlanMonth)

	old := model.NewUser(1, "", dayStart.AddDate(0, 0, -40))
	old.Activate(month, dayStart.AddDate(0, 0, -40))
	old.Expire(dayStart.Add(2 * time.Hour))
	seedUser(t, r, old)

	fresh := model.NewUser(2, "", dayStart.Add(time.Hour))
	fresh.Activate(month, dayStart.Add(time.Hour))
	seedUser(t, r, fresh)

	require.NoError(t, r.CreatePayment(ctx, &model.Payment{UserID: 2, Status: model.PaymentConfirmed, CreatedAt: dayStart.Add(time.Hour)}))

	stats, err := r.AggregateCounts(ctx, dayStart)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.TotalPayments)
	assert.Equal(t, 1, stats.ActiveUsers)
	assert.Equal(t, 1, stats.ByStatus[model.StatusExpired])
	assert.Equal(t, 2, stats.ByPlan[model.PlanMonth])
	assert.Equal(t, 1, stats.NewUsersToday)
	assert.Equal(t, 1, stats.NewPaymentsToday)
	assert.Equal(t, 1, stats.ExpiredToday)
}

func TestMemoryRepository_Backup(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC)
	seedUser(t, r, model.NewUser(1, "alice", now))

	path, err := r.Backup(ctx, t.TempDir(), now)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "alice", snap.Users[0].Username)
	assert.Contains(t, path, "backup_2026-05-10")
}
