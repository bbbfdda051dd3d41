package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ivanoskov/signal_bot/internal/model"
	"github.com/ivanoskov/signal_bot/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const adminID int64 = 1

type sentText struct {
	chatID int64
	text   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentText
}

func (n *recordingNotifier) SendText(_ context.Context, chatID int64, text string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentText{chatID: chatID, text: text})
	return nil
}

func (n *recordingNotifier) to(chatID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.chatID == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

type recordingLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLog) Send(_ context.Context, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, text)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type fixture struct {
	svc      *Subscriptions
	repo     *repository.MemoryRepository
	notifier *recordingNotifier
	events   *recordingLog
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     repository.NewMemoryRepository(),
		notifier: &recordingNotifier{},
		events:   &recordingLog{},
		now:      time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewSubscriptions(f.repo, f.notifier, f.events, []int64{adminID}, newNoopLogger())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) user(t *testing.T, id int64) *model.User {
	t.Helper()
	u, err := f.repo.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestTouch_CreatesThenRefreshes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u, created, err := f.svc.Touch(ctx, 42, "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.StatusNone, u.Status)
	assert.Equal(t, model.StateMenu, u.ConversationState)
	assert.Contains(t, f.events.entries[0], "[NEW USER] @alice")

	joined := f.now
	f.now = f.now.Add(time.Hour)
	u, created, err = f.svc.Touch(ctx, 42, "alice_new")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "alice_new", u.Username)
	assert.Equal(t, joined, u.JoinedAt)
	assert.Equal(t, f.now, u.LastSeen)
	assert.Len(t, f.events.entries, 1)
}

func TestSetState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.svc.Touch(ctx, 7, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.SetState(ctx, 7, model.StateWaitingTxID))
	assert.Equal(t, model.StateWaitingTxID, f.user(t, 7).ConversationState)

	require.NoError(t, f.svc.SetState(ctx, 7, "bogus"))
	assert.Equal(t, model.StateMenu, f.user(t, 7).ConversationState)

	err = f.svc.SetState(ctx, 8, model.StateMenu)
	assert.ErrorIs(t, err, ErrInvalidState)
}

// sweepOnReadRepo запускает hook один раз сразу после чтения пользователя
type sweepOnReadRepo struct {
	repository.Repository
	afterGet func()
}

func (r *sweepOnReadRepo) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := r.Repository.GetUser(ctx, id)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return u, err
}

func TestTouch_DoesNotUndoConcurrentExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	activeUser(t, f, 20, f.now.Add(-24*time.Hour))

	repo := &sweepOnReadRepo{Repository: f.repo}
	repo.afterGet = func() {
		n, err := f.svc.SweepExpirations(ctx, f.now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	f.svc.repo = repo

	_, created, err := f.svc.Touch(ctx, 20, "alice")
	require.NoError(t, err)
	assert.False(t, created)

	u := f.user(t, 20)
	assert.Equal(t, model.StatusExpired, u.Status)
	assert.Nil(t, u.EndDate)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, f.now, u.LastSeen)

	require.NoError(t, f.svc.SetState(ctx, 20, model.StatePaymentIntro))
	assert.Equal(t, model.StatusExpired, f.user(t, 20).Status)

	n, err := f.svc.SweepExpirations(ctx, f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, f.notifier.to(20), 1)
}

func TestSelectPlan_UnknownPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.svc.Touch(ctx, 42, "alice")

	_, err := f.svc.SelectPlan(ctx, 42, "6m")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, model.StatusNone, f.user(t, 42).Status)
}

func TestSelectPlan_OverwritesOpenPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.svc.Touch(ctx, 42, "alice")

	_, err := f.svc.SelectPlan(ctx, 42, model.PlanMonth)
	require.NoError(t, err)
	_, err = f.svc.SubmitScreenshot(ctx, 42, "file-1")
	require.NoError(t, err)

	plan, err := f.svc.SelectPlan(ctx, 42, model.PlanLifetime)
	require.NoError(t, err)
	assert.Equal(t, model.PlanLifetime, plan.Key)

	payments, _ := f.repo.LatestPayments(ctx, 0)
	require.Len(t, payments, 1)
	assert.Equal(t, model.PlanLifetime, payments[0].Plan)
	assert.Equal(t, model.PaymentCreated, payments[0].Status)
	assert.Empty(t, payments[0].ScreenshotFileID)

	u := f.user(t, 42)
	assert.Equal(t, model.StatusPending, u.Status)
	assert.Equal(t, model.PlanLifetime, u.Plan)
}

func TestSubmitScreenshot_CreatesPaymentWhenMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.svc.Touch(ctx, 42, "alice")

	p, err := f.svc.SubmitScreenshot(ctx, 42, "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentScreenshotSubmitted, p.Status)
	assert.Equal(t, "file-1", p.ScreenshotFileID)
	assert.NotEmpty(t, p.ID)
}

func TestSubmitTxID_WithoutOpenPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.svc.Touch(ctx, 42, "alice")

	_, err := f.svc.SubmitTxID(ctx, 42, "ABC123")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, _ = f.svc.SelectPlan(ctx, 42, model.PlanMonth)
	_, err = f.svc.SubmitTxID(ctx, 42, "   ")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPaymentScenario_SelectScreenshotTxIDConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.svc.Touch(ctx, 42, "alice")

	_, err := f.svc.SelectPlan(ctx, 42, model.PlanMonth)
	require.NoError(t, err)
	_, err = f.svc.SubmitScreenshot(ctx, 42, "file-1")
	require.NoError(t, err)
	p, err := f.svc.SubmitTxID(ctx, 42, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentReferenceSubmitted, p.Status)
	assert.Equal(t, "ABC123", p.TxID)

	require.NoError(t, f.svc.SetState(ctx, 42, model.StateMenu))
	act, err := f.svc.Confirm(ctx, adminID, 42)
	require.NoError(t, err)
	require.NotNil(t, act.EndDate)
	assert.Equal(t, f.now.AddDate(0, 0, 30), *act.EndDate)

	u := f.user(t, 42)
	assert.Equal(t, model.StatusActive, u.Status)
	assert.Equal(t, model.StateMenu, u.ConversationState)
	require.NotNil(t, u.StartDate)
	assert.Equal(t, f.now, *u.StartDate)

	payments, _ := f.repo.LatestPayments(ctx, 0)
	require.Len(t, payments, 1)
	assert.Equal(t, model.PaymentConfirmed, payments[0].Status)

	msgs := f.notifier.to(42)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Подписка активирована")
	assert.Contains(t, msgs[0], "1 месяц")
}

func TestConfirm_Lifetime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.svc.Touch(ctx, 42, "alice")
	_, _ = f.svc.SelectPlan(ctx, 42, model.PlanLifetime)

	act, err := f.svc.Confirm(ctx, adminID, 42)
	require.NoError(t, err)
	assert.Nil(t, act.EndDate)
	assert.Nil(t, f.user(t, 42).EndDate)
	assert.Contains(t, f.notifier.to(42)[0], "бессрочно")
}

func TestConfirm_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.svc.Touch(ctx, 42, "alice")

	_, err := f.svc.Confirm(ctx, 42, 42)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Confirm(ctx, adminID, 999)
	assert.ErrorIs(t, err, ErrInvalidState)

	// нет тарифа
	_, err = f.svc.Confirm(ctx, adminID, 42)
	assert.ErrorIs(t, err, ErrInvalidState)

	// тариф есть, но заявка уже подтверждена
	_, _ = f.svc.SelectPlan(ctx, 42, model.PlanMonth)
	_, err = f.svc.Confirm(ctx, adminID, 42)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, adminID, 42)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Empty(t, f.notifier.to(adminID))
}

func TestBulkConfirmPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, id := range []int64{10, 11, 12} {
		_, _, _ = f.svc.Touch(ctx, id, "")
		_, err := f.svc.SelectPlan(ctx, id, model.PlanQuarter)
		require.NoError(t, err)
	}
	// pending без тарифа не кандидат
	u := model.NewUser(13, "", f.now)
	u.Status = model.StatusPending
	require.NoError(t, f.repo.CreateUser(ctx, u))

	_, err := f.svc.BulkConfirmPending(ctx, 42)
	assert.ErrorIs(t, err, ErrUnauthorized)

	res, err := f.svc.BulkConfirmPending(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Confirmed: 3, Failed: 0, Candidates: 3}, res)

	for _, id := range []int64{10, 11, 12} {
		assert.True(t, f.user(t, id).IsActive())
	}
	assert.Equal(t, model.StatusPending, f.user(t, 13).Status)
	assert.Contains(t, f.events.entries[len(f.events.entries)-1], "[QUICK CONFIRM] Подтверждено 3")
}

// Одновременные Confirm и BulkConfirmPending не сериализуются: оба могут
// активировать пользователя. Гарантируется только итоговое состояние active,
// уведомлений об активации может быть одно или два.
func TestConfirm_RacesBulkConfirm_BestEffort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.svc.Touch(ctx, 42, "alice")
	_, err := f.svc.SelectPlan(ctx, 42, model.PlanMonth)
	require.NoError(t, err)

	confirmAt := f.now.Add(time.Minute)
	bulkAt := f.now.Add(2 * time.Minute)
	confirmSvc := NewSubscriptions(f.repo, f.notifier, f.events, []int64{adminID}, newNoopLogger())
	confirmSvc.now = func() time.Time { return confirmAt }
	bulkSvc := NewSubscriptions(f.repo, f.notifier, f.events, []int64{adminID}, newNoopLogger())
	bulkSvc.now = func() time.Time { return bulkAt }

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		// проигравший может не найти открытую заявку
		_, err := confirmSvc.Confirm(ctx, adminID, 42)
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalidState)
		}
	}()
	go func() {
		defer wg.Done()
		_, err := bulkSvc.BulkConfirmPending(ctx, adminID)
		assert.NoError(t, err)
	}()
	wg.Wait()

	u := f.user(t, 42)
	assert.Equal(t, model.StatusActive, u.Status)
	require.NotNil(t, u.EndDate)
	assert.Contains(t, []time.Time{confirmAt.AddDate(0, 0, 30), bulkAt.AddDate(0, 0, 30)}, *u.EndDate)

	activations := f.notifier.to(42)
	assert.GreaterOrEqual(t, len(activations), 1)
	assert.LessOrEqual(t, len(activations), 2)
}

type failingRepo struct {
	repository.Repository
	mock.Mock
}

func (r *failingRepo) UpdateUser(ctx context.Context, user *model.User) error {
	args := r.Called(user.ID)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return r.Repository.UpdateUser(ctx, user)
}

func TestBulkConfirmPending_CountsFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []int64{10, 11} {
		_, _, _ = f.svc.Touch(ctx, id, "")
		_, _ = f.svc.SelectPlan(ctx, id, model.PlanMonth)
	}

	repo := &failingRepo{Repository: f.repo}
	repo.On("UpdateUser", int64(10)).Return(errors.New("connection reset"))
	repo.On("UpdateUser", int64(11)).Return(nil)
	f.svc.repo = repo

	res, err := f.svc.BulkConfirmPending(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Confirmed)
	assert.Equal(t, 1, res.Failed)
	assert.LessOrEqual(t, res.Confirmed, res.Candidates)
	repo.AssertExpectations(t)
}

func activeUser(t *testing.T, f *fixture, id int64, end time.Time) {
	t.Helper()
	start := end.AddDate(0, 0, -30)
	u := model.NewUser(id, "", start)
	u.Status = model.StatusActive
	u.Plan = model.PlanMonth
	u.StartDate = &start
	u.EndDate = &end
	require.NoError(t, f.repo.CreateUser(context.Background(), u))
}

func TestSweepExpirations_NotifiesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	activeUser(t, f, 20, f.now.Add(-24*time.Hour))
	activeUser(t, f, 21, f.now.Add(48*time.Hour))

	n, err := f.svc.SweepExpirations(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	u := f.user(t, 20)
	assert.Equal(t, model.StatusExpired, u.Status)
	assert.Nil(t, u.EndDate)
	assert.True(t, f.user(t, 21).IsActive())

	n, err = f.svc.SweepExpirations(ctx, f.now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	msgs := f.notifier.to(20)
	require.Len(t, msgs, 1)
	assert.Equal(t, expiredText, msgs[0])
	assert.Empty(t, f.notifier.to(21))
}

func TestSweepExpirations_StoreFailure(t *testing.T) {
	f := newFixture(t)
	repo := &queryFailRepo{Repository: f.repo}
	repo.On("UsersExpiredAsOf").Return(errors.New("timeout"))
	f.svc.repo = repo

	_, err := f.svc.SweepExpirations(context.Background(), f.now)
	assert.ErrorIs(t, err, ErrStore)
	assert.Empty(t, f.notifier.sent)
}

type queryFailRepo struct {
	repository.Repository
	mock.Mock
}

func (r *queryFailRepo) UsersExpiredAsOf(ctx context.Context, now time.Time) ([]model.User, error) {
	args := r.Called()
	return nil, args.Error(0)
}

func TestSweepReminders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	activeUser(t, f, 30, f.now.Add(20*time.Hour))
	activeUser(t, f, 31, f.now.Add(72*time.Hour))

	n, err := f.svc.SweepReminders(ctx, f.now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := f.notifier.to(30)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "11.05.2026")
	assert.Empty(t, f.notifier.to(31))
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.svc.Touch(ctx, 100, "crypto_king")
	_, _, _ = f.svc.Touch(ctx, 101, "queen")

	users, err := f.svc.Search(ctx, "100")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(100), users[0].ID)

	users, err = f.svc.Search(ctx, "@KING")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "crypto_king", users[0].Username)

	users, err = f.svc.Search(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestStatsAndActiveUserIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	activeUser(t, f, 40, f.now.Add(240*time.Hour))
	_, _, _ = f.svc.Touch(ctx, 41, "")
	_, _ = f.svc.SelectPlan(ctx, 41, model.PlanMonth)

	ids, err := f.svc.ActiveUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{40}, ids)

	stats, err := f.svc.Stats(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.ActiveUsers)
	assert.Equal(t, 1, stats.ByStatus[model.StatusPending])
	assert.Equal(t, 1, stats.NewUsersToday)
	assert.Equal(t, 1, stats.NewPaymentsToday)
}

func TestAdmins(t *testing.T) {
	svc := NewSubscriptions(repository.NewMemoryRepository(), &recordingNotifier{}, &recordingLog{}, []int64{5, 3, 5}, newNoopLogger())
	assert.Equal(t, []int64{3, 5}, svc.Admins())
	assert.True(t, svc.IsAdmin(3))
	assert.False(t, svc.IsAdmin(4))
}
