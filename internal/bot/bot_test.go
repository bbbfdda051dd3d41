package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ivanoskov/signal_bot/internal/model"
	"github.com/ivanoskov/signal_bot/internal/repository"
	"github.com/ivanoskov/signal_bot/internal/service"
	"github.com/ivanoskov/signal_bot/internal/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type botFixture struct {
	bot    *Bot
	tr     *fakeTransport
	repo   *repository.MemoryRepository
	events *recordingLog
	slept  *[]time.Duration
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	tr := &fakeTransport{}
	events := &recordingLog{}
	log := newNoopLogger()
	limiter := rate.NewLimiter(rate.Inf, 1)

	subs := service.NewSubscriptions(repo, tr, events, []int64{adminID}, log)
	router := NewRouter(tr, subs, events, Options{CryptoAddress: testAddress, SignalChannelID: signalChan}, limiter, log)
	relay := NewRelay(tr, subs, events, nil, signalChan, limiter, log)
	poller, slept := newTestPoller(tr)

	return &botFixture{
		bot:    New(poller, relay, router, events, log),
		tr:     tr,
		repo:   repo,
		events: events,
		slept:  slept,
	}
}

func TestBot_StartProcessesUntilStopped(t *testing.T) {
	f := newBotFixture(t)
	end := time.Now().Add(24 * time.Hour)
	require.NoError(t, f.repo.CreateUser(context.Background(), &model.User{
		ID: 10, Status: model.StatusActive, Plan: model.PlanMonth, EndDate: &end, ConversationState: model.StateMenu,
	}))

	f.tr.pollErr = []error{&telegram.RateLimitError{RetryAfter: 9 * time.Second}}
	f.tr.batches = [][]tgbotapi.Update{
		{channelPost(3, signalChan, 200), commandUpdate(4, userID, "/start")},
		{channelPost(5, signalChan, 200)},
	}
	f.tr.onDrained = f.bot.Stop

	done := make(chan error, 1)
	go func() { done <- f.bot.Start(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}

	assert.False(t, f.bot.Running())
	assert.Equal(t, []time.Duration{9 * time.Second}, *f.slept)

	polls := f.tr.byMethod("getUpdates")
	require.GreaterOrEqual(t, len(polls), 4)
	assert.Equal(t, 0, polls[0].msgID)
	assert.Equal(t, 0, polls[1].msgID)
	assert.Equal(t, 5, polls[2].msgID)
	assert.Equal(t, 6, polls[3].msgID)

	// пост 200 пришел дважды, переслан один раз активному и админу
	assert.Len(t, f.tr.byMethod("forward"), 2)
	assert.Equal(t, welcomeText, f.tr.lastTextTo(userID))

	assert.Len(t, f.events.withPrefix("[BOT] Запущен"), 1)
	assert.Len(t, f.events.withPrefix("[BOT] Остановлен"), 1)
}

func TestBot_StartStopsOnContextCancel(t *testing.T) {
	f := newBotFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.tr.onDrained = cancel

	err := f.bot.Start(ctx)

	require.NoError(t, err)
	assert.False(t, f.bot.Running())
	assert.Len(t, f.events.withPrefix("[BOT] Остановлен"), 1)
}

func TestBot_HandleUpdateRecoversPanic(t *testing.T) {
	tr := &fakeTransport{}
	log := newNoopLogger()
	limiter := rate.NewLimiter(rate.Inf, 1)
	// роутер без сервиса паникует на первом же сообщении
	router := NewRouter(tr, nil, &recordingLog{}, Options{}, limiter, log)
	relay := NewRelay(tr, &staticRecipients{}, &recordingLog{}, nil, 0, limiter, log)
	poller, _ := newTestPoller(tr)
	b := New(poller, relay, router, &recordingLog{}, log)

	assert.NotPanics(t, func() {
		b.HandleUpdate(context.Background(), textUpdate(1, userID, "hi"))
	})
}

type panickingRecipients struct{}

func (panickingRecipients) ActiveUserIDs(context.Context) ([]int64, error) {
	panic("recipients exploded")
}

func (panickingRecipients) Admins() []int64 { return nil }

func TestBot_RelayPanicDoesNotStopBatch(t *testing.T) {
	f := newBotFixture(t)
	f.bot.relay = NewRelay(f.tr, panickingRecipients{}, f.events, nil, signalChan,
		rate.NewLimiter(rate.Inf, 1), newNoopLogger())

	assert.NotPanics(t, func() {
		f.bot.process(context.Background(), []tgbotapi.Update{
			channelPost(1, signalChan, 300),
			commandUpdate(2, userID, "/start"),
		})
	})

	// сообщение из той же пачки обработано
	assert.Equal(t, welcomeText, f.tr.lastTextTo(userID))
	assert.Empty(t, f.tr.byMethod("forward"))
}

func TestBot_HandleWebhook(t *testing.T) {
	f := newBotFixture(t)
	body := []byte(`{"update_id":1,"message":{"message_id":1,"from":{"id":42,"is_bot":false,"first_name":"A","username":"trader"},` +
		`"chat":{"id":42,"type":"private"},"date":0,"text":"/start","entities":[{"type":"bot_command","offset":0,"length":6}]}}`)

	require.NoError(t, f.bot.HandleWebhook(context.Background(), body))

	u, err := f.repo.GetUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "trader", u.Username)
	assert.Equal(t, welcomeText, f.tr.lastTextTo(userID))

	assert.Error(t, f.bot.HandleWebhook(context.Background(), []byte("{not json")))
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "message", updateKind(textUpdate(1, 1, "x")))
	assert.Equal(t, "callback_query", updateKind(callbackUpdate(1, 1, "x")))
	assert.Equal(t, "channel_post", updateKind(channelPost(1, 1, 1)))
	assert.Equal(t, "other", updateKind(tgbotapi.Update{}))
}
