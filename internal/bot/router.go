package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ivanoskov/signal_bot/internal/lib/sl"
	"github.com/ivanoskov/signal_bot/internal/model"
	"github.com/ivanoskov/signal_bot/internal/service"
	"github.com/ivanoskov/signal_bot/internal/telegram"
	"golang.org/x/time/rate"
)

// Options параметры оформления и каналов
type Options struct {
	Token           string
	CryptoAddress   string
	SupportContact  string
	SignalPhotos    []string
	SignalChannelID int64
	LogChannelID    int64
}

// request входящее сообщение или нажатие кнопки после регистрации пользователя
type request struct {
	chatID int64
	user   *model.User
	text   string
	msg    *tgbotapi.Message
}

func (r *request) isCommand() bool {
	return r.msg != nil && r.msg.IsCommand()
}

func (r *request) hasPhoto() bool {
	return r.msg != nil && len(r.msg.Photo) > 0
}

type handlerFunc func(ctx context.Context, req *request) error

// trigger глобальный обработчик, срабатывает в любом состоянии диалога
type trigger struct {
	match  func(req *request) bool
	handle handlerFunc
}

// Router разбирает входящие события и ведет диалог с пользователем
type Router struct {
	transport Transport
	subs      *service.Subscriptions
	events    EventLog
	opts      Options
	limiter   *rate.Limiter
	log       *slog.Logger
	now       func() time.Time

	triggers  []trigger
	callbacks map[string]handlerFunc
	plans     map[string]model.PlanKey
}

func NewRouter(transport Transport, subs *service.Subscriptions, events EventLog, opts Options,
	limiter *rate.Limiter, log *slog.Logger) *Router {
	r := &Router{
		transport: transport,
		subs:      subs,
		events:    events,
		opts:      opts,
		limiter:   limiter,
		log:       log.With(slog.String("component", "router")),
		now:       time.Now,
		plans:     planAliases(),
	}
	r.triggers = r.buildTriggers()
	r.callbacks = r.buildCallbacks()
	return r
}

// buildTriggers таблица глобальных триггеров в порядке приоритета
func (r *Router) buildTriggers() []trigger {
	return []trigger{
		{command("start"), r.handleStart},
		{texts(btnSignals), r.handleSignals},
		{texts(btnHelp, btnHelpAlt), r.handleHelp},
		{texts(btnPayment), r.handlePaymentIntro},
		{r.isPlanText, r.handlePlanText},
		{texts(btnPaid), r.handlePaid},
		{texts(btnBack), r.handleBack},
		{anyOf(texts(btnStatus), command("status")), r.handleStatus},
		{texts(btnSupport), r.handleSupport},
		{command("users"), r.admin(r.cmdUsers)},
		{command("confirm"), r.admin(r.cmdConfirm)},
		{command("payments"), r.admin(r.cmdPayments)},
		{command("broadcast"), r.admin(r.cmdBroadcast)},
		{command("stats"), r.admin(r.cmdStats)},
		{command("help"), r.admin(r.cmdHelp)},
		{command("test_log"), r.admin(r.cmdTestLog)},
		{command("test_forward"), r.admin(r.cmdTestForward)},
		{command("test_db"), r.admin(r.cmdTestDB)},
		{command("admin", "panel"), r.admin(r.showAdminPanel)},
	}
}

func (r *Router) buildCallbacks() map[string]handlerFunc {
	return map[string]handlerFunc{
		cbBackMain:        r.handleStart,
		cbAdminUsers:      r.admin(r.cbUsers),
		cbAdminPayments:   r.admin(r.cmdPayments),
		cbAdminStats:      r.admin(r.cmdStats),
		cbAdminBroadcast:  r.admin(r.cbBroadcast),
		cbAdminSearch:     r.admin(r.cbSearch),
		cbAdminQuick:      r.admin(r.cbQuickActions),
		cbAdminAnalytics:  r.admin(r.cbAnalytics),
		cbAdminSettings:   r.admin(r.cbSettings),
		cbBackAdminPanel:  r.admin(r.showAdminPanel),
		cbQuickConfirmAll: r.admin(r.cbConfirmAll),
		cbQuickTodayStats: r.admin(r.cbTodayStats),
		cbQuickUpdate:     r.admin(r.cbUpdateStatuses),
		cbQuickTest:       r.admin(r.cbTestMessage),
	}
}

func texts(values ...string) func(*request) bool {
	return func(req *request) bool {
		for _, v := range values {
			if req.text == v {
				return true
			}
		}
		return false
	}
}

func command(names ...string) func(*request) bool {
	return func(req *request) bool {
		if !req.isCommand() {
			return false
		}
		cmd := req.msg.Command()
		for _, n := range names {
			if cmd == n {
				return true
			}
		}
		return false
	}
}

func anyOf(matchers ...func(*request) bool) func(*request) bool {
	return func(req *request) bool {
		for _, m := range matchers {
			if m(req) {
				return true
			}
		}
		return false
	}
}

// Route обрабатывает одно обновление. Посты каналов здесь игнорируются.
func (r *Router) Route(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		r.routeCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		r.routeMessage(ctx, update.Message)
	}
}

func (r *Router) routeMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	user, err := r.touch(ctx, msg.From)
	if err != nil {
		return
	}

	req := &request{
		chatID: msg.Chat.ID,
		user:   user,
		text:   strings.TrimSpace(msg.Text),
		msg:    msg,
	}
	for _, t := range r.triggers {
		if t.match(req) {
			r.finish(ctx, req, t.handle(ctx, req))
			return
		}
	}
	r.finish(ctx, req, r.handleState(ctx, req))
}

func (r *Router) routeCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	defer r.answer(ctx, cb.ID)

	if cb.From == nil {
		return
	}
	user, err := r.touch(ctx, cb.From)
	if err != nil {
		return
	}

	chatID := cb.From.ID
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}
	req := &request{chatID: chatID, user: user, text: cb.Data}
	r.finish(ctx, req, r.dispatchCallback(ctx, req, cb.Data))
}

func (r *Router) dispatchCallback(ctx context.Context, req *request, data string) error {
	switch {
	case strings.HasPrefix(data, cbPlanPrefix):
		return r.selectPlan(ctx, req, model.PlanKey(strings.TrimPrefix(data, cbPlanPrefix)))
	case strings.HasPrefix(data, cbConfirmPrefix):
		target, err := strconv.ParseInt(strings.TrimPrefix(data, cbConfirmPrefix), 10, 64)
		if err != nil {
			r.log.Warn("malformed confirm callback", slog.String("data", data))
			return nil
		}
		return r.confirm(ctx, req, target)
	}

	if h, ok := r.callbacks[data]; ok {
		return h(ctx, req)
	}
	r.log.Debug("unknown callback", slog.String("data", data))
	return nil
}

// answer убирает "часики" на кнопке; устаревшие запросы молча пропускаются
func (r *Router) answer(ctx context.Context, callbackID string) {
	err := r.transport.AnswerCallback(ctx, callbackID)
	switch {
	case err == nil:
	case errors.Is(err, telegram.ErrStaleCallback):
		r.log.Debug("stale callback ignored", slog.String("callback_id", callbackID))
	default:
		r.log.Warn("failed to answer callback", sl.Err(err))
	}
}

func (r *Router) touch(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	user, _, err := r.subs.Touch(ctx, from.ID, from.UserName)
	if err != nil {
		r.log.Error("failed to register user", slog.Int64("user_id", from.ID), sl.Err(err))
		return nil, err
	}
	return user, nil
}

// admin пропускает вызов только для администраторов
func (r *Router) admin(h handlerFunc) handlerFunc {
	return func(ctx context.Context, req *request) error {
		if !r.subs.IsAdmin(req.user.ID) {
			return fmt.Errorf("user %d: %w", req.user.ID, service.ErrUnauthorized)
		}
		return h(ctx, req)
	}
}

// finish сообщает пользователю об ошибке обработчика
func (r *Router) finish(ctx context.Context, req *request, err error) {
	if err == nil {
		return
	}
	log := r.log.With(slog.Int64("user_id", req.user.ID), slog.String("input", req.text))

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		log.Info("unauthorized request", sl.Err(err))
		r.send(ctx, req.chatID, textUnauthorized, nil)
	case errors.Is(err, service.ErrInvalidState):
		log.Info("request rejected", sl.Err(err))
		r.send(ctx, req.chatID, textSomethingWrong, nil)
	default:
		log.Error("failed to handle update", sl.Err(err))
		r.events.Send(ctx, "[ERROR] "+err.Error())
		r.send(ctx, req.chatID, textSomethingWrong, nil)
	}
}

// send ошибки доставки только логируются
func (r *Router) send(ctx context.Context, chatID int64, text string, markup any) {
	if err := r.transport.SendText(ctx, chatID, text, markup); err != nil {
		r.log.Warn("failed to send message", slog.Int64("chat_id", chatID), sl.Err(err))
	}
}

func (r *Router) setState(ctx context.Context, req *request, state model.ConversationState) error {
	if err := r.subs.SetState(ctx, req.user.ID, state); err != nil {
		return err
	}
	req.user.ConversationState = state
	return nil
}
