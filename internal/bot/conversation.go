package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ivanoskov/signal_bot/internal/lib/sl"
	"github.com/ivanoskov/signal_bot/internal/model"
	"github.com/ivanoskov/signal_bot/internal/service"
)

// Текст длиннее порога вне шагов оплаты получает подсказку про скриншот
const longTextRunes = 10

func (r *Router) handleStart(ctx context.Context, req *request) error {
	if err := r.setState(ctx, req, model.StateMenu); err != nil {
		return err
	}
	r.send(ctx, req.chatID, welcomeText, mainKeyboard())
	return nil
}

func (r *Router) handleSignals(ctx context.Context, req *request) error {
	photos := r.signalPhotos()
	switch {
	case len(photos) >= 2:
		if err := r.transport.SendMediaGroup(ctx, req.chatID, photos); err != nil {
			r.log.Warn("failed to send signal examples", sl.Err(err))
		}
	case len(photos) == 1:
		if err := r.transport.SendPhoto(ctx, req.chatID, photos[0], ""); err != nil {
			r.log.Warn("failed to send signal example", sl.Err(err))
		}
	}
	r.send(ctx, req.chatID, signalsText+"\n\n"+textSignalsFollowUp, backKeyboard())
	return nil
}

// signalPhotos примеры сигналов, существующие на диске
func (r *Router) signalPhotos() []tgbotapi.RequestFileData {
	var photos []tgbotapi.RequestFileData
	for _, path := range r.opts.SignalPhotos {
		if _, err := os.Stat(path); err != nil {
			r.log.Warn("signal example not found", slog.String("path", path))
			continue
		}
		photos = append(photos, tgbotapi.FilePath(path))
	}
	// В альбоме не больше 10 фото
	if len(photos) > 10 {
		photos = photos[:10]
	}
	return photos
}

func (r *Router) handleHelp(ctx context.Context, req *request) error {
	r.send(ctx, req.chatID, helpText(r.opts.SupportContact), helpKeyboard())
	return nil
}

func (r *Router) handleSupport(ctx context.Context, req *request) error {
	r.send(ctx, req.chatID, supportText(r.opts.SupportContact), supportKeyboard())
	return nil
}

func (r *Router) handlePaymentIntro(ctx context.Context, req *request) error {
	if err := r.setState(ctx, req, model.StatePaymentIntro); err != nil {
		return err
	}
	r.send(ctx, req.chatID, paymentIntroText(r.opts.CryptoAddress), planKeyboard())
	return nil
}

func (r *Router) isPlanText(req *request) bool {
	_, ok := r.plans[req.text]
	return ok
}

func (r *Router) handlePlanText(ctx context.Context, req *request) error {
	return r.selectPlan(ctx, req, r.plans[req.text])
}

func (r *Router) selectPlan(ctx context.Context, req *request, key model.PlanKey) error {
	plan, err := r.subs.SelectPlan(ctx, req.user.ID, key)
	if errors.Is(err, service.ErrInvalidState) {
		r.send(ctx, req.chatID, textUnknownPlan, nil)
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.setState(ctx, req, model.StateWaitingPayment); err != nil {
		return err
	}
	r.send(ctx, req.chatID, planInstructionsText(plan, r.opts.CryptoAddress), paidKeyboard())
	return nil
}

func (r *Router) handlePaid(ctx context.Context, req *request) error {
	if err := r.setState(ctx, req, model.StateWaitingScreenshot); err != nil {
		return err
	}
	r.send(ctx, req.chatID, textSendScreenshot, backKeyboard())
	return nil
}

func (r *Router) handleBack(ctx context.Context, req *request) error {
	target := req.user.ConversationState.Back()
	if err := r.setState(ctx, req, target); err != nil {
		return err
	}
	r.prompt(ctx, req, target)
	return nil
}

// prompt повторяет приглашение состояния, в которое вернулся пользователь
func (r *Router) prompt(ctx context.Context, req *request, state model.ConversationState) {
	switch state {
	case model.StatePaymentIntro:
		r.send(ctx, req.chatID, paymentIntroText(r.opts.CryptoAddress), planKeyboard())
	case model.StateWaitingScreenshot:
		r.send(ctx, req.chatID, textSendScreenshot, backKeyboard())
	default:
		r.send(ctx, req.chatID, textBackToMenu, mainKeyboard())
	}
}

func (r *Router) handleStatus(ctx context.Context, req *request) error {
	r.send(ctx, req.chatID, statusText(req.user, r.now()), backKeyboard())
	return nil
}

// handleState обработчики текущего шага диалога, если не сработал глобальный триггер
func (r *Router) handleState(ctx context.Context, req *request) error {
	switch req.user.ConversationState {
	case model.StateWaitingScreenshot:
		if req.hasPhoto() {
			return r.handleScreenshot(ctx, req)
		}
		if req.text != "" {
			r.send(ctx, req.chatID, textScreenshotAsImg, nil)
		}
		return nil
	case model.StateWaitingTxID:
		if req.text == "" || req.hasPhoto() {
			r.send(ctx, req.chatID, textTxIDAsText, nil)
			return nil
		}
		return r.handleTxID(ctx, req)
	case model.StateWaitingBroadcast:
		if req.text == "" {
			return nil
		}
		return r.handleBroadcastInput(ctx, req)
	case model.StateWaitingUserSearch:
		if req.text == "" {
			return nil
		}
		return r.handleSearchInput(ctx, req)
	}

	// Подсказка только вне сценария оплаты
	if req.user.ConversationState == model.StateMenu &&
		utf8.RuneCountInString(req.text) > longTextRunes && !strings.HasPrefix(req.text, "/") {
		r.send(ctx, req.chatID, textScreenshotFirst, nil)
	}
	return nil
}

func (r *Router) handleScreenshot(ctx context.Context, req *request) error {
	// Telegram присылает размеры по возрастанию, последний самый большой
	fileID := req.msg.Photo[len(req.msg.Photo)-1].FileID

	if _, err := r.subs.SubmitScreenshot(ctx, req.user.ID, fileID); err != nil {
		return err
	}
	if err := r.setState(ctx, req, model.StateWaitingTxID); err != nil {
		return err
	}

	if r.opts.LogChannelID != 0 {
		caption := fmt.Sprintf("[SCREENSHOT] %s (ID: %d)", req.user.DisplayName(), req.user.ID)
		if err := r.transport.SendPhoto(ctx, r.opts.LogChannelID, tgbotapi.FileID(fileID), caption); err != nil {
			r.log.Warn("failed to copy screenshot to log channel", sl.Err(err))
		}
	}

	r.send(ctx, req.chatID, textScreenshotOK, nil)
	r.send(ctx, req.chatID, textTxIDPrompt, backKeyboard())
	return nil
}

func (r *Router) handleTxID(ctx context.Context, req *request) error {
	payment, err := r.subs.SubmitTxID(ctx, req.user.ID, req.text)
	if errors.Is(err, service.ErrInvalidState) {
		if err := r.setState(ctx, req, model.StateMenu); err != nil {
			return err
		}
		r.send(ctx, req.chatID, textNoOpenPayment, mainKeyboard())
		return nil
	}
	if err != nil {
		return err
	}

	r.send(ctx, req.chatID, textRequestSent, nil)
	r.events.Send(ctx, fmt.Sprintf("[NEW PAYMENT]\nUser: %s (ID %d)\nPlan: %s\nTXID: %s\nTime: %s\nStatus: pending",
		req.user.DisplayName(), req.user.ID, model.PlanName(payment.Plan, "Unknown"), payment.TxID,
		r.now().Format(dateTimeLayout)))

	if err := r.setState(ctx, req, model.StateMenu); err != nil {
		return err
	}
	r.send(ctx, req.chatID, textChooseAction, mainKeyboard())
	return nil
}
