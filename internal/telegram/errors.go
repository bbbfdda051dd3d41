package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	// ErrTransient таймаут, конфликт или временный сбой сети. Повтор на следующей итерации.
	ErrTransient = errors.New("telegram: transient failure")
	// ErrPermanent получатель недоступен (chat not found, бот заблокирован)
	ErrPermanent = errors.New("telegram: recipient unreachable")
	// ErrStaleCallback устаревший callback-запрос, игнорируется
	ErrStaleCallback = errors.New("telegram: stale callback query")
)

// RateLimitError ответ 429 Too Many Requests
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("telegram: rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrTransient
}

// classify переводит ошибки tgbotapi и сети в таксономию пакета
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return &RateLimitError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
		case apiErr.Code == http.StatusConflict || apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%s: %w: %s", op, ErrTransient, apiErr.Message)
		case strings.Contains(msg, "query is too old") || strings.Contains(msg, "query id is invalid"):
			return fmt.Errorf("%s: %w", op, ErrStaleCallback)
		case apiErr.Code == http.StatusForbidden || strings.Contains(msg, "chat not found"):
			return fmt.Errorf("%s: %w: %s", op, ErrPermanent, apiErr.Message)
		default:
			return fmt.Errorf("%s: %w", op, apiErr)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTransient сообщает, стоит ли повторить операцию позже
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
