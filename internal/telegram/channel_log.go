package telegram

import (
	"context"
	"html"
	"log/slog"
	"time"

	"github.com/ivanoskov/signal_bot/internal/lib/sl"
)

// TextSender минимальный транспорт для лог-канала
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string, markup any) error
}

// ChannelLog отправляет служебные записи в лог-канал Telegram.
// Ошибки отправки только пишутся в локальный лог и никогда не возвращаются.
type ChannelLog struct {
	sender TextSender
	chatID int64
	log    *slog.Logger
	now    func() time.Time
}

func NewChannelLog(sender TextSender, chatID int64, log *slog.Logger) *ChannelLog {
	return &ChannelLog{
		sender: sender,
		chatID: chatID,
		log:    log,
		now:    time.Now,
	}
}

// Send пишет "[время] text" в канал
func (l *ChannelLog) Send(ctx context.Context, text string) {
	l.log.Info("channel log", slog.String("text", text))
	if l.chatID == 0 {
		return
	}
	line := html.EscapeString("[" + l.now().Format("2006-01-02 15:04:05") + "] " + text)
	if err := l.sender.SendText(ctx, l.chatID, line, nil); err != nil {
		l.log.Warn("failed to send channel log", sl.Err(err))
	}
}

// ChatID идентификатор лог-канала
func (l *ChannelLog) ChatID() int64 {
	return l.chatID
}
