package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport исходящие вызовы Telegram, которые нужны боту.
// Реализуется telegram.Client.
type Transport interface {
	GetUpdates(ctx context.Context, offset, timeout int) ([]tgbotapi.Update, error)
	SendText(ctx context.Context, chatID int64, text string, markup any) error
	SendPhoto(ctx context.Context, chatID int64, photo tgbotapi.RequestFileData, caption string) error
	SendMediaGroup(ctx context.Context, chatID int64, photos []tgbotapi.RequestFileData) error
	Forward(ctx context.Context, fromChatID, toChatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// EventLog журнал операций в лог-канале
type EventLog interface {
	Send(ctx context.Context, text string)
}
