// Package telegram оборачивает Telegram Bot API: отправка сообщений, пересылка,
// long polling и классификация ошибок транспорта.
package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Типы обновлений, которые запрашивает бот
var allowedUpdates = []string{"message", "callback_query", "channel_post", "edited_channel_post"}

type Client struct {
	api *tgbotapi.BotAPI
}

// NewClient создает клиента. HTTP-таймаут должен превышать таймаут long polling.
func NewClient(token string, httpTimeout time.Duration) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: httpTimeout})
	if err != nil {
		return nil, classify("telegram.NewClient", err)
	}
	return &Client{api: api}, nil
}

// Username имя бота из getMe
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// GetUpdates запрашивает обновления начиная с offset, ожидая на сервере до timeout секунд
func (c *Client) GetUpdates(ctx context.Context, offset, timeout int) ([]tgbotapi.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u := tgbotapi.NewUpdate(offset)
	u.Timeout = timeout
	u.AllowedUpdates = allowedUpdates

	updates, err := c.api.GetUpdates(u)
	if err != nil {
		return nil, classify("telegram.GetUpdates", err)
	}
	return updates, nil
}

// SendText отправляет HTML-сообщение. markup может быть nil.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, markup any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := c.api.Send(msg)
	return classify("telegram.SendText", err)
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo tgbotapi.RequestFileData, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.NewPhoto(chatID, photo)
	cfg.Caption = caption
	cfg.ParseMode = tgbotapi.ModeHTML
	_, err := c.api.Send(cfg)
	return classify("telegram.SendPhoto", err)
}

// SendMediaGroup отправляет альбом из фотографий
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, photos []tgbotapi.RequestFileData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	media := make([]interface{}, 0, len(photos))
	for _, p := range photos {
		media = append(media, tgbotapi.NewInputMediaPhoto(p))
	}
	_, err := c.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
	return classify("telegram.SendMediaGroup", err)
}

// Forward пересылает сообщение messageID из fromChatID в toChatID
func (c *Client) Forward(ctx context.Context, fromChatID, toChatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.api.Send(tgbotapi.NewForward(toChatID, fromChatID, messageID))
	return classify("telegram.Forward", err)
}

// AnswerCallback убирает индикатор загрузки на inline-кнопке
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.api.Request(tgbotapi.NewCallback(callbackID, ""))
	return classify("telegram.AnswerCallback", err)
}
