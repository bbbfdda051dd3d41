package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	adminID     int64 = 1
	signalChan  int64 = -1001
	logChan     int64 = -2002
	testAddress       = "TTestAddress1234567890"
)

type call struct {
	method  string
	chatID  int64
	from    int64
	msgID   int
	text    string
	markup  any
	photos  int
	fileRef string
}

// fakeTransport записывает исходящие вызовы и отдает заранее заданные пачки обновлений
type fakeTransport struct {
	mu      sync.Mutex
	calls   []call
	batches [][]tgbotapi.Update
	pollErr []error

	forwardErr map[int64]error
	answerErr  error
	onDrained  func()
}

func (f *fakeTransport) GetUpdates(ctx context.Context, offset, timeout int) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{method: "getUpdates", msgID: offset})
	if len(f.pollErr) > 0 {
		err := f.pollErr[0]
		f.pollErr = f.pollErr[1:]
		f.mu.Unlock()
		return nil, err
	}
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	drained := f.onDrained
	f.mu.Unlock()
	if drained != nil {
		drained()
	}
	return nil, nil
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string, markup any) error {
	f.record(call{method: "sendText", chatID: chatID, text: text, markup: markup})
	return nil
}

func (f *fakeTransport) SendPhoto(_ context.Context, chatID int64, photo tgbotapi.RequestFileData, caption string) error {
	c := call{method: "sendPhoto", chatID: chatID, text: caption}
	if !photo.NeedsUpload() {
		c.fileRef = photo.SendData()
	}
	f.record(c)
	return nil
}

func (f *fakeTransport) SendMediaGroup(_ context.Context, chatID int64, photos []tgbotapi.RequestFileData) error {
	f.record(call{method: "sendMediaGroup", chatID: chatID, photos: len(photos)})
	return nil
}

func (f *fakeTransport) Forward(_ context.Context, fromChatID, toChatID int64, messageID int) error {
	f.record(call{method: "forward", chatID: toChatID, from: fromChatID, msgID: messageID})
	if err, ok := f.forwardErr[toChatID]; ok {
		return err
	}
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, callbackID string) error {
	f.record(call{method: "answerCallback", text: callbackID})
	return f.answerErr
}

func (f *fakeTransport) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeTransport) byMethod(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// textsTo тексты, отправленные в чат
func (f *fakeTransport) textsTo(chatID int64) []string {
	var out []string
	for _, c := range f.byMethod("sendText") {
		if c.chatID == chatID {
			out = append(out, c.text)
		}
	}
	return out
}

func (f *fakeTransport) lastTextTo(chatID int64) string {
	texts := f.textsTo(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
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

func (l *recordingLog) withPrefix(prefix string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func tgUser(id int64) *tgbotapi.User {
	return &tgbotapi.User{ID: id, UserName: "user" + strings.Repeat("x", int(id%3))}
}

func textUpdate(updateID int, userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			MessageID: updateID,
			From:      tgUser(userID),
			Chat:      &tgbotapi.Chat{ID: userID},
			Text:      text,
		},
	}
}

func commandUpdate(updateID int, userID int64, text string) tgbotapi.Update {
	u := textUpdate(updateID, userID, text)
	cmd := strings.Fields(text)[0]
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return u
}

func photoUpdate(updateID int, userID int64, fileIDs ...string) tgbotapi.Update {
	u := textUpdate(updateID, userID, "")
	for _, id := range fileIDs {
		u.Message.Photo = append(u.Message.Photo, tgbotapi.PhotoSize{FileID: id})
	}
	return u
}

func callbackUpdate(updateID int, userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb" + data,
			From:    tgUser(userID),
			Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: userID}},
			Data:    data,
		},
	}
}

func channelPost(updateID int, chatID int64, messageID int) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		ChannelPost: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: chatID},
			Text:      "signal",
		},
	}
}
