package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/archivist/internal/channel"
)

func webhookRequest(body, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
	if secret != "" {
		req.Header.Set(secretTokenHeader, secret)
	}
	return req
}

func TestParseWebhookRejectsBadSecret(t *testing.T) {
	t.Parallel()

	adapter := NewTelegramAdapter(nil, Config{BotToken: "t", SecretToken: "s3cret"})
	for _, secret := range []string{"", "wrong"} {
		_, err := adapter.ParseWebhook(webhookRequest(`{"update_id":1}`, secret))
		if !errors.Is(err, channel.ErrInvalidSignature) {
			t.Fatalf("secret %q: expected ErrInvalidSignature, got %v", secret, err)
		}
	}
}

func TestParseWebhookTextMessage(t *testing.T) {
	t.Parallel()

	adapter := NewTelegramAdapter(nil, Config{BotToken: "t", SecretToken: "s3cret"})
	body := `{"update_id":10,"message":{"message_id":7,"date":1760000000,
"from":{"id":123,"is_bot":false,"first_name":"Alice","username":"alice"},
"chat":{"id":456,"type":"private"},"text":"開始 王經理"}}`
	msgs, err := adapter.ParseWebhook(webhookRequest(body, "s3cret"))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Channel != Type || msg.Sender.SubjectID != "123" || msg.Sender.DisplayName != "alice" {
		t.Fatalf("unexpected sender %+v", msg)
	}
	if msg.ReplyTarget != "456" || msg.ReplyToken != "7" || msg.Text != "開始 王經理" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.UserKey() != "telegram:123" {
		t.Fatalf("unexpected key %q", msg.UserKey())
	}
}

func TestParseWebhookPhotoWithCaption(t *testing.T) {
	t.Parallel()

	adapter := NewTelegramAdapter(nil, Config{BotToken: "t"})
	body := `{"update_id":11,"message":{"message_id":8,"date":1760000000,
"from":{"id":1,"is_bot":false,"first_name":"A"},"chat":{"id":1,"type":"private"},
"caption":"receipt","photo":[{"file_id":"small","file_unique_id":"s","width":90,"height":90,"file_size":100},
{"file_id":"large","file_unique_id":"l","width":1280,"height":1280,"file_size":90000}]}}`
	msgs, err := adapter.ParseWebhook(webhookRequest(body, ""))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "receipt" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	atts := msgs[0].Attachments
	if len(atts) != 1 || atts[0].PlatformKey != "large" || atts[0].Type != channel.AttachmentImage {
		t.Fatalf("unexpected attachments %+v", atts)
	}
}

func TestParseWebhookIgnoresNonMessages(t *testing.T) {
	t.Parallel()

	adapter := NewTelegramAdapter(nil, Config{BotToken: "t"})
	msgs, err := adapter.ParseWebhook(webhookRequest(`{"update_id":12,"edited_message":{"message_id":1,"date":1,"chat":{"id":1,"type":"private"},"text":"x"}}`, ""))
	if err != nil || len(msgs) != 0 {
		t.Fatalf("expected nothing, got %v %v", msgs, err)
	}
	if _, err := adapter.ParseWebhook(webhookRequest(`not json`, "")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestCollectTelegramAttachmentsDocument(t *testing.T) {
	t.Parallel()

	atts := collectTelegramAttachments(&tgbotapi.Message{
		Document: &tgbotapi.Document{FileID: " doc-1 ", FileName: "minutes.pdf", MimeType: "application/pdf", FileSize: 42},
	})
	if len(atts) != 1 {
		t.Fatalf("expected one attachment")
	}
	got := atts[0]
	if got.Type != channel.AttachmentFile || got.PlatformKey != "doc-1" || got.Name != "minutes.pdf" || got.Size != 42 {
		t.Fatalf("unexpected attachment %+v", got)
	}
}

func TestPickTelegramPhoto(t *testing.T) {
	t.Parallel()

	if got := pickTelegramPhoto(nil); got.FileID != "" {
		t.Fatalf("expected empty photo")
	}
	got := pickTelegramPhoto([]tgbotapi.PhotoSize{
		{FileID: "a", Width: 10, Height: 10, FileSize: 10},
		{FileID: "b", Width: 20, Height: 20, FileSize: 5},
	})
	if got.FileID != "b" {
		t.Fatalf("expected larger photo, got %s", got.FileID)
	}
}

func TestTruncateTelegramText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("中", telegramMaxMessageLength)
	got := truncateTelegramText(long)
	if len(got) > telegramMaxMessageLength || !utf8.ValidString(got) || !strings.HasSuffix(got, "...") {
		t.Fatalf("bad truncation: len=%d", len(got))
	}
	if truncateTelegramText("short") != "short" {
		t.Fatalf("short text changed")
	}
}

type botAPIFake struct {
	mu    sync.Mutex
	calls []string
	forms []map[string]string
}

func (f *botAPIFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.calls = append(f.calls, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	f.forms = append(f.forms, form)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if strings.HasSuffix(r.URL.Path, "/getMe") {
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"archivist_bot"}}`)
		return
	}
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":99,"date":1,"chat":{"id":456,"type":"private"}}}`)
}

func newFakeBotAdapter(t *testing.T) (*TelegramAdapter, *botAPIFake) {
	t.Helper()
	fake := &botAPIFake{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	adapter := NewTelegramAdapter(nil, Config{BotToken: "token"})
	adapter.newBot = func(token string) (*tgbotapi.BotAPI, error) {
		return tgbotapi.NewBotAPIWithClient(token, srv.URL+"/bot%s/%s", srv.Client())
	}
	return adapter, fake
}

func TestReplyAndPush(t *testing.T) {
	t.Parallel()

	adapter, fake := newFakeBotAdapter(t)
	msg := channel.InboundMessage{Channel: Type, ReplyTarget: "456", ReplyToken: "7"}
	if err := adapter.Reply(context.Background(), msg, "⏳ 正在分析與歸檔..."); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if err := adapter.Push(context.Background(), "456", "✅ 完成！"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := adapter.Push(context.Background(), " ", "x"); err == nil {
		t.Fatalf("expected error for empty target")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.calls) != 3 || fake.calls[0] != "getMe" || fake.calls[1] != "sendMessage" {
		t.Fatalf("unexpected calls %v", fake.calls)
	}
	if fake.forms[1]["reply_to_message_id"] != "7" || fake.forms[1]["chat_id"] != "456" {
		t.Fatalf("unexpected reply form %v", fake.forms[1])
	}
	if _, ok := fake.forms[2]["reply_to_message_id"]; ok {
		t.Fatalf("push must not quote a message")
	}
}

func TestDownloadAttachment(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png; charset=binary")
		_, _ = io.WriteString(w, "PNGDATA")
	}))
	t.Cleanup(srv.Close)

	adapter := NewTelegramAdapter(nil, Config{BotToken: "t"})
	payload, err := adapter.download(context.Background(), srv.URL+"/file", channel.Attachment{Name: "a.png"})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer func() { _ = payload.Reader.Close() }()
	data, _ := io.ReadAll(payload.Reader)
	if string(data) != "PNGDATA" || payload.Mime != "image/png" || payload.Name != "a.png" {
		t.Fatalf("unexpected payload %+v %q", payload, data)
	}
	if _, err := adapter.download(context.Background(), srv.URL+"/missing", channel.Attachment{}); err == nil {
		t.Fatalf("expected status error")
	}
	if _, err := adapter.ResolveAttachment(context.Background(), channel.InboundMessage{}, channel.Attachment{}); err == nil {
		t.Fatalf("expected missing platform key error")
	}
}
