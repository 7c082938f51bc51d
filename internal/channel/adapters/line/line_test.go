package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/memohai/archivist/internal/channel"
)

const testSecret = "channel-secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	_, _ = mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newTestAdapter(t *testing.T, endpoint string) *LineAdapter {
	t.Helper()
	a, err := NewLineAdapter(nil, Config{
		ChannelSecret:      testSecret,
		ChannelAccessToken: "token",
		Endpoint:           endpoint,
		BlobEndpoint:       endpoint,
	})
	if err != nil {
		t.Fatalf("NewLineAdapter: %v", err)
	}
	return a
}

func callbackRequest(body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
	req.Header.Set("X-Line-Signature", signature)
	return req
}

const callbackBody = `{"destination":"Ubot","events":[
{"type":"message","mode":"active","timestamp":1760000000000,"webhookEventId":"e1",
 "deliveryContext":{"isRedelivery":false},"replyToken":"r1",
 "source":{"type":"user","userId":"U1"},
 "message":{"type":"text","id":"m1","quoteToken":"q","text":"開始 王經理"}},
{"type":"message","mode":"active","timestamp":1760000001000,"webhookEventId":"e2",
 "deliveryContext":{"isRedelivery":false},"replyToken":"r2",
 "source":{"type":"group","groupId":"G1","userId":"U2"},
 "message":{"type":"image","id":"m2","quoteToken":"q","contentProvider":{"type":"line"}}},
{"type":"message","mode":"active","timestamp":1760000002000,"webhookEventId":"e3",
 "deliveryContext":{"isRedelivery":false},"replyToken":"r3",
 "source":{"type":"user","userId":"U1"},
 "message":{"type":"file","id":"m3","fileName":"minutes.pdf","fileSize":2048}},
{"type":"follow","mode":"active","timestamp":1760000003000,"webhookEventId":"e4",
 "deliveryContext":{"isRedelivery":false},"replyToken":"r4",
 "source":{"type":"user","userId":"U3"},"follow":{"isUnblocked":false}}
]}`

func TestParseWebhookConvertsMessageEvents(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t, "")
	msgs, err := a.ParseWebhook(callbackRequest(callbackBody, sign(callbackBody)))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	text := msgs[0]
	if text.Text != "開始 王經理" || text.UserKey() != "line:U1" || text.ReplyTarget != "U1" || text.ReplyToken != "r1" {
		t.Fatalf("unexpected text message %+v", text)
	}

	image := msgs[1]
	if image.UserKey() != "line:U2" || image.ReplyTarget != "G1" {
		t.Fatalf("unexpected group routing %+v", image)
	}
	if len(image.Attachments) != 1 || image.Attachments[0].Type != channel.AttachmentImage || image.Attachments[0].PlatformKey != "m2" {
		t.Fatalf("unexpected image attachment %+v", image.Attachments)
	}

	file := msgs[2]
	if file.Attachments[0].Name != "minutes.pdf" || file.Attachments[0].Size != 2048 {
		t.Fatalf("unexpected file attachment %+v", file.Attachments)
	}
}

const anonymousGroupBody = `{"destination":"Ubot","events":[
{"type":"message","mode":"active","timestamp":1760000000000,"webhookEventId":"g1",
 "deliveryContext":{"isRedelivery":false},"replyToken":"r1",
 "source":{"type":"group","groupId":"G1"},
 "message":{"type":"text","id":"m1","quoteToken":"q","text":"start 會議"}},
{"type":"message","mode":"active","timestamp":1760000001000,"webhookEventId":"g2",
 "deliveryContext":{"isRedelivery":false},"replyToken":"r2",
 "source":{"type":"room","roomId":"R1"},
 "message":{"type":"text","id":"m2","quoteToken":"q","text":"end"}}
]}`

func TestParseWebhookAnonymousGroupSenderUsesChatID(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t, "")
	msgs, err := a.ParseWebhook(callbackRequest(anonymousGroupBody, sign(anonymousGroupBody)))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].UserKey() != "line:G1" || msgs[0].ReplyTarget != "G1" {
		t.Fatalf("group sender routed to %q / %q", msgs[0].UserKey(), msgs[0].ReplyTarget)
	}
	if msgs[1].UserKey() != "line:R1" || msgs[1].ReplyTarget != "R1" {
		t.Fatalf("room sender routed to %q / %q", msgs[1].UserKey(), msgs[1].ReplyTarget)
	}
	if msgs[0].UserKey() == msgs[1].UserKey() {
		t.Fatalf("anonymous senders in different chats share a session key")
	}
}

func TestResolveLineSource(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		src         webhook.SourceInterface
		wantSubject string
		wantTarget  string
	}{
		{name: "user", src: webhook.UserSource{UserId: "U1"}, wantSubject: "U1", wantTarget: "U1"},
		{name: "group member", src: webhook.GroupSource{GroupId: "G1", UserId: "U2"}, wantSubject: "U2", wantTarget: "G1"},
		{name: "anonymous group", src: webhook.GroupSource{GroupId: "G1"}, wantSubject: "G1", wantTarget: "G1"},
		{name: "anonymous room", src: webhook.RoomSource{RoomId: "R1"}, wantSubject: "R1", wantTarget: "R1"},
		{name: "unknown", src: nil, wantSubject: "", wantTarget: ""},
	}
	for _, tc := range cases {
		subject, target := resolveLineSource(tc.src)
		if subject != tc.wantSubject || target != tc.wantTarget {
			t.Fatalf("%s: got (%q, %q), want (%q, %q)", tc.name, subject, target, tc.wantSubject, tc.wantTarget)
		}
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t, "")
	_, err := a.ParseWebhook(callbackRequest(callbackBody, sign(callbackBody+"x")))
	if !errors.Is(err, channel.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

type apiFake struct {
	mu       sync.Mutex
	paths    []string
	bodies   []map[string]any
	auth     string
	blobBody string
}

func (f *apiFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)
	f.auth = r.Header.Get("Authorization")
	if strings.HasSuffix(r.URL.Path, "/content") {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = io.WriteString(w, f.blobBody)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.bodies = append(f.bodies, body)
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"sentMessages":[{"id":"1","quoteToken":"q"}]}`)
}

func TestReplyPushAndContent(t *testing.T) {
	t.Parallel()

	fake := &apiFake{blobBody: "JPEGDATA"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	a := newTestAdapter(t, srv.URL)
	ctx := context.Background()

	if err := a.Reply(ctx, channel.InboundMessage{ReplyToken: "r1", ReplyTarget: "U1"}, "🔴 開始記錄：王經理"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if err := a.Push(ctx, "U1", "✅ 完成！"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := a.Push(ctx, "", "x"); err == nil {
		t.Fatalf("expected error for empty target")
	}
	payload, err := a.ResolveAttachment(ctx, channel.InboundMessage{}, channel.Attachment{PlatformKey: "m2"})
	if err != nil {
		t.Fatalf("ResolveAttachment: %v", err)
	}
	data, _ := io.ReadAll(payload.Reader)
	_ = payload.Reader.Close()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.paths) != 3 {
		t.Fatalf("unexpected calls %v", fake.paths)
	}
	if fake.paths[0] != "/v2/bot/message/reply" || fake.paths[1] != "/v2/bot/message/push" || fake.paths[2] != "/v2/bot/message/m2/content" {
		t.Fatalf("unexpected paths %v", fake.paths)
	}
	if fake.auth != "Bearer token" {
		t.Fatalf("unexpected auth %q", fake.auth)
	}
	if fake.bodies[0]["replyToken"] != "r1" || fake.bodies[1]["to"] != "U1" {
		t.Fatalf("unexpected bodies %v", fake.bodies)
	}
	if string(data) != "JPEGDATA" || payload.Mime != "image/jpeg" {
		t.Fatalf("unexpected payload %q %q", data, payload.Mime)
	}
}

func TestTextMessageTruncates(t *testing.T) {
	t.Parallel()

	msg := textMessage(strings.Repeat("字", lineMaxTextRunes+10))
	if got := len([]rune(msg.Text)); got != lineMaxTextRunes {
		t.Fatalf("runes = %d", got)
	}
}

func TestNewLineAdapterRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewLineAdapter(nil, Config{ChannelSecret: "s"}); err == nil {
		t.Fatalf("expected error")
	}
}
