// Package line implements the LINE Messaging API channel: signed webhook
// parsing, reply/push text and message content download.
package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/memohai/archivist/internal/channel"
	"github.com/memohai/archivist/internal/media"
	"github.com/memohai/archivist/internal/prune"
)

const (
	// Type is the registered channel type.
	Type channel.ChannelType = "line"
	// WebhookPath is the callback URL path configured in the LINE console.
	WebhookPath = "/callback"

	lineMaxTextRunes = 5000
)

// Config holds the channel credentials.
type Config struct {
	ChannelSecret      string
	ChannelAccessToken string
	// Endpoint and BlobEndpoint override the API hosts; empty uses LINE's.
	Endpoint     string
	BlobEndpoint string
	HTTPClient   *http.Client
}

// LineAdapter implements channel.Adapter, channel.WebhookReceiver,
// channel.Sender and channel.AttachmentResolver for LINE.
type LineAdapter struct {
	logger *slog.Logger
	secret string
	api    *messaging_api.MessagingApiAPI
	blob   *messaging_api.MessagingApiBlobAPI
}

// NewLineAdapter creates the API clients for cfg.
func NewLineAdapter(log *slog.Logger, cfg Config) (*LineAdapter, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.ChannelSecret) == "" || strings.TrimSpace(cfg.ChannelAccessToken) == "" {
		return nil, fmt.Errorf("line channel secret and access token are required")
	}
	var apiOpts []messaging_api.MessagingApiAPIOption
	var blobOpts []messaging_api.MessagingApiBlobAPIOption
	if cfg.Endpoint != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(cfg.Endpoint))
	}
	if cfg.BlobEndpoint != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(cfg.BlobEndpoint))
	}
	if cfg.HTTPClient != nil {
		apiOpts = append(apiOpts, messaging_api.WithHTTPClient(cfg.HTTPClient))
		blobOpts = append(blobOpts, messaging_api.WithBlobHTTPClient(cfg.HTTPClient))
	}
	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("create line messaging client: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(cfg.ChannelAccessToken, blobOpts...)
	if err != nil {
		return nil, fmt.Errorf("create line blob client: %w", err)
	}
	return &LineAdapter{
		logger: log.With(slog.String("adapter", "line")),
		secret: cfg.ChannelSecret,
		api:    api,
		blob:   blob,
	}, nil
}

// Type returns the LINE channel type.
func (a *LineAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the LINE channel metadata.
func (a *LineAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "LINE",
		WebhookPath: WebhookPath,
	}
}

// ParseWebhook verifies X-Line-Signature and converts message events. Other
// event kinds are dropped.
func (a *LineAdapter) ParseWebhook(r *http.Request) ([]channel.InboundMessage, error) {
	cb, err := webhook.ParseRequest(a.secret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return nil, fmt.Errorf("%w: %v", channel.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("parse line webhook: %w", err)
	}
	msgs := make([]channel.InboundMessage, 0, len(cb.Events))
	for _, event := range cb.Events {
		e, ok := event.(webhook.MessageEvent)
		if !ok {
			continue
		}
		msg, ok := convertMessageEvent(e)
		if !ok {
			a.logger.Debug("unsupported line message", slog.String("type", fmt.Sprintf("%T", e.Message)))
			continue
		}
		if strings.TrimSpace(msg.Sender.SubjectID) == "" {
			a.logger.Warn("dropping line message without source id", slog.String("message_id", msg.ID))
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func convertMessageEvent(e webhook.MessageEvent) (channel.InboundMessage, bool) {
	subjectID, target := resolveLineSource(e.Source)
	msg := channel.InboundMessage{
		Channel:     Type,
		Sender:      channel.Identity{SubjectID: subjectID},
		ReplyTarget: target,
		ReplyToken:  e.ReplyToken,
		ReceivedAt:  time.UnixMilli(e.Timestamp),
	}
	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		msg.ID = m.Id
		msg.Text = m.Text
	case webhook.ImageMessageContent:
		msg.ID = m.Id
		msg.Attachments = []channel.Attachment{{Type: channel.AttachmentImage, PlatformKey: m.Id}}
	case webhook.FileMessageContent:
		msg.ID = m.Id
		msg.Attachments = []channel.Attachment{{
			Type:        channel.AttachmentFile,
			PlatformKey: m.Id,
			Name:        m.FileName,
			Size:        int64(m.FileSize),
		}}
	case webhook.VideoMessageContent:
		msg.ID = m.Id
		msg.Attachments = []channel.Attachment{{Type: channel.AttachmentFile, PlatformKey: m.Id, Mime: "video/mp4"}}
	case webhook.AudioMessageContent:
		msg.ID = m.Id
		msg.Attachments = []channel.Attachment{{Type: channel.AttachmentFile, PlatformKey: m.Id}}
	default:
		return channel.InboundMessage{}, false
	}
	return msg, true
}

// resolveLineSource returns the session subject and the chat pushes go to.
// Group and room events may omit userId; the chat id then stands in as the
// subject so anonymous senders never share one empty key.
func resolveLineSource(src webhook.SourceInterface) (subjectID string, target string) {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId, s.UserId
	case webhook.GroupSource:
		return firstNonEmpty(s.UserId, s.GroupId), s.GroupId
	case webhook.RoomSource:
		return firstNonEmpty(s.UserId, s.RoomId), s.RoomId
	}
	return "", ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Reply answers with the event's reply token, falling back to a push when
// the token is missing.
func (a *LineAdapter) Reply(ctx context.Context, msg channel.InboundMessage, text string) error {
	if strings.TrimSpace(msg.ReplyToken) == "" {
		return a.Push(ctx, msg.ReplyTarget, text)
	}
	_, err := a.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: msg.ReplyToken,
		Messages:   []messaging_api.MessageInterface{textMessage(text)},
	})
	if err != nil {
		a.logger.Error("reply failed", slog.String("target", msg.ReplyTarget), slog.Any("error", err))
		return fmt.Errorf("line reply: %w", err)
	}
	return nil
}

// Push sends text to a user, group or room id.
func (a *LineAdapter) Push(ctx context.Context, target string, text string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("line target is required")
	}
	_, err := a.api.WithContext(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       target,
		Messages: []messaging_api.MessageInterface{textMessage(text)},
	}, "")
	if err != nil {
		a.logger.Error("push failed", slog.String("target", target), slog.Any("error", err))
		return fmt.Errorf("line push: %w", err)
	}
	return nil
}

// ResolveAttachment downloads message content by message id.
func (a *LineAdapter) ResolveAttachment(ctx context.Context, _ channel.InboundMessage, attachment channel.Attachment) (channel.AttachmentPayload, error) {
	id := strings.TrimSpace(attachment.PlatformKey)
	if id == "" {
		return channel.AttachmentPayload{}, fmt.Errorf("line attachment requires platform_key")
	}
	resp, err := a.blob.WithContext(ctx).GetMessageContent(id)
	if err != nil {
		return channel.AttachmentPayload{}, fmt.Errorf("get line message content: %w", err)
	}
	if resp.ContentLength > media.MaxAssetBytes {
		defer func() {
			_ = resp.Body.Close()
		}()
		_, _ = io.Copy(io.Discard, resp.Body)
		return channel.AttachmentPayload{}, fmt.Errorf("%w: max %d bytes", media.ErrAssetTooLarge, media.MaxAssetBytes)
	}
	mime := strings.TrimSpace(attachment.Mime)
	if mime == "" {
		mime = strings.TrimSpace(strings.SplitN(resp.Header.Get("Content-Type"), ";", 2)[0])
	}
	size := attachment.Size
	if size <= 0 && resp.ContentLength > 0 {
		size = resp.ContentLength
	}
	return channel.AttachmentPayload{
		Reader: resp.Body,
		Mime:   mime,
		Name:   strings.TrimSpace(attachment.Name),
		Size:   size,
	}, nil
}

func textMessage(text string) messaging_api.TextMessage {
	return messaging_api.TextMessage{Text: prune.Runes(text, lineMaxTextRunes, prune.DefaultMarker)}
}
