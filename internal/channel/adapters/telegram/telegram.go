package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/archivist/internal/channel"
	"github.com/memohai/archivist/internal/media"
	"github.com/memohai/archivist/internal/prune"
)

const (
	// Type is the registered channel type.
	Type channel.ChannelType = "telegram"
	// WebhookPath is where Telegram posts updates.
	WebhookPath = "/channels/telegram/webhook"

	secretTokenHeader        = "X-Telegram-Bot-Api-Secret-Token"
	telegramMaxMessageLength = 4096
	telegramDownloadTimeout  = 60 * time.Second
)

// Config holds the bot credentials.
type Config struct {
	BotToken string
	// SecretToken must match the secret_token given to setWebhook. Empty
	// disables the check.
	SecretToken string
}

// TelegramAdapter implements channel.Adapter, channel.WebhookReceiver,
// channel.Sender and channel.AttachmentResolver for Telegram.
type TelegramAdapter struct {
	logger *slog.Logger
	cfg    Config
	client *http.Client

	mu     sync.Mutex
	bot    *tgbotapi.BotAPI
	newBot func(token string) (*tgbotapi.BotAPI, error)
}

// NewTelegramAdapter creates a TelegramAdapter with the given logger.
func NewTelegramAdapter(log *slog.Logger, cfg Config) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	adapter := &TelegramAdapter{
		logger: log.With(slog.String("adapter", "telegram")),
		cfg:    cfg,
		client: &http.Client{Timeout: telegramDownloadTimeout},
		newBot: tgbotapi.NewBotAPI,
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	return adapter
}

// getBot creates the API client on first use; NewBotAPI performs a getMe call.
func (a *TelegramAdapter) getBot() (*tgbotapi.BotAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	bot, err := a.newBot(a.cfg.BotToken)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.bot = bot
	return bot, nil
}

// Type returns the Telegram channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Telegram channel metadata.
func (a *TelegramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Telegram",
		WebhookPath: WebhookPath,
	}
}

// ParseWebhook verifies the secret token header and decodes one update.
func (a *TelegramAdapter) ParseWebhook(r *http.Request) ([]channel.InboundMessage, error) {
	if secret := a.cfg.SecretToken; secret != "" {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return nil, channel.ErrInvalidSignature
		}
	}
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		return nil, fmt.Errorf("decode telegram update: %w", err)
	}
	msg := update.Message
	if msg == nil {
		a.logger.Debug("ignoring non-message update", slog.Int("update_id", update.UpdateID))
		return nil, nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	attachments := collectTelegramAttachments(msg)
	if text == "" && len(attachments) == 0 {
		return nil, nil
	}
	subjectID, displayName, attrs := resolveTelegramSender(msg)
	chatID := ""
	if msg.Chat != nil {
		chatID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	metadata := map[string]any{}
	for k, v := range attrs {
		metadata[k] = v
	}
	return []channel.InboundMessage{{
		Channel:     Type,
		ID:          strconv.Itoa(msg.MessageID),
		Sender:      channel.Identity{SubjectID: subjectID, DisplayName: displayName},
		ReplyTarget: chatID,
		ReplyToken:  strconv.Itoa(msg.MessageID),
		Text:        text,
		Attachments: attachments,
		ReceivedAt:  msg.Time(),
		Metadata:    metadata,
	}}, nil
}

// Reply answers msg in its chat, quoting it.
func (a *TelegramAdapter) Reply(_ context.Context, msg channel.InboundMessage, text string) error {
	bot, err := a.getBot()
	if err != nil {
		return err
	}
	replyTo, _ := strconv.Atoi(strings.TrimSpace(msg.ReplyToken))
	return sendTelegramText(bot, msg.ReplyTarget, text, replyTo)
}

// Push sends text to a chat id or @channel.
func (a *TelegramAdapter) Push(_ context.Context, target string, text string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("telegram target is required")
	}
	bot, err := a.getBot()
	if err != nil {
		return err
	}
	return sendTelegramText(bot, target, text, 0)
}

// ResolveAttachment downloads the file behind a Telegram file id.
func (a *TelegramAdapter) ResolveAttachment(ctx context.Context, _ channel.InboundMessage, attachment channel.Attachment) (channel.AttachmentPayload, error) {
	fileID := strings.TrimSpace(attachment.PlatformKey)
	if fileID == "" {
		return channel.AttachmentPayload{}, fmt.Errorf("telegram attachment requires platform_key")
	}
	bot, err := a.getBot()
	if err != nil {
		return channel.AttachmentPayload{}, err
	}
	downloadURL, err := bot.GetFileDirectURL(fileID)
	if err != nil {
		return channel.AttachmentPayload{}, fmt.Errorf("resolve telegram file url: %w", err)
	}
	return a.download(ctx, downloadURL, attachment)
}

func (a *TelegramAdapter) download(ctx context.Context, downloadURL string, attachment channel.Attachment) (channel.AttachmentPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return channel.AttachmentPayload{}, fmt.Errorf("build download request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return channel.AttachmentPayload{}, fmt.Errorf("download attachment: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		_, _ = io.Copy(io.Discard, resp.Body)
		return channel.AttachmentPayload{}, fmt.Errorf("download attachment status: %d", resp.StatusCode)
	}
	maxBytes := media.MaxAssetBytes
	if resp.ContentLength > maxBytes {
		defer func() {
			_ = resp.Body.Close()
		}()
		_, _ = io.Copy(io.Discard, resp.Body)
		return channel.AttachmentPayload{}, fmt.Errorf("%w: max %d bytes", media.ErrAssetTooLarge, maxBytes)
	}
	mime := strings.TrimSpace(attachment.Mime)
	if mime == "" {
		mime = strings.TrimSpace(resp.Header.Get("Content-Type"))
		if idx := strings.Index(mime, ";"); idx >= 0 {
			mime = strings.TrimSpace(mime[:idx])
		}
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

func resolveTelegramSender(msg *tgbotapi.Message) (string, string, map[string]string) {
	attrs := map[string]string{}
	if msg == nil {
		return "", "", attrs
	}
	if msg.Chat != nil {
		attrs["chat_id"] = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if msg.From != nil {
		userID := strconv.FormatInt(msg.From.ID, 10)
		username := strings.TrimSpace(msg.From.UserName)
		attrs["user_id"] = userID
		if username != "" {
			attrs["username"] = username
		}
		displayName := username
		if displayName == "" {
			displayName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		}
		return userID, displayName, attrs
	}
	if msg.SenderChat != nil {
		senderChatID := strconv.FormatInt(msg.SenderChat.ID, 10)
		attrs["sender_chat_id"] = senderChatID
		displayName := strings.TrimSpace(msg.SenderChat.Title)
		if displayName == "" {
			displayName = strings.TrimSpace(msg.SenderChat.UserName)
		}
		return senderChatID, displayName, attrs
	}
	return "", "", attrs
}

// collectTelegramAttachments keeps photos as images and every other file-like
// payload as a file.
func collectTelegramAttachments(msg *tgbotapi.Message) []channel.Attachment {
	if msg == nil {
		return nil
	}
	attachments := make([]channel.Attachment, 0, 1)
	if len(msg.Photo) > 0 {
		photo := pickTelegramPhoto(msg.Photo)
		attachments = append(attachments, buildTelegramAttachment(channel.AttachmentImage, photo.FileID, "", "image/jpeg", int64(photo.FileSize)))
	}
	if msg.Document != nil {
		attachments = append(attachments, buildTelegramAttachment(channel.AttachmentFile, msg.Document.FileID, msg.Document.FileName, msg.Document.MimeType, int64(msg.Document.FileSize)))
	}
	if msg.Audio != nil {
		attachments = append(attachments, buildTelegramAttachment(channel.AttachmentFile, msg.Audio.FileID, msg.Audio.FileName, msg.Audio.MimeType, int64(msg.Audio.FileSize)))
	}
	if msg.Voice != nil {
		attachments = append(attachments, buildTelegramAttachment(channel.AttachmentFile, msg.Voice.FileID, "", msg.Voice.MimeType, int64(msg.Voice.FileSize)))
	}
	if msg.Video != nil {
		attachments = append(attachments, buildTelegramAttachment(channel.AttachmentFile, msg.Video.FileID, msg.Video.FileName, msg.Video.MimeType, int64(msg.Video.FileSize)))
	}
	return attachments
}

func buildTelegramAttachment(attType channel.AttachmentType, fileID, name, mime string, size int64) channel.Attachment {
	return channel.Attachment{
		Type:        attType,
		PlatformKey: strings.TrimSpace(fileID),
		Name:        strings.TrimSpace(name),
		Mime:        strings.TrimSpace(mime),
		Size:        size,
	}
}

func pickTelegramPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

func sendTelegramText(bot *tgbotapi.BotAPI, target string, text string, replyTo int) error {
	text = truncateTelegramText(sanitizeTelegramText(text))
	var message tgbotapi.MessageConfig
	if strings.HasPrefix(target, "@") {
		message = tgbotapi.NewMessageToChannel(target, text)
	} else {
		chatID, err := strconv.ParseInt(target, 10, 64)
		if err != nil {
			return fmt.Errorf("telegram target must be @username or chat_id")
		}
		message = tgbotapi.NewMessage(chatID, text)
	}
	if replyTo > 0 {
		message.ReplyToMessageID = replyTo
	}
	_, err := bot.Send(message)
	return err
}

// sanitizeTelegramText ensures text is valid UTF-8 for the Telegram API.
func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateTelegramText truncates text to telegramMaxMessageLength on a valid
// UTF-8 rune boundary, appending "..." when truncation occurs.
func truncateTelegramText(text string) string {
	return prune.Bytes(text, telegramMaxMessageLength, prune.DefaultMarker)
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
