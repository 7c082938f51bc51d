package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/archivist/internal/channel"
)

// Submitter queues parsed messages for ordered processing.
// *channel.Dispatcher satisfies it.
type Submitter interface {
	Submit(ctx context.Context, msg channel.InboundMessage) error
}

// WebhookHandler mounts one POST route per registered webhook receiver.
// Parsed messages are queued on the dispatcher before the 200 is written.
type WebhookHandler struct {
	registry     *channel.Registry
	submitter    Submitter
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, registry *channel.Registry, submitter Submitter, maxBodyBytes int64) *WebhookHandler {
	return &WebhookHandler{
		registry:     registry,
		submitter:    submitter,
		maxBodyBytes: maxBodyBytes,
		logger:       log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	for _, adapter := range h.registry.List() {
		receiver, ok := adapter.(channel.WebhookReceiver)
		if !ok {
			continue
		}
		desc := adapter.Descriptor()
		if desc.WebhookPath == "" {
			continue
		}
		e.POST(desc.WebhookPath, h.handle(desc.Type, receiver))
		h.logger.Info("webhook registered", slog.String("channel", desc.Type.String()), slog.String("path", desc.WebhookPath))
	}
}

func (h *WebhookHandler) handle(channelType channel.ChannelType, receiver channel.WebhookReceiver) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if h.maxBodyBytes > 0 {
			req.Body = http.MaxBytesReader(c.Response(), req.Body, h.maxBodyBytes)
		}
		msgs, err := receiver.ParseWebhook(req)
		if err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
			case errors.Is(err, channel.ErrInvalidSignature):
				h.logger.Warn("webhook rejected", slog.String("channel", channelType.String()), slog.Any("error", err))
				return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
			default:
				h.logger.Warn("webhook parse failed", slog.String("channel", channelType.String()), slog.Any("error", err))
				return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
			}
		}
		ctx := req.Context()
		for _, msg := range msgs {
			if msg.IsEmpty() {
				continue
			}
			if err := h.submitter.Submit(ctx, msg); err != nil {
				h.logger.Error("enqueue inbound failed",
					slog.String("channel", channelType.String()),
					slog.String("message_id", msg.ID),
					slog.Any("error", err),
				)
				return echo.NewHTTPError(http.StatusServiceUnavailable, "not accepting messages")
			}
		}
		return c.String(http.StatusOK, "OK")
	}
}
