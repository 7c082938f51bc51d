package channel

import (
	"context"
	"errors"
	"io"
	"net/http"
)

var (
	// ErrInvalidSignature is returned when a webhook request fails platform verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnsupportedChannel is returned when no adapter is registered for a channel type.
	ErrUnsupportedChannel = errors.New("unsupported channel type")
	// ErrNotSupported is returned when an adapter lacks the requested capability.
	ErrNotSupported = errors.New("operation not supported by channel")
)

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
}

// Descriptor holds read-only metadata for a registered channel type.
type Descriptor struct {
	Type        ChannelType
	DisplayName string
	// WebhookPath is the HTTP path the platform posts its callbacks to.
	WebhookPath string
}

// WebhookReceiver parses a signed batch of platform events into inbound messages.
// Implementations must verify the request before decoding it and return
// ErrInvalidSignature (possibly wrapped) when verification fails.
type WebhookReceiver interface {
	ParseWebhook(r *http.Request) ([]InboundMessage, error)
}

// Sender delivers plain-text messages back to users.
type Sender interface {
	// Reply answers the given inbound message.
	Reply(ctx context.Context, msg InboundMessage, text string) error
	// Push sends a message not tied to any inbound event.
	Push(ctx context.Context, target string, text string) error
}

// AttachmentPayload contains resolved attachment bytes and optional metadata.
// Caller must close Reader.
type AttachmentPayload struct {
	Reader io.ReadCloser
	Mime   string
	Name   string
	Size   int64
}

// AttachmentResolver retrieves the raw bytes behind an attachment reference.
type AttachmentResolver interface {
	ResolveAttachment(ctx context.Context, msg InboundMessage, attachment Attachment) (AttachmentPayload, error)
}

// InboundHandler is a callback invoked for each message taken off the dispatcher.
type InboundHandler func(ctx context.Context, msg InboundMessage) error
