package channel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds all registered channel adapters and routes replies, pushes
// and attachment retrieval to the adapter owning a message's channel.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ChannelType]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[ChannelType]Adapter{},
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	ct := normalizeChannelType(adapter.Type().String())
	if ct == "" {
		return fmt.Errorf("channel type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[ct]; exists {
		return fmt.Errorf("channel type already registered: %s", ct)
	}
	r.adapters[ct] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given channel type.
func (r *Registry) Get(channelType ChannelType) (Adapter, bool) {
	ct := normalizeChannelType(channelType.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[ct]
	return adapter, ok
}

// List returns all registered adapters ordered by channel type.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		items = append(items, a)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Type() < items[j].Type()
	})
	return items
}

// GetDescriptor returns the descriptor for the given channel type.
func (r *Registry) GetDescriptor(channelType ChannelType) (Descriptor, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return Descriptor{}, false
	}
	return adapter.Descriptor(), true
}

// GetWebhookReceiver returns the adapter's webhook parser if it has one.
func (r *Registry) GetWebhookReceiver(channelType ChannelType) (WebhookReceiver, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, false
	}
	receiver, ok := adapter.(WebhookReceiver)
	return receiver, ok
}

// GetSender returns the adapter's sender if it has one.
func (r *Registry) GetSender(channelType ChannelType) (Sender, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, false
	}
	sender, ok := adapter.(Sender)
	return sender, ok
}

// GetAttachmentResolver returns the adapter's attachment resolver if it has one.
func (r *Registry) GetAttachmentResolver(channelType ChannelType) (AttachmentResolver, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, false
	}
	resolver, ok := adapter.(AttachmentResolver)
	return resolver, ok
}

// Reply answers msg through its channel's sender.
func (r *Registry) Reply(ctx context.Context, msg InboundMessage, text string) error {
	sender, err := r.sender(msg.Channel)
	if err != nil {
		return err
	}
	return sender.Reply(ctx, msg, text)
}

// Push sends an untied message to target on the given channel.
func (r *Registry) Push(ctx context.Context, channelType ChannelType, target string, text string) error {
	sender, err := r.sender(channelType)
	if err != nil {
		return err
	}
	return sender.Push(ctx, target, text)
}

// ResolveAttachment fetches the bytes behind an attachment of msg.
func (r *Registry) ResolveAttachment(ctx context.Context, msg InboundMessage, attachment Attachment) (AttachmentPayload, error) {
	if _, ok := r.Get(msg.Channel); !ok {
		return AttachmentPayload{}, fmt.Errorf("%w: %s", ErrUnsupportedChannel, msg.Channel)
	}
	resolver, ok := r.GetAttachmentResolver(msg.Channel)
	if !ok {
		return AttachmentPayload{}, fmt.Errorf("%w: %s attachments", ErrNotSupported, msg.Channel)
	}
	return resolver.ResolveAttachment(ctx, msg, attachment)
}

func (r *Registry) sender(channelType ChannelType) (Sender, error) {
	if _, ok := r.Get(channelType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, channelType)
	}
	sender, ok := r.GetSender(channelType)
	if !ok {
		return nil, fmt.Errorf("%w: %s send", ErrNotSupported, channelType)
	}
	return sender, nil
}

func normalizeChannelType(raw string) ChannelType {
	return ChannelType(strings.ToLower(strings.TrimSpace(raw)))
}
