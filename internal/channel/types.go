// Package channel provides a unified abstraction for the messaging platforms
// users forward content from. It defines inbound message types, adapter
// interfaces, a registry and a per-user ordered dispatcher.
package channel

import (
	"strings"
	"time"
)

// ChannelType identifies a messaging platform (e.g., "line", "telegram").
type ChannelType string

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// Identity represents a sender's identity on a channel.
type Identity struct {
	SubjectID   string
	DisplayName string
}

// AttachmentType classifies the kind of binary attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
)

// Attachment references binary content carried by an inbound message.
// PlatformKey is the platform handle used to fetch the bytes; LocalPath is set
// once the bytes were spooled to local storage.
type Attachment struct {
	Type        AttachmentType `json:"type"`
	PlatformKey string         `json:"platform_key,omitempty"`
	Name        string         `json:"name,omitempty"`
	Mime        string         `json:"mime,omitempty"`
	Size        int64          `json:"size,omitempty"`
	LocalPath   string         `json:"local_path,omitempty"`
}

// ContentKind is the discriminated kind of an inbound message.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentFile  ContentKind = "file"
	ContentEmpty ContentKind = "empty"
)

// InboundMessage is a message received from an external channel.
type InboundMessage struct {
	Channel ChannelType
	ID      string
	Sender  Identity
	// ReplyTarget is where untied push messages for this sender go.
	ReplyTarget string
	// ReplyToken ties a reply to this inbound event on platforms that issue one.
	ReplyToken  string
	Text        string
	Attachments []Attachment
	ReceivedAt  time.Time
	Metadata    map[string]any
}

// UserKey returns the key sessions are stored under: platform:subject.
func (m InboundMessage) UserKey() string {
	return UserKey(m.Channel, m.Sender.SubjectID)
}

// UserKey builds a session key from a platform and a subject id.
func UserKey(channelType ChannelType, subjectID string) string {
	return channelType.String() + ":" + strings.TrimSpace(subjectID)
}

// Kind reports the primary content kind. Text wins when both text and an
// attachment arrive on the same message.
func (m InboundMessage) Kind() ContentKind {
	if strings.TrimSpace(m.Text) != "" {
		return ContentText
	}
	if len(m.Attachments) == 0 {
		return ContentEmpty
	}
	if m.Attachments[0].Type == AttachmentImage {
		return ContentImage
	}
	return ContentFile
}

// IsEmpty reports whether the message carries no content.
func (m InboundMessage) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}
