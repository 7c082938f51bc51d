// Package analysis turns a recorded batch of forwarded content into a
// structured result (source, category, summary, tags, calendar events) by
// asking a generative model, recovering locally from blocked or malformed
// model output.
package analysis

import (
	"context"
	"time"
)

const (
	// CategoryUnclassified is used when the model returned nothing usable.
	CategoryUnclassified = "未分類"
	// CategoryFormatError is used when the model output could not be parsed.
	CategoryFormatError = "格式錯誤"
)

// Batch is the content recorded between start and end.
type Batch struct {
	ContextLabel    string
	Texts           []string
	AttachmentPaths []string
}

// IsEmpty reports whether nothing was recorded.
func (b Batch) IsEmpty() bool {
	return len(b.Texts) == 0 && len(b.AttachmentPaths) == 0
}

// Result is the structured analysis of one batch.
type Result struct {
	Source   string
	Category string
	Summary  string
	Tags     []string
	Events   []EventDraft
}

// EventDraft is an extracted, not yet persisted calendar entry with absolute
// timestamps.
type EventDraft struct {
	Title    string
	Start    time.Time
	End      time.Time
	Location string
}

// Part is one element of a multi-part analysis request: either text or raw
// bytes with a media type.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// IsText reports whether the part carries text rather than bytes.
func (p Part) IsText() bool {
	return p.Data == nil
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// BytesPart builds a binary part.
func BytesPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// Response is what the generative service returned: a text payload, or an
// explicit blocked/empty indicator.
type Response struct {
	Text        string
	Blocked     bool
	BlockReason string
}

// Generator is the generative analysis service. Implementations apply the most
// permissive safety settings available.
type Generator interface {
	Generate(ctx context.Context, parts []Part) (Response, error)
}
