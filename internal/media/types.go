package media

import (
	"io"
	"time"
)

// MediaType classifies the kind of spooled media.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeFile  MediaType = "file"
	MediaTypeText  MediaType = "text"
)

// SpoolInput carries the data needed to spool an attachment to local storage.
type SpoolInput struct {
	MediaType MediaType
	// OriginalName is kept as the local base name when present.
	OriginalName string
	Mime         string
	// Reader provides the raw bytes; caller is responsible for closing.
	Reader io.Reader
	// MaxBytes optionally overrides the spooler's size limit.
	MaxBytes int64
}

// LocalFile is a spooled attachment on local storage.
type LocalFile struct {
	Path      string
	Name      string
	Mime      string
	SizeBytes int64
	CreatedAt time.Time
}
