package media

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/memohai/archivist/internal/prune"
)

const (
	octetStream = "application/octet-stream"
	// maxNameBytes keeps spooled base names under the 255-byte filesystem limit.
	maxNameBytes = 200
	maxExtBytes  = 16
)

// Spooler writes attachment bytes and synthesized files into a private
// temporary directory. Every file gets its own subdirectory so the original
// base name can be kept without collisions.
type Spooler struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

// NewSpooler creates a spooler rooted at dir.
func NewSpooler(log *slog.Logger, dir string, maxBytes int64) (*Spooler, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "archivist")
	}
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve spool dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spooler{
		dir:      abs,
		maxBytes: maxBytes,
		logger:   log.With(slog.String("service", "media")),
		now:      time.Now,
	}, nil
}

// Dir returns the spool root.
func (s *Spooler) Dir() string {
	return s.dir
}

// Spool copies input.Reader into a new local file, rejecting payloads larger
// than the size limit. Nameless inputs get a "<type>_<timestamp><ext>" name
// whose extension follows the detected content type.
func (s *Spooler) Spool(input SpoolInput) (LocalFile, error) {
	if input.Reader == nil {
		return LocalFile{}, fmt.Errorf("reader is required")
	}
	maxBytes := input.MaxBytes
	if maxBytes <= 0 {
		maxBytes = s.maxBytes
	}
	name, err := sanitizeName(input.OriginalName)
	if err != nil {
		return LocalFile{}, err
	}

	slot, err := os.MkdirTemp(s.dir, uuid.NewString()[:8]+"-")
	if err != nil {
		return LocalFile{}, fmt.Errorf("create spool slot: %w", err)
	}
	keep := false
	defer func() {
		if !keep {
			_ = os.RemoveAll(slot)
		}
	}()

	tmp, err := os.CreateTemp(slot, ".partial-*")
	if err != nil {
		return LocalFile{}, fmt.Errorf("create temp file: %w", err)
	}
	written, copyErr := CopyWithLimit(tmp, input.Reader, maxBytes)
	closeErr := tmp.Close()
	if errors.Is(copyErr, ErrAssetTooLarge) {
		return LocalFile{}, copyErr
	}
	if copyErr != nil {
		return LocalFile{}, fmt.Errorf("copy to temp file: %w", copyErr)
	}
	if closeErr != nil {
		return LocalFile{}, fmt.Errorf("close temp file: %w", closeErr)
	}
	if written == 0 {
		return LocalFile{}, ErrEmptyAsset
	}

	mime := strings.TrimSpace(input.Mime)
	if mime == "" || mime == octetStream {
		if detected := DetectMime(tmp.Name()); detected != "" {
			mime = detected
		}
	}
	now := s.now()
	if name == "" {
		kind := input.MediaType
		if kind == "" {
			kind = MediaTypeFile
		}
		name = fmt.Sprintf("%s_%s%s", kind, now.Format("20060102_150405"), extensionFromMime(mime))
	}
	final := filepath.Join(slot, name)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return LocalFile{}, fmt.Errorf("finalize spooled file: %w", err)
	}
	keep = true
	s.logger.Debug("spooled", slog.String("path", final), slog.Int64("bytes", written))
	return LocalFile{
		Path:      final,
		Name:      name,
		Mime:      mime,
		SizeBytes: written,
		CreatedAt: now,
	}, nil
}

// WriteFile spools an in-memory document (such as a transcript) under name.
func (s *Spooler) WriteFile(name string, data []byte) (LocalFile, error) {
	return s.Spool(SpoolInput{
		MediaType:    MediaTypeText,
		OriginalName: name,
		Mime:         "text/plain; charset=utf-8",
		Reader:       strings.NewReader(string(data)),
	})
}

// Remove deletes a spooled file and its slot directory. Missing files are not
// an error.
func (s *Spooler) Remove(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	slot := filepath.Dir(path)
	if filepath.Dir(slot) == s.dir {
		// Only succeeds once the slot is empty.
		_ = os.Remove(slot)
	}
	return nil
}

// DetectMime sniffs a file's content type. It returns "" when the type cannot
// be determined beyond a generic byte stream.
func DetectMime(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil || mt == nil {
		return ""
	}
	if mt.Is(octetStream) {
		return ""
	}
	return mt.String()
}

func sanitizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", nil
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
		if base == "." || base == ".." || base == "/" {
			return "", fmt.Errorf("%w: %q", ErrPathTraversal, raw)
		}
		name = base
	}
	return capName(name), nil
}

// capName shortens name to maxNameBytes, keeping a short extension intact.
func capName(name string) string {
	if len(name) <= maxNameBytes {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > maxExtBytes || len(ext) >= len(name) {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	return prune.Bytes(stem, maxNameBytes-len(ext), "") + ext
}

func extensionFromMime(mime string) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	switch base {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "application/pdf":
		return ".pdf"
	case "text/plain":
		return ".txt"
	}
	if mt := mimetype.Lookup(base); mt != nil && mt.Extension() != "" {
		return mt.Extension()
	}
	return ".bin"
}
