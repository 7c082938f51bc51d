package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/memohai/archivist/internal/media"
	"github.com/memohai/archivist/internal/retry"
)

// fallbackMime is assumed for attachments whose type cannot be sniffed; the
// capture channels mostly deliver photos without a declared type.
const fallbackMime = "image/jpeg"

// Analyzer turns a Batch into a Result.
type Analyzer struct {
	generator      Generator
	policy         retry.Policy
	location       *time.Location
	maxInlineBytes int64
	logger         *slog.Logger
	now            func() time.Time
}

// Options configures an Analyzer.
type Options struct {
	Retry    retry.Policy
	Location *time.Location
	// MaxInlineBytes caps the cumulative attachment bytes sent inline. Zero
	// disables the cap.
	MaxInlineBytes int64
}

// NewAnalyzer creates an analyzer backed by generator.
func NewAnalyzer(log *slog.Logger, generator Generator, opts Options) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	policy := opts.Retry
	if policy.Attempts <= 0 {
		policy = retry.DefaultPolicy()
	}
	logger := log.With(slog.String("service", "analysis"))
	if policy.Logger == nil {
		policy.Logger = logger
	}
	if policy.Name == "" {
		policy.Name = "analyze"
	}
	return &Analyzer{
		generator:      generator,
		policy:         policy,
		location:       loc,
		maxInlineBytes: opts.MaxInlineBytes,
		logger:         logger,
		now:            time.Now,
	}
}

// Analyze asks the model for a structured result. Blocked and malformed model
// output is recovered into a fallback result; only exhausted retries and
// unreadable attachments are returned as errors.
func (a *Analyzer) Analyze(ctx context.Context, batch Batch) (Result, error) {
	if batch.IsEmpty() {
		a.logger.Info("empty batch, skipping model call", slog.String("label", batch.ContextLabel))
		return EmptyResult(batch.ContextLabel), nil
	}
	if a.generator == nil {
		return Result{}, fmt.Errorf("analysis generator not configured")
	}

	parts, err := a.buildParts(batch)
	if err != nil {
		return Result{}, err
	}

	res := retry.Do(ctx, a.policy, func() (Response, error) {
		return a.generator.Generate(ctx, parts)
	})
	resp, err := res.Unwrap()
	if err != nil {
		return Result{}, fmt.Errorf("generate analysis: %w", err)
	}

	outcome := Interpret(resp, a.location)
	switch v := outcome.(type) {
	case Blocked:
		a.logger.Warn("model output blocked or empty", slog.String("reason", v.Reason))
	case Malformed:
		a.logger.Warn("model output malformed", slog.Any("error", v.Err), slog.String("excerpt", v.Excerpt))
	}
	result := Normalize(outcome, batch.ContextLabel)
	a.logger.Info("batch analyzed",
		slog.String("source", result.Source),
		slog.String("category", result.Category),
		slog.Int("events", len(result.Events)),
		slog.Int("attempts", res.Attempts),
	)
	return result, nil
}

func (a *Analyzer) buildParts(batch Batch) ([]Part, error) {
	attachments := make([]Part, 0, len(batch.AttachmentPaths))
	var inlineBytes int64
	for _, path := range batch.AttachmentPaths {
		mime := media.DetectMime(path)
		if mime == "" {
			mime = fallbackMime
		}
		if !inlineSupported(mime) {
			a.logger.Info("attachment not sent inline", slog.String("path", path), slog.String("mime", mime))
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat attachment: %w", err)
		}
		if a.maxInlineBytes > 0 && inlineBytes+info.Size() > a.maxInlineBytes {
			a.logger.Warn("inline budget exceeded, attachment archived only",
				slog.String("path", path),
				slog.Int64("bytes", info.Size()),
			)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		inlineBytes += int64(len(data))
		attachments = append(attachments, BytesPart(data, mime))
	}

	parts := make([]Part, 0, len(attachments)+2)
	parts = append(parts, TextPart(InstructionPrompt(PromptParams{
		ContextLabel:    batch.ContextLabel,
		Now:             a.now().In(a.location),
		AttachmentCount: len(attachments),
	})))
	parts = append(parts, TextPart(ContentBlock(batch.Texts)))
	parts = append(parts, attachments...)
	return parts, nil
}

func inlineSupported(mime string) bool {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	switch {
	case strings.HasPrefix(base, "image/"),
		strings.HasPrefix(base, "audio/"),
		strings.HasPrefix(base, "video/"),
		strings.HasPrefix(base, "text/"),
		base == "application/pdf":
		return true
	}
	return false
}
