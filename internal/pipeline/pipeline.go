// Package pipeline runs the end-of-session chain: analyze the batch, resolve
// its folder, archive it and materialize extracted events.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/memohai/archivist/internal/analysis"
	"github.com/memohai/archivist/internal/archive"
)

// Analyzer produces the structured result for a batch.
type Analyzer interface {
	Analyze(ctx context.Context, batch analysis.Batch) (analysis.Result, error)
}

// Resolver maps source/category to a folder.
type Resolver interface {
	Resolve(ctx context.Context, rootID, source, category string) (archive.FolderPath, error)
}

// Archiver stores the batch files.
type Archiver interface {
	Archive(ctx context.Context, batch archive.Batch) (int, error)
}

// EventWriter inserts event drafts and reports how many were created.
type EventWriter interface {
	Materialize(ctx context.Context, drafts []analysis.EventDraft) int
}

// Input is the popped content of one session.
type Input struct {
	Label           string
	Texts           []string
	AttachmentPaths []string
}

// Report summarizes a completed run.
type Report struct {
	Result   analysis.Result
	Folder   archive.FolderPath
	Uploaded int
	Events   int
	Duration time.Duration
}

// Runner wires the pipeline stages together.
type Runner struct {
	analyzer Analyzer
	resolver Resolver
	archiver Archiver
	events   EventWriter
	rootID   string
	logger   *slog.Logger
}

// Deps are the stages of a Runner.
type Deps struct {
	Analyzer Analyzer
	Resolver Resolver
	Archiver Archiver
	Events   EventWriter
	RootID   string
}

// NewRunner creates a runner.
func NewRunner(log *slog.Logger, deps Deps) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		analyzer: deps.Analyzer,
		resolver: deps.Resolver,
		archiver: deps.Archiver,
		events:   deps.Events,
		rootID:   deps.RootID,
		logger:   log.With(slog.String("service", "pipeline")),
	}
}

// Run executes the chain. Analysis, folder and upload failures abort the run
// and are returned; committed side effects are not rolled back. Event
// failures only lower the event count.
func (r *Runner) Run(ctx context.Context, in Input) (Report, error) {
	started := time.Now()
	batch := analysis.Batch{
		ContextLabel:    in.Label,
		Texts:           in.Texts,
		AttachmentPaths: in.AttachmentPaths,
	}
	result, err := r.analyzer.Analyze(ctx, batch)
	if err != nil {
		return Report{}, fmt.Errorf("analyze: %w", err)
	}
	report := Report{Result: result}

	if !batch.IsEmpty() {
		folder, err := r.resolver.Resolve(ctx, r.rootID, result.Source, result.Category)
		if err != nil {
			return report, fmt.Errorf("resolve folder: %w", err)
		}
		report.Folder = folder

		uploaded, err := r.archiver.Archive(ctx, archive.Batch{
			FolderID:        folder.CategoryID,
			Label:           in.Label,
			Result:          result,
			Texts:           in.Texts,
			AttachmentPaths: in.AttachmentPaths,
		})
		report.Uploaded = uploaded
		if err != nil {
			return report, fmt.Errorf("archive: %w", err)
		}
	}

	if r.events != nil {
		report.Events = r.events.Materialize(ctx, result.Events)
	}
	report.Duration = time.Since(started)
	r.logger.Info("pipeline completed",
		slog.String("label", in.Label),
		slog.String("folder", report.Folder.String()),
		slog.Int("uploaded", report.Uploaded),
		slog.Int("events", report.Events),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}
