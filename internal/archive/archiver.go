package archive

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/memohai/archivist/internal/analysis"
	"github.com/memohai/archivist/internal/media"
)

// UploadRequest describes one local file to store under a folder.
type UploadRequest struct {
	FolderID    string
	Name        string
	Path        string
	Mime        string
	Description string
}

// Uploader is the file half of the cloud file store.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (string, error)
}

// LocalFiles is the subset of the spooler the archiver needs.
type LocalFiles interface {
	WriteFile(name string, data []byte) (media.LocalFile, error)
	Remove(path string) error
}

// Batch is what gets archived for one session.
type Batch struct {
	FolderID        string
	Label           string
	Result          analysis.Result
	Texts           []string
	AttachmentPaths []string
}

// Archiver uploads a batch and removes local copies once stored.
type Archiver struct {
	uploader Uploader
	files    LocalFiles
	logger   *slog.Logger
	now      func() time.Time
}

// NewArchiver creates an archiver.
func NewArchiver(log *slog.Logger, uploader Uploader, files LocalFiles) *Archiver {
	if log == nil {
		log = slog.Default()
	}
	return &Archiver{
		uploader: uploader,
		files:    files,
		logger:   log.With(slog.String("service", "archiver")),
		now:      time.Now,
	}
}

// Archive uploads the transcript (when any text was recorded) and then every
// attachment. Each local file is deleted right after its upload succeeds. The
// first failed upload aborts and leaves the remaining files on disk. It
// returns the number of files uploaded.
func (a *Archiver) Archive(ctx context.Context, batch Batch) (int, error) {
	desc := Description(batch.Result.Summary, batch.Result.Tags)
	uploaded := 0

	if len(batch.Texts) > 0 {
		doc := Transcript{
			Label:   batch.Label,
			Summary: batch.Result.Summary,
			Tags:    batch.Result.Tags,
			Lines:   batch.Texts,
		}
		local, err := a.files.WriteFile(TranscriptName(batch.Label, a.now()), []byte(doc.Render()))
		if err != nil {
			return uploaded, fmt.Errorf("write transcript: %w", err)
		}
		if err := a.upload(ctx, batch.FolderID, local.Path, local.Name, "text/plain", desc); err != nil {
			return uploaded, err
		}
		uploaded++
	}

	for _, path := range batch.AttachmentPaths {
		mime := media.DetectMime(path)
		if err := a.upload(ctx, batch.FolderID, path, filepath.Base(path), mime, desc); err != nil {
			return uploaded, err
		}
		uploaded++
	}
	a.logger.Info("batch archived", slog.String("folder", batch.FolderID), slog.Int("files", uploaded))
	return uploaded, nil
}

func (a *Archiver) upload(ctx context.Context, folderID, path, name, mime, desc string) error {
	id, err := a.uploader.Upload(ctx, UploadRequest{
		FolderID:    folderID,
		Name:        name,
		Path:        path,
		Mime:        mime,
		Description: desc,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	a.logger.Debug("file uploaded", slog.String("name", name), slog.String("id", id))
	if err := a.files.Remove(path); err != nil {
		a.logger.Warn("remove uploaded file failed", slog.String("path", path), slog.Any("error", err))
	}
	return nil
}
