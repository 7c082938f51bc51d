// Package gdrive binds the archive folder store and uploader to Google Drive.
package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/memohai/archivist/internal/archive"
)

const (
	folderMime = "application/vnd.google-apps.folder"
	chunkSize  = 8 * 1024 * 1024
)

// Store is a Drive-backed archive.FolderStore and archive.Uploader.
type Store struct {
	svc    *drive.Service
	logger *slog.Logger
}

// New creates a Drive client. opts usually carry credentials from googleauth.
func New(ctx context.Context, log *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{svc: svc, logger: log.With(slog.String("adapter", "gdrive"))}, nil
}

// FindFolder searches non-trashed folders with an exact name under parentID.
func (s *Store) FindFolder(ctx context.Context, parentID, name string) (string, bool, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), folderMime, escapeQuery(parentID))
	list, err := s.svc.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(10).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", false, fmt.Errorf("drive list: %w", err)
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	return list.Files[0].Id, true, nil
}

// CreateFolder creates a folder under parentID.
func (s *Store) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	f, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMime,
		Parents:  []string{parentID},
	}).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive create folder: %w", err)
	}
	return f.Id, nil
}

// Upload streams a local file into the folder with a chunked upload.
func (s *Store) Upload(ctx context.Context, req archive.UploadRequest) (string, error) {
	fh, err := os.Open(req.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", req.Path, err)
	}
	defer func() { _ = fh.Close() }()

	mime := strings.TrimSpace(req.Mime)
	if mime == "" {
		mime = "application/octet-stream"
	}
	f, err := s.svc.Files.Create(&drive.File{
		Name:        req.Name,
		Parents:     []string{req.FolderID},
		Description: req.Description,
	}).
		Media(fh, googleapi.ContentType(mime), googleapi.ChunkSize(chunkSize)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive upload: %w", err)
	}
	s.logger.Info("uploaded", slog.String("name", req.Name), slog.String("id", f.Id), slog.String("folder", req.FolderID))
	return f.Id, nil
}

func escapeQuery(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
