// Package archive resolves the source/category folder taxonomy in the cloud
// file store and uploads a finished batch into it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"
)

// ErrEmptyFolderName is returned when a taxonomy level has no name.
var ErrEmptyFolderName = errors.New("folder name is required")

// FolderStore is the folder half of the cloud file store.
type FolderStore interface {
	// FindFolder returns the first non-trashed folder named name directly under
	// parentID.
	FindFolder(ctx context.Context, parentID, name string) (id string, found bool, err error)
	CreateFolder(ctx context.Context, parentID, name string) (string, error)
}

// FolderPath identifies the resolved root → source → category chain.
type FolderPath struct {
	RootID     string
	SourceID   string
	CategoryID string
	Source     string
	Category   string
}

// String renders the path for user-facing messages.
func (p FolderPath) String() string {
	return p.Source + "/" + p.Category
}

// Taxonomy maps a source/category pair onto folders, creating them on first
// use.
type Taxonomy struct {
	store  FolderStore
	group  singleflight.Group
	logger *slog.Logger
}

// NewTaxonomy creates a resolver over store.
func NewTaxonomy(log *slog.Logger, store FolderStore) *Taxonomy {
	if log == nil {
		log = slog.Default()
	}
	return &Taxonomy{
		store:  store,
		logger: log.With(slog.String("service", "taxonomy")),
	}
}

// Resolve returns the category folder under root/source, creating either level
// when missing.
func (t *Taxonomy) Resolve(ctx context.Context, rootID, source, category string) (FolderPath, error) {
	sourceID, err := t.GetOrCreate(ctx, rootID, source)
	if err != nil {
		return FolderPath{}, fmt.Errorf("resolve source folder: %w", err)
	}
	categoryID, err := t.GetOrCreate(ctx, sourceID, category)
	if err != nil {
		return FolderPath{}, fmt.Errorf("resolve category folder: %w", err)
	}
	return FolderPath{
		RootID:     rootID,
		SourceID:   sourceID,
		CategoryID: categoryID,
		Source:     strings.TrimSpace(source),
		Category:   strings.TrimSpace(category),
	}, nil
}

// GetOrCreate returns the folder named name under parentID. Concurrent calls
// for the same pair in this process share one search-or-create; separate
// processes can still race and create duplicates.
func (t *Taxonomy) GetOrCreate(ctx context.Context, parentID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyFolderName
	}
	key := parentID + "\x00" + name
	v, err, _ := t.group.Do(key, func() (any, error) {
		id, found, err := t.store.FindFolder(ctx, parentID, name)
		if err != nil {
			return "", fmt.Errorf("find folder %q: %w", name, err)
		}
		if found {
			t.logger.Debug("folder found", slog.String("name", name), slog.String("id", id))
			return id, nil
		}
		id, err = t.store.CreateFolder(ctx, parentID, name)
		if err != nil {
			return "", fmt.Errorf("create folder %q: %w", name, err)
		}
		t.logger.Info("folder created", slog.String("name", name), slog.String("id", id), slog.String("parent", parentID))
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
