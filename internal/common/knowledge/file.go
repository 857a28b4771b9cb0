package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"helpdesk-workers/internal/models"
	"helpdesk-workers/pkg/registry"
)

// FileStore reads policy text from a directory using the manifest to decide
// which files belong to which category. Files are read on every lookup so
// edits take effect without a restart.
type FileStore struct {
	dir      string
	registry *registry.PolicyRegistry
}

func NewFileStore(dir string, reg *registry.PolicyRegistry) *FileStore {
	return &FileStore{dir: dir, registry: reg}
}

// OpenFileStore loads the manifest at manifestPath.
func OpenFileStore(dir, manifestPath string) (*FileStore, error) {
	reg, err := registry.LoadRegistry(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("load knowledge manifest: %w", err)
	}
	return NewFileStore(dir, reg), nil
}

// Documents skips unreadable files. It only fails when every registered file
// for the category could not be read.
func (s *FileStore) Documents(ctx context.Context, category models.Category) ([]models.PolicyDocument, error) {
	policies := s.registry.ForCategory(category)
	docs := make([]models.PolicyDocument, 0, len(policies))
	var errs []error

	for _, p := range policies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := os.ReadFile(s.path(p.File))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.ID, err))
			continue
		}
		docs = append(docs, models.PolicyDocument{
			ID:       p.ID,
			Category: category,
			Title:    p.Title,
			Text:     string(text),
			Priority: p.Priority,
		})
	}

	if len(docs) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return docs, nil
}

// Load reads every registered file into a MemoryStore.
func (s *FileStore) Load(ctx context.Context) (*MemoryStore, error) {
	var all []models.PolicyDocument
	for _, c := range models.Categories {
		docs, err := s.Documents(ctx, c)
		if err != nil {
			return nil, err
		}
		all = append(all, docs...)
	}
	return NewMemoryStore(all...), nil
}

func (s *FileStore) path(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(s.dir, file)
}
