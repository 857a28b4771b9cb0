// Package knowledge provides read-only lookups from ticket category to the
// policy documents registered for it.
package knowledge

import (
	"context"
	"sort"
	"strings"

	"helpdesk-workers/internal/models"
)

// Store returns the documents for a category in lookup order. An empty slice
// with a nil error means nothing is registered.
type Store interface {
	Documents(ctx context.Context, category models.Category) ([]models.PolicyDocument, error)
}

// First returns the first document with non-empty text.
func First(docs []models.PolicyDocument) (models.PolicyDocument, bool) {
	for _, d := range docs {
		if strings.TrimSpace(d.Text) != "" {
			return d, true
		}
	}
	return models.PolicyDocument{}, false
}

func sortByPriority(docs []models.PolicyDocument) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Priority < docs[j].Priority })
}

// MemoryStore keeps documents in a map. It is safe for concurrent reads.
type MemoryStore struct {
	docs map[models.Category][]models.PolicyDocument
}

func NewMemoryStore(docs ...models.PolicyDocument) *MemoryStore {
	s := &MemoryStore{docs: make(map[models.Category][]models.PolicyDocument)}
	for _, d := range docs {
		s.docs[d.Category] = append(s.docs[d.Category], d)
	}
	for c := range s.docs {
		sortByPriority(s.docs[c])
	}
	return s
}

func (s *MemoryStore) Documents(_ context.Context, category models.Category) ([]models.PolicyDocument, error) {
	docs := s.docs[category]
	out := make([]models.PolicyDocument, len(docs))
	copy(out, docs)
	return out, nil
}

// All returns every document grouped in category priority order.
func (s *MemoryStore) All() []models.PolicyDocument {
	var out []models.PolicyDocument
	for _, c := range models.Categories {
		out = append(out, s.docs[c]...)
	}
	return out
}
