package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const maxDocumentsPerCategory = 10

// ElasticsearchStore serves policy documents from an index where each
// document carries its category as a keyword field.
type ElasticsearchStore struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchStore(client *elasticsearch.Client, index string) *ElasticsearchStore {
	return &ElasticsearchStore{client: client, index: index}
}

type policySource struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string       `json:"_id"`
			Source policySource `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *ElasticsearchStore) Documents(ctx context.Context, category models.Category) ([]models.PolicyDocument, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"category": string(category)},
		},
		"sort": []interface{}{
			map[string]interface{}{"priority": map[string]interface{}{"order": "asc"}},
		},
	})
	size := maxDocumentsPerCategory

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError(s.index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewIndexNotFoundError(s.index)
	}
	if res.IsError() {
		return nil, apperrors.NewSearchQueryFailedError(s.index, fmt.Errorf("status %s", res.Status()))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewSearchQueryFailedError(s.index, fmt.Errorf("decode: %w", err))
	}

	docs := make([]models.PolicyDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		id := hit.Source.ID
		if id == "" {
			id = hit.ID
		}
		docs = append(docs, models.PolicyDocument{
			ID:       id,
			Category: category,
			Title:    hit.Source.Title,
			Text:     hit.Source.Text,
			Priority: hit.Source.Priority,
		})
	}
	sortByPriority(docs)
	return docs, nil
}

// EnsureIndex creates the index with a keyword category field when missing.
func (s *ElasticsearchStore) EnsureIndex(ctx context.Context) error {
	exists, err := esapi.IndicesExistsRequest{Index: []string{s.index}}.Do(ctx, s.client)
	if err != nil {
		return apperrors.NewSearchQueryFailedError(s.index, err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	mapping := `{
  "mappings": {
    "properties": {
      "id":       {"type": "keyword"},
      "category": {"type": "keyword"},
      "title":    {"type": "text"},
      "text":     {"type": "text"},
      "priority": {"type": "integer"}
    }
  }
}`
	res, err := esapi.IndicesCreateRequest{Index: s.index, Body: strings.NewReader(mapping)}.Do(ctx, s.client)
	if err != nil {
		return apperrors.NewSearchQueryFailedError(s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.NewSearchQueryFailedError(s.index, fmt.Errorf("create index: %s", res.Status()))
	}
	return nil
}

// Index writes doc under its id, replacing any previous version.
func (s *ElasticsearchStore) Index(ctx context.Context, doc models.PolicyDocument) error {
	body, err := json.Marshal(policySource{
		ID:       doc.ID,
		Category: string(doc.Category),
		Title:    doc.Title,
		Text:     doc.Text,
		Priority: doc.Priority,
	})
	if err != nil {
		return err
	}

	res, err := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}.Do(ctx, s.client)
	if err != nil {
		return apperrors.NewSearchQueryFailedError(s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.NewSearchQueryFailedError(s.index, fmt.Errorf("index %s: %s", doc.ID, res.Status()))
	}
	return nil
}
