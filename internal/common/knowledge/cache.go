package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
	"helpdesk-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "helpdesk:kb:"

// CachedStore keeps lookups from another Store in Redis. Redis failures are
// logged and the lookup falls through to the wrapped store.
type CachedStore struct {
	next   Store
	rdb    redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedStore(next Store, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedStore {
	return &CachedStore{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "knowledge-cache"}),
	}
}

func cacheKey(category models.Category) string {
	return cacheKeyPrefix + string(category)
}

func (s *CachedStore) Documents(ctx context.Context, category models.Category) ([]models.PolicyDocument, error) {
	key := cacheKey(category)

	val, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var docs []models.PolicyDocument
		if jsonErr := json.Unmarshal([]byte(val), &docs); jsonErr == nil {
			metrics.KnowledgeCacheLookups.WithLabelValues("hit").Inc()
			return docs, nil
		}
		s.logger.Warn("discarding corrupt cache entry", map[string]interface{}{"key": key})
	case errors.Is(err, redis.Nil):
		metrics.KnowledgeCacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.KnowledgeCacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
	}

	docs, err := s.next.Documents(ctx, category)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(docs); err == nil {
		if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.logger.Warn("cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}
	return docs, nil
}

// Invalidate drops cached entries for the given categories, or all of them.
func (s *CachedStore) Invalidate(ctx context.Context, categories ...models.Category) error {
	if len(categories) == 0 {
		categories = models.Categories
	}
	keys := make([]string, len(categories))
	for i, c := range categories {
		keys[i] = cacheKey(c)
	}
	return s.rdb.Del(ctx, keys...).Err()
}
