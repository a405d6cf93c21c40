package status

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/G-Research/taskboard/internal/taskboard/model"
)

type cachedLookup struct {
	status model.ExternalStatus
	found  bool
}

// CachedSource decorates a Source with a TTL cache so that render-rate
// reconciliation does not hit the backend once per frame. Absent results
// are cached too; a task unknown to the backend stays unknown for at least
// one expiry interval.
type CachedSource struct {
	delegate Source
	cache    *cache.Cache
}

func NewCachedSource(delegate Source, expiry time.Duration) *CachedSource {
	return &CachedSource{
		delegate: delegate,
		cache:    cache.New(expiry, 2*expiry),
	}
}

func (s *CachedSource) Lookup(ctx context.Context, entityId string) (model.ExternalStatus, bool, error) {
	if cached, ok := s.cache.Get(entityId); ok {
		lookup := cached.(cachedLookup)
		return lookup.status, lookup.found, nil
	}

	status, found, err := s.delegate.Lookup(ctx, entityId)
	if err != nil {
		return "", false, err
	}
	s.cache.SetDefault(entityId, cachedLookup{status: status, found: found})
	return status, found, nil
}
