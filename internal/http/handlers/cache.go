package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/sitesift/internal/cache"
)

// CacheStore is the subset of *cache.Store the cache endpoints use.
type CacheStore interface {
	Stats() (cache.Stats, error)
	PurgeOlderThan(age time.Duration) (int, error)
	Clear() (int, error)
}

// CacheHandler serves cache statistics and purging.
type CacheHandler struct {
	store      CacheStore
	sweepAfter time.Duration
}

// NewCacheHandler creates a CacheHandler. Purges without an explicit age
// use sweepAfter.
func NewCacheHandler(store CacheStore, sweepAfter time.Duration) *CacheHandler {
	if sweepAfter <= 0 {
		sweepAfter = cache.DefaultSweepAfter
	}
	return &CacheHandler{store: store, sweepAfter: sweepAfter}
}

// CacheStatsOutput is the cache's contents and hit rate.
type CacheStatsOutput struct {
	Body cache.Stats
}

// Stats returns cache statistics.
func (h *CacheHandler) Stats(ctx context.Context, input *struct{}) (*CacheStatsOutput, error) {
	st, err := h.store.Stats()
	if err != nil {
		return nil, toHumaError(err)
	}
	return &CacheStatsOutput{Body: st}, nil
}

// PurgeCacheInput selects which entries to remove.
type PurgeCacheInput struct {
	Body struct {
		OlderThan string `json:"older_than,omitempty" doc:"Go duration; defaults to the sweep threshold" example:"48h"`
		All       bool   `json:"all,omitempty" doc:"Remove every entry regardless of age"`
	}
}

// PurgeCacheOutput reports how many entries were removed.
type PurgeCacheOutput struct {
	Body struct {
		Removed int `json:"removed"`
	}
}

// Purge removes old cache entries.
func (h *CacheHandler) Purge(ctx context.Context, input *PurgeCacheInput) (*PurgeCacheOutput, error) {
	var (
		removed int
		err     error
	)
	switch {
	case input.Body.All:
		removed, err = h.store.Clear()
	default:
		age := h.sweepAfter
		if input.Body.OlderThan != "" {
			age, err = time.ParseDuration(input.Body.OlderThan)
			if err != nil || age < 0 {
				return nil, huma.Error400BadRequest(fmt.Sprintf("invalid older_than %q", input.Body.OlderThan))
			}
		}
		removed, err = h.store.PurgeOlderThan(age)
	}
	if err != nil {
		return nil, toHumaError(err)
	}
	out := &PurgeCacheOutput{}
	out.Body.Removed = removed
	return out, nil
}
