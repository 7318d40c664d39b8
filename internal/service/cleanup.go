package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/sitesift/internal/repository"
)

// CachePurger removes cache entries older than an age.
type CachePurger interface {
	PurgeOlderThan(age time.Duration) (int, error)
}

// CleanupService purges stale cache entries and old run records.
type CleanupService struct {
	cache      CachePurger
	runs       repository.RunRepository
	sweepAfter time.Duration
	retention  time.Duration
	logger     *slog.Logger
}

// NewCleanupService creates a CleanupService. runs may be nil, and a
// non-positive retention keeps run records forever.
func NewCleanupService(cache CachePurger, runs repository.RunRepository, sweepAfter, retention time.Duration, logger *slog.Logger) *CleanupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		cache:      cache,
		runs:       runs,
		sweepAfter: sweepAfter,
		retention:  retention,
		logger:     logger.With("component", "cleanup"),
	}
}

// CleanupResult contains the results of a cleanup operation.
type CleanupResult struct {
	CacheEntriesRemoved int
	RunsDeleted         int64
	Errors              []error
}

// Cleanup runs one purge pass. Individual failures are collected in the
// result rather than aborting the pass.
func (s *CleanupService) Cleanup(ctx context.Context) *CleanupResult {
	result := &CleanupResult{}

	if s.cache != nil {
		n, err := s.cache.PurgeOlderThan(s.sweepAfter)
		if err != nil {
			s.logger.Error("failed to purge cache", "error", err)
			result.Errors = append(result.Errors, err)
		}
		result.CacheEntriesRemoved = n
	}

	if s.runs != nil && s.retention > 0 {
		cutoff := time.Now().Add(-s.retention)
		n, err := s.runs.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			s.logger.Error("failed to delete old runs", "error", err)
			result.Errors = append(result.Errors, err)
		}
		result.RunsDeleted = n
	}

	s.logger.Info("cleanup completed",
		"cache_entries_removed", result.CacheEntriesRemoved,
		"runs_deleted", result.RunsDeleted,
		"errors", len(result.Errors),
	)
	return result
}

// Run purges immediately and then every interval until ctx is done.
func (s *CleanupService) Run(ctx context.Context, interval time.Duration) {
	s.logger.Info("starting scheduled cleanup",
		"sweep_after", s.sweepAfter.String(),
		"retention", s.retention.String(),
		"interval", interval.String(),
	)

	s.Cleanup(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled cleanup stopped")
			return
		case <-ticker.C:
			s.Cleanup(ctx)
		}
	}
}
