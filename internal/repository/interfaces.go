// Package repository persists run history.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmylchreest/sitesift/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// RunRepository stores extraction runs.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	Update(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id string) (*models.Run, error)
	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]*models.Run, error)
	// DeleteOlderThan removes runs created before t and returns how many
	// were removed.
	DeleteOlderThan(ctx context.Context, t time.Time) (int64, error)
}
