// Package cache memoizes finished valuations per normalized query for a bounded
// time window.
package cache

import (
	"context"
	"time"

	"pawnval/internal/valuation/models"
	"pawnval/pkg/platform/sentinel"
)

// DefaultTTL reflects that resale prices drift slowly.
const DefaultTTL = 15 * time.Minute

var (
	// ErrNotFound is returned on a miss or an expired entry.
	ErrNotFound = sentinel.ErrNotFound
	// ErrUnavailable wraps failures of a remote tier.
	ErrUnavailable = sentinel.ErrUnavailable
)

// Cache stores estimates keyed by query. Returned estimates are shared and must
// not be mutated.
type Cache interface {
	Get(ctx context.Context, q models.Query) (*models.Estimate, error)
	Set(ctx context.Context, q models.Query, est *models.Estimate) error
}
