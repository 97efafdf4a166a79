package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pawnval/internal/valuation/models"
)

// SharedTier is a slower cache shared between instances.
type SharedTier interface {
	Cache
	GetWithTime(ctx context.Context, q models.Query) (*models.Estimate, time.Time, error)
}

// Tiered reads the in-process tier first, then the shared tier, copying shared
// hits into the local tier. Shared-tier failures degrade to misses.
type Tiered struct {
	local  *Memory
	shared SharedTier
	logger *slog.Logger
}

// NewTiered composes a local and a shared tier.
func NewTiered(local *Memory, shared SharedTier, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{local: local, shared: shared, logger: logger}
}

func (t *Tiered) Get(ctx context.Context, q models.Query) (*models.Estimate, error) {
	if est, err := t.local.Get(ctx, q); err == nil {
		return est, nil
	}

	est, storedAt, err := t.shared.GetWithTime(ctx, q)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			t.logger.WarnContext(ctx, "shared cache read failed", "query", q.String(), "error", err)
		}
		return nil, ErrNotFound
	}
	if storedAt.IsZero() {
		storedAt = t.local.clock()
	}
	_ = t.local.SetAt(ctx, q, est, storedAt)
	return est, nil
}

func (t *Tiered) Set(ctx context.Context, q models.Query, est *models.Estimate) error {
	if err := t.local.Set(ctx, q, est); err != nil {
		return err
	}
	if err := t.shared.Set(ctx, q, est); err != nil {
		t.logger.WarnContext(ctx, "shared cache write failed", "query", q.String(), "error", err)
	}
	return nil
}
