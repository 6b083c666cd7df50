package problem

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Destroyer removes problems and their owned notices. Deletion order is
// explicit and transactional in the store; backtraces are reclaimed
// afterwards by reachability, never by reference counting.
type Destroyer struct {
	store Store
}

// NewDestroyer creates a Destroyer.
func NewDestroyer(s Store) *Destroyer {
	return &Destroyer{store: s}
}

// Destroy deletes the given problems with their notices and reclaims any
// backtraces orphaned by the deletion. Missing problems are skipped.
func (d *Destroyer) Destroy(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted, err := d.store.DeleteProblemsCascade(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("destroy problems: %w", err)
	}
	if _, err := d.store.DeleteOrphanBacktraces(ctx); err != nil {
		slog.Warn("orphan backtrace cleanup failed after destroy", "error", err)
	}
	return deleted, nil
}
