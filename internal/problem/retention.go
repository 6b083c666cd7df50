package problem

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// MaxRetained is the number of fully-detailed occurrences kept per problem.
// Everything older is compressed in place: heavy metadata fields are
// cleared but the row and its timestamp remain, so the problem's
// occurrence count stays truthful.
const MaxRetained = 100

// Compressor enforces the retention window on a problem's notices.
type Compressor struct {
	store Store
	limit int
}

// NewCompressor creates a Compressor with the default retention limit.
func NewCompressor(s Store) *Compressor {
	return &Compressor{store: s, limit: MaxRetained}
}

// Compress trims the problem's notices down to the retention window and
// reclaims backtraces left unreferenced by the trim. Returns the number of
// notices compressed by this pass.
//
// The keep set and the update run inside a single store statement, so
// occurrences inserted while the trim executes are never touched by it.
func (c *Compressor) Compress(ctx context.Context, problemID uuid.UUID) (int64, error) {
	total, err := c.store.CountNotices(ctx, problemID)
	if err != nil {
		return 0, fmt.Errorf("count notices: %w", err)
	}
	if total <= c.limit {
		return 0, nil
	}

	compressed, err := c.store.CompressOldNotices(ctx, problemID, c.limit)
	if err != nil {
		return 0, fmt.Errorf("compress notices: %w", err)
	}
	if compressed == 0 {
		return 0, nil
	}

	if _, err := c.store.DeleteOrphanBacktraces(ctx); err != nil {
		slog.Warn("orphan backtrace cleanup failed after trim",
			"problem_id", problemID, "error", err)
	}

	slog.Info("notices compressed",
		"problem_id", problemID,
		"compressed", compressed,
		"retained", c.limit,
	)
	return compressed, nil
}
