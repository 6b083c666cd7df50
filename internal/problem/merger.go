// Package problem holds the maintenance operations on problems: merging
// fragmented groups, retention compression of old occurrences, and
// cascading destruction. All mutation goes through the store's bulk
// primitives; the package itself keeps no state.
package problem

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/errdeck/errdeck/pkg/models"
)

// Store is the slice of the persistent store these operations need. The
// composite methods are transactional: MergeProblems reassigns, deletes,
// and recounts in one unit, and CompressOldNotices computes its keep set
// and clears rows inside a single statement snapshot.
type Store interface {
	GetProblems(ctx context.Context, ids []uuid.UUID) ([]*models.Problem, error)
	MergeProblems(ctx context.Context, canonical uuid.UUID, absorbed []uuid.UUID) (int, error)
	CountNotices(ctx context.Context, problemID uuid.UUID) (int, error)
	CompressOldNotices(ctx context.Context, problemID uuid.UUID, keep int) (int64, error)
	DeleteOrphanBacktraces(ctx context.Context) (int64, error)
	DeleteProblemsCascade(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// ErrNothingToMerge reports that none of the requested problems exist.
var ErrNothingToMerge = fmt.Errorf("merge: no problems found")

// Merger collapses several problems into one canonical survivor.
type Merger struct {
	store      Store
	compressor *Compressor
}

// NewMerger creates a Merger that applies retention compression to the
// survivor after each merge.
func NewMerger(s Store) *Merger {
	return &Merger{store: s, compressor: NewCompressor(s)}
}

// Merge collapses the listed problems into the first one that still
// exists, reassigning every absorbed problem's notices and deleting the
// absorbed problems. Requested problems that no longer exist are treated
// as already merged, so racing merges of the same candidate set settle as
// no-ops. The survivor's notices_count is recomputed from the true
// post-merge count, never from summed caches.
func (m *Merger) Merge(ctx context.Context, ids []uuid.UUID) (*models.Problem, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrNothingToMerge
	}

	found, err := m.store.GetProblems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load merge candidates: %w", err)
	}
	ordered := reorder(ids, found)
	if len(ordered) == 0 {
		return nil, ErrNothingToMerge
	}

	canonical := ordered[0]
	absorbed := ordered[1:]
	if len(absorbed) == 0 {
		// Single survivor, nothing to do.
		return canonical, nil
	}

	absorbedIDs := make([]uuid.UUID, len(absorbed))
	for i, p := range absorbed {
		absorbedIDs[i] = p.ID
	}

	count, err := m.store.MergeProblems(ctx, canonical.ID, absorbedIDs)
	if err != nil {
		return nil, fmt.Errorf("merge problems: %w", err)
	}
	canonical.NoticesCount = count

	if _, err := m.store.DeleteOrphanBacktraces(ctx); err != nil {
		// Orphans are reclaimed opportunistically; the next merge or trim
		// picks up anything left behind.
		slog.Warn("orphan backtrace cleanup failed after merge", "error", err)
	}

	if _, err := m.compressor.Compress(ctx, canonical.ID); err != nil {
		slog.Warn("retention compression failed after merge",
			"problem_id", canonical.ID, "error", err)
	}

	slog.Info("problems merged",
		"canonical_id", canonical.ID,
		"absorbed", len(absorbedIDs),
		"notices_count", count,
	)
	return canonical, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// reorder restores the caller's ordering over the subset of problems the
// store still has; the first surviving entry becomes canonical.
func reorder(ids []uuid.UUID, found []*models.Problem) []*models.Problem {
	byID := make(map[uuid.UUID]*models.Problem, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]*models.Problem, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}
