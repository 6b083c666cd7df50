package problem

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errdeck/errdeck/pkg/models"
)

// fakeNotice carries just enough state to exercise merge, trim, and
// destroy semantics in memory.
type fakeNotice struct {
	id          uuid.UUID
	problemID   uuid.UUID
	backtraceID *uuid.UUID
	createdAt   time.Time
	compressed  bool
}

type fakeStore struct {
	problems   map[uuid.UUID]*models.Problem
	notices    map[uuid.UUID]*fakeNotice
	backtraces map[uuid.UUID]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		problems:   make(map[uuid.UUID]*models.Problem),
		notices:    make(map[uuid.UUID]*fakeNotice),
		backtraces: make(map[uuid.UUID]struct{}),
	}
}

func (f *fakeStore) addProblem(cachedCount int) *models.Problem {
	p := &models.Problem{ID: uuid.New(), NoticesCount: cachedCount}
	f.problems[p.ID] = p
	return p
}

func (f *fakeStore) addNotice(problemID uuid.UUID, createdAt time.Time, backtraceID *uuid.UUID) *fakeNotice {
	n := &fakeNotice{id: uuid.New(), problemID: problemID, createdAt: createdAt, backtraceID: backtraceID}
	f.notices[n.id] = n
	return n
}

func (f *fakeStore) addBacktrace() uuid.UUID {
	id := uuid.New()
	f.backtraces[id] = struct{}{}
	return id
}

func (f *fakeStore) GetProblems(_ context.Context, ids []uuid.UUID) ([]*models.Problem, error) {
	var out []*models.Problem
	for _, id := range ids {
		if p, ok := f.problems[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) MergeProblems(_ context.Context, canonical uuid.UUID, absorbed []uuid.UUID) (int, error) {
	absorbedSet := make(map[uuid.UUID]struct{}, len(absorbed))
	for _, id := range absorbed {
		absorbedSet[id] = struct{}{}
	}
	for _, n := range f.notices {
		if _, ok := absorbedSet[n.problemID]; ok {
			n.problemID = canonical
		}
	}
	for _, id := range absorbed {
		delete(f.problems, id)
	}
	count := 0
	for _, n := range f.notices {
		if n.problemID == canonical {
			count++
		}
	}
	f.problems[canonical].NoticesCount = count
	return count, nil
}

func (f *fakeStore) CountNotices(_ context.Context, problemID uuid.UUID) (int, error) {
	count := 0
	for _, n := range f.notices {
		if n.problemID == problemID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CompressOldNotices(_ context.Context, problemID uuid.UUID, keep int) (int64, error) {
	var owned []*fakeNotice
	for _, n := range f.notices {
		if n.problemID == problemID {
			owned = append(owned, n)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].createdAt.Equal(owned[j].createdAt) {
			return owned[i].createdAt.After(owned[j].createdAt)
		}
		return owned[i].id.String() > owned[j].id.String()
	})
	var compressed int64
	for i, n := range owned {
		if i < keep || n.compressed {
			continue
		}
		n.compressed = true
		n.backtraceID = nil
		compressed++
	}
	return compressed, nil
}

func (f *fakeStore) DeleteOrphanBacktraces(_ context.Context) (int64, error) {
	referenced := make(map[uuid.UUID]struct{})
	for _, n := range f.notices {
		if n.backtraceID != nil {
			referenced[*n.backtraceID] = struct{}{}
		}
	}
	var deleted int64
	for id := range f.backtraces {
		if _, ok := referenced[id]; !ok {
			delete(f.backtraces, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) DeleteProblemsCascade(_ context.Context, ids []uuid.UUID) (int64, error) {
	var deleted int64
	for _, id := range ids {
		if _, ok := f.problems[id]; !ok {
			continue
		}
		delete(f.problems, id)
		deleted++
		for nid, n := range f.notices {
			if n.problemID == id {
				delete(f.notices, nid)
			}
		}
	}
	return deleted, nil
}

func (f *fakeStore) trueCount(problemID uuid.UUID) int {
	count, _ := f.CountNotices(context.Background(), problemID)
	return count
}

// --- Merger ---

func TestMerge_ReassignsAndDeletes(t *testing.T) {
	fs := newFakeStore()
	canonical := fs.addProblem(2)
	absorbed := fs.addProblem(3)
	now := time.Now()
	for i := 0; i < 2; i++ {
		fs.addNotice(canonical.ID, now.Add(time.Duration(i)*time.Second), nil)
	}
	for i := 0; i < 3; i++ {
		fs.addNotice(absorbed.ID, now.Add(time.Duration(i)*time.Second), nil)
	}

	got, err := NewMerger(fs).Merge(context.Background(), []uuid.UUID{canonical.ID, absorbed.ID})
	require.NoError(t, err)

	assert.Equal(t, canonical.ID, got.ID)
	assert.Equal(t, 5, got.NoticesCount)
	assert.Equal(t, 5, fs.trueCount(canonical.ID), "notices_count must equal the true count")
	assert.NotContains(t, fs.problems, absorbed.ID)
}

func TestMerge_RecomputesCountFromTruth(t *testing.T) {
	fs := newFakeStore()
	canonical := fs.addProblem(99) // stale cache
	absorbed := fs.addProblem(42)  // stale cache
	now := time.Now()
	fs.addNotice(canonical.ID, now, nil)
	fs.addNotice(absorbed.ID, now, nil)

	got, err := NewMerger(fs).Merge(context.Background(), []uuid.UUID{canonical.ID, absorbed.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, got.NoticesCount, "stale cached counters must not be summed")
}

func TestMerge_SingleElementIsNoOp(t *testing.T) {
	fs := newFakeStore()
	p := fs.addProblem(1)
	fs.addNotice(p.ID, time.Now(), nil)

	got, err := NewMerger(fs).Merge(context.Background(), []uuid.UUID{p.ID})
	require.NoError(t, err)
	assert.Same(t, fs.problems[p.ID], got)
	assert.Equal(t, 1, got.NoticesCount)
}

func TestMerge_SecondMergeOfSameSetIsNoOp(t *testing.T) {
	fs := newFakeStore()
	canonical := fs.addProblem(1)
	absorbed := fs.addProblem(1)
	now := time.Now()
	fs.addNotice(canonical.ID, now, nil)
	fs.addNotice(absorbed.ID, now, nil)

	merger := NewMerger(fs)
	ids := []uuid.UUID{canonical.ID, absorbed.ID}

	first, err := merger.Merge(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, 2, first.NoticesCount)

	// absorbed problem is gone now; merging again must not error
	second, err := merger.Merge(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, canonical.ID, second.ID)
	assert.Equal(t, 2, fs.trueCount(canonical.ID))
}

func TestMerge_AllProblemsGone(t *testing.T) {
	fs := newFakeStore()
	_, err := NewMerger(fs).Merge(context.Background(), []uuid.UUID{uuid.New(), uuid.New()})
	assert.ErrorIs(t, err, ErrNothingToMerge)
}

func TestMerge_ReclaimsOrphanedBacktraces(t *testing.T) {
	fs := newFakeStore()
	canonical := fs.addProblem(0)
	absorbed := fs.addProblem(0)

	shared := fs.addBacktrace()
	now := time.Now()
	fs.addNotice(canonical.ID, now, &shared)
	fs.addNotice(absorbed.ID, now, &shared)

	// make all absorbed notices exceed the window so their backtrace ref
	// survives reassignment; nothing should be orphaned here
	_, err := NewMerger(fs).Merge(context.Background(), []uuid.UUID{canonical.ID, absorbed.ID})
	require.NoError(t, err)
	assert.Contains(t, fs.backtraces, shared, "still-referenced backtrace must survive")
}

func TestMerge_DuplicateIDsCollapse(t *testing.T) {
	fs := newFakeStore()
	canonical := fs.addProblem(0)
	absorbed := fs.addProblem(0)
	now := time.Now()
	fs.addNotice(canonical.ID, now, nil)
	fs.addNotice(absorbed.ID, now, nil)

	got, err := NewMerger(fs).Merge(context.Background(),
		[]uuid.UUID{canonical.ID, canonical.ID, absorbed.ID})
	require.NoError(t, err)
	assert.Equal(t, canonical.ID, got.ID)
	assert.Equal(t, 2, got.NoticesCount)
}

// --- Compressor ---

func TestCompress_TrimsToRetentionWindow(t *testing.T) {
	fs := newFakeStore()
	p := fs.addProblem(150)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 150; i++ {
		bt := fs.addBacktrace()
		fs.addNotice(p.ID, base.Add(time.Duration(i)*time.Second), &bt)
	}

	compressed, err := NewCompressor(fs).Compress(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), compressed)

	var kept, stripped int
	for _, n := range fs.notices {
		if n.compressed {
			stripped++
			assert.Nil(t, n.backtraceID, "compressed notices must drop their backtrace reference")
		} else {
			kept++
		}
	}
	assert.Equal(t, 100, kept)
	assert.Equal(t, 50, stripped)
	assert.Equal(t, 150, fs.trueCount(p.ID), "compression keeps rows, so the count is unchanged")
	assert.Len(t, fs.backtraces, 100, "backtraces of compressed notices are reclaimed")

	// the 50 oldest are the stripped ones
	cutoff := base.Add(50 * time.Second)
	for _, n := range fs.notices {
		if n.createdAt.Before(cutoff) {
			assert.True(t, n.compressed)
		}
	}
}

func TestCompress_UnderLimitIsNoOp(t *testing.T) {
	fs := newFakeStore()
	p := fs.addProblem(10)
	for i := 0; i < 10; i++ {
		fs.addNotice(p.ID, time.Now(), nil)
	}
	compressed, err := NewCompressor(fs).Compress(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Zero(t, compressed)
}

func TestCompress_SecondPassFindsNothingNew(t *testing.T) {
	fs := newFakeStore()
	p := fs.addProblem(120)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 120; i++ {
		fs.addNotice(p.ID, base.Add(time.Duration(i)*time.Second), nil)
	}

	c := NewCompressor(fs)
	first, err := c.Compress(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), first)

	second, err := c.Compress(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Zero(t, second, "already-compressed notices are not compressed again")
}

// --- Destroyer ---

func TestDestroy_CascadesAndReclaims(t *testing.T) {
	fs := newFakeStore()
	doomed := fs.addProblem(2)
	survivor := fs.addProblem(1)

	orphanable := fs.addBacktrace()
	shared := fs.addBacktrace()
	now := time.Now()
	fs.addNotice(doomed.ID, now, &orphanable)
	fs.addNotice(doomed.ID, now, &shared)
	fs.addNotice(survivor.ID, now, &shared)

	deleted, err := NewDestroyer(fs).Destroy(context.Background(), []uuid.UUID{doomed.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	assert.NotContains(t, fs.problems, doomed.ID)
	assert.Equal(t, 0, fs.trueCount(doomed.ID))
	assert.Equal(t, 1, fs.trueCount(survivor.ID))
	assert.NotContains(t, fs.backtraces, orphanable, "backtrace only referenced by deleted notices is reclaimed")
	assert.Contains(t, fs.backtraces, shared, "backtrace still referenced by a survivor is kept")
}

func TestDestroy_EmptyList(t *testing.T) {
	fs := newFakeStore()
	deleted, err := NewDestroyer(fs).Destroy(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
