package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/errdeck/errdeck/internal/metrics"
	"github.com/errdeck/errdeck/internal/notify"
	"github.com/errdeck/errdeck/internal/problem"
	"github.com/errdeck/errdeck/internal/store"
	"github.com/errdeck/errdeck/pkg/models"
)

// State names the stage an occurrence reached inside the pipeline.
type State string

const (
	StateReceived      State = "received"
	StateValidated     State = "validated"
	StateFingerprinted State = "fingerprinted"
	StateMatched       State = "matched"
	StatePersisted     State = "persisted"
	StateRetained      State = "retained"
	StateNotified      State = "notified"
	StateDone          State = "done"
	StateRejected      State = "rejected"
)

// PipelineStore is the slice of the store the pipeline needs beyond
// matching. PersistNotice is transactional: it creates or updates the
// problem's cached fields, clears its resolved state, inserts the notice,
// and increments notices_count as one unit, returning the new count.
type PipelineStore interface {
	MatcherStore
	FindOrCreateBacktrace(ctx context.Context, bt *models.Backtrace) (*models.Backtrace, error)
	PersistNotice(ctx context.Context, notice *models.Notice, prob *models.Problem, newProblem bool) (int, error)
}

// AppSource resolves an API key to its app; typically the cache-backed
// lookup in front of the store.
type AppSource interface {
	GetAppByAPIKey(ctx context.Context, apiKey string) (*models.App, error)
}

// Merger collapses matched candidate problems into one canonical problem.
type Merger interface {
	Merge(ctx context.Context, ids []uuid.UUID) (*models.Problem, error)
}

// Compressor enforces the per-problem retention window.
type Compressor interface {
	Compress(ctx context.Context, problemID uuid.UUID) (int64, error)
}

// Result reports the outcome of one ingested occurrence.
type Result struct {
	State    State
	Notice   *models.Notice
	Problem  *models.Problem
	Merged   int
	Notified bool
}

// Pipeline orchestrates ingestion of a single occurrence: validate,
// normalize and fingerprint, match (merging fragmented problems when the
// occurrence proves they are the same defect), persist, trim, notify.
// Pipelines are safe for concurrent use; the store is the only
// synchronization point.
type Pipeline struct {
	store      PipelineStore
	apps       AppSource
	matcher    *Matcher
	merger     Merger
	retention  Compressor
	dispatcher notify.Dispatcher
}

// NewPipeline wires a Pipeline from its collaborators.
func NewPipeline(s PipelineStore, apps AppSource, merger Merger, retention Compressor, dispatcher notify.Dispatcher) *Pipeline {
	return &Pipeline{
		store:      s,
		apps:       apps,
		matcher:    NewMatcher(s),
		merger:     merger,
		retention:  retention,
		dispatcher: dispatcher,
	}
}

// Process ingests one occurrence. Validation and credential failures are
// terminal for the occurrence; store failures are retryable and leave no
// partial state. Submitting identical attributes twice is safe: the second
// call reuses the first problem via its fingerprint, though a second
// Notice row is created by design (distinct occurrences may legitimately
// share a fingerprint; de-duplicating rows by fingerprint before insert is
// the caller's choice).
func (p *Pipeline) Process(ctx context.Context, report *models.Report) (*Result, error) {
	res := &Result{State: StateReceived}

	if err := validateReport(report); err != nil {
		res.State = StateRejected
		metrics.NoticesRejectedTotal.WithLabelValues("validation").Inc()
		return res, err
	}

	app, err := p.apps.GetAppByAPIKey(ctx, report.APIKey)
	if err != nil {
		res.State = StateRejected
		if errors.Is(err, store.ErrNotFound) {
			metrics.NoticesRejectedTotal.WithLabelValues("unknown_key").Inc()
			return res, fmt.Errorf("%w: %q", ErrUnknownCredential, report.APIKey)
		}
		return res, fmt.Errorf("%w: resolve app: %v", ErrStoreUnavailable, err)
	}
	res.State = StateValidated

	notice := buildNotice(report)
	if !versionAllowed(app, notice.AppVersion()) {
		res.State = StateRejected
		metrics.NoticesRejectedTotal.WithLabelValues("version_gated").Inc()
		return res, fmt.Errorf("%w: reported %q, minimum %q",
			ErrVersionGated, notice.AppVersion(), app.CurrentAppVersion)
	}

	var backtrace *models.Backtrace
	if len(report.Backtrace) > 0 {
		backtrace, err = p.store.FindOrCreateBacktrace(ctx, &models.Backtrace{
			ID:          uuid.New(),
			Fingerprint: BacktraceFingerprint(report.Backtrace),
			Frames:      report.Backtrace,
		})
		if err != nil {
			res.State = StateRejected
			return res, fmt.Errorf("%w: store backtrace: %v", ErrStoreUnavailable, err)
		}
		notice.BacktraceID = &backtrace.ID
	}

	fingerprint, err := NoticeFingerprint(notice, backtrace)
	if err != nil {
		var fpErr *FingerprintError
		if !errors.As(err, &fpErr) {
			res.State = StateRejected
			return res, err
		}
		// Non-fatal: persist the occurrence without a fingerprint.
		metrics.FingerprintErrorsTotal.Inc()
		slog.Warn("fingerprint generation failed", "app", app.Name, "error", err)
	} else {
		notice.Fingerprint = fingerprint
	}
	res.State = StateFingerprinted

	candidates, err := p.matcher.Match(ctx, app, notice)
	if err != nil {
		res.State = StateRejected
		return res, fmt.Errorf("%w: match: %v", ErrStoreUnavailable, err)
	}

	var prob *models.Problem
	newProblem := false
	switch len(candidates) {
	case 0:
		prob = newProblemFromNotice(app, notice)
		newProblem = true
		metrics.ProblemsCreatedTotal.Inc()
	case 1:
		prob = candidates[0]
	default:
		ids := make([]uuid.UUID, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		prob, err = p.merger.Merge(ctx, ids)
		switch {
		case err == nil:
			res.Merged = len(candidates)
			metrics.ProblemMergesTotal.Inc()
		case errors.Is(err, problem.ErrNothingToMerge):
			// Every candidate vanished under a racing merge; start fresh.
			prob = newProblemFromNotice(app, notice)
			newProblem = true
			metrics.ProblemsCreatedTotal.Inc()
		default:
			res.State = StateRejected
			return res, fmt.Errorf("%w: merge candidates: %v", ErrStoreUnavailable, err)
		}
	}
	res.State = StateMatched

	reopened := prob.Resolved

	// Cached display fields follow the latest occurrence.
	prob.Message = notice.Message
	prob.Where = notice.Where()
	prob.Environment = notice.Environment()
	prob.ErrorClass = notice.ErrorClass
	notice.ProblemID = prob.ID

	count, err := p.store.PersistNotice(ctx, notice, prob, newProblem)
	if err != nil {
		res.State = StateRejected
		return res, fmt.Errorf("%w: persist notice: %v", ErrStoreUnavailable, err)
	}
	prob.NoticesCount = count
	prob.Resolved = false
	prob.ResolvedAt = nil
	res.State = StatePersisted
	metrics.NoticesIngestedTotal.Inc()

	if compressed, err := p.retention.Compress(ctx, prob.ID); err != nil {
		// The occurrence is already persisted; a failed trim is retried by
		// the next ingest into this problem.
		slog.Warn("retention trim failed", "problem_id", prob.ID, "error", err)
	} else if compressed > 0 {
		metrics.NoticesCompressedTotal.Add(float64(compressed))
	}
	res.State = StateRetained

	if notify.ShouldNotify(app, prob, reopened) {
		res.Notified = true
		metrics.NotificationsTotal.Inc()
		if err := p.dispatcher.Dispatch(ctx, app, prob, notice); err != nil {
			slog.Error("notification dispatch failed",
				"app", app.Name, "problem_id", prob.ID, "error", err)
		}
		res.State = StateNotified
	}

	res.State = StateDone
	res.Notice = notice
	res.Problem = prob
	return res, nil
}

// validateReport checks structural requirements of the inbound attribute
// set. Wire-format concerns are the transport's job; by the time a report
// reaches the pipeline only presence checks remain. Message is optional:
// some notifiers report bare error classes, and fingerprinting and fuzzy
// matching both tolerate its absence.
func validateReport(r *models.Report) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: empty report", ErrValidation)
	case r.APIKey == "":
		return fmt.Errorf("%w: missing api key", ErrValidation)
	case r.ErrorClass == "":
		return fmt.Errorf("%w: missing error class", ErrValidation)
	case len(r.ServerEnvironment) == 0:
		return fmt.Errorf("%w: missing server environment", ErrValidation)
	case len(r.Notifier) == 0:
		return fmt.Errorf("%w: missing notifier", ErrValidation)
	}
	return nil
}

func buildNotice(r *models.Report) *models.Notice {
	n := &models.Notice{
		ID:                uuid.New(),
		ErrorClass:        r.ErrorClass,
		Framework:         r.Framework,
		Request:           SanitizeMap(r.Request),
		ServerEnvironment: SanitizeMap(r.ServerEnvironment),
		Notifier:          SanitizeMap(r.Notifier),
		UserAttributes:    SanitizeMap(r.UserAttributes),
		CreatedAt:         time.Now().UTC(),
	}
	n.SetMessage(r.Message)
	return n
}

func newProblemFromNotice(app *models.App, notice *models.Notice) *models.Problem {
	now := time.Now().UTC()
	return &models.Problem{
		ID:          uuid.New(),
		AppID:       app.ID,
		Message:     notice.Message,
		Where:       notice.Where(),
		Environment: notice.Environment(),
		ErrorClass:  notice.ErrorClass,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
