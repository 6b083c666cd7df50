package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/errdeck/errdeck/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through
// here. The composite methods (PersistNotice, MergeProblems,
// CompressOldNotices, DeleteProblemsCascade) are transactional: each one
// either fully applies or leaves no partial state.
type Store interface {
	Ping(ctx context.Context) error

	CreateApp(ctx context.Context, app *models.App) error
	GetApp(ctx context.Context, id uuid.UUID) (*models.App, error)
	GetAppByAPIKey(ctx context.Context, apiKey string) (*models.App, error)
	ListApps(ctx context.Context) ([]*models.App, error)
	UpdateApp(ctx context.Context, app *models.App) error
	RegenerateAPIKey(ctx context.Context, id uuid.UUID) (*models.App, error)
	DeleteApp(ctx context.Context, id uuid.UUID) error

	CreateRule(ctx context.Context, rule *models.Rule) error
	ListRules(ctx context.Context, appID uuid.UUID) ([]*models.Rule, error)
	DeleteRule(ctx context.Context, id uuid.UUID, appID uuid.UUID) error

	FindOrCreateBacktrace(ctx context.Context, bt *models.Backtrace) (*models.Backtrace, error)
	FindOrBuildBacktrace(ctx context.Context, bt *models.Backtrace) (*models.Backtrace, error)
	GetBacktrace(ctx context.Context, id uuid.UUID) (*models.Backtrace, error)
	DeleteOrphanBacktraces(ctx context.Context) (int64, error)

	FindNoticeByFingerprint(ctx context.Context, appID uuid.UUID, fingerprint string) (*models.Notice, error)
	ListNotices(ctx context.Context, problemID uuid.UUID, limit int) ([]*models.Notice, error)
	CountNotices(ctx context.Context, problemID uuid.UUID) (int, error)
	PersistNotice(ctx context.Context, notice *models.Notice, prob *models.Problem, newProblem bool) (int, error)
	CompressOldNotices(ctx context.Context, problemID uuid.UUID, keep int) (int64, error)

	GetProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error)
	GetProblems(ctx context.Context, ids []uuid.UUID) ([]*models.Problem, error)
	ListProblemsByApp(ctx context.Context, appID uuid.UUID) ([]*models.Problem, error)
	ResolveProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error)
	UnresolveProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error)
	MergeProblems(ctx context.Context, canonical uuid.UUID, absorbed []uuid.UUID) (int, error)
	DeleteProblemsCascade(ctx context.Context, ids []uuid.UUID) (int64, error)
}
