package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errdeck/errdeck/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Apps ---

const appColumns = `id, name, api_key, current_app_version, notify_on_errors, notify_thresholds, created_at, updated_at`

func scanApp(row pgx.Row) (*models.App, error) {
	var a models.App
	err := row.Scan(&a.ID, &a.Name, &a.APIKey, &a.CurrentAppVersion,
		&a.NotifyOnErrors, &a.NotifyThresholds, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan app: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) CreateApp(ctx context.Context, app *models.App) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO apps (id, name, api_key, current_app_version, notify_on_errors, notify_thresholds, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		app.ID, app.Name, app.APIKey, app.CurrentAppVersion,
		app.NotifyOnErrors, app.NotifyThresholds, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create app: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetApp(ctx context.Context, id uuid.UUID) (*models.App, error) {
	return scanApp(s.pool.QueryRow(ctx,
		`SELECT `+appColumns+` FROM apps WHERE id = $1`, id))
}

func (s *PostgresStore) GetAppByAPIKey(ctx context.Context, apiKey string) (*models.App, error) {
	return scanApp(s.pool.QueryRow(ctx,
		`SELECT `+appColumns+` FROM apps WHERE api_key = $1`, apiKey))
}

func (s *PostgresStore) ListApps(ctx context.Context) ([]*models.App, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+appColumns+` FROM apps ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	var apps []*models.App
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (s *PostgresStore) UpdateApp(ctx context.Context, app *models.App) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE apps SET name = $2, current_app_version = $3, notify_on_errors = $4,
		   notify_thresholds = $5, updated_at = NOW()
		 WHERE id = $1`,
		app.ID, app.Name, app.CurrentAppVersion, app.NotifyOnErrors, app.NotifyThresholds)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update app: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RegenerateAPIKey(ctx context.Context, id uuid.UUID) (*models.App, error) {
	return scanApp(s.pool.QueryRow(ctx,
		`UPDATE apps SET api_key = $2, updated_at = NOW() WHERE id = $1
		 RETURNING `+appColumns, id, models.GenerateAPIKey()))
}

// DeleteApp removes the app with its rules, problems, and notices in one
// transaction. Backtraces are reclaimed separately by DeleteOrphanBacktraces.
func (s *PostgresStore) DeleteApp(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete app: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM notices WHERE problem_id IN (SELECT id FROM problems WHERE app_id = $1)`, id); err != nil {
		return fmt.Errorf("delete app notices: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM problems WHERE app_id = $1`, id); err != nil {
		return fmt.Errorf("delete app problems: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM rules WHERE app_id = $1`, id); err != nil {
		return fmt.Errorf("delete app rules: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM apps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete app: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// --- Rules ---

func (s *PostgresStore) CreateRule(ctx context.Context, rule *models.Rule) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rules (id, app_id, name, condition, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rule.ID, rule.AppID, rule.Name, rule.Condition, rule.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRules(ctx context.Context, appID uuid.UUID) ([]*models.Rule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, app_id, name, condition, created_at
		 FROM rules WHERE app_id = $1 ORDER BY created_at ASC, id ASC`, appID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		var r models.Rule
		if err := rows.Scan(&r.ID, &r.AppID, &r.Name, &r.Condition, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

func (s *PostgresStore) DeleteRule(ctx context.Context, id uuid.UUID, appID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM rules WHERE id = $1 AND app_id = $2`, id, appID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Backtraces ---

// FindOrCreateBacktrace upserts by content fingerprint: concurrent inserts
// of the same trace converge on one row, and the stored row wins over the
// candidate's fresh ID.
func (s *PostgresStore) FindOrCreateBacktrace(ctx context.Context, bt *models.Backtrace) (*models.Backtrace, error) {
	var result models.Backtrace
	err := s.pool.QueryRow(ctx,
		`INSERT INTO backtraces (id, fingerprint, frames, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (fingerprint) DO UPDATE SET fingerprint = EXCLUDED.fingerprint
		 RETURNING id, fingerprint, frames, created_at`,
		bt.ID, bt.Fingerprint, bt.Frames,
	).Scan(&result.ID, &result.Fingerprint, &result.Frames, &result.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("find or create backtrace: %w", err)
	}
	return &result, nil
}

// FindOrBuildBacktrace returns the stored row for the candidate's
// fingerprint if one exists, or the candidate itself, unsaved, for callers
// that persist it later inside a larger transaction. Unlike
// FindOrCreateBacktrace this is a plain read and offers no exclusion
// against concurrent inserts of the same trace.
func (s *PostgresStore) FindOrBuildBacktrace(ctx context.Context, bt *models.Backtrace) (*models.Backtrace, error) {
	var result models.Backtrace
	err := s.pool.QueryRow(ctx,
		`SELECT id, fingerprint, frames, created_at FROM backtraces WHERE fingerprint = $1`,
		bt.Fingerprint,
	).Scan(&result.ID, &result.Fingerprint, &result.Frames, &result.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return bt, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find or build backtrace: %w", err)
	}
	return &result, nil
}

func (s *PostgresStore) GetBacktrace(ctx context.Context, id uuid.UUID) (*models.Backtrace, error) {
	var bt models.Backtrace
	err := s.pool.QueryRow(ctx,
		`SELECT id, fingerprint, frames, created_at FROM backtraces WHERE id = $1`, id,
	).Scan(&bt.ID, &bt.Fingerprint, &bt.Frames, &bt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get backtrace: %w", err)
	}
	return &bt, nil
}

func (s *PostgresStore) DeleteOrphanBacktraces(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM backtraces b
		 WHERE NOT EXISTS (SELECT 1 FROM notices n WHERE n.backtrace_id = b.id)`)
	if err != nil {
		return 0, fmt.Errorf("delete orphan backtraces: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Notices ---

const noticeColumns = `id, problem_id, backtrace_id, error_class, message, framework, fingerprint,
	request, server_environment, notifier, user_attributes, compressed_at, created_at`

func scanNotice(row pgx.Row) (*models.Notice, error) {
	var n models.Notice
	err := row.Scan(&n.ID, &n.ProblemID, &n.BacktraceID, &n.ErrorClass, &n.Message,
		&n.Framework, &n.Fingerprint, &n.Request, &n.ServerEnvironment, &n.Notifier,
		&n.UserAttributes, &n.CompressedAt, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notice: %w", err)
	}
	return &n, nil
}

func (s *PostgresStore) FindNoticeByFingerprint(ctx context.Context, appID uuid.UUID, fingerprint string) (*models.Notice, error) {
	return scanNotice(s.pool.QueryRow(ctx,
		`SELECT n.id, n.problem_id, n.backtrace_id, n.error_class, n.message, n.framework,
		   n.fingerprint, n.request, n.server_environment, n.notifier, n.user_attributes,
		   n.compressed_at, n.created_at
		 FROM notices n
		 JOIN problems p ON p.id = n.problem_id
		 WHERE p.app_id = $1 AND n.fingerprint = $2
		 ORDER BY n.created_at DESC LIMIT 1`, appID, fingerprint))
}

func (s *PostgresStore) ListNotices(ctx context.Context, problemID uuid.UUID, limit int) ([]*models.Notice, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+noticeColumns+` FROM notices
		 WHERE problem_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, problemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	defer rows.Close()

	var notices []*models.Notice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		notices = append(notices, n)
	}
	return notices, rows.Err()
}

func (s *PostgresStore) CountNotices(ctx context.Context, problemID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notices WHERE problem_id = $1`, problemID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count notices: %w", err)
	}
	return count, nil
}

// PersistNotice records one occurrence in a single transaction: the problem
// row is created or refreshed from the occurrence, its resolved state is
// cleared, the notice is inserted, and notices_count is recomputed from the
// true row count. The returned count is the post-insert total.
func (s *PostgresStore) PersistNotice(ctx context.Context, notice *models.Notice, prob *models.Problem, newProblem bool) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin persist notice: %w", err)
	}
	defer tx.Rollback(ctx)

	if newProblem {
		_, err = tx.Exec(ctx,
			`INSERT INTO problems (id, app_id, message, where_, environment, error_class,
			   resolved, resolved_at, notices_count, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, FALSE, NULL, 0, $7, $8)`,
			prob.ID, prob.AppID, prob.Message, prob.Where, prob.Environment,
			prob.ErrorClass, prob.CreatedAt, prob.UpdatedAt)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE problems SET message = $2, where_ = $3, environment = $4,
			   error_class = $5, resolved = FALSE, resolved_at = NULL, updated_at = NOW()
			 WHERE id = $1`,
			prob.ID, prob.Message, prob.Where, prob.Environment, prob.ErrorClass)
	}
	if err != nil {
		return 0, fmt.Errorf("persist problem: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO notices (id, problem_id, backtrace_id, error_class, message, framework,
		   fingerprint, request, server_environment, notifier, user_attributes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		notice.ID, notice.ProblemID, notice.BacktraceID, notice.ErrorClass, notice.Message,
		notice.Framework, notice.Fingerprint, notice.Request, notice.ServerEnvironment,
		notice.Notifier, notice.UserAttributes, notice.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert notice: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx,
		`UPDATE problems
		 SET notices_count = (SELECT COUNT(*) FROM notices WHERE problem_id = $1)
		 WHERE id = $1
		 RETURNING notices_count`, prob.ID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("recount notices: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit persist notice: %w", err)
	}
	return count, nil
}

// CompressOldNotices strips the metadata of every uncompressed notice
// outside the problem's newest-first retention window. The keep set and the
// update evaluate in one statement, so rows inserted concurrently are never
// compressed by a trim that predates them.
func (s *PostgresStore) CompressOldNotices(ctx context.Context, problemID uuid.UUID, keep int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notices
		 SET request = '{}', server_environment = '{}', notifier = '{}',
		     user_attributes = '{}', error_class = '', framework = '',
		     backtrace_id = NULL, compressed_at = NOW()
		 WHERE problem_id = $1
		   AND compressed_at IS NULL
		   AND id NOT IN (
		     SELECT id FROM notices WHERE problem_id = $1
		     ORDER BY created_at DESC, id DESC LIMIT $2)`,
		problemID, keep)
	if err != nil {
		return 0, fmt.Errorf("compress old notices: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Problems ---

const problemColumns = `id, app_id, message, where_, environment, error_class,
	resolved, resolved_at, notices_count, created_at, updated_at`

func scanProblem(row pgx.Row) (*models.Problem, error) {
	var p models.Problem
	err := row.Scan(&p.ID, &p.AppID, &p.Message, &p.Where, &p.Environment,
		&p.ErrorClass, &p.Resolved, &p.ResolvedAt, &p.NoticesCount,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan problem: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error) {
	return scanProblem(s.pool.QueryRow(ctx,
		`SELECT `+problemColumns+` FROM problems WHERE id = $1`, id))
}

func (s *PostgresStore) GetProblems(ctx context.Context, ids []uuid.UUID) ([]*models.Problem, error) {
	if len(ids) == 0 {
		return []*models.Problem{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+problemColumns+` FROM problems WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get problems: %w", err)
	}
	defer rows.Close()

	var problems []*models.Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

// ListProblemsByApp returns the app's problems oldest first; matching and
// merging rely on that ordering to pick a stable survivor.
func (s *PostgresStore) ListProblemsByApp(ctx context.Context, appID uuid.UUID) ([]*models.Problem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+problemColumns+` FROM problems
		 WHERE app_id = $1 ORDER BY created_at ASC, id ASC`, appID)
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	defer rows.Close()

	var problems []*models.Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

func (s *PostgresStore) ResolveProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error) {
	return scanProblem(s.pool.QueryRow(ctx,
		`UPDATE problems SET resolved = TRUE, resolved_at = NOW(), updated_at = NOW()
		 WHERE id = $1 RETURNING `+problemColumns, id))
}

func (s *PostgresStore) UnresolveProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error) {
	return scanProblem(s.pool.QueryRow(ctx,
		`UPDATE problems SET resolved = FALSE, resolved_at = NULL, updated_at = NOW()
		 WHERE id = $1 RETURNING `+problemColumns, id))
}

// MergeProblems reassigns every absorbed problem's notices to the canonical
// problem, deletes the absorbed rows, and recounts the canonical problem's
// notices, all in one transaction. Returns the post-merge count.
func (s *PostgresStore) MergeProblems(ctx context.Context, canonical uuid.UUID, absorbed []uuid.UUID) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE notices SET problem_id = $1 WHERE problem_id = ANY($2)`,
		canonical, absorbed); err != nil {
		return 0, fmt.Errorf("reassign notices: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM problems WHERE id = ANY($1)`, absorbed); err != nil {
		return 0, fmt.Errorf("delete absorbed problems: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx,
		`UPDATE problems
		 SET notices_count = (SELECT COUNT(*) FROM notices WHERE problem_id = $1),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING notices_count`, canonical).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("recount canonical problem: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit merge: %w", err)
	}
	return count, nil
}

// DeleteProblemsCascade deletes the problems and their notices in explicit
// order inside one transaction. Returns the number of problems deleted;
// requested IDs that no longer exist are skipped.
func (s *PostgresStore) DeleteProblemsCascade(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin delete problems: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM notices WHERE problem_id = ANY($1)`, ids); err != nil {
		return 0, fmt.Errorf("delete notices: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM problems WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete problems: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete problems: %w", err)
	}
	return tag.RowsAffected(), nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
