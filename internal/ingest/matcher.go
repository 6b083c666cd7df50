package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"

	"github.com/errdeck/errdeck/internal/store"
	"github.com/errdeck/errdeck/pkg/models"
)

// MatcherStore is the slice of the store the matcher needs.
type MatcherStore interface {
	FindNoticeByFingerprint(ctx context.Context, appID uuid.UUID, fingerprint string) (*models.Notice, error)
	GetProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error)
	ListRules(ctx context.Context, appID uuid.UUID) ([]*models.Rule, error)
	ListProblemsByApp(ctx context.Context, appID uuid.UUID) ([]*models.Problem, error)
}

// Matcher finds the existing problems a new occurrence belongs to. Matching
// runs in priority order: exact fingerprint, app rules, then the fuzzy
// regex built from the occurrence's message.
type Matcher struct {
	store MatcherStore
}

// NewMatcher creates a Matcher.
func NewMatcher(s MatcherStore) *Matcher {
	return &Matcher{store: s}
}

// Match returns the candidate problems for the notice, ordered for merge:
// a single exact-fingerprint hit short-circuits rule and fuzzy evaluation.
// An empty result means the caller should create a new problem.
func (m *Matcher) Match(ctx context.Context, app *models.App, notice *models.Notice) ([]*models.Problem, error) {
	if notice.Fingerprint != "" {
		existing, err := m.store.FindNoticeByFingerprint(ctx, app.ID, notice.Fingerprint)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("fingerprint lookup: %w", err)
		}
		if existing != nil {
			problem, err := m.store.GetProblem(ctx, existing.ProblemID)
			if err != nil {
				return nil, fmt.Errorf("problem for fingerprint match: %w", err)
			}
			return []*models.Problem{problem}, nil
		}
	}

	problems, err := m.store.ListProblemsByApp(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}

	candidates, err := m.matchByRules(ctx, app, notice, problems)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 {
		return candidates, nil
	}

	return m.matchFuzzy(notice, problems), nil
}

// matchByRules evaluates the app's rules in creation order against the raw
// message. The first rule that matches the message collects every problem
// whose cached message also matches its condition; a rule with no problem
// candidates falls through to the next rule.
func (m *Matcher) matchByRules(ctx context.Context, app *models.App, notice *models.Notice, problems []*models.Problem) ([]*models.Problem, error) {
	rules, err := m.store.ListRules(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	for _, rule := range rules {
		if !rule.Matches(notice.Message) {
			continue
		}
		var candidates []*models.Problem
		for _, p := range problems {
			if rule.Matches(p.Message) {
				candidates = append(candidates, p)
			}
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}
	return nil, nil
}

// matchFuzzy collects problems, oldest first, whose cached message matches
// the pattern derived from the occurrence's message. Problems are listed in
// creation order already, so the result preserves oldest-first ordering and
// the oldest problem becomes the merge survivor.
func (m *Matcher) matchFuzzy(notice *models.Notice, problems []*models.Problem) []*models.Problem {
	if notice.Message == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + Pattern(notice.Message))
	if err != nil {
		// Degrade to no fuzzy candidates rather than failing ingestion.
		slog.Warn("fuzzy pattern did not compile", "error", err)
		return nil
	}

	var candidates []*models.Problem
	for _, p := range problems {
		if re.MatchString(p.Message) {
			candidates = append(candidates, p)
		}
	}
	return candidates
}
