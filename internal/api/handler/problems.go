package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/errdeck/errdeck/internal/api/response"
	"github.com/errdeck/errdeck/internal/problem"
	"github.com/errdeck/errdeck/internal/store"
	"github.com/errdeck/errdeck/pkg/models"
)

// Merger collapses problems into one survivor.
type Merger interface {
	Merge(ctx context.Context, ids []uuid.UUID) (*models.Problem, error)
}

// Destroyer deletes problems with their notices.
type Destroyer interface {
	Destroy(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// ProblemStore is the store slice the resolve handlers need.
type ProblemStore interface {
	ResolveProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error)
	UnresolveProblem(ctx context.Context, id uuid.UUID) (*models.Problem, error)
}

// NewMergeHandler returns an http.HandlerFunc for POST /api/v1/problems/merge.
// The first listed problem that still exists becomes the survivor.
func NewMergeHandler(merger Merger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProblemIDs []string `json:"problem_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.ProblemIDs) < 2 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"problem_ids must list at least two problems", nil)
			return
		}

		ids := make([]uuid.UUID, 0, len(req.ProblemIDs))
		for _, raw := range req.ProblemIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"problem_ids must be valid UUIDs", nil)
				return
			}
			ids = append(ids, id)
		}

		merged, err := merger.Merge(r.Context(), ids)
		if err != nil {
			if errors.Is(err, problem.ErrNothingToMerge) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"None of the listed problems exist", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, merged)
	}
}

// NewResolveHandler returns an http.HandlerFunc for POST /api/v1/problems/{problemID}/resolve.
func NewResolveHandler(s ProblemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := problemID(w, r)
		if !ok {
			return
		}
		prob, err := s.ResolveProblem(r.Context(), id)
		if err != nil {
			writeProblemError(w, err)
			return
		}
		response.JSON(w, prob)
	}
}

// NewUnresolveHandler returns an http.HandlerFunc for POST /api/v1/problems/{problemID}/unresolve.
func NewUnresolveHandler(s ProblemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := problemID(w, r)
		if !ok {
			return
		}
		prob, err := s.UnresolveProblem(r.Context(), id)
		if err != nil {
			writeProblemError(w, err)
			return
		}
		response.JSON(w, prob)
	}
}

// NewDestroyHandler returns an http.HandlerFunc for DELETE /api/v1/problems/{problemID}.
func NewDestroyHandler(destroyer Destroyer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := problemID(w, r)
		if !ok {
			return
		}
		deleted, err := destroyer.Destroy(r.Context(), []uuid.UUID{id})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if deleted == 0 {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Problem not found", nil)
			return
		}
		response.JSON(w, map[string]any{"deleted": deleted})
	}
}

func problemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "problemID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"problemID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeProblemError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Problem not found", nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"An unexpected error occurred", nil)
}
