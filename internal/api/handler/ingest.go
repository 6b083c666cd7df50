package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/errdeck/errdeck/internal/api/response"
	"github.com/errdeck/errdeck/internal/ingest"
	"github.com/errdeck/errdeck/pkg/models"
)

// Ingestor defines the interface the ingest handler depends on.
type Ingestor interface {
	Process(ctx context.Context, report *models.Report) (*ingest.Result, error)
}

// NewIngestHandler returns an http.HandlerFunc for POST /api/v1/notices.
// The API key may arrive in the body (`key`), the X-Api-Key header, or a
// Bearer token; the body wins when several are present.
func NewIngestHandler(pipeline Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var report models.Report
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if report.APIKey == "" {
			report.APIKey = headerAPIKey(r)
		}

		result, err := pipeline.Process(r.Context(), &report)
		if err != nil {
			switch {
			case errors.Is(err, ingest.ErrValidation):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			case errors.Is(err, ingest.ErrUnknownCredential):
				response.Error(w, http.StatusUnprocessableEntity, "UNKNOWN_API_KEY",
					"No application matches the supplied API key", nil)
			case errors.Is(err, ingest.ErrVersionGated):
				response.Error(w, http.StatusUnprocessableEntity, "VERSION_GATED",
					"Occurrence reported by an app version below the configured minimum", nil)
			case errors.Is(err, ingest.ErrStoreUnavailable):
				response.Error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE",
					"Storage is temporarily unavailable, retry the report", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Created(w, ingestResponse{
			NoticeID:   result.Notice.ID.String(),
			ProblemID:  result.Problem.ID.String(),
			Merged:     result.Merged,
			Notified:   result.Notified,
			Resolved:   result.Problem.Resolved,
			OccurCount: result.Problem.NoticesCount,
		})
	}
}

type ingestResponse struct {
	NoticeID   string `json:"notice_id"`
	ProblemID  string `json:"problem_id"`
	Merged     int    `json:"merged,omitempty"`
	Notified   bool   `json:"notified"`
	Resolved   bool   `json:"resolved"`
	OccurCount int    `json:"notices_count"`
}

func headerAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
