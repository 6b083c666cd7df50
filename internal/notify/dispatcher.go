package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/errdeck/errdeck/pkg/models"
)

// ErrDispatchFailed reports that the alert endpoint rejected or never
// received the notification. Delivery is best effort; callers log and move
// on rather than failing ingestion.
var ErrDispatchFailed = errors.New("notification dispatch failed")

// Dispatcher delivers an alert for a problem and its latest occurrence.
type Dispatcher interface {
	Dispatch(ctx context.Context, app *models.App, problem *models.Problem, notice *models.Notice) error
}

// WebhookDispatcher posts alert payloads to a configured HTTP endpoint.
type WebhookDispatcher struct {
	url    string
	client *http.Client
}

// NewWebhookDispatcher creates a WebhookDispatcher with the given timeout.
func NewWebhookDispatcher(url string, timeout time.Duration) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	App          string `json:"app"`
	ProblemID    string `json:"problem_id"`
	Message      string `json:"message"`
	Where        string `json:"where,omitempty"`
	Environment  string `json:"environment"`
	ErrorClass   string `json:"error_class"`
	NoticesCount int    `json:"notices_count"`
	NoticeID     string `json:"notice_id"`
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, app *models.App, problem *models.Problem, notice *models.Notice) error {
	body, err := json.Marshal(webhookPayload{
		App:          app.Name,
		ProblemID:    problem.ID.String(),
		Message:      problem.Message,
		Where:        problem.Where,
		Environment:  problem.Environment,
		ErrorClass:   problem.ErrorClass,
		NoticesCount: problem.NoticesCount,
		NoticeID:     notice.ID.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: endpoint returned %d", ErrDispatchFailed, resp.StatusCode)
	}
	return nil
}

// LogDispatcher writes alerts to the structured log. It is the fallback
// when no webhook endpoint is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, app *models.App, problem *models.Problem, notice *models.Notice) error {
	slog.Info("problem notification",
		"app", app.Name,
		"problem_id", problem.ID,
		"notice_id", notice.ID,
		"error_class", problem.ErrorClass,
		"message", problem.Message,
		"notices_count", problem.NoticesCount,
	)
	return nil
}
