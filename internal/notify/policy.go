// Package notify decides whether an ingested occurrence should trigger an
// outbound alert and hands accepted decisions to a Dispatcher. Delivery
// mechanics live behind the Dispatcher interface; the policy itself only
// returns a boolean.
package notify

import "github.com/errdeck/errdeck/pkg/models"

// ShouldNotify applies the app's notification thresholds to the problem's
// current occurrence count. An occurrence that reopened a resolved problem
// always notifies. Otherwise the app must have notifications enabled and a
// threshold of 0 (every occurrence) or one equal to the current count.
func ShouldNotify(app *models.App, problem *models.Problem, reopened bool) bool {
	if reopened {
		return true
	}
	if !app.NotifyOnErrors {
		return false
	}
	return app.NotifyAt(problem.NoticesCount)
}
