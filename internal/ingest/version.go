package ingest

import (
	goversion "github.com/hashicorp/go-version"

	"github.com/errdeck/errdeck/pkg/models"
)

// versionAllowed applies the app's minimum-version gate to the occurrence's
// reported app version. Apps without a configured minimum accept everything.
// When a gate is configured, a missing or unparseable reported version is
// rejected: it cannot prove it meets the minimum.
func versionAllowed(app *models.App, reported string) bool {
	if !app.VersionGated() {
		return true
	}
	minimum, err := goversion.NewVersion(app.CurrentAppVersion)
	if err != nil {
		// Unusable gate configuration fails open rather than dropping
		// every occurrence for the app.
		return true
	}
	got, err := goversion.NewVersion(reported)
	if err != nil {
		return false
	}
	return got.GreaterThanOrEqual(minimum)
}
