package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// App is a monitored application. Its API key is the ingestion credential;
// occurrences reported with that key are grouped into the app's problems.
type App struct {
	ID                uuid.UUID `db:"id"                  json:"id"`
	Name              string    `db:"name"                json:"name"`
	APIKey            string    `db:"api_key"             json:"api_key"`
	CurrentAppVersion string    `db:"current_app_version" json:"current_app_version,omitempty"`
	NotifyOnErrors    bool      `db:"notify_on_errors"    json:"notify_on_errors"`
	NotifyThresholds  []int     `db:"notify_thresholds"   json:"notify_thresholds"`
	CreatedAt         time.Time `db:"created_at"          json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"          json:"updated_at"`
}

// VersionGated reports whether the app enforces a minimum reporting version.
func (a *App) VersionGated() bool {
	return a.CurrentAppVersion != ""
}

// NotifyAt reports whether the app's threshold set asks for a notification
// at the given occurrence count. A threshold of 0 means every occurrence.
func (a *App) NotifyAt(count int) bool {
	for _, t := range a.NotifyThresholds {
		if t == 0 || t == count {
			return true
		}
	}
	return false
}

// GenerateAPIKey returns a new random 32-character hex API key.
func GenerateAPIKey() string {
	buf := make([]byte, 16)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
