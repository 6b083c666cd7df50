package models

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MessageLengthLimit caps stored notice messages. Messages are indexed for
// matching, so keep them well under typical index key limits.
const MessageLengthLimit = 1000

// Notice is one reported occurrence of an error. It is created once per
// ingested occurrence and never mutated afterwards, except by retention
// compression which clears the heavy metadata fields in place.
type Notice struct {
	ID                uuid.UUID      `db:"id"                 json:"id"`
	ProblemID         uuid.UUID      `db:"problem_id"         json:"problem_id"`
	BacktraceID       *uuid.UUID     `db:"backtrace_id"       json:"backtrace_id,omitempty"`
	ErrorClass        string         `db:"error_class"        json:"error_class"`
	Message           string         `db:"message"            json:"message"`
	Framework         string         `db:"framework"          json:"framework,omitempty"`
	Fingerprint       string         `db:"fingerprint"        json:"fingerprint,omitempty"`
	Request           map[string]any `db:"request"            json:"request"`
	ServerEnvironment map[string]any `db:"server_environment" json:"server_environment"`
	Notifier          map[string]any `db:"notifier"           json:"notifier"`
	UserAttributes    map[string]any `db:"user_attributes"    json:"user_attributes,omitempty"`
	CompressedAt      *time.Time     `db:"compressed_at"      json:"compressed_at,omitempty"`
	CreatedAt         time.Time      `db:"created_at"         json:"created_at"`
}

// Compressed reports whether retention has stripped this notice's metadata.
func (n *Notice) Compressed() bool {
	return n.CompressedAt != nil
}

// SetMessage stores the message truncated to MessageLengthLimit bytes
// without splitting a UTF-8 rune.
func (n *Notice) SetMessage(m string) {
	n.Message = truncate(m, MessageLengthLimit)
}

// Component returns the request component, if reported.
func (n *Notice) Component() string {
	return stringValue(n.Request, "component")
}

// Action returns the request action, if reported.
func (n *Notice) Action() string {
	return stringValue(n.Request, "action")
}

// Where derives the "component#action" display location.
func (n *Notice) Where() string {
	where := n.Component()
	if action := n.Action(); action != "" {
		where += "#" + action
	}
	return where
}

// Environment resolves the reporting environment name from the server
// environment block, defaulting to "development" when none is named.
func (n *Notice) Environment() string {
	if env := stringValue(n.ServerEnvironment, "server-environment"); env != "" {
		return env
	}
	if env := stringValue(n.ServerEnvironment, "environment-name"); env != "" {
		return env
	}
	return "development"
}

// AppVersion returns the reporting application's version, if present.
func (n *Notice) AppVersion() string {
	return stringValue(n.ServerEnvironment, "app-version")
}

func stringValue(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
