package models

import (
	"time"

	"github.com/google/uuid"
)

// Problem is the aggregated, operator-facing grouping of occurrences
// believed to share one root cause. Message, Where, Environment, and
// ErrorClass are cached from the latest occurrence. NoticesCount is a
// cached counter that must always equal the true number of notices
// referencing the problem, including across merges and retention trims.
type Problem struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	AppID        uuid.UUID  `db:"app_id"        json:"app_id"`
	Message      string     `db:"message"       json:"message"`
	Where        string     `db:"where_"        json:"where"`
	Environment  string     `db:"environment"   json:"environment"`
	ErrorClass   string     `db:"error_class"   json:"error_class"`
	Resolved     bool       `db:"resolved"      json:"resolved"`
	ResolvedAt   *time.Time `db:"resolved_at"   json:"resolved_at,omitempty"`
	NoticesCount int        `db:"notices_count" json:"notices_count"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}

// Unresolved reports whether the problem is open.
func (p *Problem) Unresolved() bool {
	return !p.Resolved
}
