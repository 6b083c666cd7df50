package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Rule is an app-scoped forced-grouping condition. Its condition is a
// case-insensitive regular expression matched against raw occurrence
// messages before fuzzy matching runs. Rules are evaluated in creation
// order and the first matching rule wins.
type Rule struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	AppID     uuid.UUID `db:"app_id"     json:"app_id"`
	Name      string    `db:"name"       json:"name"`
	Condition string    `db:"condition"  json:"condition"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Matches reports whether the rule's condition matches the message,
// case-insensitively. An invalid condition never matches.
func (r *Rule) Matches(message string) bool {
	re, err := regexp.Compile("(?i)" + r.Condition)
	if err != nil {
		return false
	}
	return re.MatchString(message)
}
