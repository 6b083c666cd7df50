package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Frame is one stack frame of a reported backtrace.
type Frame struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Method string `json:"method"`
}

// String serializes the frame for fingerprinting.
func (f Frame) String() string {
	return fmt.Sprintf("%s:%d:%s", f.File, f.Line, f.Method)
}

// Backtrace is a deduplicated, content-addressed stack trace. Multiple
// notices may share one backtrace; a backtrace is garbage once no notice
// references it.
type Backtrace struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	Fingerprint string    `db:"fingerprint" json:"fingerprint"`
	Frames      []Frame   `db:"frames"      json:"frames"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
}
