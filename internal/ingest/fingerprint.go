package ingest

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"strings"

	"github.com/errdeck/errdeck/pkg/models"
)

// BacktraceFingerprint computes the deterministic content hash of a frame
// sequence. Identical stack traces always hash identically; the value keys
// the deduplicated backtrace store.
func BacktraceFingerprint(frames []models.Frame) string {
	h := sha1.New()
	for _, f := range frames {
		fmt.Fprintln(h, f.String())
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// NoticeFingerprint computes the content hash that identifies simple
// duplicate occurrences: error class, normalized message (when present),
// request component and action, resolved environment name, and the first
// backtrace frame when one is attached. Missing optional fields hash as
// empty strings so the composition stays stable.
//
// A malformed backtrace yields a *FingerprintError; callers treat it as
// non-fatal and persist the occurrence without a fingerprint.
func NoticeFingerprint(n *models.Notice, bt *models.Backtrace) (string, error) {
	material := []string{n.ErrorClass}
	if n.Message != "" {
		material = append(material, Placeholder(n.Message))
	}
	material = append(material, n.Component(), n.Action(), n.Environment())

	if bt != nil {
		if len(bt.Frames) == 0 {
			return "", &FingerprintError{Reason: "backtrace has no frames"}
		}
		material = append(material, bt.Frames[0].String())
	}

	sum := md5.Sum([]byte(strings.Join(material, "")))
	return fmt.Sprintf("%x", sum), nil
}
