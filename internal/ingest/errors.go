package ingest

import "errors"

// Sentinel errors for the terminal ingestion outcomes. Validation and
// credential failures are final for the occurrence; store failures are
// retryable by the submitter.
var (
	ErrValidation        = errors.New("occurrence failed validation")
	ErrUnknownCredential = errors.New("unknown api key")
	ErrVersionGated      = errors.New("occurrence below minimum app version")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// FingerprintError reports that fingerprint computation failed for one
// occurrence. It is never fatal: the occurrence is persisted without a
// fingerprint and the failure is logged.
type FingerprintError struct {
	Reason string
}

func (e *FingerprintError) Error() string {
	return "fingerprint: " + e.Reason
}
