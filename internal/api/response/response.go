// Package response writes the JSON envelope every errdeck endpoint
// shares. Success bodies nest under "data"; failures carry
// error{code,message,details} where code is a stable machine-readable
// token (INVALID_REQUEST, UNKNOWN_API_KEY, VERSION_GATED,
// STORE_UNAVAILABLE, INVALID_TOKEN, RATE_LIMITED, DEGRADED, ...).
// Reporter clients key their retry behavior off the code, never the
// human-readable message.
package response

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a 200 with the data envelope.
func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

// Created writes a 201 with the data envelope; the ingest endpoint uses
// it for freshly persisted occurrences.
func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

// Error writes the error envelope. details is optional structured
// context, such as per-field validation messages or service states.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
