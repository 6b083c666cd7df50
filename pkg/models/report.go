package models

// Report is a validated inbound occurrence, as produced by the wire layer.
// Producing it from a wire payload is the transport's responsibility; the
// ingestion pipeline only consumes it.
type Report struct {
	APIKey            string         `json:"key"`
	ErrorClass        string         `json:"error_class"`
	Message           string         `json:"message"`
	Framework         string         `json:"framework,omitempty"`
	Backtrace         []Frame        `json:"backtrace,omitempty"`
	Request           map[string]any `json:"request,omitempty"`
	ServerEnvironment map[string]any `json:"server_environment,omitempty"`
	Notifier          map[string]any `json:"notifier,omitempty"`
	UserAttributes    map[string]any `json:"user_attributes,omitempty"`
}
