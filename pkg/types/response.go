// Package types holds the wire shapes shared by the API layer.
package types

// SuccessEnvelope wraps every 2xx response body under a data key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public projection of a typed error: a stable code,
// a safe message, and optional validation details.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every error response body under an error key.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
