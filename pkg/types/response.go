package types

// SuccessEnvelope wraps every successful API response.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the wire form of a typed error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every failed API response.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
