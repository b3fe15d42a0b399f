package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the error body the till renders. Retryable tells it whether to
// offer a retry or ask the cashier to change something first.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"requestId,omitempty"`
}
