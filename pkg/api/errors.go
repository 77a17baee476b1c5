package api

import "fmt"

// ErrorType represents the category of a bridge error.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation_error"
	ErrorTypeTranslation ErrorType = "translation_error"
	ErrorTypeTransport   ErrorType = "transport_error"
	ErrorTypeDecode      ErrorType = "decode_error"
	ErrorTypeUpstream    ErrorType = "upstream_error"
	ErrorTypeServer      ErrorType = "server_error"
)

// APIError is a structured error with a category, an optional offending
// parameter, and a message. Transport errors additionally carry the upstream
// HTTP status.
type APIError struct {
	Type       ErrorType `json:"type"`
	Param      string    `json:"param,omitempty"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`

	wrapped error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.wrapped
}

// HTTPStatus maps the error category to an inbound HTTP status code.
// Upstream-facing failures surface as 502 regardless of the upstream status.
func (e *APIError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeValidation, ErrorTypeTranslation:
		return 400
	case ErrorTypeTransport, ErrorTypeDecode, ErrorTypeUpstream:
		return 502
	default:
		return 500
	}
}

// ErrorResponse wraps an APIError as the top-level JSON error body.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewValidationError creates an APIError for malformed inbound requests.
func NewValidationError(param, message string) *APIError {
	return &APIError{Type: ErrorTypeValidation, Param: param, Message: message}
}

// NewTranslationError creates an APIError for input shapes that cannot be
// translated to the upstream request format.
func NewTranslationError(message string) *APIError {
	return &APIError{Type: ErrorTypeTranslation, Message: message}
}

// NewTransportError creates an APIError for network or HTTP failures against
// the upstream. statusCode is zero for connection-level failures.
func NewTransportError(statusCode int, message string, cause error) *APIError {
	return &APIError{
		Type:       ErrorTypeTransport,
		Message:    message,
		StatusCode: statusCode,
		wrapped:    cause,
	}
}

// NewDecodeError creates an APIError for malformed stream frames.
func NewDecodeError(message string, cause error) *APIError {
	return &APIError{Type: ErrorTypeDecode, Message: message, wrapped: cause}
}

// NewUpstreamError creates an APIError for errors the upstream reported
// in-band on an otherwise healthy stream.
func NewUpstreamError(message string) *APIError {
	return &APIError{Type: ErrorTypeUpstream, Message: message}
}

// NewServerError creates an APIError for internal failures.
func NewServerError(message string) *APIError {
	return &APIError{Type: ErrorTypeServer, Message: message}
}
