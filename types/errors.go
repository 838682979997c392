package types

import (
	"errors"
	"fmt"
)

// Error codes. Each code names the layer that rejected the operation so a
// caller can pick a retry strategy without parsing messages.
const (
	// ErrNetworkError is a transport failure (DNS, TLS, reset, timeout). The
	// outcome of a non-idempotent call is unknown.
	ErrNetworkError    = "NETWORK_ERROR"
	// ErrAPIError means the facilitator answered with a non-2xx status.
	ErrAPIError        = "API_ERROR"
	// ErrDecodeError means a transaction blob is not valid transport encoding.
	ErrDecodeError     = "DECODE_ERROR"
	// ErrFormatError means decoded bytes are not a well-formed transaction.
	ErrFormatError     = "FORMAT_ERROR"
	// ErrSigningError means the key does not fit the transaction or the
	// signing input is malformed.
	ErrSigningError    = "SIGNING_ERROR"
	// ErrConfigError is an invalid client configuration.
	ErrConfigError     = "CONFIG_ERROR"
	// ErrInvalidRequest is a caller-supplied request that fails validation.
	ErrInvalidRequest  = "INVALID_REQUEST"
	// ErrInvalidResponse is a 2xx response body that cannot be parsed.
	ErrInvalidResponse = "INVALID_RESPONSE"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrNetwork     = &QweryError{Code: ErrNetworkError}
	ErrAPI         = &QweryError{Code: ErrAPIError}
	ErrDecode      = &QweryError{Code: ErrDecodeError}
	ErrFormat      = &QweryError{Code: ErrFormatError}
	ErrSigning     = &QweryError{Code: ErrSigningError}
	ErrConfig      = &QweryError{Code: ErrConfigError}
	ErrInvalidReq  = &QweryError{Code: ErrInvalidRequest}
	ErrInvalidResp = &QweryError{Code: ErrInvalidResponse}
)

// QweryError is the single error type surfaced by this module.
type QweryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// StatusCode and Body are set for API errors. Body is the raw response
	// text and may be empty when it could not be read.
	StatusCode int    `json:"statusCode,omitempty"`
	Body       string `json:"body,omitempty"`

	// Timeout is set on network errors caused by a deadline.
	Timeout bool `json:"timeout,omitempty"`

	Err error `json:"-"`
}

func (e *QweryError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Code == ErrAPIError {
		msg = fmt.Sprintf("%s (status %d): %s", msg, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *QweryError) Unwrap() error {
	return e.Err
}

// Is matches any *QweryError carrying the same code.
func (e *QweryError) Is(target error) bool {
	t, ok := target.(*QweryError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError builds a QweryError wrapping cause.
func NewError(code, message string, cause error) *QweryError {
	return &QweryError{Code: code, Message: message, Err: cause}
}

// NewAPIError builds an API error from a non-2xx facilitator response.
func NewAPIError(statusCode int, body []byte) *QweryError {
	return &QweryError{
		Code:       ErrAPIError,
		Message:    "facilitator rejected request",
		StatusCode: statusCode,
		Body:       string(body),
	}
}

// CodeOf returns the code of the first QweryError in err's chain, or "".
func CodeOf(err error) string {
	var qe *QweryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// IsRetryable reports whether err is a transport failure. Whether retrying is
// safe still depends on the operation: settling is not idempotent.
func IsRetryable(err error) bool {
	return CodeOf(err) == ErrNetworkError
}
