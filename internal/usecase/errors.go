package usecase

import (
	"fmt"
	"net/http"
)

// ErrorCode is the category reported as error.type in every ErrorResponse.
type ErrorCode string

const (
	ErrorValidation   ErrorCode = "ValidationError"
	ErrorSyntax       ErrorCode = "SyntaxError"
	ErrorTimeout      ErrorCode = "TimeoutError"
	ErrorTransport    ErrorCode = "TransportError"
	ErrorUpstream     ErrorCode = "UpstreamError"
	ErrorFormat       ErrorCode = "FormatError"
	ErrorClientClosed ErrorCode = "ClientClosedError"
	ErrorUnknown      ErrorCode = "UnknownError"
)

// StatusClientClosedRequest follows the nginx convention for a caller that
// went away before the response was ready.
const StatusClientClosedRequest = 499

// Error is the single failure type leaving this package. Message is safe to
// show to the client; Err keeps the cause for logs.
type Error struct {
	Code    ErrorCode
	Message string
	Status  int
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Message)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTTPStatusCode returns the status the error should be answered with.
func (e *Error) HTTPStatusCode() int {
	if e == nil || e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

func newError(code ErrorCode, status int, message string, err error) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// NewSyntaxError reports a request body that is not valid JSON.
func NewSyntaxError(err error) *Error {
	e := newError(ErrorSyntax, http.StatusBadRequest, "invalid JSON format", err)
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// NewContentTypeError reports a POST whose Content-Type is not JSON.
func NewContentTypeError(got string) *Error {
	return &Error{
		Code:    ErrorValidation,
		Status:  http.StatusBadRequest,
		Message: "Content-Type must be application/json",
		Details: got,
	}
}
