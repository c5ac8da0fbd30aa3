package xrpc

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestRejected indicates the service refused the request (4xx).
	// Rejected requests are not retried.
	ErrRequestRejected = errors.New("xrpc request rejected")

	// ErrServiceUnavailable indicates a transport failure or a 5xx response.
	ErrServiceUnavailable = errors.New("xrpc service unavailable")

	// ErrInvalidResponse indicates a response body that could not be decoded.
	ErrInvalidResponse = errors.New("invalid xrpc response")
)

// Error is an error response returned by an XRPC method.
type Error struct {
	Method  string `json:"-"`
	Status  int    `json:"-"`
	Name    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d: %s", e.Method, e.Status, e.Name)
	}
	return fmt.Sprintf("%s: status %d: %s: %s", e.Method, e.Status, e.Name, e.Message)
}

// Is lets errors.Is match the category of the response.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRequestRejected:
		return e.Status >= 400 && e.Status < 500
	case ErrServiceUnavailable:
		return e.Status >= 500
	}
	return false
}
