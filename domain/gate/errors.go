package gate

import "errors"

// Domain errors for gate operations.
var (
	// ErrInvalidPostURI indicates a post reference could not be parsed.
	ErrInvalidPostURI = errors.New("invalid post uri")

	// ErrInvalidATURI indicates a malformed at:// URI.
	ErrInvalidATURI = errors.New("invalid at-uri")
)
