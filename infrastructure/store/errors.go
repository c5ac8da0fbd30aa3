package store

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/threadgate/domain/gate"
)

// ErrRecordNotFound is returned by RPC.GetRecord when the record is absent.
var ErrRecordNotFound = errors.New("record not found")

// Stage names the record a write targeted.
type Stage string

// Write stages.
const (
	// StageReply is the reply-policy (threadgate) write.
	StageReply Stage = "reply"
	// StageQuote is the quote-policy (postgate) write.
	StageQuote Stage = "quote"
)

// WriteError reports a failed write of one policy record.
type WriteError struct {
	Stage Stage
	Post  gate.PostRef
	Err   error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s policy for %s: %v", e.Stage, e.Post.URI(), e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReadError reports a failed read of a post view.
type ReadError struct {
	Post gate.PostRef
	Err  error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("read post view %s: %v", e.Post.URI(), e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}
