package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/threadgate/infrastructure/poll"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
)

// User-visible save messages.
const (
	MsgSaved       = "Thread settings updated"
	MsgWriteFailed = "There was an issue. Please check your internet connection and try again."
)

// Notifier delivers short user-visible messages, such as toasts.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// NopNotifier drops every message.
type NopNotifier struct{}

// Success implements Notifier.
func (NopNotifier) Success(string) {}

// Error implements Notifier.
func (NopNotifier) Error(string) {}

// Metrics records save outcomes.
type Metrics interface {
	// SaveCompleted records a finished save.
	SaveCompleted(ctx context.Context, ok bool)
	// WriteFailed records one failed record write.
	WriteFailed(ctx context.Context, stage store.Stage)
	// Reconciled records a finished reconciliation poll.
	Reconciled(ctx context.Context, report poll.Report, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) SaveCompleted(context.Context, bool) {}
func (nopMetrics) WriteFailed(context.Context, store.Stage) {}
func (nopMetrics) Reconciled(context.Context, poll.Report, time.Duration) {}
