// Package application coordinates saving a post's interaction policy: the
// two record writes, reconciliation against the read path and the
// invalidation of cached views.
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/felixgeelhaar/threadgate/domain/cache"
	"github.com/felixgeelhaar/threadgate/domain/gate"
	"github.com/felixgeelhaar/threadgate/infrastructure/logging"
	"github.com/felixgeelhaar/threadgate/infrastructure/poll"
	"github.com/felixgeelhaar/threadgate/infrastructure/statemachine"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
	"github.com/felixgeelhaar/statekit"
)

// PolicyStore reads and writes the interaction-policy records of posts.
type PolicyStore interface {
	WriteReplyPolicy(ctx context.Context, post gate.PostRef, rules []gate.AllowRule) error
	WriteQuotePolicy(ctx context.Context, post gate.PostRef, policy gate.EmbeddingPolicy) error
	ReadPostView(ctx context.Context, post gate.PostRef) (*store.PostSnapshot, error)
	ReadQuotePolicy(ctx context.Context, post gate.PostRef) (gate.EmbeddingPolicy, error)
}

// Outcome is the result of one save.
type Outcome struct {
	SaveID string
	// Failures holds the failed writes, reply stage first.
	Failures []*store.WriteError
	// Reconcile reports the poll that waited for the read path. It is zero
	// when the reply write failed.
	Reconcile poll.Report
	// ReconcileErr is the reason reconciliation stopped early, if any. It
	// never makes a save fail.
	ReconcileErr error
	// Snapshot is the last read-path view seen while reconciling.
	Snapshot *store.PostSnapshot
}

// OK reports whether both writes succeeded.
func (o Outcome) OK() bool {
	return len(o.Failures) == 0
}

// Stage returns the first failing stage, or an empty stage on success.
func (o Outcome) Stage() store.Stage {
	if len(o.Failures) == 0 {
		return ""
	}
	return o.Failures[0].Stage
}

// Err joins the write failures.
func (o Outcome) Err() error {
	if len(o.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(o.Failures))
	for i, f := range o.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func (o Outcome) failed(stage store.Stage) bool {
	for _, f := range o.Failures {
		if f.Stage == stage {
			return true
		}
	}
	return false
}

// Orchestrator saves interaction policies.
type Orchestrator struct {
	store      PolicyStore
	machine    *statekit.MachineConfig[*statemachine.Context]
	pollConfig poll.Config
	poll       PollFunc
	cache      cache.Cache
	notifier   Notifier
	metrics    Metrics
	tracer     trace.Tracer
	log        logging.Logger

	mu      sync.Mutex
	current *statemachine.Interpreter
}

// NewOrchestrator creates an orchestrator over the given store.
func NewOrchestrator(ps PolicyStore, opts ...Option) (*Orchestrator, error) {
	if ps == nil {
		return nil, errors.New("policy store is required")
	}
	machine, err := statemachine.NewSaveMachine()
	if err != nil {
		return nil, fmt.Errorf("build save machine: %w", err)
	}

	o := &Orchestrator{
		store:      ps,
		machine:    machine,
		pollConfig: poll.DefaultConfig(),
		poll:       poll.AwaitConditionReport[*store.PostSnapshot],
		notifier:   NopNotifier{},
		metrics:    nopMetrics{},
		tracer:     noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the state of the most recent save.
func (o *Orchestrator) State() statemachine.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return statemachine.StateIdle
	}
	return o.current.State()
}

// Save writes both records of desired, waits for the reply policy to show
// up on the read path and invalidates the cached views of the post.
//
// The two writes are independent. A failure of one is reported in the
// outcome and does not undo the other.
func (o *Orchestrator) Save(ctx context.Context, post gate.PostRef, desired gate.Policy) Outcome {
	desired = desired.Canonical()
	out := Outcome{SaveID: uuid.NewString()}

	sm := statemachine.NewInterpreter(o.machine, &statemachine.Context{
		SaveID:  out.SaveID,
		PostURI: post.URI(),
	})
	defer sm.Stop()
	o.mu.Lock()
	o.current = sm
	o.mu.Unlock()

	log := func(e *logging.LogEvent) *logging.LogEvent {
		return e.Add(logging.SaveID(out.SaveID)).Add(logging.PostURI(post.URI()))
	}

	ctx, span := o.tracer.Start(ctx, "threadgate.save", trace.WithAttributes(
		attribute.String("threadgate.save_id", out.SaveID),
		attribute.String("threadgate.post_uri", post.URI()),
	))
	defer func() { endSaveSpan(span, out) }()

	o.transition(sm, statemachine.EventSave, "save requested")
	log(o.log.Debug()).Msg("saving interaction policy")

	out.Failures = o.write(ctx, post, desired)
	for _, f := range out.Failures {
		log(o.log.Error()).
			Add(logging.Stage(string(f.Stage))).
			Add(logging.ErrorField(f.Err)).
			Msg("failed to save interaction policy")
		o.metrics.WriteFailed(ctx, f.Stage)
		o.notifier.Error(MsgWriteFailed)
	}

	if out.failed(store.StageReply) {
		o.transition(sm, statemachine.EventFail, "reply write failed")
		o.transition(sm, statemachine.EventSettle, "")
		o.metrics.SaveCompleted(ctx, false)
		return out
	}

	sm.MarkReplyWritten()
	o.transition(sm, statemachine.EventReconcile, "reply write succeeded")
	o.reconcile(ctx, post, desired.Allow, &out)

	o.invalidate(ctx, post, out)

	if out.OK() {
		o.transition(sm, statemachine.EventSettle, "")
		o.notifier.Success(MsgSaved)
	} else {
		o.transition(sm, statemachine.EventFail, "quote write failed")
		o.transition(sm, statemachine.EventSettle, "")
	}
	o.metrics.SaveCompleted(ctx, out.OK())
	return out
}

// write issues both record writes concurrently and waits for both.
func (o *Orchestrator) write(ctx context.Context, post gate.PostRef, desired gate.Policy) []*store.WriteError {
	var (
		wg       sync.WaitGroup
		replyErr error
		quoteErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		replyErr = o.store.WriteReplyPolicy(ctx, post, desired.Allow)
	}()
	go func() {
		defer wg.Done()
		quoteErr = o.store.WriteQuotePolicy(ctx, post, desired.Embedding)
	}()
	wg.Wait()

	var failures []*store.WriteError
	if replyErr != nil {
		failures = append(failures, asWriteError(store.StageReply, post, replyErr))
	}
	if quoteErr != nil {
		failures = append(failures, asWriteError(store.StageQuote, post, quoteErr))
	}
	return failures
}

func asWriteError(stage store.Stage, post gate.PostRef, err error) *store.WriteError {
	var we *store.WriteError
	if errors.As(err, &we) {
		return we
	}
	return &store.WriteError{Stage: stage, Post: post, Err: err}
}

// reconcile polls the read path until it shows the desired reply rules.
// Running out of attempts or failing to read leaves the save successful.
func (o *Orchestrator) reconcile(ctx context.Context, post gate.PostRef, allow []gate.AllowRule, out *Outcome) {
	ctx, span := o.tracer.Start(ctx, "threadgate.reconcile")
	defer span.End()

	start := time.Now()
	predicate := func(s *store.PostSnapshot) bool {
		return s != nil && s.Found && gate.Equal(s.Allow, allow)
	}
	fetch := func(ctx context.Context) (*store.PostSnapshot, error) {
		return o.store.ReadPostView(ctx, post)
	}

	snap, report, err := o.poll(ctx, o.pollConfig, predicate, fetch)
	elapsed := time.Since(start)
	out.Snapshot = snap
	out.Reconcile = report
	out.ReconcileErr = err
	o.metrics.Reconciled(ctx, report, elapsed)
	span.SetAttributes(
		attribute.Int("threadgate.poll.attempts", report.Attempts),
		attribute.Bool("threadgate.poll.converged", report.Converged),
	)
	if err != nil {
		span.RecordError(err)
	}

	var (
		event *logging.LogEvent
		msg   string
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		event, msg = o.log.Debug(), "reconciliation abandoned"
	case err != nil:
		event = o.log.Warn().Add(logging.ErrorField(err))
		msg = "could not confirm saved policy on the read path"
	case !report.Converged:
		event, msg = o.log.Warn(), "read path did not reflect the saved policy in time"
	default:
		event, msg = o.log.Debug(), "read path reflects the saved policy"
	}
	event.
		Add(logging.SaveID(out.SaveID)).
		Add(logging.PostURI(post.URI())).
		Add(logging.Attempts(report.Attempts)).
		Add(logging.Converged(report.Converged)).
		Add(logging.Duration(elapsed)).
		Msg(msg)
}

// invalidate drops the cached views that depend on the written records. It
// runs even when the caller's context was cancelled during the poll.
func (o *Orchestrator) invalidate(ctx context.Context, post gate.PostRef, out Outcome) {
	if o.cache == nil {
		return
	}
	scopes := []cache.Scope{cache.ScopePostThread, cache.ScopeThreadgateRecord}
	if !out.failed(store.StageQuote) {
		scopes = append(scopes, cache.ScopePostgateRecord)
	}
	if err := cache.Invalidate(context.WithoutCancel(ctx), o.cache, scopes...); err != nil {
		o.log.Warn().
			Add(logging.PostURI(post.URI())).
			Add(logging.ErrorField(err)).
			Msg("failed to invalidate cached views")
	}
}

func endSaveSpan(span trace.Span, out Outcome) {
	for _, f := range out.Failures {
		span.RecordError(f, trace.WithAttributes(attribute.String("threadgate.stage", string(f.Stage))))
	}
	if out.OK() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "policy write failed")
	}
	span.End()
}

func (o *Orchestrator) transition(sm *statemachine.Interpreter, event statemachine.Event, reason string) {
	from := sm.State()
	to, err := sm.Send(event, reason)
	if err != nil {
		o.log.Error().
			Add(logging.State(string(from))).
			Add(logging.ErrorField(err)).
			Msg("unexpected save transition")
		return
	}
	o.log.Debug().Add(logging.Transition(string(from), string(to))).Msg("save state changed")
}
