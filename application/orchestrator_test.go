package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/threadgate/domain/cache"
	"github.com/felixgeelhaar/threadgate/domain/gate"
	"github.com/felixgeelhaar/threadgate/infrastructure/poll"
	"github.com/felixgeelhaar/threadgate/infrastructure/statemachine"
	"github.com/felixgeelhaar/threadgate/infrastructure/storage/memory"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
)

const (
	testPostURI = "at://did:plc:author/app.bsky.feed.post/3kpost"
	testListURI = "at://did:plc:author/app.bsky.graph.list/3klist"
)

var errBackendDown = errors.New("backend down")

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

type recordingMetrics struct {
	mu         sync.Mutex
	saves      map[bool]int
	failures   map[store.Stage]int
	reconciles []poll.Report
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		saves:    make(map[bool]int),
		failures: make(map[store.Stage]int),
	}
}

func (m *recordingMetrics) SaveCompleted(_ context.Context, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[ok]++
}

func (m *recordingMetrics) WriteFailed(_ context.Context, stage store.Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[stage]++
}

func (m *recordingMetrics) Reconciled(_ context.Context, report poll.Report, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciles = append(m.reconciles, report)
}

type fixture struct {
	backend  *memory.Backend
	client   *store.Client
	cache    *memory.Cache
	notifier *recordingNotifier
	metrics  *recordingMetrics
	orch     *Orchestrator
	post     gate.PostRef
}

func newFixture(t *testing.T, lag int, opts ...Option) *fixture {
	t.Helper()

	post, err := gate.ParsePostURI(testPostURI)
	if err != nil {
		t.Fatalf("ParsePostURI() error = %v", err)
	}
	f := &fixture{
		backend:  memory.NewBackend(memory.WithReadLag(lag)),
		cache:    memory.NewCache(),
		notifier: &recordingNotifier{},
		metrics:  newRecordingMetrics(),
		post:     post,
	}
	f.backend.AddPost(post, "alice.test")
	f.backend.AddList(testListURI, "Friends")
	f.client = store.NewClient(f.backend)

	base := []Option{
		WithPollConfig(poll.Config{MaxAttempts: 5, Delay: time.Millisecond}),
		WithCache(f.cache),
		WithNotifier(f.notifier),
		WithMetrics(f.metrics),
	}
	f.orch, err = NewOrchestrator(f.client, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	return f
}

func (f *fixture) seedCache(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, s := range []cache.Scope{cache.ScopePostThread, cache.ScopeThreadgateRecord, cache.ScopePostgateRecord} {
		if err := f.cache.Set(ctx, cache.Key(s, testPostURI), []byte("{}"), cache.SetOptions{}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
}

func (f *fixture) cached(t *testing.T, scope cache.Scope) bool {
	t.Helper()
	_, ok, err := f.cache.Get(context.Background(), cache.Key(scope, testPostURI))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return ok
}

var restricted = gate.Policy{
	Allow:     []gate.AllowRule{gate.Mention(), gate.ListMember(testListURI)},
	Embedding: gate.EmbeddingDisabled,
}

func TestOrchestrator_Save_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	f.seedCache(t)

	out := f.orch.Save(context.Background(), f.post, restricted)

	if !out.OK() || out.Err() != nil || out.Stage() != "" {
		t.Fatalf("Save() = %+v, want success", out)
	}
	if out.SaveID == "" {
		t.Error("outcome should carry a save id")
	}
	if !out.Reconcile.Converged || out.Reconcile.Attempts != 3 {
		t.Errorf("Reconcile = %+v, want converged after 3 attempts", out.Reconcile)
	}
	if out.Snapshot == nil || !gate.Equal(out.Snapshot.Allow, restricted.Allow) {
		t.Errorf("Snapshot = %+v, want saved rules", out.Snapshot)
	}
	if got := f.backend.ThreadReads(testPostURI); got != 3 {
		t.Errorf("thread reads = %d, want 3", got)
	}

	if len(f.notifier.successes) != 1 || f.notifier.successes[0] != MsgSaved {
		t.Errorf("successes = %v, want [%q]", f.notifier.successes, MsgSaved)
	}
	if len(f.notifier.errors) != 0 {
		t.Errorf("errors = %v, want none", f.notifier.errors)
	}
	for _, s := range []cache.Scope{cache.ScopePostThread, cache.ScopeThreadgateRecord, cache.ScopePostgateRecord} {
		if f.cached(t, s) {
			t.Errorf("scope %s should be invalidated", s)
		}
	}
	if f.metrics.saves[true] != 1 {
		t.Errorf("successful saves = %d, want 1", f.metrics.saves[true])
	}
	if got := f.orch.State(); got != statemachine.StateIdle {
		t.Errorf("State() = %s, want idle", got)
	}

	quote, err := f.client.ReadQuotePolicy(context.Background(), f.post)
	if err != nil || quote != gate.EmbeddingDisabled {
		t.Errorf("ReadQuotePolicy() = %s, %v", quote, err)
	}
}

func TestOrchestrator_Save_AlreadyConverged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	out := f.orch.Save(context.Background(), f.post, restricted)

	if !out.OK() {
		t.Fatalf("Save() failed: %v", out.Err())
	}
	if out.Reconcile.Attempts != 1 || !out.Reconcile.Converged {
		t.Errorf("Reconcile = %+v, want one converged attempt", out.Reconcile)
	}
}

func TestOrchestrator_Save_ReplyFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.seedCache(t)
	f.backend.FailPuts(gate.ThreadgateCollection, errBackendDown)

	out := f.orch.Save(context.Background(), f.post, restricted)

	if out.OK() {
		t.Fatal("Save() should fail when the reply write fails")
	}
	if out.Stage() != store.StageReply {
		t.Errorf("Stage() = %q, want reply", out.Stage())
	}
	if !errors.Is(out.Err(), errBackendDown) {
		t.Errorf("Err() = %v, want errBackendDown", out.Err())
	}
	var we *store.WriteError
	if !errors.As(out.Err(), &we) || we.Stage != store.StageReply {
		t.Errorf("Err() = %v, want reply WriteError", out.Err())
	}

	// The quote write is independent and stays persisted.
	if got := f.backend.Puts(gate.PostgateCollection); got != 1 {
		t.Errorf("postgate puts = %d, want 1", got)
	}
	quote, err := f.client.ReadQuotePolicy(context.Background(), f.post)
	if err != nil || quote != gate.EmbeddingDisabled {
		t.Errorf("ReadQuotePolicy() = %s, %v, want disabled", quote, err)
	}

	if got := f.backend.ThreadReads(testPostURI); got != 0 {
		t.Errorf("thread reads = %d, want no reconciliation", got)
	}
	if out.Reconcile.Attempts != 0 {
		t.Errorf("Reconcile = %+v, want zero", out.Reconcile)
	}
	if !f.cached(t, cache.ScopePostThread) || !f.cached(t, cache.ScopeThreadgateRecord) {
		t.Error("caches should not be invalidated after a failed reply write")
	}
	if len(f.notifier.errors) != 1 || f.notifier.errors[0] != MsgWriteFailed {
		t.Errorf("errors = %v, want one %q", f.notifier.errors, MsgWriteFailed)
	}
	if len(f.notifier.successes) != 0 {
		t.Errorf("successes = %v, want none", f.notifier.successes)
	}
	if f.metrics.failures[store.StageReply] != 1 || f.metrics.saves[false] != 1 {
		t.Errorf("metrics = %+v", f.metrics)
	}
	if got := f.orch.State(); got != statemachine.StateIdle {
		t.Errorf("State() = %s, want idle", got)
	}
}

func TestOrchestrator_Save_QuoteFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.seedCache(t)
	f.backend.FailPuts(gate.PostgateCollection, errBackendDown)

	out := f.orch.Save(context.Background(), f.post, restricted)

	if out.OK() || out.Stage() != store.StageQuote {
		t.Fatalf("Save() = %+v, want quote failure", out)
	}
	if !out.Reconcile.Converged {
		t.Errorf("reply policy should still reconcile, got %+v", out.Reconcile)
	}
	if f.cached(t, cache.ScopePostThread) || f.cached(t, cache.ScopeThreadgateRecord) {
		t.Error("reply-dependent scopes should be invalidated")
	}
	if !f.cached(t, cache.ScopePostgateRecord) {
		t.Error("quote scope should be kept when the quote write failed")
	}
	if len(f.notifier.errors) != 1 || len(f.notifier.successes) != 0 {
		t.Errorf("notifier = %+v, want one error and no success", f.notifier)
	}
}

func TestOrchestrator_Save_BothFail(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.backend.FailPuts(gate.ThreadgateCollection, errBackendDown)
	f.backend.FailPuts(gate.PostgateCollection, errBackendDown)

	out := f.orch.Save(context.Background(), f.post, restricted)

	if len(out.Failures) != 2 {
		t.Fatalf("Failures = %v, want two", out.Failures)
	}
	if out.Stage() != store.StageReply {
		t.Errorf("Stage() = %q, want reply first", out.Stage())
	}
	if out.Failures[1].Stage != store.StageQuote {
		t.Errorf("second failure stage = %q, want quote", out.Failures[1].Stage)
	}
	if len(f.notifier.errors) != 2 {
		t.Errorf("errors = %v, want two", f.notifier.errors)
	}
}

func TestOrchestrator_Save_ExhaustionIsSoftSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 100)
	out := f.orch.Save(context.Background(), f.post, restricted)

	if !out.OK() {
		t.Fatalf("Save() failed: %v", out.Err())
	}
	if out.Reconcile.Converged || out.Reconcile.Attempts != 5 {
		t.Errorf("Reconcile = %+v, want 5 unconverged attempts", out.Reconcile)
	}
	if !out.Reconcile.Exhausted() {
		t.Error("Reconcile should report exhaustion")
	}
	if out.ReconcileErr != nil {
		t.Errorf("ReconcileErr = %v, want nil", out.ReconcileErr)
	}
	if got := f.backend.ThreadReads(testPostURI); got != 5 {
		t.Errorf("thread reads = %d, want 5", got)
	}
	if len(f.notifier.successes) != 1 {
		t.Errorf("successes = %v, want one", f.notifier.successes)
	}
	if len(f.metrics.reconciles) != 1 || f.metrics.reconciles[0].Converged {
		t.Errorf("reconciles = %+v", f.metrics.reconciles)
	}
}

func TestOrchestrator_Save_ReadFailureIsSoftSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.backend.FailThreadReads(errBackendDown)

	out := f.orch.Save(context.Background(), f.post, restricted)

	if !out.OK() {
		t.Fatalf("Save() failed: %v", out.Err())
	}
	if !errors.Is(out.ReconcileErr, poll.ErrFetchFailed) {
		t.Errorf("ReconcileErr = %v, want ErrFetchFailed", out.ReconcileErr)
	}
	var re *store.ReadError
	if !errors.As(out.ReconcileErr, &re) {
		t.Errorf("ReconcileErr = %v, want ReadError", out.ReconcileErr)
	}
	if got := f.backend.ThreadReads(testPostURI); got != 1 {
		t.Errorf("thread reads = %d, want 1", got)
	}
}

func TestOrchestrator_Save_CancelledDuringReconcile(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelAfterFetch := func(
		ctx context.Context,
		cfg poll.Config,
		predicate func(*store.PostSnapshot) bool,
		fetch func(context.Context) (*store.PostSnapshot, error),
	) (*store.PostSnapshot, poll.Report, error) {
		return poll.AwaitConditionReport(ctx, cfg, predicate, func(ctx context.Context) (*store.PostSnapshot, error) {
			s, err := fetch(ctx)
			cancel()
			return s, err
		})
	}

	f := newFixture(t, 100,
		WithPollConfig(poll.Config{MaxAttempts: 5, Delay: time.Hour}),
		WithPoller(cancelAfterFetch),
	)
	f.seedCache(t)

	done := make(chan Outcome, 1)
	go func() {
		done <- f.orch.Save(ctx, f.post, restricted)
	}()

	var out Outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Save() did not return after cancellation")
	}

	if !out.OK() {
		t.Errorf("writes completed before cancellation, got %v", out.Err())
	}
	if !errors.Is(out.ReconcileErr, context.Canceled) {
		t.Errorf("ReconcileErr = %v, want context.Canceled", out.ReconcileErr)
	}
	if out.Reconcile.Attempts != 1 {
		t.Errorf("Reconcile = %+v, want one attempt", out.Reconcile)
	}
	if f.cached(t, cache.ScopePostThread) {
		t.Error("caches should still be invalidated after cancellation")
	}
}

func TestOrchestrator_Save_CanonicalizesDesired(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	out := f.orch.Save(context.Background(), f.post, gate.Policy{
		Allow: []gate.AllowRule{gate.Mention(), gate.Nobody()},
	})
	if !out.OK() || !out.Reconcile.Converged {
		t.Fatalf("Save() = %+v", out)
	}
	if !gate.Equal(out.Snapshot.Allow, []gate.AllowRule{gate.Nobody()}) {
		t.Errorf("Snapshot.Allow = %v, want [nobody]", out.Snapshot.Allow)
	}
}

func TestNewOrchestrator_RequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := NewOrchestrator(nil); err == nil {
		t.Error("NewOrchestrator(nil) should fail")
	}
}
