package statemachine

import (
	"errors"
	"testing"
)

func newTestInterpreter(t *testing.T) (*Interpreter, *Context) {
	t.Helper()
	machine, err := NewSaveMachine()
	if err != nil {
		t.Fatalf("NewSaveMachine() error = %v", err)
	}
	ctx := &Context{SaveID: "save-1", PostURI: "at://did:plc:a/app.bsky.feed.post/1"}
	return NewInterpreter(machine, ctx), ctx
}

func TestInterpreter_StartsIdle(t *testing.T) {
	t.Parallel()

	interp, _ := newTestInterpreter(t)
	if got := interp.State(); got != StateIdle {
		t.Errorf("State() = %s, want idle", got)
	}
}

func TestInterpreter_SuccessPath(t *testing.T) {
	t.Parallel()

	interp, _ := newTestInterpreter(t)
	steps := []struct {
		event Event
		want  State
	}{
		{EventSave, StateSaving},
		{EventReconcile, StateReconciling},
		{EventSettle, StateIdle},
	}

	interp.MarkReplyWritten()
	for _, s := range steps {
		got, err := interp.Send(s.event, "test")
		if err != nil {
			t.Fatalf("Send(%s) error = %v", s.event, err)
		}
		if got != s.want {
			t.Fatalf("Send(%s) = %s, want %s", s.event, got, s.want)
		}
	}

	history := interp.History()
	if len(history) != 3 {
		t.Fatalf("History() has %d entries, want 3", len(history))
	}
	if history[0].From != StateIdle || history[0].To != StateSaving {
		t.Errorf("first transition = %+v", history[0])
	}
	if history[2].To != StateIdle {
		t.Errorf("last transition = %+v", history[2])
	}
}

func TestInterpreter_FailurePath(t *testing.T) {
	t.Parallel()

	interp, _ := newTestInterpreter(t)
	if _, err := interp.Send(EventSave, ""); err != nil {
		t.Fatalf("Send(SAVE) error = %v", err)
	}
	if got, err := interp.Send(EventFail, "reply write failed"); err != nil || got != StateFailed {
		t.Fatalf("Send(FAIL) = %s, %v", got, err)
	}
	if got, err := interp.Send(EventSettle, ""); err != nil || got != StateIdle {
		t.Fatalf("Send(SETTLE) = %s, %v", got, err)
	}
}

func TestInterpreter_ReconcileRequiresReplyWrite(t *testing.T) {
	t.Parallel()

	interp, _ := newTestInterpreter(t)
	if _, err := interp.Send(EventSave, ""); err != nil {
		t.Fatalf("Send(SAVE) error = %v", err)
	}
	_, err := interp.Send(EventReconcile, "")
	if !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("Send(RECONCILE) error = %v, want ErrTransitionNotAllowed", err)
	}
	if got := interp.State(); got != StateSaving {
		t.Errorf("State() = %s, want saving", got)
	}
}

func TestInterpreter_RejectsIllegalEvents(t *testing.T) {
	t.Parallel()

	interp, _ := newTestInterpreter(t)
	for _, e := range []Event{EventReconcile, EventFail, EventSettle} {
		if _, err := interp.Send(e, ""); !errors.Is(err, ErrTransitionNotAllowed) {
			t.Errorf("Send(%s) from idle error = %v, want ErrTransitionNotAllowed", e, err)
		}
	}
}

func TestTarget(t *testing.T) {
	t.Parallel()

	machine, err := NewSaveMachine()
	if err != nil {
		t.Fatalf("NewSaveMachine() error = %v", err)
	}

	tests := []struct {
		from  State
		event Event
		want  State
		ok    bool
	}{
		{StateIdle, EventSave, StateSaving, true},
		{StateSaving, EventReconcile, StateReconciling, true},
		{StateSaving, EventFail, StateFailed, true},
		{StateReconciling, EventSettle, StateIdle, true},
		{StateReconciling, EventFail, StateFailed, true},
		{StateFailed, EventSettle, StateIdle, true},
		{StateIdle, EventSettle, "", false},
		{StateFailed, EventReconcile, "", false},
		{State("unknown"), EventSave, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			t.Parallel()

			got, ok := Target(machine, tt.from, tt.event)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Target(%s, %s) = %q, %v, want %q, %v", tt.from, tt.event, got, ok, tt.want, tt.ok)
			}
		})
	}
}
