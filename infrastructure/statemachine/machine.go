// Package statemachine provides the statekit statechart that drives a
// policy save: Idle → Saving → {Reconciling, Failed} → Idle.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// State is a save lifecycle state.
type State string

// Save states.
const (
	StateIdle        State = "idle"
	StateSaving      State = "saving"
	StateReconciling State = "reconciling"
	StateFailed      State = "failed"
)

// Event drives a transition.
type Event string

// Save events.
const (
	// EventSave starts writing both records.
	EventSave Event = "SAVE"
	// EventReconcile starts polling once the reply write succeeded.
	EventReconcile Event = "RECONCILE"
	// EventFail records a failed write.
	EventFail Event = "FAIL"
	// EventSettle returns to idle.
	EventSettle Event = "SETTLE"
)

// Context carries save state through the machine.
type Context struct {
	SaveID  string
	PostURI string
	// ReplyWritten is set once the reply-policy write succeeded.
	ReplyWritten bool
	// History lists the transitions taken, oldest first.
	History []Transition
}

// Transition is one recorded state change.
type Transition struct {
	From   State
	To     State
	Reason string
}

// Target returns the state machine reaches by sending event in from.
func Target(machine *statekit.MachineConfig[*Context], from State, event Event) (State, bool) {
	state, ok := machine.States[statekit.StateID(from)]
	if !ok {
		return "", false
	}
	for _, tr := range state.Transitions {
		if tr.Event == statekit.EventType(event) {
			return State(tr.Target), true
		}
	}
	return "", false
}

// NewSaveMachine creates the save statechart.
func NewSaveMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("policy-save").
		WithInitial(statekit.StateID(StateIdle)).
		WithContext(&Context{}).
		WithAction("recordTransition", recordTransition).
		WithGuard("replyWritten", guardReplyWritten).
		State(statekit.StateID(StateIdle)).
			On(statekit.EventType(EventSave)).Target(statekit.StateID(StateSaving)).Do("recordTransition").
			Done().
		State(statekit.StateID(StateSaving)).
			On(statekit.EventType(EventReconcile)).Target(statekit.StateID(StateReconciling)).Guard("replyWritten").Do("recordTransition").
			On(statekit.EventType(EventFail)).Target(statekit.StateID(StateFailed)).Do("recordTransition").
			Done().
		State(statekit.StateID(StateReconciling)).
			On(statekit.EventType(EventSettle)).Target(statekit.StateID(StateIdle)).Do("recordTransition").
			On(statekit.EventType(EventFail)).Target(statekit.StateID(StateFailed)).Do("recordTransition").
			Done().
		State(statekit.StateID(StateFailed)).
			On(statekit.EventType(EventSettle)).Target(statekit.StateID(StateIdle)).Do("recordTransition").
			Done().
		Build()
}
