package statemachine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"
)

// ErrTransitionNotAllowed is returned for an event the current state does
// not accept, or one whose guard rejected it.
var ErrTransitionNotAllowed = errors.New("transition not allowed")

// Interpreter runs one save through the statechart. It is safe for
// concurrent use so the current state can be observed while a save runs.
type Interpreter struct {
	mu      sync.Mutex
	machine *statekit.MachineConfig[*Context]
	interp  *statekit.Interpreter[*Context]
	ctx     *Context
}

// NewInterpreter starts a save machine in the idle state.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	interp.Start()
	return &Interpreter{
		machine: machine,
		interp:  interp,
		ctx:     ctx,
	}
}

// State returns the current state.
func (i *Interpreter) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return State(i.interp.State().Value)
}

// Send fires event and returns the state reached.
func (i *Interpreter) Send(event Event, reason string) (State, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := State(i.interp.State().Value)
	to, ok := Target(i.machine, from, event)
	if !ok {
		return from, fmt.Errorf("%w: %s in %s", ErrTransitionNotAllowed, event, from)
	}

	i.interp.Send(statekit.Event{
		Type:    statekit.EventType(event),
		Payload: TransitionPayload{From: from, To: to, Reason: reason},
	})

	got := State(i.interp.State().Value)
	if got != to {
		return got, fmt.Errorf("%w: %s in %s was rejected", ErrTransitionNotAllowed, event, from)
	}
	return got, nil
}

// MarkReplyWritten records that the reply-policy write succeeded.
func (i *Interpreter) MarkReplyWritten() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interp.UpdateContext(func(c **Context) {
		(*c).ReplyWritten = true
	})
}

// History returns a copy of the transitions taken so far.
func (i *Interpreter) History() []Transition {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Transition(nil), i.ctx.History...)
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interp.Stop()
}
