package statemachine

import "github.com/felixgeelhaar/statekit"

// TransitionPayload carries additional data with a transition event.
type TransitionPayload struct {
	From   State
	To     State
	Reason string
}

// recordTransition appends the transition to the context history.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	payload, ok := event.Payload.(TransitionPayload)
	if !ok {
		return
	}
	c := *ctx
	c.History = append(c.History, Transition(payload))
}
