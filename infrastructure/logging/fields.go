package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// PostURI adds the post being gated.
func PostURI(uri string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("post_uri", uri)
	}
}

// SaveID adds the identifier of a save operation.
func SaveID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("save_id", id)
	}
}

// Stage adds the record stage (reply or quote).
func Stage(stage string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("stage", stage)
	}
}

// State adds an orchestrator state.
func State(s string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("state", s)
	}
}

// Transition adds from and to states.
func Transition(from, to string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_state", from).Str("to_state", to)
	}
}

// Attempts adds a poll attempt count.
func Attempts(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("attempts", n)
	}
}

// Converged adds whether the read path caught up.
func Converged(ok bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool("converged", ok)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
