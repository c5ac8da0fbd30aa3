package statemachine

import "github.com/felixgeelhaar/statekit"

// guardReplyWritten allows reconciliation only after the reply write
// succeeded; there is nothing to wait for otherwise.
func guardReplyWritten(ctx *Context, _ statekit.Event) bool {
	return ctx != nil && ctx.ReplyWritten
}
