package sigctx

import (
	"context"
	"os/signal"
	"syscall"
)

// NotifyContext is cancelled on SIGINT, SIGTERM or SIGQUIT.
func NotifyContext() (context.Context, context.CancelFunc) {
	return WithSignals(context.Background())
}

// WithSignals derives a context from parent that is also cancelled on
// termination signals.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
}
