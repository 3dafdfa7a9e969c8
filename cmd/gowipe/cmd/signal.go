package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// shutdownSignals cancel a running phase.
var shutdownSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}

// setupSignalHandler returns a context that is cancelled when one of sigs
// arrives (SIGTERM or SIGINT when none are given). callback, if set, runs
// with the received signal before cancellation. The returned stop function
// releases the handler and must be called.
func setupSignalHandler(parent context.Context, callback func(os.Signal), sigs ...os.Signal) (context.Context, context.CancelFunc) {
	if len(sigs) == 0 {
		sigs = shutdownSignals
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)

	go func() {
		select {
		case sig := <-sigChan:
			if callback != nil {
				callback(sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
