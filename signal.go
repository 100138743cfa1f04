package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. The first signal is the cue for
// syncloop.Loop.Stop to drain its in-flight merges, flush bookkeeping, and
// release its SD file handles (spec.md §4.6/§5); `watch`, the command that
// uses this context, gets that one poll interval to finish cleanly.
// The second signal exists for an operator whose SD sits on a wedged or
// very slow filesystem, where the drain itself is what's hanging.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, draining sync loop before exit",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		// A second signal means the drain itself isn't finishing in time —
		// stop waiting on it and exit immediately.
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit before drain completed",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}
