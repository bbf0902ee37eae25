// Package shutdown handles process signals and fatal startup errors.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"threadsync/pkg/logger"
)

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGPIPE dumps goroutine stacks to the log before cancelling.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()

	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		select {
		case s := <-sigpipe:
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			logger.Error("signal_received", "signal", s.String(), "goroutines", string(buf[:n]))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigpipe)
	}()

	return ctx, cancel
}

// exit is swapped in tests.
var exit = os.Exit

// Abort logs a fatal startup error, flushes the logger and exits 1.
func Abort(msg string, err error) {
	logger.Error("fatal", "msg", msg, "error", err)
	logger.Sync()
	fmt.Fprintf(os.Stderr, "threadsync: %s: %v\n", msg, err)
	exit(1)
}
