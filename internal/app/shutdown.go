package app

import (
	"context"
	"errors"

	"threadsync/pkg/logger"
)

// Shutdown stops the server and background work, then closes the store.
// In-flight background refreshes are waited for unless ctx expires first.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	var errs []error

	if a.srvFast != nil {
		srvDone := make(chan error, 1)
		go func() { srvDone <- a.srvFast.Shutdown() }()
		select {
		case err := <-srvDone:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if a.janitorCancel != nil {
		a.janitorCancel()
	}
	a.poller.Stop()

	done := make(chan struct{})
	go func() {
		a.poller.Wait()
		a.coord.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("shutdown_background_timeout", "error", ctx.Err())
		errs = append(errs, ctx.Err())
	}

	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err == nil {
		a.state = "stopped"
	}
	logger.Info("shutdown_complete", "error", err)
	return err
}
