// Package bootstrap runs a long-lived process and tears its resources down in reverse order.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultShutdownTimeout bounds the wait for the run function and the hooks after a signal.
const DefaultShutdownTimeout = 10 * time.Second

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// App owns the shutdown hooks of a process.
type App struct {
	mu     sync.Mutex
	hooks  []hook
	logger *slog.Logger
	// ShutdownTimeout bounds the shutdown; zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// New creates an App logging to logger, or to slog.Default when logger is nil.
func New(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger}
}

// OnShutdown registers fn under name. Hooks run in reverse registration order. Thread-safe.
func (a *App) OnShutdown(name string, fn func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, hook{name: name, fn: fn})
}

// Run calls run with a context cancelled on SIGINT or SIGTERM. Once run returns, or once a
// signal arrives and run has stopped within the timeout, every hook runs. The returned error
// joins the error of run with the hook errors.
func (a *App) Run(ctx context.Context, run func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx)
	}()

	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		a.logger.Info("shutting down", "timeout", timeout)
		select {
		case runErr = <-errCh:
		case <-time.After(timeout):
			runErr = fmt.Errorf("run did not stop within %s", timeout)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

func (a *App) shutdown(ctx context.Context) error {
	a.mu.Lock()
	hooks := a.hooks
	a.hooks = nil
	a.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			a.logger.Error("shutdown hook failed", "hook", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		a.logger.Debug("shutdown hook finished", "hook", h.name)
	}
	return errors.Join(errs...)
}
