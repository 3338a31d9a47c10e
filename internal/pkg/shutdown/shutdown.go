// Package shutdown coordinates graceful shutdown of the api and worker
// processes: long-lived components run under one context, and cleanup
// handlers run once a signal arrives or a component fails.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"renderbridge/internal/pkg/logger"
)

const defaultTimeout = 30 * time.Second

type handler struct {
	name    string
	cleanup func(ctx context.Context) error
}

// Manager runs cleanup handlers one at a time in reverse registration order,
// so a process stops taking work before the stores that work uses close.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu       sync.Mutex
	handlers []handler

	once   sync.Once
	done   chan struct{}
	failed chan error

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager returns a Manager whose cleanup phase is bounded by timeout
// (30s when zero).
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewDefault()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
		failed:  make(chan error, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a cleanup handler.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	m.handlers = append(m.handlers, handler{name: name, cleanup: cleanup})
	m.mu.Unlock()
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterSimple adds a cleanup that cannot fail, such as pgxpool.Close.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(context.Context) error {
		cleanup()
		return nil
	})
}

// Go runs a long-lived component with Context. If it returns an error before
// shutdown has started, shutdown begins and Wait reports that error. The
// returned channel closes when run returns.
func (m *Manager) Go(name string, run func(ctx context.Context) error) <-chan struct{} {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		err := run(m.ctx)
		if err == nil || m.ctx.Err() != nil {
			return
		}
		m.log.Error("component failed", "name", name, "error", err.Error())
		select {
		case m.failed <- err:
		default:
		}
	}()
	return finished
}

// WaitFor returns a cleanup that blocks until finished closes, typically the
// channel returned by Go.
func WaitFor(finished <-chan struct{}) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-finished:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Context is canceled as soon as shutdown starts.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Wait blocks until SIGINT, SIGTERM or SIGHUP, or a component failure, then
// runs cleanup. It returns the component error, if that was the cause.
func (m *Manager) Wait() error {
	return m.WaitWithContext(context.Background())
}

// WaitWithContext is Wait that also stops when ctx ends.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var cause error
	select {
	case sig := <-sigCh:
		m.log.Info("shutdown signal received", "signal", sig.String())
	case cause = <-m.failed:
	case <-ctx.Done():
		m.log.Info("context canceled, initiating shutdown")
	}

	m.Shutdown()
	return cause
}

// Shutdown cancels Context and runs the cleanup handlers. Only the first call
// does anything.
func (m *Manager) Shutdown() {
	m.once.Do(m.shutdown)
}

// Done closes when cleanup has finished or timed out.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) shutdown() {
	defer close(m.done)
	m.cancel()

	m.mu.Lock()
	handlers := append([]handler(nil), m.handlers...)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := len(handlers) - 1; i >= 0 && ctx.Err() == nil; i-- {
			m.run(ctx, handlers[i])
		}
	}()

	select {
	case <-finished:
		m.log.Info("graceful shutdown completed")
	case <-ctx.Done():
		m.log.Warn("shutdown timeout exceeded, forcing exit")
	}
}

func (m *Manager) run(ctx context.Context, h handler) {
	start := time.Now()
	err := h.cleanup(ctx)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		m.log.Error("shutdown handler failed", "name", h.name, "error", err.Error(), "duration_ms", elapsed)
		return
	}
	m.log.Debug("shutdown handler completed", "name", h.name, "duration_ms", elapsed)
}
