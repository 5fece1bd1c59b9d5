// Package server provides application lifecycle management including
// graceful startup and shutdown with signal handling.
package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service represents a long-running component.
type Service interface {
	// Run blocks until ctx is cancelled or the service fails. Returning nil
	// before ctx is cancelled means the service finished its work.
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function into the Service interface.
type ServiceFunc func(ctx context.Context) error

// Run calls f.
func (f ServiceFunc) Run(ctx context.Context) error { return f(ctx) }

// Lifecycle manages the startup and shutdown of multiple services.
// Services are started in order and stopped in reverse order: each service's
// context is cancelled only after every service added after it has returned.
type Lifecycle struct {
	logger      *zap.Logger
	services    []namedService
	stopTimeout time.Duration
	mu          sync.Mutex
}

type namedService struct {
	name    string
	service Service
}

type result struct {
	name string
	err  error
}

type running struct {
	name   string
	cancel context.CancelFunc
	done   chan error
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:      logger,
		stopTimeout: 10 * time.Second,
	}
}

// SetStopTimeout bounds how long shutdown waits for each service to return.
func (l *Lifecycle) SetStopTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopTimeout = d
}

// Add registers a named service for lifecycle management.
// Services are started in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts all services and blocks until SIGINT or SIGTERM is received, ctx
// is cancelled, every service has finished, or one service fails. Services are
// then stopped in reverse order.
//
// Postcondition: All services have returned, or exceeded the stop timeout, when
// this method returns. Returns the first service failure, if any.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	l.mu.Unlock()

	results := make(chan result, len(services))
	runs := make([]running, 0, len(services))
	for _, ns := range services {
		svcCtx, cancel := context.WithCancel(context.Background())
		r := running{name: ns.name, cancel: cancel, done: make(chan error, 1)}
		runs = append(runs, r)

		l.logger.Info("starting service", zap.String("service", ns.name))
		go func() {
			svcStart := time.Now()
			err := ns.service.Run(svcCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				err = fmt.Errorf("service %s: %w", ns.name, err)
			} else {
				err = nil
			}
			r.done <- err
			results <- result{name: ns.name, err: err}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	var runErr error
	remaining := len(services)
wait:
	for remaining > 0 {
		select {
		case <-sigCtx.Done():
			if ctx.Err() != nil {
				l.logger.Info("context cancelled, shutting down")
			} else {
				l.logger.Info("received signal, shutting down")
			}
			break wait
		case res := <-results:
			if res.err != nil {
				l.logger.Error("service error, shutting down", zap.Error(res.err))
				runErr = res.err
				break wait
			}
			remaining--
			l.logger.Info("service finished", zap.String("service", res.name))
		}
	}

	l.shutdown(runs)

	l.logger.Info("shutdown complete",
		zap.Duration("total_uptime", time.Since(start)),
	)
	return runErr
}

func (l *Lifecycle) shutdown(runs []running) {
	shutdownStart := time.Now()
	l.mu.Lock()
	timeout := l.stopTimeout
	l.mu.Unlock()

	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		svcStart := time.Now()
		l.logger.Info("stopping service", zap.String("service", r.name))
		r.cancel()
		select {
		case <-r.done:
			l.logger.Info("service stopped",
				zap.String("service", r.name),
				zap.Duration("elapsed", time.Since(svcStart)),
			)
		case <-time.After(timeout):
			l.logger.Warn("service did not stop in time",
				zap.String("service", r.name),
				zap.Duration("timeout", timeout),
			)
		}
	}
	l.logger.Info("all services stopped",
		zap.Duration("shutdown_elapsed", time.Since(shutdownStart)),
	)
}
