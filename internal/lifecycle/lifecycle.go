// Package lifecycle starts the client's long-running services and tears them
// down in reverse order on a termination signal, a service failure or context
// cancellation.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a long-running component.
type Service interface {
	// Start runs the service and blocks until it stops. ctx is cancelled when
	// shutdown begins.
	Start(ctx context.Context) error
	// Stop releases the service's resources. It is called once, after shutdown
	// begins, whether or not Start has returned.
	Stop()
}

// FuncService adapts a start/stop function pair into the Service interface.
// A nil StopFn is a no-op.
type FuncService struct {
	StartFn func(ctx context.Context) error
	StopFn  func()
}

// Start calls the underlying start function.
func (f *FuncService) Start(ctx context.Context) error { return f.StartFn(ctx) }

// Stop calls the underlying stop function.
func (f *FuncService) Stop() {
	if f.StopFn != nil {
		f.StopFn()
	}
}

type namedService struct {
	name    string
	service Service
}

// Lifecycle starts services in the order they were added and stops them in
// reverse order.
type Lifecycle struct {
	logger   *zap.Logger
	signals  []os.Signal
	mu       sync.Mutex
	services []namedService
}

// New creates a Lifecycle that shuts down on SIGINT and SIGTERM.
//
// Precondition: logger must be non-nil.
func New(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:  logger,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Add registers a named service.
//
// Precondition: name must be non-empty; svc must be non-nil; Run has not been called.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts every service and blocks until a termination signal arrives, a
// service returns, or ctx is cancelled. It then stops services in reverse
// order and waits for every Start call to return.
//
// Postcondition: Returns the first service error, or nil on a clean shutdown.
func (l *Lifecycle) Run(ctx context.Context) error {
	l.mu.Lock()
	services := l.services
	l.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exited := make(chan serviceExit, len(services))
	var wg sync.WaitGroup
	for _, ns := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.logger.Info("starting service", zap.String("service", ns.name))
			svcStart := time.Now()
			err := ns.service.Start(ctx)
			if err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				err = fmt.Errorf("service %s: %w", ns.name, err)
			}
			exited <- serviceExit{name: ns.name, err: err}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, l.signals...)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case exit := <-exited:
		runErr = exit.err
		if runErr != nil {
			l.logger.Error("service error, shutting down", zap.Error(runErr))
		} else {
			l.logger.Info("service exited, shutting down", zap.String("service", exit.name))
		}
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	cancel()
	l.shutdown(services)
	wg.Wait()

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return runErr
}

type serviceExit struct {
	name string
	err  error
}

func (l *Lifecycle) shutdown(services []namedService) {
	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service", zap.String("service", ns.name))
		ns.service.Stop()
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(shutdownStart)))
}
