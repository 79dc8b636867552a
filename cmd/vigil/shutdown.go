package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"vigil/internal/logging"
)

type shutdownPhase struct {
	name string
	stop func(context.Context) error
}

// shutdownCoordinator runs registered stop functions once, in order,
// collecting failures instead of aborting.
type shutdownCoordinator struct {
	logger *logging.Logger
	once   sync.Once
	phases []shutdownPhase
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{
		logger: logger,
	}
}

func (c *shutdownCoordinator) Add(name string, stop func(context.Context) error) {
	if c == nil || stop == nil {
		return
	}
	c.phases = append(c.phases, shutdownPhase{
		name: name,
		stop: stop,
	})
}

func (c *shutdownCoordinator) Run(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var runErr error
	c.once.Do(func() {
		for _, phase := range c.phases {
			if c.logger != nil {
				c.logger.Debug("shutdown phase starting", map[string]string{
					"phase": phase.name,
				})
			}
			if err := phase.stop(ctx); err != nil {
				runErr = errors.Join(runErr, err)
				if c.logger != nil {
					c.logger.Warn("shutdown phase failed", map[string]string{
						"phase": phase.name,
						"error": err.Error(),
					})
				}
			}
		}
	})
	return runErr
}

// watchShutdownSignals cancels the run context on the first signal and
// ignores repeats while shutdown is in flight.
func watchShutdownSignals(logger *logging.Logger, cancel context.CancelFunc, signals <-chan os.Signal) func() {
	if signals == nil {
		return func() {}
	}

	done := make(chan struct{})
	var started atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if !started.CompareAndSwap(false, true) {
					continue
				}
				if logger != nil {
					fields := map[string]string{}
					if sig != nil {
						fields["signal"] = sig.String()
					}
					logger.Info("shutdown signal received", fields)
				}
				if cancel != nil {
					cancel()
				}
			}
		}
	}()

	return func() {
		close(done)
	}
}
