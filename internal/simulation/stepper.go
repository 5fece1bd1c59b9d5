// Package simulation drives the roster forward in simulation time and
// persists its state periodically.
package simulation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Advancer advances every tracked character by dt.
type Advancer interface {
	AdvanceAll(ctx context.Context, dt time.Duration) error
}

// Stepper advances an Advancer by a fixed step every interval of wall time.
// Step and interval may differ to run the simulation faster or slower than
// real time.
//
// Invariant: each Advance call receives exactly Step; missed ticks are dropped,
// never merged.
type Stepper struct {
	target   Advancer
	interval time.Duration
	step     time.Duration
	logger   *zap.Logger
	steps    atomic.Int64
	elapsed  atomic.Int64
}

// NewStepper returns a Stepper advancing target by step every interval.
//
// Precondition: interval and step must be > 0.
func NewStepper(target Advancer, interval, step time.Duration, logger *zap.Logger) *Stepper {
	if interval <= 0 {
		panic("simulation.NewStepper: interval must be > 0")
	}
	if step <= 0 {
		panic("simulation.NewStepper: step must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stepper{target: target, interval: interval, step: step, logger: logger}
}

// Step advances the target by one step immediately.
//
// Postcondition: Returns the error from the target, if any.
func (s *Stepper) Step(ctx context.Context) error {
	if err := s.target.AdvanceAll(ctx, s.step); err != nil {
		return err
	}
	s.steps.Add(1)
	s.elapsed.Add(int64(s.step))
	return nil
}

// Steps returns the number of completed steps.
func (s *Stepper) Steps() int64 { return s.steps.Load() }

// Elapsed returns the total simulation time advanced.
func (s *Stepper) Elapsed() time.Duration { return time.Duration(s.elapsed.Load()) }

// Run steps the target once per interval until ctx is cancelled. Step errors
// other than cancellation are logged and the loop continues.
//
// Postcondition: Returns nil once ctx is done.
func (s *Stepper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("simulation loop started",
		zap.Duration("interval", s.interval),
		zap.Duration("step", s.step),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulation loop stopped",
				zap.Int64("steps", s.Steps()),
				zap.Duration("elapsed", s.Elapsed()),
			)
			return nil
		case <-ticker.C:
			if err := s.Step(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("simulation step failed", zap.Error(err))
			}
		}
	}
}
