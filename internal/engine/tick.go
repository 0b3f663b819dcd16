// Package engine provides the step loop that drives a market simulation.
package engine

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// Engine drives a simulation forward for a fixed number of steps.
type Engine struct {
	Step        int           // completed steps
	RunLength   int           // steps to run; <= 0 runs until the context ends
	ReportEvery int           // OnReport cadence in steps; 0 disables it
	Limiter     *rate.Limiter // optional pacing, one token per step

	// Callbacks, populated during setup. OnStep advances the simulation.
	OnStep   func(step int) error
	OnReport func(step int)  // every ReportEvery completed steps
	OnDone   func(steps int) // once, when the loop exits without error
}

// NewEngine creates an engine that runs length steps of step.
func NewEngine(length int, step func(int) error) *Engine {
	return &Engine{RunLength: length, OnStep: step}
}

// Paced sets the loop to at most perSecond steps per second. A non-positive
// rate removes pacing.
func (e *Engine) Paced(perSecond float64) *Engine {
	if perSecond <= 0 {
		e.Limiter = nil
		return e
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	e.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return e
}

// Run executes steps until RunLength is reached, OnStep fails or ctx is
// done. A cancelled context is reported as ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	slog.Debug("simulation engine started", "step", e.Step, "run_length", e.RunLength)

	for e.RunLength <= 0 || e.Step < e.RunLength {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation engine interrupted", "step", e.Step)
			return err
		}
		if e.Limiter != nil {
			if err := e.Limiter.Wait(ctx); err != nil {
				slog.Info("simulation engine interrupted", "step", e.Step)
				return err
			}
		}

		if err := e.OnStep(e.Step); err != nil {
			return err
		}
		e.Step++

		if e.ReportEvery > 0 && e.Step%e.ReportEvery == 0 && e.OnReport != nil {
			e.OnReport(e.Step)
		}
	}

	if e.OnDone != nil {
		e.OnDone(e.Step)
	}
	slog.Debug("simulation engine stopped", "step", e.Step)
	return nil
}
