package experiment

import (
	"context"
	"time"

	"github.com/nvandessel/trialrun/internal/trial"
)

// Hooks is the study-specific part of an experiment. The controller calls
// Initialize, Start, RunTrial (once per attempt), Conclude and Destroy in
// that order, and UpdateEachTick on every tick of the run.
//
// Every method except Destroy and UpdateEachTick may suspend through the
// controller's waits. Destroy must not call back into the controller's waits.
type Hooks[P trial.Payload] interface {
	Initialize(ctx context.Context, c *Controller[P]) error
	Start(ctx context.Context, c *Controller[P]) error
	RunTrial(ctx context.Context, c *Controller[P], rec *trial.Record[P]) error
	Conclude(ctx context.Context, c *Controller[P]) error
	Destroy(c *Controller[P]) error
	UpdateEachTick(c *Controller[P], now time.Duration)
}

// NopHooks implements every hook as a no-op. Embed it and override the hooks
// a study needs.
type NopHooks[P trial.Payload] struct{}

func (NopHooks[P]) Initialize(context.Context, *Controller[P]) error { return nil }

func (NopHooks[P]) Start(context.Context, *Controller[P]) error { return nil }

func (NopHooks[P]) RunTrial(context.Context, *Controller[P], *trial.Record[P]) error { return nil }

func (NopHooks[P]) Conclude(context.Context, *Controller[P]) error { return nil }

func (NopHooks[P]) Destroy(*Controller[P]) error { return nil }

func (NopHooks[P]) UpdateEachTick(*Controller[P], time.Duration) {}
