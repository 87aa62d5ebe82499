package buses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/trialrun/internal/experiment"
	"github.com/nvandessel/trialrun/internal/trial"
)

// KmhToMs converts km/h to m/s.
const KmhToMs = 0.277778

// Config holds the study timing and layout. Times are in seconds.
type Config struct {
	MinInterTrial  float64 `json:"min_inter_trial" yaml:"min_inter_trial"`
	MaxInterTrial  float64 `json:"max_inter_trial" yaml:"max_inter_trial"`
	InitialCameraX float64 `json:"initial_camera_x" yaml:"initial_camera_x"`
	InitialBusesX  float64 `json:"initial_buses_x" yaml:"initial_buses_x"`
}

// DefaultConfig returns the standard study setup.
func DefaultConfig() Config {
	return Config{
		MinInterTrial:  0.5,
		MaxInterTrial:  5,
		InitialCameraX: 0,
		InitialBusesX:  355,
	}
}

// Validate checks the timing.
func (c Config) Validate() error {
	if c.MinInterTrial < 0 {
		return fmt.Errorf("min_inter_trial must not be negative, got %v", c.MinInterTrial)
	}
	if c.MaxInterTrial < c.MinInterTrial {
		return fmt.Errorf("max_inter_trial (%v) must not be less than min_inter_trial (%v)",
			c.MaxInterTrial, c.MinInterTrial)
	}
	return nil
}

// Study is the bus illusion experiment.
type Study struct {
	experiment.NopHooks[*Trial]

	cfg    Config
	scene  Scene
	logger *slog.Logger
}

var _ experiment.Hooks[*Trial] = (*Study)(nil)

// NewStudy creates the study hooks driving scene.
func NewStudy(cfg Config, scene Scene, logger *slog.Logger) *Study {
	if logger == nil {
		logger = slog.Default()
	}
	return &Study{cfg: cfg, scene: scene, logger: logger}
}

func (s *Study) Initialize(ctx context.Context, c *experiment.Controller[*Trial]) error {
	s.scene.ShowFixation(true)
	s.scene.ShowBuses(false)
	s.scene.ShowStartInstructions(true)
	s.scene.ShowRestInstructions(false)
	return nil
}

func (s *Study) Start(ctx context.Context, c *experiment.Controller[*Trial]) error {
	s.scene.ShowStartInstructions(false)
	s.scene.ShowRestInstructions(false)
	return nil
}

// RunTrial moves the camera and the buses for the trial duration, then
// collects the response in the inter-trial interval.
func (s *Study) RunTrial(ctx context.Context, c *experiment.Controller[*Trial], rec *trial.Record[*Trial]) error {
	p := rec.Payload

	s.scene.PlaceCamera(s.cfg.InitialCameraX)
	s.scene.PlaceBuses(s.cfg.InitialBusesX)
	s.scene.ShowBuses(true)
	s.scene.ShowFixation(true)
	s.scene.SetVelocities(p.SMVelocity*KmhToMs, p.OMVelocity*KmhToMs)
	p.StartTime = c.Now().Seconds()

	if err := c.WaitSeconds(ctx, float64(p.Duration)); err != nil {
		return err
	}

	s.scene.SetVelocities(0, 0)
	s.scene.ShowBuses(true)
	p.EndTime = c.Now().Seconds()

	if err := c.WaitSeconds(ctx, s.cfg.MinInterTrial); err != nil {
		return err
	}
	if window := time.Duration((s.cfg.MaxInterTrial - s.cfg.MinInterTrial) * float64(time.Second)); window > 0 {
		if _, err := c.Tracker().WaitForResponse(ctx, window); err != nil {
			return err
		}
	}
	if err := c.Tracker().WaitForRelease(ctx); err != nil {
		return err
	}

	// A double press keeps its press time and still earns the rest break;
	// the table invalidates it when it advances.
	if rec.ResponseTime <= p.ChangeTime {
		s.logger.Info("trial without a response", "trial", rec.Index)
		rec.Valid = false
		return nil
	}
	if p.Break > 0 {
		s.logger.Info("rest break", "trial", rec.Index)
		s.scene.ShowRestInstructions(true)
		if err := c.Tracker().WaitForAccept(ctx); err != nil {
			return err
		}
		s.scene.ShowRestInstructions(false)
	}
	return nil
}

func (s *Study) Destroy(c *experiment.Controller[*Trial]) error {
	s.scene.ShowBuses(true)
	return nil
}
