package buses

import "log/slog"

// Scene is the display driven by the study. Positions are in metres along
// the road and velocities in metres per second.
type Scene interface {
	ShowStartInstructions(visible bool)
	ShowRestInstructions(visible bool)
	ShowFixation(visible bool)
	ShowBuses(visible bool)
	PlaceCamera(x float64)
	PlaceBuses(x float64)
	SetVelocities(camera, buses float64)
}

// SceneState is the last state set on a LogScene.
type SceneState struct {
	StartInstructions bool
	RestInstructions  bool
	Fixation          bool
	Buses             bool
	CameraX           float64
	BusesX            float64
	CameraVelocity    float64
	BusesVelocity     float64
}

// LogScene is a headless Scene that logs every change at debug level.
type LogScene struct {
	logger *slog.Logger
	state  SceneState
}

// NewLogScene creates a headless scene.
func NewLogScene(logger *slog.Logger) *LogScene {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogScene{logger: logger}
}

// State returns the current scene state.
func (s *LogScene) State() SceneState { return s.state }

func (s *LogScene) ShowStartInstructions(visible bool) {
	s.state.StartInstructions = visible
	s.logger.Debug("scene", "start_instructions", visible)
}

func (s *LogScene) ShowRestInstructions(visible bool) {
	s.state.RestInstructions = visible
	s.logger.Debug("scene", "rest_instructions", visible)
}

func (s *LogScene) ShowFixation(visible bool) {
	s.state.Fixation = visible
	s.logger.Debug("scene", "fixation", visible)
}

func (s *LogScene) ShowBuses(visible bool) {
	s.state.Buses = visible
	s.logger.Debug("scene", "buses", visible)
}

func (s *LogScene) PlaceCamera(x float64) {
	s.state.CameraX = x
	s.logger.Debug("scene", "camera_x", x)
}

func (s *LogScene) PlaceBuses(x float64) {
	s.state.BusesX = x
	s.logger.Debug("scene", "buses_x", x)
}

func (s *LogScene) SetVelocities(camera, buses float64) {
	s.state.CameraVelocity = camera
	s.state.BusesVelocity = buses
	s.logger.Debug("scene", "camera_velocity", camera, "buses_velocity", buses)
}
