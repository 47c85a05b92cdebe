package models

import "time"

// ClockState is the persisted record of the simulated clock.
// Tick is simulated seconds per real second; zero means paused.
type ClockState struct {
	SimTime    time.Time `json:"simTime"`
	LastUpdate time.Time `json:"lastUpdate"`
	Tick       int64     `json:"tick"`
	PausedTick int64     `json:"pausedTick"`
}

// ClockStatus is the externally visible clock reading.
type ClockStatus struct {
	SimTime   time.Time `json:"simTime"`
	SimTimeMs int64     `json:"simTimeMs"`
	Tick      int64     `json:"tick"`
	IsPaused  bool      `json:"isPaused"`
}
