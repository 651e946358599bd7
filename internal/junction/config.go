package junction

import (
	"time"

	"github.com/banshee-data/junction.report/internal/config"
)

// Config holds the counting and scheduling parameters shared by every
// approach.
type Config struct {
	MinWidth     int // Minimum blob width to count as a vehicle
	MinHeight    int // Minimum blob height to count as a vehicle
	LinePosition int // Y coordinate of the counting line
	LineOffset   int // Half-width of the band around the line (exclusive)

	MaxPhaseDuration  time.Duration // Longest a phase may stay green before toggling
	InactivityTimeout time.Duration // Green time without a served vehicle before toggling
	TickInterval      time.Duration // Pacing of Controller.Run

	// Retention of pending detections. Zero disables the bound.
	MaxPendingAge int // Ticks a detection may stay pending
	MaxPending    int // Pending detections kept per approach
}

// DefaultConfig returns the built-in defaults. They match the values in
// config/junction.defaults.json.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig, falling back
// to defaults for unset fields.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MinWidth:          cfg.GetMinWidth(),
		MinHeight:         cfg.GetMinHeight(),
		LinePosition:      cfg.GetLinePosition(),
		LineOffset:        cfg.GetLineOffset(),
		MaxPhaseDuration:  cfg.GetMaxPhaseDuration(),
		InactivityTimeout: cfg.GetInactivityTimeout(),
		TickInterval:      cfg.GetTickInterval(),
		MaxPendingAge:     cfg.GetMaxPendingAge(),
		MaxPending:        cfg.GetMaxPending(),
	}
}

// Validate rejects configurations that cannot drive the controller. It is
// called by NewController so that no tick runs with a bad configuration.
func (c Config) Validate() error {
	switch {
	case c.MinWidth <= 0:
		return &ConfigError{Field: "min_width", Reason: "must be positive"}
	case c.MinHeight <= 0:
		return &ConfigError{Field: "min_height", Reason: "must be positive"}
	case c.LineOffset <= 0:
		return &ConfigError{Field: "line_offset", Reason: "must be positive"}
	case c.LinePosition < 0:
		return &ConfigError{Field: "line_position", Reason: "must be non-negative"}
	case c.MaxPhaseDuration <= 0:
		return &ConfigError{Field: "max_phase_duration", Reason: "must be positive"}
	case c.InactivityTimeout <= 0:
		return &ConfigError{Field: "inactivity_timeout", Reason: "must be positive"}
	case c.TickInterval <= 0:
		return &ConfigError{Field: "tick_interval", Reason: "must be positive"}
	case c.MaxPendingAge < 0:
		return &ConfigError{Field: "max_pending_age", Reason: "must not be negative"}
	case c.MaxPending < 0:
		return &ConfigError{Field: "max_pending", Reason: "must not be negative"}
	}
	return nil
}
