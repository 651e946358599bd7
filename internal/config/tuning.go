// Package config loads the JSON tuning file for the junction controller.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is where the checked-in defaults live, relative to the
// repository root. The file and the built-in constants below must agree.
const DefaultConfigPath = "config/junction.defaults.json"

// maxConfigBytes bounds how much of a tuning file is read.
const maxConfigBytes = 1 << 20

// Built-in defaults, used when a field is absent from the loaded file.
const (
	defaultMinWidth          = 80
	defaultMinHeight         = 80
	defaultLinePosition      = 550
	defaultLineOffset        = 6
	defaultMaxPhaseDuration  = 60 * time.Second
	defaultInactivityTimeout = 5 * time.Second
	defaultTickInterval      = time.Second / 60 // one frame of a 60 fps feed
	defaultMaxPendingAge     = 600
	defaultMaxPending        = 0
	defaultRecordEvery       = 60
)

// TuningConfig holds counting and signal timing parameters as read from
// JSON. Fields are pointers so that a partial file only overrides the
// values it names.
type TuningConfig struct {
	// Blob filter
	MinWidth  *int `json:"min_width,omitempty"`
	MinHeight *int `json:"min_height,omitempty"`

	// Counting line
	LinePosition *int `json:"line_position,omitempty"`
	LineOffset   *int `json:"line_offset,omitempty"`

	// Scheduler timing, as Go duration strings
	MaxPhaseDuration  *string `json:"max_phase_duration,omitempty"`
	InactivityTimeout *string `json:"inactivity_timeout,omitempty"`
	TickInterval      *string `json:"tick_interval,omitempty"`

	// Pending detection retention (0 disables)
	MaxPendingAge *int `json:"max_pending_age,omitempty"`
	MaxPending    *int `json:"max_pending,omitempty"`

	// Persistence
	RecordEvery *int `json:"record_every,omitempty"` // ticks between stored count rows
}

// EmptyTuningConfig returns a config with nothing set, so every getter
// yields its built-in default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig reads and validates a .json tuning file. Unknown keys are
// rejected so a misspelt field cannot silently fall back to its default.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	path = filepath.Clean(path)
	if ext := filepath.Ext(path); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// One byte past the limit tells an oversized file from one that fits.
	data, err := io.ReadAll(io.LimitReader(f, maxConfigBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigBytes {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigBytes)
	}

	cfg := EmptyTuningConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or the nearest parent that has it, so package tests can find the file.
// It panics when no copy loads.
func MustLoadDefaultConfig() *TuningConfig {
	dir, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	for {
		if cfg, err := LoadTuningConfig(filepath.Join(dir, DefaultConfigPath)); err == nil {
			return cfg
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			panic("cannot find " + DefaultConfigPath + " in any parent directory")
		}
		dir = parent
	}
}

// Validate checks that the configuration values are valid. Thresholds and
// durations must be positive; retention limits may be zero.
func (c *TuningConfig) Validate() error {
	positive := []struct {
		name string
		v    *int
	}{
		{"min_width", c.MinWidth},
		{"min_height", c.MinHeight},
		{"line_offset", c.LineOffset},
		{"record_every", c.RecordEvery},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, *p.v)
		}
	}

	if c.LinePosition != nil && *c.LinePosition < 0 {
		return fmt.Errorf("line_position must be non-negative, got %d", *c.LinePosition)
	}
	if c.MaxPendingAge != nil && *c.MaxPendingAge < 0 {
		return fmt.Errorf("max_pending_age must be non-negative, got %d", *c.MaxPendingAge)
	}
	if c.MaxPending != nil && *c.MaxPending < 0 {
		return fmt.Errorf("max_pending must be non-negative, got %d", *c.MaxPending)
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"max_phase_duration", c.MaxPhaseDuration},
		{"inactivity_timeout", c.InactivityTimeout},
		{"tick_interval", c.TickInterval},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.v)
		}
	}

	return nil
}

// Resolved returns a copy with every field set to its effective value, so
// the stored form of a session's settings does not depend on the defaults
// of the binary that reads it back.
func (c *TuningConfig) Resolved() *TuningConfig {
	intp := func(v int) *int { return &v }
	durp := func(d time.Duration) *string { s := d.String(); return &s }
	return &TuningConfig{
		MinWidth:          intp(c.GetMinWidth()),
		MinHeight:         intp(c.GetMinHeight()),
		LinePosition:      intp(c.GetLinePosition()),
		LineOffset:        intp(c.GetLineOffset()),
		MaxPhaseDuration:  durp(c.GetMaxPhaseDuration()),
		InactivityTimeout: durp(c.GetInactivityTimeout()),
		TickInterval:      durp(c.GetTickInterval()),
		MaxPendingAge:     intp(c.GetMaxPendingAge()),
		MaxPending:        intp(c.GetMaxPending()),
		RecordEvery:       intp(c.GetRecordEvery()),
	}
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetMinWidth returns the min_width value or the default.
func (c *TuningConfig) GetMinWidth() int { return intOr(c.MinWidth, defaultMinWidth) }

// GetMinHeight returns the min_height value or the default.
func (c *TuningConfig) GetMinHeight() int { return intOr(c.MinHeight, defaultMinHeight) }

// GetLinePosition returns the line_position value or the default.
func (c *TuningConfig) GetLinePosition() int { return intOr(c.LinePosition, defaultLinePosition) }

// GetLineOffset returns the line_offset value or the default.
func (c *TuningConfig) GetLineOffset() int { return intOr(c.LineOffset, defaultLineOffset) }

// GetMaxPhaseDuration parses and returns MaxPhaseDuration as a time.Duration.
func (c *TuningConfig) GetMaxPhaseDuration() time.Duration {
	return durationOr(c.MaxPhaseDuration, defaultMaxPhaseDuration)
}

// GetInactivityTimeout parses and returns InactivityTimeout as a time.Duration.
func (c *TuningConfig) GetInactivityTimeout() time.Duration {
	return durationOr(c.InactivityTimeout, defaultInactivityTimeout)
}

// GetTickInterval parses and returns TickInterval as a time.Duration.
func (c *TuningConfig) GetTickInterval() time.Duration {
	return durationOr(c.TickInterval, defaultTickInterval)
}

// GetMaxPendingAge returns the max_pending_age value or the default.
func (c *TuningConfig) GetMaxPendingAge() int { return intOr(c.MaxPendingAge, defaultMaxPendingAge) }

// GetMaxPending returns the max_pending value or the default.
func (c *TuningConfig) GetMaxPending() int { return intOr(c.MaxPending, defaultMaxPending) }

// GetRecordEvery returns the record_every value or the default.
func (c *TuningConfig) GetRecordEvery() int { return intOr(c.RecordEvery, defaultRecordEvery) }
