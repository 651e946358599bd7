package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetMinWidth() != 80 {
		t.Errorf("GetMinWidth() = %d, want 80", cfg.GetMinWidth())
	}
	if cfg.GetMinHeight() != 80 {
		t.Errorf("GetMinHeight() = %d, want 80", cfg.GetMinHeight())
	}
	if cfg.GetLinePosition() != 550 {
		t.Errorf("GetLinePosition() = %d, want 550", cfg.GetLinePosition())
	}
	if cfg.GetLineOffset() != 6 {
		t.Errorf("GetLineOffset() = %d, want 6", cfg.GetLineOffset())
	}
	if cfg.GetMaxPhaseDuration() != 60*time.Second {
		t.Errorf("GetMaxPhaseDuration() = %v, want 60s", cfg.GetMaxPhaseDuration())
	}
	if cfg.GetInactivityTimeout() != 5*time.Second {
		t.Errorf("GetInactivityTimeout() = %v, want 5s", cfg.GetInactivityTimeout())
	}
	if cfg.GetTickInterval() != time.Second/60 {
		t.Errorf("GetTickInterval() = %v, want %v", cfg.GetTickInterval(), time.Second/60)
	}
	if cfg.GetMaxPendingAge() != 600 {
		t.Errorf("GetMaxPendingAge() = %d, want 600", cfg.GetMaxPendingAge())
	}
	if cfg.GetMaxPending() != 0 {
		t.Errorf("GetMaxPending() = %d, want 0", cfg.GetMaxPending())
	}
	if cfg.GetRecordEvery() != 60 {
		t.Errorf("GetRecordEvery() = %d, want 60", cfg.GetRecordEvery())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "min_width": 60,
  "min_height": 40,
  "line_position": 400,
  "line_offset": 10,
  "max_phase_duration": "90s",
  "inactivity_timeout": "3s",
  "tick_interval": "33ms",
  "max_pending_age": 120,
  "max_pending": 50,
  "record_every": 10
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetMinWidth() != 60 || cfg.GetMinHeight() != 40 {
		t.Errorf("min size = %dx%d, want 60x40", cfg.GetMinWidth(), cfg.GetMinHeight())
	}
	if cfg.GetLinePosition() != 400 || cfg.GetLineOffset() != 10 {
		t.Errorf("line = %d±%d, want 400±10", cfg.GetLinePosition(), cfg.GetLineOffset())
	}
	if cfg.GetMaxPhaseDuration() != 90*time.Second {
		t.Errorf("GetMaxPhaseDuration() = %v, want 90s", cfg.GetMaxPhaseDuration())
	}
	if cfg.GetInactivityTimeout() != 3*time.Second {
		t.Errorf("GetInactivityTimeout() = %v, want 3s", cfg.GetInactivityTimeout())
	}
	if cfg.GetTickInterval() != 33*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 33ms", cfg.GetTickInterval())
	}
	if cfg.GetMaxPendingAge() != 120 || cfg.GetMaxPending() != 50 {
		t.Errorf("retention = %d/%d, want 120/50", cfg.GetMaxPendingAge(), cfg.GetMaxPending())
	}
	if cfg.GetRecordEvery() != 10 {
		t.Errorf("GetRecordEvery() = %d, want 10", cfg.GetRecordEvery())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	if err := os.WriteFile(configPath, []byte(`{"line_position": 300}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}
	if cfg.GetLinePosition() != 300 {
		t.Errorf("Expected overridden LinePosition 300, got %d", cfg.GetLinePosition())
	}
	if cfg.GetLineOffset() != 6 {
		t.Errorf("Expected default LineOffset 6, got %d", cfg.GetLineOffset())
	}
	if cfg.GetInactivityTimeout() != 5*time.Second {
		t.Errorf("Expected default InactivityTimeout 5s, got %v", cfg.GetInactivityTimeout())
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../" + DefaultConfigPath)
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	empty := EmptyTuningConfig()
	if cfg.GetMinWidth() != empty.GetMinWidth() {
		t.Errorf("defaults file min_width %d differs from built-in %d", cfg.GetMinWidth(), empty.GetMinWidth())
	}
	if cfg.GetTickInterval() != empty.GetTickInterval() {
		t.Errorf("defaults file tick_interval %v differs from built-in %v", cfg.GetTickInterval(), empty.GetTickInterval())
	}
	if cfg.GetMaxPendingAge() != empty.GetMaxPendingAge() {
		t.Errorf("defaults file max_pending_age %d differs from built-in %d", cfg.GetMaxPendingAge(), empty.GetMaxPendingAge())
	}
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	invalidPath := filepath.Join(tmpDir, "invalid.json")
	if err := os.WriteFile(invalidPath, []byte(`{"min_width": "wide"`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	rejectedPath := filepath.Join(tmpDir, "rejected.json")
	if err := os.WriteFile(rejectedPath, []byte(`{"line_offset": 0}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	typoPath := filepath.Join(tmpDir, "typo.json")
	if err := os.WriteFile(typoPath, []byte(`{"line_postion": 300}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	largePath := filepath.Join(tmpDir, "large.json")
	if err := os.WriteFile(largePath, make([]byte, 2*1024*1024), 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	for name, path := range map[string]string{
		"missing":   "/nonexistent/path/to/config.json",
		"non-json":  "/some/path/config.yaml",
		"malformed": invalidPath,
		"rejected":  rejectedPath,
		"typo":      typoPath,
		"too large": largePath,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadTuningConfig(path); err == nil {
				t.Errorf("expected error loading %s", path)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{name: "empty config is valid", cfg: &TuningConfig{}},
		{name: "zero retention is valid", cfg: &TuningConfig{MaxPendingAge: ptrInt(0), MaxPending: ptrInt(0)}},
		{name: "zero min width", cfg: &TuningConfig{MinWidth: ptrInt(0)}, wantErr: true},
		{name: "negative min height", cfg: &TuningConfig{MinHeight: ptrInt(-5)}, wantErr: true},
		{name: "line at top row is valid", cfg: &TuningConfig{LinePosition: ptrInt(0)}},
		{name: "negative line position", cfg: &TuningConfig{LinePosition: ptrInt(-1)}, wantErr: true},
		{name: "zero line offset", cfg: &TuningConfig{LineOffset: ptrInt(0)}, wantErr: true},
		{name: "zero record every", cfg: &TuningConfig{RecordEvery: ptrInt(0)}, wantErr: true},
		{name: "negative pending age", cfg: &TuningConfig{MaxPendingAge: ptrInt(-1)}, wantErr: true},
		{name: "negative pending cap", cfg: &TuningConfig{MaxPending: ptrInt(-1)}, wantErr: true},
		{name: "unparseable phase duration", cfg: &TuningConfig{MaxPhaseDuration: ptrString("long")}, wantErr: true},
		{name: "zero inactivity timeout", cfg: &TuningConfig{InactivityTimeout: ptrString("0s")}, wantErr: true},
		{name: "negative tick interval", cfg: &TuningConfig{TickInterval: ptrString("-1ms")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDurationFallbacks(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{name: "set", cfg: &TuningConfig{InactivityTimeout: ptrString("2m")}, want: 2 * time.Minute},
		{name: "nil pointer returns default", cfg: &TuningConfig{}, want: 5 * time.Second},
		{name: "empty string returns default", cfg: &TuningConfig{InactivityTimeout: ptrString("")}, want: 5 * time.Second},
		{name: "invalid duration returns default", cfg: &TuningConfig{InactivityTimeout: ptrString("soon")}, want: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetInactivityTimeout(); got != tt.want {
				t.Errorf("GetInactivityTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetLinePosition() != 550 {
		t.Errorf("GetLinePosition() = %d, want 550", cfg.GetLinePosition())
	}
}

func TestResolved(t *testing.T) {
	cfg := &TuningConfig{LinePosition: ptrInt(300), InactivityTimeout: ptrString("7s")}
	r := cfg.Resolved()

	if r.MinWidth == nil || *r.MinWidth != 80 {
		t.Errorf("MinWidth = %v, want 80", r.MinWidth)
	}
	if *r.LinePosition != 300 {
		t.Errorf("LinePosition = %d, want 300", *r.LinePosition)
	}
	if *r.InactivityTimeout != "7s" || *r.MaxPhaseDuration != "1m0s" {
		t.Errorf("durations = %s/%s, want 7s/1m0s", *r.InactivityTimeout, *r.MaxPhaseDuration)
	}
	if *r.MaxPendingAge != 600 || *r.MaxPending != 0 || *r.RecordEvery != 60 {
		t.Errorf("retention/record = %d/%d/%d", *r.MaxPendingAge, *r.MaxPending, *r.RecordEvery)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("resolved config invalid: %v", err)
	}
	if r.GetTickInterval() != cfg.GetTickInterval() {
		t.Errorf("tick interval %v does not round-trip, want %v", r.GetTickInterval(), cfg.GetTickInterval())
	}
	if cfg.MinWidth != nil {
		t.Error("Resolved must not modify the receiver")
	}
}
