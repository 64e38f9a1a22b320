// Package config loads the runtime configuration (JSON, pointer fields
// merged over defaults) and the sonar sensor profile (YAML).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration. All fields are optional in the
// file; absent fields keep their defaults.
type Config struct {
	// SonarAddr is the multicast group and port the sonar publishes to.
	SonarAddr *string `json:"sonar_addr,omitempty"`
	// SchemaPath locates the serialized RIP2 descriptor set.
	SchemaPath *string `json:"schema_path,omitempty"`
	// DBPath locates the calibration artifact database.
	DBPath *string `json:"db_path,omitempty"`
	// SensorProfilePath locates the YAML sensor profile.
	SensorProfilePath *string `json:"sensor_profile,omitempty"`
	// RcvBuf is the UDP receive buffer size in bytes.
	RcvBuf *int `json:"rcvbuf,omitempty"`
	// StatsInterval is how often receive statistics are logged,
	// as a duration string like "60s".
	StatsInterval *string `json:"stats_interval,omitempty"`

	// Overlay defaults applied at startup.
	OverlayEnabled   *bool   `json:"overlay_enabled,omitempty"`
	OverlayPointSize *int    `json:"overlay_point_size,omitempty"`
	OverlayDecimate  *int    `json:"overlay_decimate,omitempty"`
	OverlayColorMode *string `json:"overlay_color_mode,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SonarAddr:         ptrString("224.0.0.96:4747"),
		SchemaPath:        ptrString("waterlinked_rip2.pb"),
		DBPath:            ptrString("calibration.db"),
		SensorProfilePath: ptrString("sensor_profile.yaml"),
		RcvBuf:            ptrInt(4 * 1024 * 1024),
		StatsInterval:     ptrString("60s"),
		OverlayEnabled:    ptrBool(true),
		OverlayPointSize:  ptrInt(2),
		OverlayDecimate:   ptrInt(4),
		OverlayColorMode:  ptrString("range"),
	}
}

// Load reads a config file and merges it over the defaults. A missing
// file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var overlayed Config
	if err := json.Unmarshal(raw, &overlayed); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.merge(&overlayed)
	return cfg, nil
}

// merge copies every non-nil field of other over c.
func (c *Config) merge(other *Config) {
	if other.SonarAddr != nil {
		c.SonarAddr = other.SonarAddr
	}
	if other.SchemaPath != nil {
		c.SchemaPath = other.SchemaPath
	}
	if other.DBPath != nil {
		c.DBPath = other.DBPath
	}
	if other.SensorProfilePath != nil {
		c.SensorProfilePath = other.SensorProfilePath
	}
	if other.RcvBuf != nil {
		c.RcvBuf = other.RcvBuf
	}
	if other.StatsInterval != nil {
		c.StatsInterval = other.StatsInterval
	}
	if other.OverlayEnabled != nil {
		c.OverlayEnabled = other.OverlayEnabled
	}
	if other.OverlayPointSize != nil {
		c.OverlayPointSize = other.OverlayPointSize
	}
	if other.OverlayDecimate != nil {
		c.OverlayDecimate = other.OverlayDecimate
	}
	if other.OverlayColorMode != nil {
		c.OverlayColorMode = other.OverlayColorMode
	}
}

// StatsIntervalDuration parses the stats interval, falling back to one
// minute on bad input.
func (c *Config) StatsIntervalDuration() time.Duration {
	if c.StatsInterval == nil {
		return time.Minute
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// SensorProfile describes the sonar's beam-forming geometry and sample
// filtering thresholds.
type SensorProfile struct {
	// ElevationDeg is the assumed out-of-plane angle of the scanning fan.
	ElevationDeg float64 `yaml:"elevation_deg"`
	// MaxRangeM caps usable slant range; 0 defers to the per-packet bound.
	MaxRangeM float64 `yaml:"max_range_m"`
	// MinIntensity drops samples weaker than this (0-255).
	MinIntensity uint8 `yaml:"min_intensity"`
}

// DefaultProfile returns the profile used when no file is present.
func DefaultProfile() SensorProfile {
	return SensorProfile{ElevationDeg: 0, MaxRangeM: 0, MinIntensity: 0}
}

// LoadProfile reads the YAML sensor profile. A missing file returns the
// default profile.
func LoadProfile(path string) (SensorProfile, error) {
	profile := DefaultProfile()
	if path == "" {
		return profile, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return profile, nil
	}
	if err != nil {
		return profile, fmt.Errorf("read sensor profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return profile, fmt.Errorf("parse sensor profile %s: %w", path, err)
	}
	return profile, nil
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }
