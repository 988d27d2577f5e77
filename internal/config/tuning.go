package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig holds the runtime knobs that operators adjust per venue. Every
// field is optional; omitted fields leave the environment value in place.
type TuningConfig struct {
	// Change detection
	ChangeThreshold *float64 `json:"change_threshold,omitempty"`
	ChangeDebounce  *string  `json:"change_debounce,omitempty"` // duration string like "750ms"

	// Listener
	RcvBuf      *int    `json:"rcvbuf,omitempty"`
	LogInterval *string `json:"log_interval,omitempty"` // duration string like "30s"

	// Publishing
	NATSSubjectPrefix *string `json:"nats_subject_prefix,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *TuningConfig) Validate() error {
	if c.ChangeThreshold != nil && *c.ChangeThreshold <= 0 {
		return fmt.Errorf("change_threshold must be positive, got %g", *c.ChangeThreshold)
	}
	if c.ChangeDebounce != nil {
		if d, err := time.ParseDuration(*c.ChangeDebounce); err != nil {
			return fmt.Errorf("invalid change_debounce '%s': %w", *c.ChangeDebounce, err)
		} else if d < 0 {
			return fmt.Errorf("change_debounce must be non-negative, got %v", d)
		}
	}
	if c.LogInterval != nil {
		if d, err := time.ParseDuration(*c.LogInterval); err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		} else if d <= 0 {
			return fmt.Errorf("log_interval must be positive, got %v", d)
		}
	}
	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcvbuf must be non-negative, got %d", *c.RcvBuf)
	}
	if c.NATSSubjectPrefix != nil && *c.NATSSubjectPrefix == "" {
		return fmt.Errorf("nats_subject_prefix must not be empty")
	}
	return nil
}

// ApplyTo copies every set field onto cfg. c must have passed Validate.
func (c *TuningConfig) ApplyTo(cfg *Config) {
	if c.ChangeThreshold != nil {
		cfg.ChangeThreshold = *c.ChangeThreshold
	}
	if c.ChangeDebounce != nil {
		cfg.ChangeDebounce, _ = time.ParseDuration(*c.ChangeDebounce)
	}
	if c.RcvBuf != nil {
		cfg.RcvBuf = *c.RcvBuf
	}
	if c.LogInterval != nil {
		cfg.LogInterval, _ = time.ParseDuration(*c.LogInterval)
	}
	if c.NATSSubjectPrefix != nil {
		cfg.NATSSubjectPrefix = *c.NATSSubjectPrefix
	}
}
