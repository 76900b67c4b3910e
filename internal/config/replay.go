// Package config loads replay settings from JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/eventstream/internal/dispatch"
)

// DefaultConfigPath is the path to the canonical replay defaults file.
const DefaultConfigPath = "config/replay.defaults.json"

// ReplayConfig holds the settings of a replay session. Fields omitted from
// a file fall back to the defaults returned by the Get* methods.
type ReplayConfig struct {
	// Dispatch params
	DispatchMode    *string  `json:"dispatch_mode,omitempty"` // skip-offset, synchronous or fast
	ChunkSize       *int     `json:"chunk_size,omitempty"`
	Loop            *bool    `json:"loop,omitempty"`
	SpeedMultiplier *float64 `json:"speed_multiplier,omitempty"`
	SpinThreshold   *string  `json:"spin_threshold,omitempty"` // duration string like "200us"

	// Buffered consumer params
	FIFOSize      *int    `json:"fifo_size,omitempty"`
	ConsumerSleep *string `json:"consumer_sleep,omitempty"` // duration string like "20us"

	// Source params
	UDPPort  *int `json:"udp_port,omitempty"`
	BaudRate *int `json:"baud_rate,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyReplayConfig returns a ReplayConfig with all fields set to nil.
func EmptyReplayConfig() *ReplayConfig {
	return &ReplayConfig{}
}

// DefaultReplayConfig returns a ReplayConfig with every field set to its default.
func DefaultReplayConfig() *ReplayConfig {
	return &ReplayConfig{
		DispatchMode:    ptrString(dispatch.SynchronouslySkipOffset.String()),
		ChunkSize:       ptrInt(dispatch.DefaultChunkSize),
		Loop:            ptrBool(false),
		SpeedMultiplier: ptrFloat64(1),
		SpinThreshold:   ptrString("0s"),
		FIFOSize:        ptrInt(1 << 12),
		ConsumerSleep:   ptrString("20us"),
		UDPPort:         ptrInt(0),
		BaudRate:        ptrInt(115200),
	}
}

// LoadReplayConfig loads a ReplayConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadReplayConfig(path string) (*ReplayConfig, error) {
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

	cfg := EmptyReplayConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ReplayConfig) Validate() error {
	if c.DispatchMode != nil {
		if _, err := dispatch.ParseMode(*c.DispatchMode); err != nil {
			return err
		}
	}
	if c.ChunkSize != nil && *c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", *c.ChunkSize)
	}
	if c.SpeedMultiplier != nil && *c.SpeedMultiplier <= 0 {
		return fmt.Errorf("speed_multiplier must be positive, got %f", *c.SpeedMultiplier)
	}
	if c.FIFOSize != nil && *c.FIFOSize < 2 {
		return fmt.Errorf("fifo_size must be at least 2, got %d", *c.FIFOSize)
	}
	if c.UDPPort != nil && (*c.UDPPort < 0 || *c.UDPPort > 65535) {
		return fmt.Errorf("udp_port must be between 0 and 65535, got %d", *c.UDPPort)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	for name, value := range map[string]*string{
		"spin_threshold": c.SpinThreshold,
		"consumer_sleep": c.ConsumerSleep,
	} {
		if value == nil || *value == "" {
			continue
		}
		d, err := time.ParseDuration(*value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *value, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *value)
		}
	}
	return nil
}

// GetDispatchMode returns the dispatch mode or the default.
func (c *ReplayConfig) GetDispatchMode() dispatch.Mode {
	if c.DispatchMode == nil {
		return dispatch.SynchronouslySkipOffset
	}
	m, err := dispatch.ParseMode(*c.DispatchMode)
	if err != nil {
		return dispatch.SynchronouslySkipOffset
	}
	return m
}

// GetChunkSize returns the chunk_size value or the default.
func (c *ReplayConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return dispatch.DefaultChunkSize
	}
	return *c.ChunkSize
}

// GetLoop returns the loop value or the default.
func (c *ReplayConfig) GetLoop() bool {
	if c.Loop == nil {
		return false
	}
	return *c.Loop
}

// GetSpeedMultiplier returns the speed_multiplier value or the default.
func (c *ReplayConfig) GetSpeedMultiplier() float64 {
	if c.SpeedMultiplier == nil {
		return 1
	}
	return *c.SpeedMultiplier
}

// GetSpinThreshold parses and returns the SpinThreshold as a time.Duration.
func (c *ReplayConfig) GetSpinThreshold() time.Duration {
	return parseDurationOr(c.SpinThreshold, 0)
}

// GetFIFOSize returns the fifo_size value or the default.
func (c *ReplayConfig) GetFIFOSize() int {
	if c.FIFOSize == nil {
		return 1 << 12
	}
	return *c.FIFOSize
}

// GetConsumerSleep parses and returns the ConsumerSleep as a time.Duration.
func (c *ReplayConfig) GetConsumerSleep() time.Duration {
	return parseDurationOr(c.ConsumerSleep, 20*time.Microsecond)
}

// GetUDPPort returns the udp_port value or 0, which matches any port.
func (c *ReplayConfig) GetUDPPort() int {
	if c.UDPPort == nil {
		return 0
	}
	return *c.UDPPort
}

// GetBaudRate returns the baud_rate value or the default.
func (c *ReplayConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}

func parseDurationOr(s *string, fallback time.Duration) time.Duration {
	if s == nil || *s == "" {
		return fallback
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fallback
	}
	return d
}

// DispatchOptions builds session options from the configuration. The
// restart callback follows the loop setting.
func (c *ReplayConfig) DispatchOptions() dispatch.Options {
	opts := dispatch.Options{
		Mode:            c.GetDispatchMode(),
		ChunkSize:       c.GetChunkSize(),
		SpeedMultiplier: c.GetSpeedMultiplier(),
		SpinThreshold:   c.GetSpinThreshold(),
	}
	if c.GetLoop() {
		opts.MustRestart = func() bool { return true }
	}
	return opts
}
