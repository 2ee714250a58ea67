// Package config loads the engine configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/software"
)

const (
	BackendSoftware = "software"
	BackendVulkan   = "vulkan"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Device   DeviceConfig   `toml:"device"`
	Software SoftwareConfig `toml:"software"`
	Sync     SyncConfig     `toml:"sync"`
	Engine   EngineConfig   `toml:"engine"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type DeviceConfig struct {
	Backend         string `toml:"backend"`
	ApplicationName string `toml:"application_name"`
	Validation      bool   `toml:"validation"`
	SerializeQueues bool   `toml:"serialize_queues"`
}

type QueueFamilyConfig struct {
	Graphics bool   `toml:"graphics"`
	Compute  bool   `toml:"compute"`
	Transfer bool   `toml:"transfer"`
	Sparse   bool   `toml:"sparse"`
	Present  bool   `toml:"present"`
	Queues   uint32 `toml:"queues"`
}

type SoftwareConfig struct {
	QueueFamilies         []QueueFamilyConfig `toml:"queue_families"`
	MaxPendingSubmissions int                 `toml:"max_pending_submissions"`
}

type SyncConfig struct {
	FenceTimeoutMS int64 `toml:"fence_timeout_ms"`
}

type EngineConfig struct {
	// 0 runs until the application quits.
	MaxFrames      uint64 `toml:"max_frames"`
	FramesInFlight int    `toml:"frames_in_flight"`
	// RecordWorkers is the number of goroutines recording secondary command buffers.
	RecordWorkers int `toml:"record_workers"`
	// SwapchainImages is the presentable image count; 0 renders without presenting.
	SwapchainImages uint32 `toml:"swapchain_images"`
	Width           uint32 `toml:"width"`
	Height          uint32 `toml:"height"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Device: DeviceConfig{
			Backend:         BackendSoftware,
			ApplicationName: "anima-gpu",
		},
		Software: SoftwareConfig{
			MaxPendingSubmissions: software.DefaultMaxPendingSubmissions,
		},
		Sync:   SyncConfig{FenceTimeoutMS: 1000},
		Engine: EngineConfig{
			FramesInFlight:  2,
			RecordWorkers:   2,
			SwapchainImages: 3,
			Width:           1280,
			Height:          720,
		},
	}
}

// Load reads path over the defaults, so a file only needs the keys it changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("line %d column %d: %s: %w", row, col, derr.Error(), ErrInvalidConfig)
		}
		return nil, fmt.Errorf("%s: %w", err, ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Device.Backend {
	case BackendSoftware, BackendVulkan:
	default:
		return fmt.Errorf("unknown backend `%s`: %w", c.Device.Backend, ErrInvalidConfig)
	}
	if c.Engine.FramesInFlight <= 0 {
		return fmt.Errorf("frames_in_flight must be positive, got %d: %w", c.Engine.FramesInFlight, ErrInvalidConfig)
	}
	if c.Engine.RecordWorkers <= 0 {
		return fmt.Errorf("record_workers must be positive, got %d: %w", c.Engine.RecordWorkers, ErrInvalidConfig)
	}
	if c.Engine.SwapchainImages > 0 && (c.Engine.Width == 0 || c.Engine.Height == 0) {
		return fmt.Errorf("swapchain extent %dx%d: %w", c.Engine.Width, c.Engine.Height, ErrInvalidConfig)
	}
	if c.Sync.FenceTimeoutMS < 0 {
		return fmt.Errorf("fence_timeout_ms must not be negative: %w", ErrInvalidConfig)
	}
	for i, f := range c.Software.QueueFamilies {
		if f.Queues == 0 {
			return fmt.Errorf("queue family %d has no queues: %w", i, ErrInvalidConfig)
		}
	}
	return nil
}

// FenceTimeout is the frame fence timeout; 0 in the file means wait forever.
func (c *Config) FenceTimeout() time.Duration {
	if c.Sync.FenceTimeoutMS == 0 {
		return renderer.TimeoutInfinite
	}
	return time.Duration(c.Sync.FenceTimeoutMS) * time.Millisecond
}

// SoftwareOptions builds the software device options. No queue families in
// the file means software.DefaultQueueFamilies.
func (c *Config) SoftwareOptions() software.Options {
	opts := software.Options{MaxPendingSubmissions: c.Software.MaxPendingSubmissions}
	for _, f := range c.Software.QueueFamilies {
		var flags metadata.QueueFlags
		if f.Graphics {
			flags |= metadata.QUEUE_GRAPHICS
		}
		if f.Compute {
			flags |= metadata.QUEUE_COMPUTE
		}
		if f.Transfer {
			flags |= metadata.QUEUE_TRANSFER
		}
		if f.Sparse {
			flags |= metadata.QUEUE_SPARSE_BINDING
		}
		opts.QueueFamilies = append(opts.QueueFamilies, metadata.QueueFamilyProperties{
			Flags:      flags,
			QueueCount: f.Queues,
			Present:    f.Present,
		})
	}
	return opts
}

// Apply pushes the settings that can change at runtime into the process.
func (c *Config) Apply() {
	if c.Log.Level != "" {
		core.SetLogLevel(c.Log.Level)
	}
}

func (c *Config) DeviceOptions() renderer.Options {
	return renderer.Options{
		Name:            c.Device.ApplicationName,
		Validation:      c.Device.Validation,
		SerializeQueues: c.Device.SerializeQueues,
	}
}
