package kelp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/kelp/internal/atlas"
	"github.com/gogpu/kelp/internal/gpu"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as a Go duration
// string ("2s", "500ms") in configuration files.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Config holds renderer settings. The zero value is not valid; start from
// DefaultConfig.
type Config struct {
	// Backend is auto, vulkan, metal, dx12, gl, software or noop.
	Backend string `toml:"backend" yaml:"backend"`

	// PowerPreference is high-performance or low-power.
	PowerPreference string `toml:"power_preference" yaml:"power_preference"`

	// PresentMode is fifo, mailbox or immediate. Unsupported modes fall
	// back to fifo.
	PresentMode string `toml:"present_mode" yaml:"present_mode"`

	// AtlasSize is the edge length of each atlas layer in pixels.
	AtlasSize int `toml:"atlas_size" yaml:"atlas_size"`

	// AtlasLayers is the number of atlas layers.
	AtlasLayers int `toml:"atlas_layers" yaml:"atlas_layers"`

	// AtlasPacking is guillotine or shelf.
	AtlasPacking string `toml:"atlas_packing" yaml:"atlas_packing"`

	// AtlasPadding is the gutter between packed textures.
	AtlasPadding int `toml:"atlas_padding" yaml:"atlas_padding"`

	// InstanceCapacity is the initial instance buffer size. It grows on
	// demand.
	InstanceCapacity int `toml:"instance_capacity" yaml:"instance_capacity"`

	// CameraCapacity is the initial number of render lists per frame. It
	// grows on demand.
	CameraCapacity int `toml:"camera_capacity" yaml:"camera_capacity"`

	// FrameTimeout bounds the wait for the previous frame before falling
	// back to a full device wait.
	FrameTimeout Duration `toml:"frame_timeout" yaml:"frame_timeout"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendAuto,
		PowerPreference:  "high-performance",
		PresentMode:      "fifo",
		AtlasSize:        atlas.DefaultSize,
		AtlasLayers:      atlas.DefaultMaxLayers,
		AtlasPacking:     atlas.Guillotine.String(),
		AtlasPadding:     atlas.DefaultPadding,
		InstanceCapacity: gpu.DefaultInstanceCapacity,
		CameraCapacity:   gpu.DefaultCameraCapacity,
		FrameTimeout:     Duration(2 * time.Second),
	}
}

// LoadConfig reads a TOML (.toml) or YAML (.yaml, .yml) file over
// DefaultConfig. Unknown fields are rejected.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	defer f.Close()

	cfg, err := DecodeConfig(bufio.NewReader(f), filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// DecodeConfig reads a config in the format named by ext over
// DefaultConfig and validates it.
func DecodeConfig(r io.Reader, ext string) (Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, ext)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if !knownBackend(c.Backend) {
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if _, err := c.power(); err != nil {
		return err
	}
	if _, err := c.presentMode(); err != nil {
		return err
	}
	if _, err := atlas.ParseStrategy(c.AtlasPacking); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch {
	case c.AtlasSize < atlas.MinSize:
		return fmt.Errorf("%w: atlas_size %d below %d", ErrInvalidConfig, c.AtlasSize, atlas.MinSize)
	case c.AtlasLayers < 1:
		return fmt.Errorf("%w: atlas_layers %d", ErrInvalidConfig, c.AtlasLayers)
	case c.AtlasPadding < 0:
		return fmt.Errorf("%w: atlas_padding %d", ErrInvalidConfig, c.AtlasPadding)
	case c.InstanceCapacity < 1:
		return fmt.Errorf("%w: instance_capacity %d", ErrInvalidConfig, c.InstanceCapacity)
	case c.CameraCapacity < 1:
		return fmt.Errorf("%w: camera_capacity %d", ErrInvalidConfig, c.CameraCapacity)
	case c.FrameTimeout <= 0:
		return fmt.Errorf("%w: frame_timeout %s", ErrInvalidConfig, time.Duration(c.FrameTimeout))
	}
	return nil
}

func (c Config) power() (gputypes.PowerPreference, error) {
	switch c.PowerPreference {
	case "", "high-performance":
		return gputypes.PowerPreferenceHighPerformance, nil
	case "low-power":
		return gputypes.PowerPreferenceLowPower, nil
	default:
		return 0, fmt.Errorf("%w: unknown power_preference %q", ErrInvalidConfig, c.PowerPreference)
	}
}

func (c Config) presentMode() (gputypes.PresentMode, error) {
	switch c.PresentMode {
	case "", "fifo":
		return gputypes.PresentModeFifo, nil
	case "mailbox":
		return gputypes.PresentModeMailbox, nil
	case "immediate":
		return gputypes.PresentModeImmediate, nil
	default:
		return 0, fmt.Errorf("%w: unknown present_mode %q", ErrInvalidConfig, c.PresentMode)
	}
}

func (c Config) atlasConfig() atlas.Config {
	strategy, _ := atlas.ParseStrategy(c.AtlasPacking)
	return atlas.Config{
		Size:      c.AtlasSize,
		MaxLayers: c.AtlasLayers,
		Padding:   c.AtlasPadding,
		Strategy:  strategy,
	}
}

func (c Config) frameBufferConfig() gpu.FrameBufferConfig {
	return gpu.FrameBufferConfig{
		InstanceCapacity: c.InstanceCapacity,
		CameraCapacity:   c.CameraCapacity,
	}
}
