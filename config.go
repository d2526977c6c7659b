package g3d

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/g3d/internal/frame"
	"github.com/gogpu/g3d/internal/swapchain"
	"github.com/gogpu/g3d/internal/scene"
)

// DefaultMaterialLimit is the number of material uniform blocks per frame.
const DefaultMaterialLimit = 100

// DefaultDrawLimit is the number of meshes the draw list holds.
const DefaultDrawLimit = 4096

// Config describes an engine. It decodes from YAML or JSON; zero fields
// are filled from DefaultConfig by New.
type Config struct {
	// Width and Height are the initial framebuffer size in pixels.
	Width  uint32 `json:"width" yaml:"width"`
	Height uint32 `json:"height" yaml:"height"`

	// FramesInFlight is the number of frames the CPU may record ahead of
	// the GPU.
	FramesInFlight int `json:"frames_in_flight" yaml:"frames_in_flight"`

	// MaterialLimit is the length of the material uniform array.
	MaterialLimit int `json:"material_limit" yaml:"material_limit"`

	// DrawLimit is the length of the per-draw transform array.
	DrawLimit int `json:"draw_limit" yaml:"draw_limit"`

	// Backend selects the hal backend by name ("vulkan", "metal", "dx12",
	// "gl", "noop"). Empty or "auto" picks the best registered one.
	Backend string `json:"backend" yaml:"backend"`

	// MinImageCount and MaxImageCount bound the swapchain image count.
	MinImageCount uint32 `json:"min_image_count" yaml:"min_image_count"`
	MaxImageCount uint32 `json:"max_image_count" yaml:"max_image_count"`

	// PresentMode is "fifo", "fifo_relaxed", "mailbox" or "immediate".
	PresentMode string `json:"present_mode" yaml:"present_mode"`

	// StagingSize is the per-worker staging buffer size of the loader, in
	// bytes.
	StagingSize uint64 `json:"staging_size" yaml:"staging_size"`

	// MemoryBudgetMB caps the bytes held by buffers and images.
	MemoryBudgetMB int `json:"memory_budget_mb" yaml:"memory_budget_mb"`

	// LoaderWorkers bounds the goroutines loading materials. 0 means one
	// per CPU.
	LoaderWorkers int `json:"loader_workers" yaml:"loader_workers"`

	// ExpandOnLoad converts albedo colors and maps from sRGB to linear
	// when models are loaded.
	ExpandOnLoad bool `json:"expand_on_load" yaml:"expand_on_load"`

	// LogLevel is "debug", "info", "warn" or "error". Empty keeps the
	// logger configured with SetLogger.
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Debug enables backend validation where supported.
	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultConfig returns the configuration used for unset fields.
func DefaultConfig() Config {
	return Config{
		Width:          1280,
		Height:         720,
		FramesInFlight: frame.DefaultFramesInFlight,
		MaterialLimit:  DefaultMaterialLimit,
		DrawLimit:      DefaultDrawLimit,
		Backend:        "auto",
		MinImageCount:  swapchain.DefaultMinImageCount,
		MaxImageCount:  swapchain.DefaultMaxImageCount,
		PresentMode:    "fifo",
		StagingSize:    scene.DefaultStagingSize,
		MemoryBudgetMB: 512,
	}
}

// LoadConfig reads a YAML or JSON file. The format follows the extension;
// anything but .json is decoded as YAML.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is supplied by the user
	if err != nil {
		return Config{}, fmt.Errorf("g3d: open config: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseConfigJSON(f)
	}
	return ParseConfig(f)
}

// ParseConfig decodes a YAML configuration over the defaults.
func ParseConfig(r io.Reader) (Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("g3d: decode config: %w", err)
	}
	return c, c.Validate()
}

// checkLimits rejects arrays larger than the device can bind. Zero limits
// are treated as unreported.
func (c Config) checkLimits(l gputypes.Limits) error {
	if n := uint64(c.MaterialLimit) * scene.MaterialUniformSize; l.MaxUniformBufferBindingSize > 0 && n > l.MaxUniformBufferBindingSize {
		return fmt.Errorf("%w: material_limit %d needs a %d byte uniform binding, device allows %d",
			ErrInvalidConfig, c.MaterialLimit, n, l.MaxUniformBufferBindingSize)
	}
	if n := uint64(c.DrawLimit) * scene.TransformUniformSize; l.MaxStorageBufferBindingSize > 0 && n > l.MaxStorageBufferBindingSize {
		return fmt.Errorf("%w: draw_limit %d needs a %d byte storage binding, device allows %d",
			ErrInvalidConfig, c.DrawLimit, n, l.MaxStorageBufferBindingSize)
	}
	return nil
}

// ParseConfigJSON decodes a JSON configuration over the defaults.
func ParseConfigJSON(r io.Reader) (Config, error) {
	c := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("g3d: decode config: %w", err)
	}
	return c, c.Validate()
}

// Validate reports the first field that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.Width == 0 || c.Height == 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.FramesInFlight < 1:
		return fmt.Errorf("%w: frames_in_flight %d", ErrInvalidConfig, c.FramesInFlight)
	case c.MaterialLimit < 1:
		return fmt.Errorf("%w: material_limit %d", ErrInvalidConfig, c.MaterialLimit)
	case c.DrawLimit < 1:
		return fmt.Errorf("%w: draw_limit %d", ErrInvalidConfig, c.DrawLimit)
	case uint64(c.MaterialLimit)*uint64(c.DrawLimit) > math.MaxUint32:
		// Both are packed into the first instance of a draw.
		return fmt.Errorf("%w: material_limit %d x draw_limit %d overflows the instance index",
			ErrInvalidConfig, c.MaterialLimit, c.DrawLimit)
	case c.MaxImageCount != 0 && c.MaxImageCount < c.MinImageCount:
		return fmt.Errorf("%w: image count bounds [%d, %d]", ErrInvalidConfig, c.MinImageCount, c.MaxImageCount)
	case c.MemoryBudgetMB < 0:
		return fmt.Errorf("%w: memory_budget_mb %d", ErrInvalidConfig, c.MemoryBudgetMB)
	case c.LoaderWorkers < 0:
		return fmt.Errorf("%w: loader_workers %d", ErrInvalidConfig, c.LoaderWorkers)
	}
	if _, err := c.presentMode(); err != nil {
		return err
	}
	if _, _, err := c.logLevel(); err != nil {
		return err
	}
	return nil
}

var presentModes = map[string]hal.PresentMode{
	"fifo":         hal.PresentModeFifo,
	"fifo_relaxed": hal.PresentModeFifoRelaxed,
	"mailbox":      hal.PresentModeMailbox,
	"immediate":    hal.PresentModeImmediate,
}

func (c Config) presentMode() (hal.PresentMode, error) {
	if c.PresentMode == "" {
		return hal.PresentModeFifo, nil
	}
	m, ok := presentModes[strings.ToLower(c.PresentMode)]
	if !ok {
		return 0, fmt.Errorf("%w: present_mode %q", ErrInvalidConfig, c.PresentMode)
	}
	return m, nil
}

// logLevel returns the configured level and whether one is set.
func (c Config) logLevel() (slog.Level, bool, error) {
	if c.LogLevel == "" {
		return 0, false, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, false, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, true, nil
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Width == 0 {
		c.Width = d.Width
	}
	if c.Height == 0 {
		c.Height = d.Height
	}
	if c.FramesInFlight == 0 {
		c.FramesInFlight = d.FramesInFlight
	}
	if c.MaterialLimit == 0 {
		c.MaterialLimit = d.MaterialLimit
	}
	if c.DrawLimit == 0 {
		c.DrawLimit = d.DrawLimit
	}
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.MinImageCount == 0 {
		c.MinImageCount = d.MinImageCount
	}
	if c.MaxImageCount == 0 {
		c.MaxImageCount = max(d.MaxImageCount, c.MinImageCount)
	}
	if c.PresentMode == "" {
		c.PresentMode = d.PresentMode
	}
	if c.StagingSize == 0 {
		c.StagingSize = d.StagingSize
	}
	if c.MemoryBudgetMB == 0 {
		c.MemoryBudgetMB = d.MemoryBudgetMB
	}
	return c
}
