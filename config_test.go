package g3d

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/g3d/internal/scene"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.FramesInFlight)
	assert.Equal(t, 100, cfg.MaterialLimit)
	assert.Equal(t, uint32(2), cfg.MinImageCount)
	assert.Equal(t, uint32(3), cfg.MaxImageCount)
}

func TestParseConfig(t *testing.T) {
	const doc = `
width: 640
height: 480
frames_in_flight: 3
material_limit: 16
backend: noop
present_mode: mailbox
expand_on_load: true
log_level: debug
`
	cfg, err := ParseConfig(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, uint32(640), cfg.Width)
	assert.Equal(t, uint32(480), cfg.Height)
	assert.Equal(t, 3, cfg.FramesInFlight)
	assert.Equal(t, 16, cfg.MaterialLimit)
	assert.Equal(t, "noop", cfg.Backend)
	assert.True(t, cfg.ExpandOnLoad)
	assert.Equal(t, DefaultConfig().StagingSize, cfg.StagingSize, "unset fields keep defaults")

	mode, err := cfg.presentMode()
	require.NoError(t, err)
	assert.Equal(t, hal.PresentModeMailbox, mode)
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "widht: 10\n"},
		{"zero frames", "frames_in_flight: 0\n"},
		{"negative material limit", "material_limit: -1\n"},
		{"zero draw limit", "draw_limit: 0\n"},
		{"instance index overflow", "material_limit: 65536\ndraw_limit: 65537\n"},
		{"inverted image counts", "min_image_count: 4\nmax_image_count: 2\n"},
		{"present mode", "present_mode: vsync\n"},
		{"log level", "log_level: loud\n"},
		{"zero width", "width: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestCheckLimits(t *testing.T) {
	limits := gputypes.DefaultLimits()
	tests := []struct {
		name string
		cfg  func(*Config)
		ok   bool
	}{
		{"defaults", func(*Config) {}, true},
		{"materials fill the binding", func(c *Config) {
			c.MaterialLimit = int(limits.MaxUniformBufferBindingSize / scene.MaterialUniformSize)
		}, true},
		{"materials exceed the binding", func(c *Config) {
			c.MaterialLimit = int(limits.MaxUniformBufferBindingSize/scene.MaterialUniformSize) + 1
		}, false},
		{"draws exceed the binding", func(c *Config) {
			c.DrawLimit = int(limits.MaxStorageBufferBindingSize/scene.TransformUniformSize) + 1
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.cfg(&cfg)
			err := cfg.checkLimits(limits)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	cfg := DefaultConfig()
	cfg.MaterialLimit = 1 << 20
	assert.NoError(t, cfg.checkLimits(gputypes.Limits{}), "unreported limits are not enforced")
}

func TestValidateWrapsErrInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoaderWorkers = -2
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "g3d.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("width: 320\nheight: 200\n"), 0o600))
	jsonPath := filepath.Join(dir, "g3d.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"width": 800, "height": 600, "backend": "noop"}`), 0o600))

	cfg, err := LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, uint32(320), cfg.Width)

	cfg, err = LoadConfig(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, uint32(600), cfg.Height)
	assert.Equal(t, "noop", cfg.Backend)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Width: 100, MinImageCount: 5}.withDefaults()
	assert.Equal(t, uint32(100), cfg.Width)
	assert.Equal(t, DefaultConfig().Height, cfg.Height)
	assert.Equal(t, uint32(5), cfg.MaxImageCount, "max follows a larger min")
	assert.Equal(t, "auto", cfg.Backend)
	require.NoError(t, cfg.Validate())
}
