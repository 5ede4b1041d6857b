package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

// Duration decodes TOML strings such as "500ms" or "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type LogConfig struct {
	Level string `toml:"level"`
}

type WindowConfig struct {
	Title  string `toml:"title"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	// Debug enables the validation layers.
	Debug          bool     `toml:"debug"`
	PreferDiscrete bool     `toml:"prefer_discrete"`
	Frames         int      `toml:"frames"`
	MaxTextures    uint32   `toml:"max_textures"`
	ClearColour    string   `toml:"clear_colour"`
	FrameTimeout   Duration `toml:"frame_timeout"`
	AcquireTimeout Duration `toml:"acquire_timeout"`
}

type SwapchainConfig struct {
	ColourFormats []string `toml:"colour_formats"`
	DepthFormats  []string `toml:"depth_formats"`
	PresentModes  []string `toml:"present_modes"`
	ImageCount    uint32   `toml:"image_count"`
}

/**
 * @brief The engine configuration, usually read from lumen.toml.
 */
type Config struct {
	Log       LogConfig       `toml:"log"`
	Window    WindowConfig    `toml:"window"`
	Renderer  RendererConfig  `toml:"renderer"`
	Swapchain SwapchainConfig `toml:"swapchain"`
}

// MinTextures is the texture array size compiled into the built-in fragment shader.
const MinTextures = 16

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Window: WindowConfig{
			Title:  "Lumen",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			Frames:         2,
			MaxTextures:    16,
			ClearColour:    "#1a1a26",
			FrameTimeout:   Duration{time.Second},
			AcquireTimeout: Duration{time.Second},
		},
		Swapchain: SwapchainConfig{
			ColourFormats: []string{"B8G8R8A8_SRGB", "R8G8B8A8_SRGB"},
			DepthFormats:  []string{"D32_SFLOAT_S8_UINT", "D32_SFLOAT", "D24_UNORM_S8_UINT"},
			PresentModes:  []string{"mailbox", "fifo"},
			ImageCount:    3,
		},
	}
}

// LoadConfig decodes path over the defaults, so a file only needs the keys it changes.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		LogWarn("config file '%s' not found, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			err = fmt.Errorf("%s:%d:%d: %s: %w", path, row, col, derr.Error(), ErrInvalidConfig)
		} else {
			err = fmt.Errorf("%s: %v: %w", path, err, ErrInvalidConfig)
		}
		LogError(err.Error())
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Window.Width == 0 || c.Window.Height == 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d has a zero dimension", c.Window.Width, c.Window.Height))
	}
	if c.Renderer.Frames < 1 {
		errs = append(errs, fmt.Errorf("renderer.frames must be at least 1, got %d", c.Renderer.Frames))
	}
	if c.Renderer.MaxTextures < MinTextures {
		errs = append(errs, fmt.Errorf("renderer.max_textures must be at least %d, got %d", MinTextures, c.Renderer.MaxTextures))
	}
	if c.Renderer.FrameTimeout.Duration < 0 || c.Renderer.AcquireTimeout.Duration < 0 {
		errs = append(errs, errors.New("renderer timeouts cannot be negative"))
	}
	if _, err := math.ParseColour(c.Renderer.ClearColour); err != nil {
		errs = append(errs, fmt.Errorf("renderer.clear_colour: %w", err))
	}
	if _, err := c.ColourFormats(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.DepthFormats(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.PresentModes(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		err := fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
		LogError(err.Error())
		return err
	}
	return nil
}

func parseFormats(names []string) ([]gfx.Format, error) {
	out := make([]gfx.Format, 0, len(names))
	for _, n := range names {
		f, err := gfx.ParseFormat(n)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (c *Config) ColourFormats() ([]gfx.Format, error) {
	return parseFormats(c.Swapchain.ColourFormats)
}

func (c *Config) DepthFormats() ([]gfx.Format, error) {
	return parseFormats(c.Swapchain.DepthFormats)
}

func (c *Config) PresentModes() ([]gfx.PresentMode, error) {
	out := make([]gfx.PresentMode, 0, len(c.Swapchain.PresentModes))
	for _, n := range c.Swapchain.PresentModes {
		m, err := gfx.ParsePresentMode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Config) ClearColour() math.Colour {
	col, err := math.ParseColour(c.Renderer.ClearColour)
	if err != nil {
		return math.ColourBlack
	}
	return col
}

// WatchConfig reloads path whenever it is written and hands every valid result to onChange.
// Invalid edits are logged and skipped. It returns when ctx is done.
func WatchConfig(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched instead of the file.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	LogDebug("watching config file '%s'", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := LoadConfig(abs)
			if err != nil {
				LogWarn("ignoring config change: %s", err)
				continue
			}
			LogInfo("config file '%s' reloaded", abs)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			LogWarn("config watcher: %s", err)
		}
	}
}
