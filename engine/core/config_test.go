package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	modes, err := cfg.PresentModes()
	require.NoError(t, err)
	assert.Equal(t, []gfx.PresentMode{gfx.PresentModeMailbox, gfx.PresentModeFifo}, modes)

	formats, err := cfg.ColourFormats()
	require.NoError(t, err)
	assert.Equal(t, gfx.FormatB8G8R8A8Srgb, formats[0])
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	writeConfig(t, path, `
[window]
title = "demo"
width = 800

[renderer]
frames = 3
frame_timeout = "250ms"

[swapchain]
present_modes = ["fifo_relaxed"]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Window.Title)
	assert.Equal(t, uint32(800), cfg.Window.Width)
	assert.Equal(t, uint32(720), cfg.Window.Height)
	assert.Equal(t, 3, cfg.Renderer.Frames)
	assert.Equal(t, 250*time.Millisecond, cfg.Renderer.FrameTimeout.Duration)
	assert.Equal(t, time.Second, cfg.Renderer.AcquireTimeout.Duration)

	modes, err := cfg.PresentModes()
	require.NoError(t, err)
	assert.Equal(t, []gfx.PresentMode{gfx.PresentModeFifoRelaxed}, modes)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"syntax":       "[window\nwidth = 1",
		"zero frames":  "[renderer]\nframes = 0",
		"few textures": "[renderer]\nmax_textures = 8",
		"bad format":   "[swapchain]\ncolour_formats = [\"RGB565\"]",
		"bad mode":     "[swapchain]\npresent_modes = [\"vsync\"]",
		"bad colour":   "[renderer]\nclear_colour = \"blue\"",
		"bad duration": "[renderer]\nframe_timeout = \"soon\"",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lumen.toml")
			writeConfig(t, path, body)
			_, err := LoadConfig(path)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfigSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	cfg := DefaultConfig()
	cfg.Renderer.Frames = 4
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWatchConfigReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	writeConfig(t, path, "[renderer]\nframes = 2\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, path, func(c *Config) { changes <- c })
	}()

	// The watcher may not be registered yet, so keep rewriting until a reload lands.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-changes:
			assert.Equal(t, 3, c.Renderer.Frames)
			cancel()
			require.NoError(t, <-done)
			return
		case <-tick.C:
			writeConfig(t, path, "[renderer]\nframes = 3\n")
		case <-deadline:
			t.Fatal("config change was never observed")
		}
	}
}
