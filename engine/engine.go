package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/pipeline"
	"github.com/spaghettifunk/lumen/engine/renderer/scene"
	"github.com/spaghettifunk/lumen/engine/renderer/swapchain"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
	"github.com/spaghettifunk/lumen/engine/resources"
	"golang.org/x/sync/errgroup"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// statsInterval is how often the frame statistics are logged.
const statsInterval = 5 * time.Second

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool
	isSuspended  bool
	config       *core.Config
	platform     *platform.Platform
	device       *vulkan.Device
	systems      *Systems
	builder      *scene.Builder
	width        uint32
	height       uint32
	clock        *core.Clock
	metrics      *core.Metrics
	lastTime     float64
	lastStats    float64

	// config reloads are applied on the main thread
	reloads chan *core.Config
	cancel  context.CancelFunc
	watch   *errgroup.Group
}

func New(g *Game) (*Engine, error) {
	cfg, err := core.LoadConfig(g.ApplicationConfig.ConfigPath)
	if err != nil {
		return nil, err
	}
	core.SetLogLevel(cfg.Log.Level)
	if g.ApplicationConfig.Name != "" && cfg.Window.Title == core.DefaultConfig().Window.Title {
		cfg.Window.Title = g.ApplicationConfig.Name
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		platform:     platform.New(),
		builder:      scene.NewBuilder(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		isRunning:    true,
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
		reloads:      make(chan *core.Config, 1),
	}, nil
}

// rendererInfo maps the configuration onto the renderer's create info.
func rendererInfo(cfg *core.Config) (renderer.CreateInfo, error) {
	prefs := swapchain.Preferences{ImageCount: cfg.Swapchain.ImageCount}
	var err error
	if prefs.ColourFormats, err = cfg.ColourFormats(); err != nil {
		return renderer.CreateInfo{}, err
	}
	if prefs.DepthFormats, err = cfg.DepthFormats(); err != nil {
		return renderer.CreateInfo{}, err
	}
	if prefs.PresentModes, err = cfg.PresentModes(); err != nil {
		return renderer.CreateInfo{}, err
	}
	return renderer.CreateInfo{
		Frames:         cfg.Renderer.Frames,
		MaxTextures:    cfg.Renderer.MaxTextures,
		Swapchain:      prefs,
		AcquireTimeout: cfg.Renderer.AcquireTimeout.Duration,
		FrameTimeout:   cfg.Renderer.FrameTimeout.Duration,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	app := e.gameInstance.ApplicationConfig

	if err := e.platform.Startup(e.config.Window); err != nil {
		return err
	}
	e.platform.OnResize(e.onResized)
	e.platform.OnKey(e.onKey)

	ctx, dev, err := vulkan.NewContext(vulkan.Config{
		AppName:        app.Name,
		Debug:          e.config.Renderer.Debug || core.Debug,
		PreferDiscrete: e.config.Renderer.PreferDiscrete,
	}, e.platform)
	if err != nil {
		return err
	}
	e.device = dev

	v, err := vram.New(ctx)
	if err != nil {
		return err
	}
	cache, err := resources.NewCache(ctx, v)
	if err != nil {
		return err
	}

	info, err := rendererInfo(e.config)
	if err != nil {
		return err
	}
	if info.Shaders, err = pipeline.LoadShaders(app.ShaderDir, app.Shader); err != nil {
		core.LogError(err.Error())
		return err
	}
	if info.SkyboxShaders, err = pipeline.LoadShaders(app.ShaderDir, app.SkyboxShader); err != nil {
		core.LogError(err.Error())
		return err
	}
	r, err := renderer.New(ctx, v, cache, info)
	if err != nil {
		return err
	}

	e.systems = &Systems{
		Config:    e.config,
		Platform:  e.platform,
		Context:   ctx,
		VRAM:      v,
		Resources: cache,
		Renderer:  r,
	}

	if err := e.gameInstance.FnInitialize(e.systems); err != nil {
		return err
	}
	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}

	e.startWatcher(app.ConfigPath)
	e.currentStage = EngineStageInitialized
	return nil
}

// startWatcher reloads the config file in the background; only the newest reload is kept.
func (e *Engine) startWatcher(path string) {
	if path == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.watch = &errgroup.Group{}
	e.watch.Go(func() error {
		return core.WatchConfig(ctx, filepath.Clean(path), func(cfg *core.Config) {
			select {
			case <-e.reloads:
			default:
			}
			e.reloads <- cfg
		})
	})
}

// applyConfig applies the settings that can change while running. Window and device
// settings need a restart.
func (e *Engine) applyConfig(cfg *core.Config) {
	old := e.config
	core.SetLogLevel(cfg.Log.Level)
	r := e.systems.Renderer

	modes, err := cfg.PresentModes()
	if err == nil && fmt.Sprint(modes) != fmt.Sprint(r.Swapchain().Preferences().PresentModes) {
		core.LogInfo("applying present modes %v", cfg.Swapchain.PresentModes)
		if err := r.SetPresentModes(modes...); err != nil {
			core.LogError("failed to apply present modes: %s", err)
		}
	}
	if cfg.Renderer.Frames != old.Renderer.Frames {
		core.LogInfo("applying %d virtual frames", cfg.Renderer.Frames)
		if err := r.SetVirtualFrames(cfg.Renderer.Frames); err != nil {
			core.LogError("failed to apply virtual frame count: %s", err)
		}
	}
	if cfg.Window != old.Window || cfg.Renderer.Debug != old.Renderer.Debug || cfg.Renderer.MaxTextures != old.Renderer.MaxTextures {
		core.LogWarn("window, debug and texture limit changes take effect after a restart")
	}
	e.config = cfg
	e.systems.Config = cfg
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	r := e.systems.Renderer
	for e.isRunning {
		if !e.platform.PumpMessages() {
			e.isRunning = false
			break
		}

		select {
		case cfg := <-e.reloads:
			e.applyConfig(cfg)
		default:
		}

		if e.isSuspended {
			e.platform.WaitMessages()
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.platform.AbsoluteTime()

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("Game update failed, shutting down: %s", err)
			return err
		}

		b := e.builder.Begin().Clear(e.config.ClearColour(), 1)
		if err := e.gameInstance.FnRender(b, delta); err != nil {
			core.LogError("Game render failed, shutting down: %s", err)
			return err
		}

		if _, err := r.Render(b.Build()); err != nil {
			core.LogError("Render failed, shutting down: %s", err)
			return err
		}
		if err := r.Update(); err != nil {
			core.LogError("Renderer update failed, shutting down: %s", err)
			return err
		}

		e.metrics.Update(e.platform.AbsoluteTime() - frameStartTime)
		if currentTime-e.lastStats > statsInterval.Seconds() {
			e.lastStats = currentTime
			stats := r.Stats()
			fps, ms := e.metrics.Frame()
			core.LogDebug("%.0f fps, %.2f ms, %d triangles, %d frames drawn, %d bytes of VRAM",
				fps, ms, stats.TrisDrawn, stats.FramesDrawn, stats.Allocated)
		}

		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	if e.cancel != nil {
		e.cancel()
		if err := e.watch.Wait(); err != nil {
			core.LogWarn("config watcher stopped with: %s", err)
		}
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError(err.Error())
		}
	}
	if e.systems != nil {
		e.systems.Renderer.Destroy()
		e.systems.Resources.Destroy()
		e.systems.VRAM.Destroy()
	}
	if e.device != nil {
		e.device.Destroy()
	}
	return e.platform.Shutdown()
}

// GetFramebufferSize returns the width and height (in this order) of the application
// framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onKey(key platform.Key, pressed bool) {
	if pressed && key == platform.KeyEscape {
		core.LogInfo("escape pressed, shutting down.")
		e.platform.RequestClose()
	}
}

func (e *Engine) onResized(width, height uint32) {
	if width == e.width && height == e.height {
		return
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	if e.systems != nil {
		if err := e.systems.Renderer.Resize(gfx.Extent2D{Width: width, Height: height}); err != nil {
			core.LogError(err.Error())
		}
	}
}
