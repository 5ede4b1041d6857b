package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Key aliases the window system key codes the engine reacts to.
type Key = glfw.Key

const (
	KeyW      = glfw.KeyW
	KeyA      = glfw.KeyA
	KeyS      = glfw.KeyS
	KeyD      = glfw.KeyD
	KeyQ      = glfw.KeyQ
	KeyE      = glfw.KeyE
	KeyLeft   = glfw.KeyLeft
	KeyRight  = glfw.KeyRight
	KeyUp     = glfw.KeyUp
	KeyDown   = glfw.KeyDown
	KeyEscape = glfw.KeyEscape
	KeyP      = glfw.KeyP
)

type ResizeFunc func(width, height uint32)
type KeyFunc func(key Key, pressed bool)

// Platform owns the window. It implements the renderer's surface provider.
type Platform struct {
	Window    *glfw.Window
	startTime float64
	onResize  ResizeFunc
	onKey     KeyFunc
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(cfg core.WindowConfig) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		err := fmt.Errorf("glfw reports no Vulkan loader: %w", core.ErrNoSuitableDevice)
		core.LogError(err.Error())
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(cfg.X), int(cfg.Y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events and reports whether the window is still open.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// WaitMessages blocks until a window event arrives, used while minimised.
func (p *Platform) WaitMessages() {
	glfw.WaitEvents()
}

func (p *Platform) RequestClose() {
	p.Window.SetShouldClose(true)
}

// AbsoluteTime returns the seconds since Startup.
func (p *Platform) AbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) KeyDown(k Key) bool {
	return p.Window.GetKey(k) == glfw.Press
}

func (p *Platform) OnResize(fn ResizeFunc) {
	p.onResize = fn
}

func (p *Platform) OnKey(fn KeyFunc) {
	p.onKey = fn
}

// CreateSurface creates a window surface for the given Vulkan instance.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

func (p *Platform) RequiredExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) FramebufferSize() (int, int) {
	return p.Window.GetFramebufferSize()
}

func (p *Platform) WindowSize() (int, int) {
	return p.Window.GetSize()
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if p.onKey == nil || action == glfw.Repeat {
		return
	}
	p.onKey(key, action == glfw.Press)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.LogDebug("framebuffer resized to %dx%d", width, height)
	if p.onResize != nil {
		p.onResize(uint32(width), uint32(height))
	}
}
