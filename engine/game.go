package engine

import (
	"github.com/spaghettifunk/lumen/engine/renderer/scene"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize runs once every engine system is up.
type Initialize func(sys *Systems) error
type Update func(deltaTime float64) error

// Render fills the frame's scene; the builder was reset by the engine.
type Render func(b *scene.Builder, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
