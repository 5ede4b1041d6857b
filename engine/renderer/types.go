package renderer

import (
	"time"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/pipeline"
	"github.com/spaghettifunk/lumen/engine/renderer/swapchain"
	"github.com/spaghettifunk/lumen/engine/resources"
)

// Flags mirror the per-object flag bits read by the shaders.
type Flags uint32

const (
	FlagLit Flags = 1 << iota
	FlagOpaque
	FlagTextured
	FlagUI
	FlagSkybox
	FlagDropColour
)

// MaterialData is the std430 layout of one entry of the materials array.
type MaterialData struct {
	Ambient   math.Vec4
	Diffuse   math.Vec4
	Specular  math.Vec4
	Shininess float32
	_         [3]float32
}

// viewData is the std140 layout of the view uniform.
type viewData struct {
	View           math.Mat4
	Projection     math.Mat4
	ViewProjection math.Mat4
	UI             math.Mat4
	Position       math.Vec4
	Ambient        math.Vec4
	DirLightCount  uint32
	_              [3]uint32
}

// Provider resolves the resources every renderer needs by name. *resources.Cache implements it.
type Provider interface {
	Texture(name string) (*resources.Texture, bool)
	Mesh(name string) (*resources.Mesh, bool)
}

type CreateInfo struct {
	// Frames is the number of virtual frames in flight.
	Frames int
	// MaxTextures sizes each texture array, slot 0 included.
	MaxTextures uint32
	Swapchain   swapchain.Preferences
	// Size overrides the window framebuffer size.
	Size          *gfx.Extent2D
	Shaders       pipeline.Shaders
	SkyboxShaders pipeline.Shaders
	// AcquireTimeout bounds image acquisition; zero waits forever.
	AcquireTimeout time.Duration
	// FrameTimeout bounds the wait on a virtual frame's fence; zero waits forever.
	FrameTimeout time.Duration
}

// Stats describe the last presented frame.
type Stats struct {
	TrisDrawn     uint64
	FramesDrawn   uint64
	VirtualFrames int
	Allocated     uint64
}
