// Package scene is the frame-local description the renderer consumes: batches of drawables
// plus the view, rebuilt by the application every frame.
package scene

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/pipeline"
	"github.com/spaghettifunk/lumen/engine/resources"
)

// ScreenRect is a rectangle in normalised framebuffer coordinates, origin top-left.
type ScreenRect struct {
	X, Y, Width, Height float32
}

// FullScreen covers the whole framebuffer.
func FullScreen() ScreenRect {
	return ScreenRect{0, 0, 1, 1}
}

// Viewport maps the rectangle onto extent with a negative height, so +Y points up in clip
// space as the shaders expect.
func (r ScreenRect) Viewport(extent gfx.Extent2D) gfx.Viewport {
	w, h := float32(extent.Width), float32(extent.Height)
	height := -(r.Height * h)
	return gfx.Viewport{
		X:        r.X * w,
		Y:        r.Y*h - height,
		Width:    r.Width * w,
		Height:   height,
		MinDepth: 0,
		MaxDepth: 1,
	}
}

// Scissor maps the rectangle onto extent in whole pixels.
func (r ScreenRect) Scissor(extent gfx.Extent2D) gfx.Rect2D {
	w, h := float32(extent.Width), float32(extent.Height)
	x := math.Clamp(r.X*w, 0, w)
	y := math.Clamp(r.Y*h, 0, h)
	return gfx.Rect2D{
		Offset: gfx.Offset2D{X: int32(x), Y: int32(y)},
		Extent: gfx.Extent2D{
			Width:  uint32(math.Clamp(r.Width*w, 0, w-x)),
			Height: uint32(math.Clamp(r.Height*h, 0, h-y)),
		},
	}
}

// DirLight is one entry of the directional light array; both fields are vec4 for std430.
type DirLight struct {
	Direction math.Vec4
	Colour    math.Vec4
}

// View is the camera and lighting shared by every batch.
type View struct {
	View       math.Mat4
	Projection math.Mat4
	Position   math.Vec3
	Ambient    math.Colour
	DirLights  []DirLight
}

// NewView captures the camera's current view matrix.
func NewView(camera *Camera, projection math.Mat4, lights ...DirLight) View {
	return View{
		View:       camera.View(),
		Projection: projection,
		Position:   camera.Position(),
		Ambient:    math.Colour{0.25, 0.25, 0.25, 1},
		DirLights:  lights,
	}
}

// Model yields a world matrix. *math.Transform and hierarchy nodes implement it.
type Model interface {
	Model() math.Mat4
}

// Drawable is one object: every mesh is drawn with the same transform and pipeline. A nil
// Pipeline uses the renderer's default.
type Drawable struct {
	Meshes    []*resources.Mesh
	Transform Model
	Pipeline  *pipeline.Pipeline
}

// Batch groups drawables sharing a viewport and scissor.
type Batch struct {
	Viewport  ScreenRect
	Scissor   ScreenRect
	Drawables []Drawable
	// Debug batches set the line width before drawing.
	Debug     bool
	LineWidth float32
}

// Skybox is drawn before every batch. A nil Mesh uses the default cube.
type Skybox struct {
	Cubemap *resources.Texture
	Mesh    *resources.Mesh
}

type Scene struct {
	Batches []Batch
	View    View
	Clear   gfx.ClearValues
	Skybox  *Skybox
}

// Drawables counts the drawables across every batch.
func (s *Scene) Drawables() int {
	n := 0
	for i := range s.Batches {
		n += len(s.Batches[i].Drawables)
	}
	return n
}

// Empty reports a scene with nothing to draw; the skybox alone does not count.
func (s *Scene) Empty() bool {
	return s.Drawables() == 0
}
