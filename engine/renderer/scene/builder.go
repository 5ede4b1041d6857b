package scene

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

// BatchOption configures a batch started with Builder.Batch.
type BatchOption func(b *Batch)

// WithRect sets both the viewport and the scissor.
func WithRect(r ScreenRect) BatchOption {
	return func(b *Batch) {
		b.Viewport = r
		b.Scissor = r
	}
}

func WithViewport(r ScreenRect) BatchOption {
	return func(b *Batch) {
		b.Viewport = r
	}
}

func WithScissor(r ScreenRect) BatchOption {
	return func(b *Batch) {
		b.Scissor = r
	}
}

// WithDebug marks the batch as a debug overlay drawn with the given line width.
func WithDebug(lineWidth float32) BatchOption {
	return func(b *Batch) {
		b.Debug = true
		b.LineWidth = lineWidth
	}
}

// Builder accumulates one frame's scene. Storage is reused across frames, so a built Scene
// is only valid until the next Begin.
type Builder struct {
	scene Scene
}

func NewBuilder() *Builder {
	b := &Builder{}
	b.Begin()
	return b
}

// Begin resets the builder for a new frame.
func (b *Builder) Begin() *Builder {
	for i := range b.scene.Batches {
		clear(b.scene.Batches[i].Drawables)
		b.scene.Batches[i].Drawables = b.scene.Batches[i].Drawables[:0]
	}
	b.scene.Batches = b.scene.Batches[:0]
	b.scene.View = View{View: math.NewMat4Identity(), Projection: math.NewMat4Identity()}
	b.scene.Clear = gfx.ClearValues{Colour: [4]float32{0, 0, 0, 1}, Depth: 1}
	b.scene.Skybox = nil
	return b
}

// Batch starts a new batch; it covers the full screen unless an option says otherwise.
func (b *Builder) Batch(opts ...BatchOption) *Builder {
	var drawables []Drawable
	if n := len(b.scene.Batches); n < cap(b.scene.Batches) {
		// reuse the drawable storage of the batch previously held in this slot
		drawables = b.scene.Batches[:n+1][n].Drawables[:0]
	}
	batch := Batch{Viewport: FullScreen(), Scissor: FullScreen(), Drawables: drawables}
	for _, opt := range opts {
		opt(&batch)
	}
	b.scene.Batches = append(b.scene.Batches, batch)
	return b
}

// Add appends drawables to the current batch, starting a full-screen one if there is none.
func (b *Builder) Add(drawables ...Drawable) *Builder {
	if len(b.scene.Batches) == 0 {
		b.Batch()
	}
	last := &b.scene.Batches[len(b.scene.Batches)-1]
	last.Drawables = append(last.Drawables, drawables...)
	return b
}

func (b *Builder) View(v View) *Builder {
	b.scene.View = v
	return b
}

func (b *Builder) Clear(colour math.Colour, depth float32) *Builder {
	b.scene.Clear = gfx.ClearValues{Colour: [4]float32{colour.X, colour.Y, colour.Z, colour.W}, Depth: depth}
	return b
}

func (b *Builder) Skybox(s *Skybox) *Builder {
	b.scene.Skybox = s
	return b
}

func (b *Builder) Build() Scene {
	return b.scene
}
