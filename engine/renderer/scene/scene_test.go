package scene

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewportFlipsY(t *testing.T) {
	ext := gfx.Extent2D{Width: 800, Height: 600}

	vp := FullScreen().Viewport(ext)
	assert.Equal(t, gfx.Viewport{X: 0, Y: 600, Width: 800, Height: -600, MinDepth: 0, MaxDepth: 1}, vp)

	half := ScreenRect{X: 0.5, Y: 0, Width: 0.5, Height: 0.5}.Viewport(ext)
	assert.Equal(t, float32(400), half.X)
	assert.Equal(t, float32(300), half.Y)
	assert.Equal(t, float32(-300), half.Height)
}

func TestScissorStaysInside(t *testing.T) {
	ext := gfx.Extent2D{Width: 800, Height: 600}

	assert.Equal(t, gfx.Rect2D{Extent: ext}, FullScreen().Scissor(ext))

	r := ScreenRect{X: 0.75, Y: 0.5, Width: 0.5, Height: 1}.Scissor(ext)
	assert.Equal(t, gfx.Offset2D{X: 600, Y: 300}, r.Offset)
	assert.Equal(t, gfx.Extent2D{Width: 200, Height: 300}, r.Extent)
}

func TestBuilder(t *testing.T) {
	b := NewBuilder()
	tr := math.NewTransform()

	s := b.Begin().
		Add(Drawable{Transform: tr}).
		Batch(WithRect(ScreenRect{0, 0, 0.5, 0.5}), WithDebug(2)).
		Add(Drawable{Transform: tr}, Drawable{Transform: tr}).
		Batch().
		Clear(math.ColourMagenta, 0.5).
		Build()

	require.Len(t, s.Batches, 3)
	assert.Equal(t, FullScreen(), s.Batches[0].Viewport)
	assert.Len(t, s.Batches[0].Drawables, 1)
	assert.True(t, s.Batches[1].Debug)
	assert.Equal(t, float32(2), s.Batches[1].LineWidth)
	assert.Equal(t, ScreenRect{0, 0, 0.5, 0.5}, s.Batches[1].Scissor)
	assert.Len(t, s.Batches[1].Drawables, 2)
	assert.Empty(t, s.Batches[2].Drawables)
	assert.Equal(t, 3, s.Drawables())
	assert.False(t, s.Empty())
	assert.Equal(t, [4]float32{1, 0, 1, 1}, s.Clear.Colour)
	assert.Equal(t, float32(0.5), s.Clear.Depth)

	s = b.Begin().Batch().Batch().Build()
	assert.Len(t, s.Batches, 2)
	assert.True(t, s.Empty())
	assert.Empty(t, s.Batches[0].Drawables)
	assert.Equal(t, float32(1), s.Clear.Depth)
	assert.Nil(t, s.Skybox)
}

func TestCamera(t *testing.T) {
	c := NewCamera()
	assert.Equal(t, math.NewMat4Identity(), c.View())

	c.SetPosition(math.NewVec3(0, 0, 10))
	v := c.View()
	assert.InDelta(t, -10, v.Data[14], 1e-5)

	c.MoveForward(2)
	assert.InDelta(t, 8, c.Position().Z, 1e-5)

	c.Pitch(10)
	assert.InDelta(t, pitchLimit, c.EulerRotation().X, 1e-6)
}

func TestNewView(t *testing.T) {
	c := NewCamera()
	c.SetPosition(math.NewVec3(1, 2, 3))
	light := DirLight{Direction: math.NewVec4(0, -1, 0, 0), Colour: math.NewVec4(1, 1, 1, 1)}

	v := NewView(c, math.NewMat4Perspective(1, 1, 0.1, 100), light)
	assert.Equal(t, math.NewVec3(1, 2, 3), v.Position)
	assert.Equal(t, []DirLight{light}, v.DirLights)
	assert.Equal(t, c.View(), v.View)
}

func TestHierarchyWorld(t *testing.T) {
	h := NewHierarchy()
	root := h.Add(math.NewTransformFrom(math.NewVec3(10, 0, 0), math.NewQuatIdentity(), math.NewVec3One()), containers.Handle{})
	child := h.Add(math.NewTransformFrom(math.NewVec3(0, 5, 0), math.NewQuatIdentity(), math.NewVec3One()), root.Handle())

	world := child.Model()
	assert.InDelta(t, 10, world.Data[12], 1e-5)
	assert.InDelta(t, 5, world.Data[13], 1e-5)

	p, ok := h.Parent(child.Handle())
	require.True(t, ok)
	assert.Equal(t, root.Handle(), p)
	assert.Equal(t, []containers.Handle{child.Handle()}, h.Children(root.Handle()))

	var d Drawable
	d.Transform = child
	assert.Equal(t, world, d.Transform.Model())
}

func TestHierarchyReparent(t *testing.T) {
	h := NewHierarchy()
	a := h.Add(nil, containers.Handle{})
	b := h.Add(nil, a.Handle())
	c := h.Add(nil, b.Handle())

	assert.Error(t, h.Reparent(a.Handle(), c.Handle()), "cycle")
	require.NoError(t, h.Reparent(c.Handle(), a.Handle()))
	assert.ElementsMatch(t, []containers.Handle{b.Handle(), c.Handle()}, h.Children(a.Handle()))
	assert.Empty(t, h.Children(b.Handle()))

	require.NoError(t, h.Reparent(b.Handle(), containers.Handle{}))
	_, ok := h.Parent(b.Handle())
	assert.False(t, ok)
}

func TestHierarchyRemoveSubtree(t *testing.T) {
	h := NewHierarchy()
	root := h.Add(nil, containers.Handle{})
	a := h.Add(nil, root.Handle())
	b := h.Add(nil, a.Handle())
	other := h.Add(nil, root.Handle())

	h.Remove(a.Handle())
	assert.False(t, a.Valid())
	assert.False(t, b.Valid())
	assert.True(t, other.Valid())
	assert.Equal(t, []containers.Handle{other.Handle()}, h.Children(root.Handle()))
	assert.Equal(t, 2, h.Len())
	assert.Nil(t, b.Transform())
}
