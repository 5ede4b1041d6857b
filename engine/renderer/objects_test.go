package renderer

import (
	"image"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx/gfxtest"
	"github.com/spaghettifunk/lumen/engine/renderer/pipeline"
	"github.com/spaghettifunk/lumen/engine/renderer/scene"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
	"github.com/spaghettifunk/lumen/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type assets struct {
	cache *resources.Cache
	dev   *gfxtest.Device
}

func newAssets(t *testing.T) (assets, *gfx.Context, *vram.VRAM) {
	ctx, dev, _ := gfxtest.NewContext(800, 600)
	v, err := vram.New(ctx)
	require.NoError(t, err)
	cache, err := resources.NewCache(ctx, v)
	require.NoError(t, err)
	dev.CompleteAll()
	return assets{cache: cache, dev: dev}, ctx, v
}

func (a assets) mesh(t *testing.T, name string, material *resources.Material) *resources.Mesh {
	vertices, indices := resources.GenerateCube(1, 1, 1, 1, 1)
	m, err := a.cache.AddMesh(name, vertices, indices, material)
	require.NoError(t, err)
	a.dev.CompleteAll()
	return m
}

func (a assets) texture(t *testing.T, name string) *resources.Texture {
	tex, err := a.cache.AddTexture(name, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)
	a.dev.CompleteAll()
	return tex
}

func textured(name string, diffuse, specular *resources.Texture) *resources.Material {
	m := resources.DefaultMaterial()
	m.Name = name
	m.Textured = true
	m.Diffuse = diffuse
	m.Specular = specular
	return m
}

func TestBuildAssignsOneObjectPerMesh(t *testing.T) {
	a, _, _ := newAssets(t)
	fallback := &pipeline.Pipeline{}
	custom := &pipeline.Pipeline{}
	first := a.mesh(t, "first", nil)
	second := a.mesh(t, "second", nil)
	tr := math.NewTransformFrom(math.NewVec3(1, 2, 3), math.NewQuatIdentity(), math.NewVec3One())

	batches := []scene.Batch{
		{Drawables: []scene.Drawable{{Meshes: []*resources.Mesh{first, second}, Transform: tr}}},
		{Drawables: []scene.Drawable{{Meshes: []*resources.Mesh{first}, Transform: tr, Pipeline: custom}}},
	}
	o := newObjects(8)
	require.NoError(t, o.build(batches, fallback, 0))

	require.Equal(t, 3, o.count())
	assert.Len(t, o.normals, 3)
	assert.Len(t, o.materials, 3)
	assert.Len(t, o.tints, 3)
	assert.Len(t, o.flags, 3)
	require.Len(t, o.draws, 3)
	for i, d := range o.draws {
		assert.Equal(t, uint32(i), d.push.ObjectID)
	}
	assert.Equal(t, 0, o.draws[1].batch)
	assert.Equal(t, 1, o.draws[2].batch)
	assert.Same(t, fallback, o.draws[0].pipeline)
	assert.Same(t, custom, o.draws[2].pipeline)
	assert.Equal(t, tr.Model(), o.models[0])
	assert.Equal(t, uint64(36), o.triangles)
	assert.Equal(t, FlagLit|FlagOpaque, o.flags[0])
	assert.Equal(t, float32(32), o.materials[0].Shininess)
}

func TestBuildMissingDiffuseIsMagenta(t *testing.T) {
	a, _, _ := newAssets(t)
	mesh := a.mesh(t, "missing", textured("missing", nil, nil))

	o := newObjects(8)
	require.NoError(t, o.build([]scene.Batch{{Drawables: []scene.Drawable{{Meshes: []*resources.Mesh{mesh}, Transform: math.NewTransform()}}}}, &pipeline.Pipeline{}, 0))

	require.Len(t, o.draws, 1)
	assert.Equal(t, uint32(0), o.draws[0].push.DiffuseID)
	assert.Equal(t, math.Vec4(math.ColourMagenta), o.tints[0])
	assert.NotZero(t, o.flags[0]&FlagTextured)
	assert.Empty(t, o.writes)
}

func TestBuildDedupesTextureSlots(t *testing.T) {
	a, _, _ := newAssets(t)
	brick := a.texture(t, "brick")
	stone := a.texture(t, "stone")
	shine := a.texture(t, "shine")
	m1 := a.mesh(t, "a", textured("a", brick, shine))
	m2 := a.mesh(t, "b", textured("b", brick, nil))
	m3 := a.mesh(t, "c", textured("c", stone, shine))

	o := newObjects(8)
	require.NoError(t, o.build([]scene.Batch{{Drawables: []scene.Drawable{
		{Meshes: []*resources.Mesh{m1, m2, m3}, Transform: math.NewTransform()},
	}}}, &pipeline.Pipeline{}, 0))

	assert.Equal(t, uint32(1), o.draws[0].push.DiffuseID)
	assert.Equal(t, uint32(1), o.draws[1].push.DiffuseID)
	assert.Equal(t, uint32(2), o.draws[2].push.DiffuseID)
	assert.Equal(t, uint32(1), o.draws[0].push.SpecularID)
	assert.Equal(t, uint32(0), o.draws[1].push.SpecularID)
	assert.Equal(t, uint32(1), o.draws[2].push.SpecularID)
	assert.Len(t, o.writes, 3)
	assert.Equal(t, uint32(3), o.diffuse.next)
	assert.Equal(t, uint32(2), o.specular.next)
}

func TestBuildOverflow(t *testing.T) {
	a, _, _ := newAssets(t)
	m1 := a.mesh(t, "a", textured("a", a.texture(t, "one"), nil))
	m2 := a.mesh(t, "b", textured("b", a.texture(t, "two"), nil))

	o := newObjects(2)
	err := o.build([]scene.Batch{{Drawables: []scene.Drawable{
		{Meshes: []*resources.Mesh{m1, m2}, Transform: math.NewTransform()},
	}}}, &pipeline.Pipeline{}, 0)
	assert.ErrorIs(t, err, core.ErrDescriptorOverflow)
}

func TestBuildKeepsObjectsForMeshesNotReady(t *testing.T) {
	a, _, _ := newAssets(t)
	vertices, indices := resources.GenerateCube(1, 1, 1, 1, 1)
	early, err := a.cache.AddMesh("early", vertices, indices, nil)
	require.NoError(t, err)
	ready := a.mesh(t, "ready", nil)
	late, err := a.cache.AddMesh("late", vertices, indices, nil)
	require.NoError(t, err)
	require.False(t, late.Ready())

	o := newObjects(8)
	require.NoError(t, o.build([]scene.Batch{{Drawables: []scene.Drawable{
		{Meshes: []*resources.Mesh{early, late, ready}, Transform: math.NewTransform()},
	}}}, &pipeline.Pipeline{}, FlagSkybox))

	// every mesh owns an id and a row in each array, upload state only affects recording
	require.Equal(t, 3, o.count())
	assert.Len(t, o.normals, 3)
	assert.Len(t, o.materials, 3)
	assert.Len(t, o.tints, 3)
	assert.Len(t, o.flags, 3)
	require.Len(t, o.draws, 3)
	for i, d := range o.draws {
		assert.Equal(t, uint32(i), d.push.ObjectID)
	}
	assert.False(t, o.draws[0].skip)
	assert.True(t, o.draws[1].skip)
	assert.Same(t, late, o.draws[1].mesh)
	assert.False(t, o.draws[2].skip)
	assert.Equal(t, uint64(24), o.triangles)
	assert.NotZero(t, o.flags[1]&FlagSkybox)
}

func TestBuildSpecularNeedsTexturedMaterial(t *testing.T) {
	a, _, _ := newAssets(t)
	shine := a.texture(t, "shine")
	plain := textured("plain", nil, shine)
	plain.Textured = false
	mesh := a.mesh(t, "plain", plain)

	o := newObjects(8)
	require.NoError(t, o.build([]scene.Batch{{Drawables: []scene.Drawable{
		{Meshes: []*resources.Mesh{mesh}, Transform: math.NewTransform()},
	}}}, &pipeline.Pipeline{}, 0))

	require.Len(t, o.draws, 1)
	assert.Equal(t, uint32(0), o.draws[0].push.SpecularID)
	assert.Empty(t, o.writes)
	assert.Equal(t, uint32(1), o.specular.next)
}

func TestMaterialFlags(t *testing.T) {
	m := resources.DefaultMaterial()
	assert.Equal(t, FlagLit|FlagOpaque, materialFlags(m))

	m.Lit = false
	m.Translucent = true
	m.UI = true
	m.DropColour = true
	m.Textured = true
	assert.Equal(t, FlagUI|FlagDropColour|FlagTextured, materialFlags(m))
}
