package descriptor

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx/gfxtest"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTexture gfx.ImageView

func (f fakeTexture) Descriptor() gfx.ImageDescriptor {
	return gfx.ImageDescriptor{View: gfx.ImageView(f), Sampler: gfx.Sampler(f)}
}

func setup(t *testing.T) (*gfx.Context, *gfxtest.Device, *vram.VRAM) {
	ctx, dev, _ := gfxtest.NewContext(800, 600)
	v, err := vram.New(ctx)
	require.NoError(t, err)
	return ctx, dev, v
}

func newSet(t *testing.T, ctx *gfx.Context, maxTextures uint32) *Set {
	layout, err := Layout(ctx, maxTextures)
	require.NoError(t, err)
	pool, err := NewPool(ctx, 2, maxTextures)
	require.NoError(t, err)
	sets, err := NewSets(ctx, pool, layout, 2, maxTextures)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.NotEqual(t, sets[0].Handle(), sets[1].Handle())
	return sets[0]
}

func TestPoolSizes(t *testing.T) {
	ctx, dev, _ := setup(t)
	pool, err := NewPool(ctx, 3, 16)
	require.NoError(t, err)

	assert.Equal(t, []gfx.DescriptorPoolSize{
		{Type: gfx.DescriptorUniformBuffer, Count: 3},
		{Type: gfx.DescriptorStorageBuffer, Count: 18},
		{Type: gfx.DescriptorCombinedImageSampler, Count: 99},
	}, dev.PoolSizes(pool))
}

func TestShaderBufferRotates(t *testing.T) {
	_, _, v := setup(t)
	sb := NewShaderBuffer(v, gfx.DescriptorStorageBuffer, "models", 2)

	require.NoError(t, WriteSlice(sb, []float32{1, 2, 3}))
	first := sb.Buffer()
	assert.Equal(t, 3, sb.Len())
	assert.Equal(t, uint64(12), sb.Size())

	sb.Swap()
	assert.Nil(t, sb.Buffer())
	require.NoError(t, WriteValue(sb, uint32(7)))
	second := sb.Buffer()
	assert.NotEqual(t, first.Handle(), second.Handle())
	assert.Equal(t, 1, sb.Len())

	sb.Swap()
	assert.Equal(t, first.Handle(), sb.Buffer().Handle())
	assert.Equal(t, 3, sb.Len())
}

func TestShaderBufferGrowsLazily(t *testing.T) {
	_, dev, v := setup(t)
	sb := NewShaderBuffer(v, gfx.DescriptorStorageBuffer, "tints", 1)

	require.NoError(t, sb.Write(make([]byte, 10)))
	small := sb.Buffer()
	assert.Equal(t, uint64(minBufferSize), small.Size())

	require.NoError(t, sb.Write(make([]byte, 100)))
	assert.Equal(t, small.Handle(), sb.Buffer().Handle())

	require.NoError(t, sb.Write(make([]byte, 1000)))
	assert.NotEqual(t, small.Handle(), sb.Buffer().Handle())
	assert.Equal(t, uint64(1024), sb.Buffer().Size())
	// the outgrown buffer is released straight away
	assert.Equal(t, 1, dev.LiveBuffers())

	require.NoError(t, WriteSlice[uint32](sb, nil))
	assert.Zero(t, sb.Len())

	sb.Destroy()
	assert.Zero(t, v.Allocated())
}

func TestShaderBufferContents(t *testing.T) {
	_, dev, v := setup(t)
	sb := NewShaderBuffer(v, gfx.DescriptorUniformBuffer, "view", 2)

	require.NoError(t, WriteSlice(sb, []uint32{0x04030201}))
	data := dev.BufferData(sb.Buffer().Handle())
	assert.Equal(t, []byte{1, 2, 3, 4}, data[:4])

	info, ok := dev.BufferInfo(sb.Buffer().Handle())
	require.True(t, ok)
	assert.Equal(t, gfx.BufferUsageUniform, info.Usage)
}

func TestUpdateBindsCurrentSlot(t *testing.T) {
	ctx, dev, v := setup(t)
	set := newSet(t, ctx, 4)
	sb := NewShaderBuffer(v, gfx.DescriptorUniformBuffer, "view", 2)

	assert.ErrorIs(t, set.WriteView(sb), core.ErrResourceMissing)

	require.NoError(t, WriteValue(sb, float32(1)))
	require.NoError(t, set.WriteView(sb))
	sb.Swap()
	require.NoError(t, WriteValue(sb, float32(2)))
	require.NoError(t, set.WriteView(sb))

	writes := dev.WritesFor(set.Handle(), BindingView)
	require.Len(t, writes, 2)
	assert.NotEqual(t, writes[0].Buffers[0].Buffer, writes[1].Buffers[0].Buffer)
	assert.Equal(t, sb.Buffer().Handle(), writes[1].Buffers[0].Buffer)
	assert.Equal(t, gfx.DescriptorUniformBuffer, writes[1].Type)
}

func TestWriteSSBOs(t *testing.T) {
	ctx, dev, v := setup(t)
	set := newSet(t, ctx, 4)

	var b SSBOs
	for _, p := range []**ShaderBuffer{&b.Models, &b.Normals, &b.Materials, &b.Tints, &b.Flags, &b.DirLights} {
		*p = NewShaderBuffer(v, gfx.DescriptorStorageBuffer, "ssbo", 2)
		require.NoError(t, WriteSlice(*p, []uint32{1}))
	}
	require.NoError(t, set.WriteSSBOs(b))

	for binding := BindingModels; binding <= BindingDirLights; binding++ {
		assert.Len(t, dev.WritesFor(set.Handle(), binding), 1, "binding %d", binding)
	}
}

func TestTextureSlots(t *testing.T) {
	ctx, dev, _ := setup(t)
	set := newSet(t, ctx, 4)

	require.NoError(t, set.WriteDiffuse(fakeTexture(100), 3))
	assert.ErrorIs(t, set.WriteDiffuse(fakeTexture(100), 4), core.ErrDescriptorOverflow)
	assert.ErrorIs(t, set.WriteSpecular(fakeTexture(100), 9), core.ErrDescriptorOverflow)

	w := dev.WritesFor(set.Handle(), BindingDiffuse)
	require.Len(t, w, 1)
	assert.Equal(t, uint32(3), w[0].ArrayElement)
	assert.Equal(t, gfx.ImageView(100), w[0].Images[0].View)
}

func TestResetTextures(t *testing.T) {
	ctx, dev, _ := setup(t)
	set := newSet(t, ctx, 8)

	require.NoError(t, set.ResetTextures(fakeTexture(1), fakeTexture(2), 3, 6))
	diffuse := dev.WritesFor(set.Handle(), BindingDiffuse)
	specular := dev.WritesFor(set.Handle(), BindingSpecular)
	require.Len(t, diffuse, 1)
	require.Len(t, specular, 1)
	assert.Equal(t, uint32(3), diffuse[0].ArrayElement)
	assert.Len(t, diffuse[0].Images, 3)
	assert.Equal(t, gfx.ImageView(1), diffuse[0].Images[2].View)
	assert.Equal(t, gfx.ImageView(2), specular[0].Images[0].View)

	// empty range writes nothing
	require.NoError(t, set.ResetTextures(fakeTexture(1), fakeTexture(2), 6, 6))
	assert.Len(t, dev.WritesFor(set.Handle(), BindingDiffuse), 1)

	assert.ErrorIs(t, set.ResetTextures(fakeTexture(1), fakeTexture(2), 0, 9), core.ErrDescriptorOverflow)
}

func TestResetSingleArray(t *testing.T) {
	ctx, dev, _ := setup(t)
	set := newSet(t, ctx, 8)

	require.NoError(t, set.ResetDiffuse(fakeTexture(1), 2, 5))
	assert.Len(t, dev.WritesFor(set.Handle(), BindingDiffuse), 1)
	assert.Empty(t, dev.WritesFor(set.Handle(), BindingSpecular))

	require.NoError(t, set.ResetSpecular(fakeTexture(2), 1, 2))
	specular := dev.WritesFor(set.Handle(), BindingSpecular)
	require.Len(t, specular, 1)
	assert.Equal(t, uint32(1), specular[0].ArrayElement)
	assert.Len(t, specular[0].Images, 1)

	assert.ErrorIs(t, set.ResetSpecular(fakeTexture(2), 0, 9), core.ErrDescriptorOverflow)
}
