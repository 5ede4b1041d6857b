package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shaders = Shaders{Vertex: []byte{1}, Fragment: []byte{2}}

func TestPushConstantsLayout(t *testing.T) {
	assert.Equal(t, uint64(12), gfx.SizeOf[PushConstants]())
}

func TestNewAndRebuild(t *testing.T) {
	ctx, dev, _ := gfxtest.NewContext(800, 600)
	rp, err := dev.CreateRenderPass(gfx.RenderPassInfo{})
	require.NoError(t, err)

	p, err := New(ctx, DefaultInfo("world", shaders), rp, gfx.DescriptorSetLayout(1))
	require.NoError(t, err)
	first := p.Handle()
	assert.NotZero(t, first)
	assert.Equal(t, 1, dev.LivePipelines())

	rp2, err := dev.CreateRenderPass(gfx.RenderPassInfo{})
	require.NoError(t, err)
	require.NoError(t, p.Rebuild(ctx, rp2, gfx.DescriptorSetLayout(1)))
	assert.NotEqual(t, first, p.Handle())
	assert.Equal(t, 1, dev.LivePipelines())

	p.Destroy(ctx)
	assert.Zero(t, dev.LivePipelines())
}

func TestMissingShaders(t *testing.T) {
	ctx, dev, _ := gfxtest.NewContext(800, 600)
	rp, err := dev.CreateRenderPass(gfx.RenderPassInfo{})
	require.NoError(t, err)

	_, err = New(ctx, DefaultInfo("empty", Shaders{}), rp, gfx.DescriptorSetLayout(1))
	assert.ErrorIs(t, err, core.ErrResourceMissing)
}

func TestInFlightTracking(t *testing.T) {
	ctx, dev, _ := gfxtest.NewContext(800, 600)
	rp, err := dev.CreateRenderPass(gfx.RenderPassInfo{})
	require.NoError(t, err)
	p, err := New(ctx, SkyboxInfo(shaders), rp, gfx.DescriptorSetLayout(1))
	require.NoError(t, err)
	assert.Equal(t, gfx.CullFront, p.Info().Cull)

	f, err := dev.CreateFence(false)
	require.NoError(t, err)
	require.NoError(t, dev.Submit(gfx.QueueGraphics, gfx.SubmitInfo{Fence: f}))
	p.Track(f)
	p.Track(f)
	assert.Equal(t, 1, p.Poll(dev))

	dev.Complete(f)
	assert.Zero(t, p.Poll(dev))
}

func TestLoadShaders(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world.vert.spv"), []byte{3, 2}, 0o644))

	_, err := LoadShaders(dir, "world")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "world.frag.spv"), []byte{1}, 0o644))
	s, err := LoadShaders(dir, "world")
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2}, s.Vertex)
	assert.Equal(t, []byte{1}, s.Fragment)
}
