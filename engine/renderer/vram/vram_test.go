package vram

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVRAM(t *testing.T) (*VRAM, *gfxtest.Device) {
	ctx, dev, _ := gfxtest.NewContext(800, 600)
	v, err := New(ctx)
	require.NoError(t, err)
	return v, dev
}

func hostBuffer(t *testing.T, v *VRAM, size uint64) *Buffer {
	b, err := v.CreateBuffer(gfx.BufferInfo{
		Size:       size,
		Usage:      gfx.BufferUsageStorage,
		Properties: gfx.MemoryHostVisible | gfx.MemoryHostCoherent,
		Name:       "host",
	})
	require.NoError(t, err)
	return b
}

func deviceBuffer(t *testing.T, v *VRAM, size uint64) *Buffer {
	b, err := v.CreateBuffer(gfx.BufferInfo{
		Size:       size,
		Usage:      gfx.BufferUsageVertex | gfx.BufferUsageTransferDst,
		Properties: gfx.MemoryDeviceLocal,
		Name:       "device",
	})
	require.NoError(t, err)
	return b
}

func TestCreateBufferAccounting(t *testing.T) {
	v, _ := newVRAM(t)

	a := hostBuffer(t, v, 64)
	b := deviceBuffer(t, v, 128)
	assert.Equal(t, uint64(192), v.Allocated())
	assert.Equal(t, 2, v.Stats().Buffers)

	v.Release(a)
	assert.Equal(t, uint64(128), v.Allocated())
	v.Release(b)
	assert.Zero(t, v.Allocated())
}

func TestCreateBufferDefaultsToSharedQueues(t *testing.T) {
	v, dev := newVRAM(t)
	b := hostBuffer(t, v, 16)

	info, ok := dev.BufferInfo(b.Handle())
	require.True(t, ok)
	assert.Equal(t, []gfx.QueueType{gfx.QueueGraphics, gfx.QueueTransfer}, info.Queues)
}

func TestCreateBufferFailure(t *testing.T) {
	v, dev := newVRAM(t)
	dev.FailAllocations = true

	b, err := v.CreateBuffer(gfx.BufferInfo{Size: 8, Name: "oom"})
	assert.ErrorIs(t, err, core.ErrOutOfDeviceMemory)
	assert.False(t, b.Valid())
	assert.Zero(t, v.Allocated())
}

func TestWrite(t *testing.T) {
	v, dev := newVRAM(t)
	b := hostBuffer(t, v, 8)

	require.NoError(t, v.Write(b, []byte{1, 2, 3}, 2))
	assert.Equal(t, []byte{0, 0, 1, 2, 3, 0, 0, 0}, dev.BufferData(b.Handle()))

	assert.Error(t, v.Write(b, []byte{1, 2, 3}, 6))
}

func TestWriteRejectsDeviceLocal(t *testing.T) {
	if core.Debug {
		t.Skip("asserts panic in debug builds")
	}
	v, _ := newVRAM(t)
	b := deviceBuffer(t, v, 8)

	assert.ErrorIs(t, v.Write(b, []byte{1}, 0), core.ErrNotHostVisible)
}

func TestStageRetiresOnFence(t *testing.T) {
	v, dev := newVRAM(t)
	b := deviceBuffer(t, v, 4)

	fence, err := v.Stage(b, []byte{9, 8, 7, 6})
	require.NoError(t, err)
	assert.False(t, dev.FenceSignaled(fence))

	// staging buffer lives until the transfer completes
	assert.Equal(t, 2, dev.LiveBuffers())
	v.Update()
	assert.Equal(t, 2, dev.LiveBuffers())
	assert.Equal(t, uint64(8), v.Allocated())

	dev.Complete(fence)
	assert.Equal(t, []byte{9, 8, 7, 6}, dev.BufferData(b.Handle()))

	v.ReleaseFence(fence)
	v.Update()
	assert.Equal(t, 1, dev.LiveBuffers())
	assert.Equal(t, uint64(4), v.Allocated())
	assert.Zero(t, v.Stats().Retiring)

	sub := dev.LastSubmission(gfx.QueueTransfer)
	require.NotNil(t, sub)
	assert.Equal(t, []string{gfxtest.OpCopyBuffer}, gfxtest.Ops(sub.Commands[0]))
}

func TestStageOverflow(t *testing.T) {
	v, _ := newVRAM(t)
	b := deviceBuffer(t, v, 2)

	_, err := v.Stage(b, []byte{1, 2, 3})
	assert.Error(t, err)
	_, err = v.Stage(b, nil)
	assert.Error(t, err)
}

func TestReleaseDeferredUntilFencesSignal(t *testing.T) {
	v, dev := newVRAM(t)
	b := hostBuffer(t, v, 32)

	f1, err := dev.CreateFence(false)
	require.NoError(t, err)
	f2, err := dev.CreateFence(true)
	require.NoError(t, err)

	v.Release(b, f1, f2)
	v.Update()
	assert.Equal(t, uint64(32), v.Allocated())
	assert.Equal(t, 1, v.Stats().Retiring)

	require.NoError(t, dev.Submit(gfx.QueueGraphics, gfx.SubmitInfo{Fence: f1}))
	dev.Complete(f1)
	v.Update()
	assert.Zero(t, v.Allocated())
	assert.Zero(t, dev.LiveBuffers())
}

func TestImages(t *testing.T) {
	v, dev := newVRAM(t)

	img, err := v.CreateImage(gfx.ImageInfo{
		Extent: gfx.Extent2D{Width: 2, Height: 2},
		Format: gfx.FormatR8G8B8A8Srgb,
		Usage:  gfx.ImageUsageSampled | gfx.ImageUsageTransferDst,
		Cube:   true,
		Name:   "cube",
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(6), img.Info().Layers)
	assert.NotZero(t, img.Sampler)
	assert.Equal(t, uint64(2*2*4*6), v.Allocated())

	_, err = v.StageImage(img, [][]byte{make([]byte, 16)})
	assert.Error(t, err)

	layers := make([][]byte, 6)
	for i := range layers {
		layers[i] = make([]byte, 16)
	}
	fence, err := v.StageImage(img, layers)
	require.NoError(t, err)

	sub := dev.LastSubmission(gfx.QueueTransfer)
	require.NotNil(t, sub)
	cmds := gfxtest.Filter(sub.Commands[0], gfxtest.OpCopyBufferToImage)
	require.Len(t, cmds, 1)
	assert.Equal(t, gfx.ImageCopy{Extent: gfx.Extent2D{Width: 2, Height: 2}, Layers: 6, LayerSize: 16}, cmds[0].Args[2])

	dev.Complete(fence)
	v.ReleaseFence(fence)
	v.ReleaseImage(img)
	v.Update()
	assert.Zero(t, v.Allocated())
}

func TestDestroyDrainsRetirement(t *testing.T) {
	v, dev := newVRAM(t)
	b := deviceBuffer(t, v, 4)

	fence, err := v.Stage(b, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	v.ReleaseFence(fence)
	v.Release(b, fence)

	v.Destroy()
	assert.Zero(t, v.Allocated())
	assert.Zero(t, dev.Live())
}
