package vulkan

import (
	"sync"
	"testing"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickQueueFamilies(t *testing.T) {
	tests := []struct {
		name     string
		families []queueFamilyInfo
		want     gfx.QueueFamilies
		ok       bool
	}{
		{
			name:     "single universal family",
			families: []queueFamilyInfo{{Graphics: true, Compute: true, Transfer: true, Present: true}},
			want:     gfx.QueueFamilies{},
			ok:       true,
		},
		{
			name: "dedicated transfer family",
			families: []queueFamilyInfo{
				{Graphics: true, Compute: true, Transfer: true, Present: true},
				{Compute: true, Transfer: true},
				{Transfer: true},
			},
			want: gfx.QueueFamilies{Graphics: 0, Present: 0, Transfer: 2},
			ok:   true,
		},
		{
			name: "present prefers the graphics family",
			families: []queueFamilyInfo{
				{Present: true, Transfer: true},
				{Graphics: true, Present: true},
			},
			want: gfx.QueueFamilies{Graphics: 1, Present: 1, Transfer: 0},
			ok:   true,
		},
		{
			name: "separate present family",
			families: []queueFamilyInfo{
				{Graphics: true},
				{Present: true},
			},
			want: gfx.QueueFamilies{Graphics: 0, Present: 1, Transfer: 0},
			ok:   true,
		},
		{
			name:     "no present support",
			families: []queueFamilyInfo{{Graphics: true, Transfer: true}},
			ok:       false,
		},
		{
			name:     "no graphics support",
			families: []queueFamilyInfo{{Present: true, Transfer: true}},
			ok:       false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickQueueFamilies(tt.families)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	var r registry[string]
	a := r.add("a")
	b := r.add("b")
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, r.len())

	v, ok := r.get(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, "", r.must(999))

	v, ok = r.remove(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = r.get(a)
	assert.False(t, ok)

	// Handles are never reused.
	c := r.add("c")
	assert.NotEqual(t, a, c)

	r.removeIf(func(s string) bool { return s == "b" })
	assert.Equal(t, 1, r.len())
	assert.ElementsMatch(t, []string{"c"}, r.drain())
	assert.Zero(t, r.len())
}

func TestLockPoolSerialisesQueue(t *testing.T) {
	lp := NewLockPool()
	lp.SetQueueFamily(0)
	lp.SetQueueFamily(2)

	var wg sync.WaitGroup
	inside := 0
	maxInside := 0
	var mu sync.Mutex
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lp.SafeQueueCall(0, func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)

	called := false
	require.NoError(t, lp.SafeAllQueues(func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
	// Unregistered families still run.
	assert.NoError(t, lp.SafeQueueCall(7, func() error { return nil }))
}

func TestResultMapping(t *testing.T) {
	assert.Equal(t, gfx.Success, toResult(vk.Success))
	assert.Equal(t, gfx.Timeout, toResult(vk.Timeout))
	assert.Equal(t, gfx.NotReady, toResult(vk.NotReady))
	assert.Equal(t, gfx.Suboptimal, toResult(vk.Suboptimal))
	assert.Equal(t, gfx.ErrorOutOfDate, toResult(vk.ErrorOutOfDate))
	assert.Equal(t, gfx.ErrorDeviceLost, toResult(vk.ErrorDeviceLost))
	assert.Equal(t, gfx.ErrorOutOfMemory, toResult(vk.ErrorOutOfDeviceMemory))
	assert.Equal(t, gfx.ErrorUnknown, toResult(vk.ErrorFeatureNotPresent))

	assert.True(t, IsSuccess(vk.Suboptimal))
	assert.False(t, IsSuccess(vk.ErrorOutOfDate))
	assert.NoError(t, check(vk.Success, "noop"))
	assert.ErrorIs(t, check(vk.ErrorDeviceLost, "submit"), core.ErrDeviceLost)
	assert.ErrorIs(t, check(vk.ErrorOutOfHostMemory, "alloc"), core.ErrOutOfDeviceMemory)
	assert.Equal(t, "VK_ERROR_OUT_OF_DATE_KHR", ResultString(vk.ErrorOutOfDate, false))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b"}))

	name := make([]byte, 16)
	copy(name, "VK_LAYER")
	assert.Equal(t, "VK_LAYER", cString(name))
	assert.Equal(t, "full", cString([]byte("full")))
}

func TestSpirvWordsAndTimeouts(t *testing.T) {
	code := []byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0}
	words := spirvWords(code)
	require.Len(t, words, 2)
	assert.Equal(t, uint32(0x07230203), words[0])
	assert.Nil(t, spirvWords(nil))

	assert.Equal(t, uint64(vk.MaxUint64), timeoutNs(gfx.Infinite))
	assert.Equal(t, uint64(1_000_000), timeoutNs(time.Millisecond))
}

func TestUploadBarrier(t *testing.T) {
	srcAccess, dstAccess, srcStage, dstStage := uploadBarrier(vk.ImageLayoutUndefined, false)
	assert.Zero(t, srcAccess)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), dstAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), srcStage)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), dstStage)

	srcAccess, dstAccess, srcStage, dstStage = uploadBarrier(vk.ImageLayoutTransferDstOptimal, true)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), srcAccess)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), dstAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), srcStage)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), dstStage)

	// a dedicated transfer family must not name graphics stages
	srcAccess, dstAccess, srcStage, dstStage = uploadBarrier(vk.ImageLayoutTransferDstOptimal, false)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), srcAccess)
	assert.Zero(t, dstAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), srcStage)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), dstStage)
	assert.Zero(t, dstStage&vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit))
}
