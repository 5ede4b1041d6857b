// Package gfxtest provides an in-memory gfx.Device that records every call. Submissions stay
// pending until the test completes them, which makes fence ordering observable without a GPU.
package gfxtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

type fenceState struct {
	signaled bool
}

type bufferState struct {
	info gfx.BufferInfo
	data []byte
}

type swapchainState struct {
	info   gfx.SwapchainInfo
	images []gfx.Image
	next   uint32
}

// Submission is a snapshot of one Submit call.
type Submission struct {
	Queue    gfx.QueueType
	Info     gfx.SubmitInfo
	Commands [][]Command
	Done     bool
}

// Device is a recording gfx.Device.
type Device struct {
	mu   sync.Mutex
	next uint64

	fences       map[gfx.Fence]*fenceState
	semaphores   map[gfx.Semaphore]bool
	buffers      map[gfx.Buffer]*bufferState
	images       map[gfx.Image]gfx.ImageInfo
	views        map[gfx.ImageView]gfx.ImageViewInfo
	samplers     map[gfx.Sampler]bool
	pools        map[gfx.CommandPool][]*CommandBuffer
	setLayouts   map[gfx.DescriptorSetLayout][]gfx.DescriptorBinding
	descPools    map[gfx.DescriptorPool][]gfx.DescriptorPoolSize
	renderPasses map[gfx.RenderPass]gfx.RenderPassInfo
	framebuffers map[gfx.Framebuffer]gfx.FramebufferInfo
	pipelines    map[gfx.Pipeline]gfx.PipelineInfo
	swapchains   map[gfx.Swapchain]*swapchainState

	// AutoComplete completes every submission as soon as it is made.
	AutoComplete bool
	// FailAllocations makes buffer and image creation report out of memory.
	FailAllocations bool
	Families        gfx.QueueFamilies
	Support         gfx.SurfaceSupport
	DepthFormats    []gfx.Format
	// AcquireResults and PresentResults are consumed front to back; Success once empty.
	AcquireResults []gfx.Result
	PresentResults []gfx.Result

	Submissions []*Submission
	Writes      []gfx.DescriptorWrite
	Events      []string
	Acquires    int
	Presents    int
}

func NewDevice() *Device {
	return &Device{
		fences:       map[gfx.Fence]*fenceState{},
		semaphores:   map[gfx.Semaphore]bool{},
		buffers:      map[gfx.Buffer]*bufferState{},
		images:       map[gfx.Image]gfx.ImageInfo{},
		views:        map[gfx.ImageView]gfx.ImageViewInfo{},
		samplers:     map[gfx.Sampler]bool{},
		pools:        map[gfx.CommandPool][]*CommandBuffer{},
		setLayouts:   map[gfx.DescriptorSetLayout][]gfx.DescriptorBinding{},
		descPools:    map[gfx.DescriptorPool][]gfx.DescriptorPoolSize{},
		renderPasses: map[gfx.RenderPass]gfx.RenderPassInfo{},
		framebuffers: map[gfx.Framebuffer]gfx.FramebufferInfo{},
		pipelines:    map[gfx.Pipeline]gfx.PipelineInfo{},
		swapchains:   map[gfx.Swapchain]*swapchainState{},
		Support: gfx.SurfaceSupport{
			Capabilities: gfx.SurfaceCapabilities{
				MinImageCount:    2,
				MaxImageCount:    8,
				CurrentExtent:    gfx.Extent2D{Width: gfx.UndefinedExtent, Height: gfx.UndefinedExtent},
				MinImageExtent:   gfx.Extent2D{Width: 1, Height: 1},
				MaxImageExtent:   gfx.Extent2D{Width: 4096, Height: 4096},
				CurrentTransform: gfx.SurfaceTransformIdentity,
			},
			Formats: []gfx.SurfaceFormat{
				{Format: gfx.FormatB8G8R8A8Srgb, ColourSpace: gfx.ColourSpaceSrgbNonlinear},
				{Format: gfx.FormatB8G8R8A8Unorm, ColourSpace: gfx.ColourSpaceSrgbNonlinear},
			},
			PresentModes: []gfx.PresentMode{gfx.PresentModeFifo, gfx.PresentModeMailbox},
		},
		DepthFormats: []gfx.Format{gfx.FormatD32SfloatS8Uint, gfx.FormatD32Sfloat},
	}
}

func (d *Device) id() uint64 {
	d.next++
	return d.next
}

func (d *Device) logf(format string, args ...interface{}) {
	d.Events = append(d.Events, fmt.Sprintf(format, args...))
}

func (d *Device) QueueFamilies() gfx.QueueFamilies {
	return d.Families
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logf("wait idle")
	for _, s := range d.Submissions {
		d.complete(s)
	}
	return nil
}

func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := gfx.Fence(d.id())
	d.fences[f] = &fenceState{signaled: signaled}
	return f, nil
}

func (d *Device) DestroyFence(f gfx.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fences, f)
}

func (d *Device) WaitFences(fences []gfx.Fence, timeout time.Duration) gfx.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		st, ok := d.fences[f]
		if !ok {
			return gfx.ErrorUnknown
		}
		if !st.signaled {
			d.logf("wait fence %d timeout", f)
			return gfx.Timeout
		}
	}
	for _, f := range fences {
		d.logf("wait fence %d", f)
	}
	return gfx.Success
}

func (d *Device) ResetFence(f gfx.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.fences[f]
	if !ok {
		return fmt.Errorf("reset of unknown fence %d", f)
	}
	st.signaled = false
	d.logf("reset fence %d", f)
	return nil
}

func (d *Device) FenceStatus(f gfx.Fence) gfx.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.fences[f]; ok && st.signaled {
		return gfx.Success
	}
	return gfx.NotReady
}

func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := gfx.Semaphore(d.id())
	d.semaphores[s] = false
	return s, nil
}

func (d *Device) DestroySemaphore(s gfx.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, s)
}

func (d *Device) CreateBuffer(info gfx.BufferInfo) (gfx.Allocation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAllocations {
		return gfx.Allocation{}, gfx.ErrorOutOfMemory.Err()
	}
	b := gfx.Buffer(d.id())
	d.buffers[b] = &bufferState{info: info, data: make([]byte, info.Size)}
	return gfx.Allocation{Buffer: b, Memory: gfx.Memory(d.id()), Size: info.Size}, nil
}

func (d *Device) DestroyBuffer(a gfx.Allocation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, a.Buffer)
}

func (d *Device) MapWrite(a gfx.Allocation, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.buffers[a.Buffer]
	if !ok {
		return fmt.Errorf("write to unknown buffer %d", a.Buffer)
	}
	if offset+uint64(len(data)) > uint64(len(st.data)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d", len(data), offset, len(st.data))
	}
	copy(st.data[offset:], data)
	return nil
}

func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.ImageAllocation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAllocations {
		return gfx.ImageAllocation{}, gfx.ErrorOutOfMemory.Err()
	}
	img := gfx.Image(d.id())
	d.images[img] = info
	layers := uint64(info.Layers)
	if layers == 0 {
		layers = 1
	}
	size := uint64(info.Extent.Width) * uint64(info.Extent.Height) * 4 * layers
	return gfx.ImageAllocation{Image: img, Memory: gfx.Memory(d.id()), Size: size}, nil
}

func (d *Device) DestroyImage(a gfx.ImageAllocation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.images, a.Image)
}

func (d *Device) CreateImageView(info gfx.ImageViewInfo) (gfx.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := gfx.ImageView(d.id())
	d.views[v] = info
	return v, nil
}

func (d *Device) DestroyImageView(v gfx.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.views, v)
}

func (d *Device) CreateSampler(info gfx.SamplerInfo) (gfx.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := gfx.Sampler(d.id())
	d.samplers[s] = true
	return s, nil
}

func (d *Device) DestroySampler(s gfx.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.samplers, s)
}

func (d *Device) SupportedDepthFormat(candidates []gfx.Format) (gfx.Format, bool) {
	for _, c := range candidates {
		for _, s := range d.DepthFormats {
			if c == s {
				return c, true
			}
		}
	}
	return gfx.FormatUndefined, false
}

func (d *Device) CreateCommandPool(queue gfx.QueueType, transient bool) (gfx.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := gfx.CommandPool(d.id())
	d.pools[p] = nil
	return p, nil
}

func (d *Device) DestroyCommandPool(p gfx.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pools, p)
}

func (d *Device) ResetCommandPool(p gfx.CommandPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cbs, ok := d.pools[p]
	if !ok {
		return fmt.Errorf("reset of unknown command pool %d", p)
	}
	for _, cb := range cbs {
		cb.Commands = nil
	}
	return nil
}

func (d *Device) AllocateCommandBuffer(p gfx.CommandPool) (gfx.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pools[p]; !ok {
		return nil, fmt.Errorf("allocate from unknown command pool %d", p)
	}
	cb := &CommandBuffer{ID: d.id(), Pool: p}
	d.pools[p] = append(d.pools[p], cb)
	return cb, nil
}

func (d *Device) FreeCommandBuffer(p gfx.CommandPool, cb gfx.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cbs := d.pools[p]
	for i, c := range cbs {
		if c == cb {
			d.pools[p] = append(cbs[:i], cbs[i+1:]...)
			break
		}
	}
}

func (d *Device) Submit(queue gfx.QueueType, info gfx.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Fence != gfx.Null {
		st, ok := d.fences[info.Fence]
		if !ok {
			return fmt.Errorf("submit with unknown fence %d", info.Fence)
		}
		if st.signaled {
			return fmt.Errorf("submit with signalled fence %d", info.Fence)
		}
	}
	s := &Submission{Queue: queue, Info: info}
	for _, cb := range info.CommandBuffers {
		c := cb.(*CommandBuffer)
		if c.Recording {
			return fmt.Errorf("submit of command buffer %d still recording", c.ID)
		}
		s.Commands = append(s.Commands, append([]Command(nil), c.Commands...))
	}
	d.Submissions = append(d.Submissions, s)
	d.logf("submit fence %d", info.Fence)
	if d.AutoComplete {
		d.complete(s)
	}
	return nil
}

// Complete finishes every pending submission signalling f.
func (d *Device) Complete(f gfx.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.Submissions {
		if s.Info.Fence == f {
			d.complete(s)
		}
	}
}

// CompleteAll finishes every pending submission.
func (d *Device) CompleteAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.Submissions {
		d.complete(s)
	}
}

// complete executes buffer copies and signals the submission's fence and semaphores.
func (d *Device) complete(s *Submission) {
	if s.Done {
		return
	}
	s.Done = true
	for _, cmds := range s.Commands {
		for _, c := range cmds {
			if c.Op != OpCopyBuffer {
				continue
			}
			src, dst := d.buffers[c.Args[0].(gfx.Buffer)], d.buffers[c.Args[1].(gfx.Buffer)]
			if src == nil || dst == nil {
				continue
			}
			for _, r := range c.Args[2].([]gfx.BufferCopy) {
				copy(dst.data[r.DstOffset:r.DstOffset+r.Size], src.data[r.SrcOffset:r.SrcOffset+r.Size])
			}
		}
	}
	for _, sem := range s.Info.Signal {
		d.semaphores[sem] = true
	}
	if st, ok := d.fences[s.Info.Fence]; ok {
		st.signaled = true
		d.logf("signal fence %d", s.Info.Fence)
	}
}

// BufferData returns a copy of a buffer's contents.
func (d *Device) BufferData(b gfx.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.buffers[b]; ok {
		return append([]byte(nil), st.data...)
	}
	return nil
}

// BufferInfo returns the creation info of a live buffer.
func (d *Device) BufferInfo(b gfx.Buffer) (gfx.BufferInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.buffers[b]; ok {
		return st.info, true
	}
	return gfx.BufferInfo{}, false
}

func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorBinding) (gfx.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := gfx.DescriptorSetLayout(d.id())
	d.setLayouts[l] = bindings
	return l, nil
}

func (d *Device) DestroyDescriptorSetLayout(l gfx.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.setLayouts, l)
}

func (d *Device) CreateDescriptorPool(sizes []gfx.DescriptorPoolSize, maxSets uint32) (gfx.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := gfx.DescriptorPool(d.id())
	d.descPools[p] = sizes
	return p, nil
}

func (d *Device) DestroyDescriptorPool(p gfx.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.descPools, p)
}

// PoolSizes returns the sizes a live descriptor pool was created with.
func (d *Device) PoolSizes(p gfx.DescriptorPool) []gfx.DescriptorPoolSize {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.descPools[p]
}

func (d *Device) AllocateDescriptorSets(p gfx.DescriptorPool, l gfx.DescriptorSetLayout, count int) ([]gfx.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.descPools[p]; !ok {
		return nil, fmt.Errorf("allocate from unknown descriptor pool %d", p)
	}
	sets := make([]gfx.DescriptorSet, count)
	for i := range sets {
		sets[i] = gfx.DescriptorSet(d.id())
	}
	return sets, nil
}

func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Writes = append(d.Writes, writes...)
}

// WritesFor returns the descriptor writes issued for one binding of a set, oldest first.
func (d *Device) WritesFor(set gfx.DescriptorSet, binding uint32) []gfx.DescriptorWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []gfx.DescriptorWrite
	for _, w := range d.Writes {
		if w.Set == set && w.Binding == binding {
			out = append(out, w)
		}
	}
	return out
}

func (d *Device) CreateRenderPass(info gfx.RenderPassInfo) (gfx.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rp := gfx.RenderPass(d.id())
	d.renderPasses[rp] = info
	return rp, nil
}

func (d *Device) DestroyRenderPass(rp gfx.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.renderPasses, rp)
}

func (d *Device) CreateFramebuffer(info gfx.FramebufferInfo) (gfx.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.renderPasses[info.RenderPass]; !ok {
		return gfx.Null, fmt.Errorf("framebuffer for unknown render pass %d", info.RenderPass)
	}
	fb := gfx.Framebuffer(d.id())
	d.framebuffers[fb] = info
	return fb, nil
}

func (d *Device) DestroyFramebuffer(fb gfx.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.framebuffers, fb)
}

func (d *Device) CreatePipeline(info gfx.PipelineInfo) (gfx.Pipeline, gfx.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.renderPasses[info.RenderPass]; !ok {
		return gfx.Null, gfx.Null, fmt.Errorf("pipeline for unknown render pass %d", info.RenderPass)
	}
	p := gfx.Pipeline(d.id())
	d.pipelines[p] = info
	return p, gfx.PipelineLayout(d.id()), nil
}

func (d *Device) DestroyPipeline(p gfx.Pipeline, l gfx.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, p)
}

func (d *Device) SurfaceSupport(surface gfx.Surface) (gfx.SurfaceSupport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Support, nil
}

func (d *Device) CreateSwapchain(info gfx.SwapchainInfo) (gfx.Swapchain, []gfx.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc := gfx.Swapchain(d.id())
	st := &swapchainState{info: info}
	for i := uint32(0); i < info.ImageCount; i++ {
		st.images = append(st.images, gfx.Image(d.id()))
	}
	d.swapchains[sc] = st
	d.logf("create swapchain %dx%d %s", info.Extent.Width, info.Extent.Height, info.PresentMode)
	return sc, append([]gfx.Image(nil), st.images...), nil
}

func (d *Device) DestroySwapchain(sc gfx.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.swapchains, sc)
}

// SwapchainInfo returns the creation info of a live swapchain.
func (d *Device) SwapchainInfo(sc gfx.Swapchain) (gfx.SwapchainInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.swapchains[sc]; ok {
		return st.info, true
	}
	return gfx.SwapchainInfo{}, false
}

func (d *Device) AcquireNextImage(sc gfx.Swapchain, timeout time.Duration, signal gfx.Semaphore, fence gfx.Fence) (uint32, gfx.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Acquires++
	res := gfx.Success
	if len(d.AcquireResults) > 0 {
		res = d.AcquireResults[0]
		d.AcquireResults = d.AcquireResults[1:]
	}
	st, ok := d.swapchains[sc]
	if !ok {
		return 0, gfx.ErrorSurfaceLost
	}
	d.logf("acquire %s", res)
	if res != gfx.Success && res != gfx.Suboptimal {
		return 0, res
	}
	idx := st.next
	st.next = (st.next + 1) % uint32(len(st.images))
	if signal != gfx.Null {
		d.semaphores[signal] = true
	}
	return idx, res
}

func (d *Device) Present(sc gfx.Swapchain, image uint32, wait gfx.Semaphore) gfx.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Presents++
	res := gfx.Success
	if len(d.PresentResults) > 0 {
		res = d.PresentResults[0]
		d.PresentResults = d.PresentResults[1:]
	}
	d.logf("present %d %s", image, res)
	return res
}

// Live counts every object that has been created and not destroyed.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.fences) + len(d.semaphores) + len(d.buffers) + len(d.images) + len(d.views) +
		len(d.samplers) + len(d.pools) + len(d.setLayouts) + len(d.descPools) +
		len(d.renderPasses) + len(d.framebuffers) + len(d.pipelines) + len(d.swapchains)
	return n
}

// LiveBuffers counts live buffers.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// LiveFramebuffers counts live framebuffers.
func (d *Device) LiveFramebuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.framebuffers)
}

// LivePipelines counts live pipelines.
func (d *Device) LivePipelines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipelines)
}

// FenceSignaled reports the state of a fence for assertions.
func (d *Device) FenceSignaled(f gfx.Fence) bool {
	return d.FenceStatus(f) == gfx.Success
}

// LastSubmission returns the most recent submission on queue, or nil.
func (d *Device) LastSubmission(queue gfx.QueueType) *Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.Submissions) - 1; i >= 0; i-- {
		if d.Submissions[i].Queue == queue {
			return d.Submissions[i]
		}
	}
	return nil
}

// SubmissionCount counts submissions on queue.
func (d *Device) SubmissionCount(queue gfx.QueueType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.Submissions {
		if s.Queue == queue {
			n++
		}
	}
	return n
}
