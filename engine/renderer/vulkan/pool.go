package vulkan

import (
	"sync"

	"golang.org/x/exp/slices"
)

type LockGroup string

const (
	ResourceManagement      LockGroup = "resource_management"
	CommandPoolManagement   LockGroup = "command_pool_management"
	DescriptorManagement    LockGroup = "descriptor_management"
	PipelineManagement      LockGroup = "pipeline_management"
	SwapchainManagement     LockGroup = "swapchain_management"
	SynchronizationGroup    LockGroup = "synchronization_management"
	MemoryManagement        LockGroup = "memory_management"
	RenderpassManagement    LockGroup = "renderpass_management"
	CommandBufferManagement LockGroup = "command_buffer_management"
)

// LockPool serialises driver calls that share externally synchronised state. Queues get a
// mutex per family so submits on different families do not contend.
type LockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex

	queueMutexes map[uint32]*sync.Mutex
}

func NewLockPool() *LockPool {
	return &LockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

func (lp *LockPool) group(g LockGroup) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	l, ok := lp.locks[g]
	if !ok {
		l = &sync.Mutex{}
		lp.locks[g] = l
	}
	return l
}

func (lp *LockPool) SafeCall(g LockGroup, fn func() error) error {
	l := lp.group(g)
	l.Lock()
	defer l.Unlock()

	return fn()
}

func (lp *LockPool) SetQueueFamily(index uint32) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if _, exists := lp.queueMutexes[index]; !exists {
		lp.queueMutexes[index] = &sync.Mutex{}
	}
}

// SafeQueueCall runs fn holding the lock of the queue family. Families that were never
// registered share the pool-wide lock.
func (lp *LockPool) SafeQueueCall(family uint32, fn func() error) error {
	lp.mu.Lock()
	l, ok := lp.queueMutexes[family]
	lp.mu.Unlock()
	if !ok {
		l = lp.group(ResourceManagement)
	}

	l.Lock()
	defer l.Unlock()

	return fn()
}

// SafeAllQueues holds every queue lock at once, in family order, for device wide waits.
func (lp *LockPool) SafeAllQueues(fn func() error) error {
	lp.mu.Lock()
	families := make([]uint32, 0, len(lp.queueMutexes))
	for f := range lp.queueMutexes {
		families = append(families, f)
	}
	slices.Sort(families)
	held := make([]*sync.Mutex, 0, len(families))
	for _, f := range families {
		held = append(held, lp.queueMutexes[f])
	}
	lp.mu.Unlock()

	for _, l := range held {
		l.Lock()
		defer l.Unlock()
	}
	return fn()
}
