package renderer

import "sync"

type LockGroup string

// CommandPoolManagement guards command pool allocation, reset and free.
const CommandPoolManagement LockGroup = "command_pool_management"

// LockPool hands out one mutex per lock group and one per queue family.
// Devices created with Options.SerializeQueues route queue operations and
// pool allocation through it so callers may share queues across goroutines.
type LockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks map

	queueMutexes map[uint32]*sync.Mutex // Queue family index as key
}

func NewLockPool() *LockPool {
	return &LockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

// Get or create a mutex for a specific group
func (lp *LockPool) groupLock(group LockGroup) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if _, exists := lp.locks[group]; !exists {
		lp.locks[group] = &sync.Mutex{}
	}
	return lp.locks[group]
}

func (lp *LockPool) queueLock(family uint32) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if _, exists := lp.queueMutexes[family]; !exists {
		lp.queueMutexes[family] = &sync.Mutex{}
	}
	return lp.queueMutexes[family]
}

func (lp *LockPool) SafeCall(group LockGroup, fn func() error) error {
	l := lp.groupLock(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}

func (lp *LockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	l := lp.queueLock(queueFamilyIndex)
	l.Lock()
	defer l.Unlock()

	return fn()
}
