package instance

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Registry tracks the process ids of spawned browsers together with the
// health and cacheability flags shared by the request paths.
type Registry struct {
	mu   sync.Mutex
	pids map[uint32]struct{}

	// size mirrors len(pids) so IsEmpty never takes the lock
	size      atomic.Int64
	healthy   atomic.Bool
	cacheable atomic.Bool

	onChange func(size int)
}

// NewRegistry creates an empty registry. Health and cacheability start true.
func NewRegistry() *Registry {
	r := &Registry{
		pids: make(map[uint32]struct{}),
	}
	r.healthy.Store(true)
	r.cacheable.Store(true)
	return r
}

// OnChange registers a callback receiving the size after every mutation.
// It must be set before the registry is shared.
func (r *Registry) OnChange(fn func(size int)) {
	r.onChange = fn
}

// Insert records a pid. It reports false when the pid was already tracked.
func (r *Registry) Insert(pid uint32) bool {
	r.mu.Lock()
	if _, exists := r.pids[pid]; exists {
		r.mu.Unlock()
		return false
	}
	r.pids[pid] = struct{}{}
	size := len(r.pids)
	r.size.Store(int64(size))
	r.mu.Unlock()

	r.notify(size)
	return true
}

// Drain removes and returns every tracked pid in ascending order
func (r *Registry) Drain() []uint32 {
	r.mu.Lock()
	pids := make([]uint32, 0, len(r.pids))
	for pid := range r.pids {
		pids = append(pids, pid)
	}
	clear(r.pids)
	r.size.Store(0)
	r.mu.Unlock()

	slices.Sort(pids)
	r.notify(0)
	return pids
}

// IsEmpty reports whether no pid is tracked
func (r *Registry) IsEmpty() bool {
	return r.size.Load() == 0
}

// Len returns the number of tracked pids
func (r *Registry) Len() int {
	return int(r.size.Load())
}

// Contains reports whether pid is tracked
func (r *Registry) Contains(pid uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pids[pid]
	return ok
}

// PIDs returns a sorted snapshot of the tracked pids
func (r *Registry) PIDs() []uint32 {
	r.mu.Lock()
	pids := make([]uint32, 0, len(r.pids))
	for pid := range r.pids {
		pids = append(pids, pid)
	}
	r.mu.Unlock()

	slices.Sort(pids)
	return pids
}

// Healthy reports the last observed upstream health
func (r *Registry) Healthy() bool {
	return r.healthy.Load()
}

// SetHealthy records upstream health
func (r *Registry) SetHealthy(healthy bool) {
	r.healthy.Store(healthy)
}

// Cacheable reports whether version responses may be served from cache
func (r *Registry) Cacheable() bool {
	return r.cacheable.Load()
}

// SetCacheable toggles version response caching
func (r *Registry) SetCacheable(cacheable bool) {
	r.cacheable.Store(cacheable)
}

func (r *Registry) notify(size int) {
	if r.onChange != nil {
		r.onChange(size)
	}
}
