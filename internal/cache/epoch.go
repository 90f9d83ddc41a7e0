package cache

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Clearable is the contract a cache must satisfy to participate in
// epoch invalidation.
type Clearable interface {
	Clear()
	ItemCount() int
}

// EpochRegistry owns the process-wide cache epoch. Bumping the epoch
// clears every registered cache atomically with respect to readers of
// the counter.
type EpochRegistry struct {
	mu     sync.RWMutex
	epoch  uint64
	caches []Clearable
}

// NewEpochRegistry creates an empty registry at epoch 0.
func NewEpochRegistry() *EpochRegistry {
	return &EpochRegistry{}
}

// Epoch returns the current epoch.
func (r *EpochRegistry) Epoch() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epoch
}

// Register adds a cache to the registry. Registering the same cache
// twice is a no-op.
func (r *EpochRegistry) Register(c Clearable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.caches {
		if existing == c {
			return
		}
	}
	r.caches = append(r.caches, c)
}

// Bump increments the epoch and empties every registered cache. Readers
// never observe the new epoch alongside stale entries.
func (r *EpochRegistry) Bump() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	for _, c := range r.caches {
		c.Clear()
	}
	log.Debug().Uint64("epoch", r.epoch).Int("caches", len(r.caches)).Msg("Cache epoch bumped")
	return r.epoch
}
