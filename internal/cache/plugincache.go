package cache

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// defaultMaxEntries bounds each plugin cache. Payloads are whole
// scoreboard views, so the bound is deliberately small.
const defaultMaxEntries = 3

// Payload is a computed plugin view plus the large sub-arrays that get
// nil'd on eviction to help the collector.
type Payload struct {
	Data   map[string]interface{}
	Arrays []*[]interface{}
}

type entry struct {
	key            string
	payload        *Payload
	createdAtEpoch uint64
	seq            uint64
}

// PluginCache is a bounded per-plugin cache keyed by
// (pluginType, platform, option fingerprint, hub state version). It
// registers with an EpochRegistry and is emptied whenever the epoch
// bumps.
type PluginCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	max     int
	seq     uint64
	epochs  *EpochRegistry

	hits   uint64
	misses uint64
}

// NewPluginCache creates a cache bound to the registry's epoch.
func NewPluginCache(epochs *EpochRegistry) *PluginCache {
	c := &PluginCache{
		entries: make(map[string]*entry),
		max:     defaultMaxEntries,
		epochs:  epochs,
	}
	epochs.Register(c)
	return c
}

// Key builds the cache key tuple. Options are fingerprinted
// order-independently.
func Key(pluginType, platform string, options map[string]string, stateVersion uint64) string {
	parts := make([]string, 0, len(options))
	for k, v := range options {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return pluginType + ":" + platform + ":" + strings.Join(parts, "&") + ":v" + strconv.FormatUint(stateVersion, 10)
}

// Get returns the cached payload for key, if it was stored in the
// current epoch.
func (c *PluginCache) Get(key string) (*Payload, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	current := c.epochs.Epoch()
	c.mu.RUnlock()

	if !ok || e.createdAtEpoch != current {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.payload, true
}

// Set stores a payload, evicting the oldest entry once the bound is
// exceeded.
func (c *PluginCache) Set(key string, payload *Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.entries[key] = &entry{
		key:            key,
		payload:        payload,
		createdAtEpoch: c.epochs.Epoch(),
		seq:            c.seq,
	}

	for len(c.entries) > c.max {
		var oldest *entry
		for _, e := range c.entries {
			if oldest == nil || e.seq < oldest.seq {
				oldest = e
			}
		}
		// Drop the large sub-arrays before the entry itself.
		for _, arr := range oldest.payload.Arrays {
			*arr = nil
		}
		delete(c.entries, oldest.key)
	}
}

// Clear empties the cache. Called by the epoch registry on bump.
func (c *PluginCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// ItemCount returns the number of live entries.
func (c *PluginCache) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit/miss counters.
func (c *PluginCache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
