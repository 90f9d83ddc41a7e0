// Package plugins computes per-view scoreboard payloads. Each plugin
// registers a descriptor at startup; there is no runtime discovery.
package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/barpath/tracker/internal/cache"
	"github.com/barpath/tracker/internal/hub"
)

// Context hands plugins the state they compute from. Metrics is
// optional.
type Context struct {
	Hub     *hub.Hub
	Epochs  *cache.EpochRegistry
	Metrics hub.MetricsCallback
}

// ComputeFunc builds one view payload. The returned payload's Arrays
// list the large slices to nil on cache eviction.
type ComputeFunc func(ctx *Context, platform string, opts map[string]string) (*cache.Payload, error)

// Descriptor declares one plugin: its query type, the hub resources it
// needs, and its compute function.
type Descriptor struct {
	Type     string
	Requires []string
	Compute  ComputeFunc
}

type plugin struct {
	desc  Descriptor
	cache *cache.PluginCache
}

// Registry resolves query types to plugins and fronts each with its
// bounded, epoch-invalidated cache.
type Registry struct {
	mu      sync.RWMutex
	ctx     *Context
	plugins map[string]*plugin
}

// NewRegistry creates an empty registry.
func NewRegistry(ctx *Context) *Registry {
	return &Registry{ctx: ctx, plugins: make(map[string]*plugin)}
}

// Register adds one plugin. Last registration for a type wins.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[d.Type] = &plugin{
		desc:  d,
		cache: cache.NewPluginCache(r.ctx.Epochs),
	}
	log.Debug().Str("plugin", d.Type).Msg("Scoreboard plugin registered")
}

// Types lists registered plugin types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.plugins))
	for t := range r.plugins {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Compute answers one scoreboard query. Cache hits still get their
// volatile fields (timer, session status, current athlete) recomputed
// from live state.
func (r *Registry) Compute(pluginType, platform string, opts map[string]string) (map[string]interface{}, error) {
	r.mu.RLock()
	p, ok := r.plugins[pluginType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown plugin type %q", pluginType)
	}

	for _, res := range p.desc.Requires {
		if !r.resourceReady(res) {
			return nil, fmt.Errorf("resource %s not loaded", res)
		}
	}

	key := cache.Key(pluginType, platform, opts, r.ctx.Hub.StateVersion())
	if payload, hit := p.cache.Get(key); hit {
		r.count("tracker_cache_hits_total", pluginType)
		return r.withVolatile(payload.Data, platform), nil
	}
	r.count("tracker_cache_misses_total", pluginType)

	payload, err := p.desc.Compute(r.ctx, platform, opts)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, payload)
	return r.withVolatile(payload.Data, platform), nil
}

func (r *Registry) count(name, pluginType string) {
	if r.ctx.Metrics != nil {
		r.ctx.Metrics(name, 1, map[string]string{"plugin": pluginType})
	}
}

func (r *Registry) resourceReady(res string) bool {
	switch res {
	case hub.ResourceDatabase:
		return r.ctx.Hub.DatabaseState() != nil
	case hub.ResourceTranslations:
		return len(r.ctx.Hub.Locales()) > 0
	case hub.ResourceFlags:
		return r.ctx.Hub.AssetLoaded(hub.AssetFlags)
	default:
		return true
	}
}

// withVolatile overlays the live per-platform fields on a (possibly
// cached) payload. The cached map itself is never mutated.
func (r *Registry) withVolatile(data map[string]interface{}, platform string) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+3)
	for k, v := range data {
		out[k] = v
	}
	if state := r.ctx.Hub.FopUpdate(platform); state != nil {
		out["athleteMillisRemaining"] = state.TimerMillis
		out["curAthlete"] = state.CurrentAthlete
	}
	status := r.ctx.Hub.SessionStatus(platform)
	out["sessionStatus"] = status
	return out
}
