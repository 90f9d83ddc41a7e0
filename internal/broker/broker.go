// Package broker fans hub events out to display subscribers. It sits
// downstream of the hub's debounce and does no debouncing of its own.
package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/barpath/tracker/internal/hub"
)

// SendFunc delivers one serialized event to a display. A nil payload is
// a keep-alive probe; transports write their idle marker for it. Any
// returned error removes the subscriber.
type SendFunc func(payload []byte) error

// Config tunes per-subscriber buffering and the keep-alive cadence.
type Config struct {
	QueueSize int
	Heartbeat time.Duration
}

func (c *Config) defaults() {
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = 25 * time.Second
	}
}

type subscriber struct {
	id       string
	platform string              // "" means global-only
	types    map[string]struct{} // nil means all types
	send     SendFunc
	queue    chan []byte
	done     chan struct{}
	once     sync.Once
}

// Broker maintains the subscriber set. Membership changes take the
// exclusive lock; broadcasts iterate a snapshot so a slow subscriber
// can never stall registration.
type Broker struct {
	mu   sync.RWMutex
	cfg  Config
	h    *hub.Hub
	subs []*subscriber

	dropped uint64
}

// New creates a broker and attaches it to the hub's event stream.
func New(h *hub.Hub, cfg Config) *Broker {
	cfg.defaults()
	b := &Broker{cfg: cfg, h: h}
	h.Subscribe(b.publish)
	return b
}

// SubscriberCount returns the number of connected displays.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscribe registers a display. platform empty means global events
// only; types nil or empty means every type. The returned handle
// detaches the subscriber and stops its writer.
func (b *Broker) Subscribe(send SendFunc, id string, platform string, types []string) func() {
	sub := &subscriber{
		id:       id,
		platform: platform,
		send:     send,
		queue:    make(chan []byte, b.cfg.QueueSize),
		done:     make(chan struct{}),
	}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	// Late joiners get a synthetic first event, when their type filter
	// admits it, so they never render a gap before the next live emission.
	initial := hub.Event{Type: hub.EventWaiting, Timestamp: time.Now()}
	if db := b.h.DatabaseState(); db != nil {
		initial = hub.Event{Type: hub.EventInit, Timestamp: time.Now(), Fields: map[string]interface{}{
			"competitionName": db.Competition.Name,
		}}
	}
	if payload, err := json.Marshal(initial); err == nil && sub.wants(initial) {
		sub.queue <- payload
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	n := len(b.subs)
	b.mu.Unlock()

	go b.writeLoop(sub)
	log.Debug().Str("subscriber", id).Str("platform", platform).Int("total", n).Msg("Display subscribed")

	return func() { b.remove(sub) }
}

// publish is the hub sink: filter, serialize once, enqueue to every
// matching subscriber in registration order.
func (b *Broker) publish(ev hub.Event) {
	b.mu.RLock()
	snapshot := make([]*subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("Event serialization failed")
		return
	}

	for _, sub := range snapshot {
		if !sub.wants(ev) {
			continue
		}
		sub.enqueue(payload, b)
	}
}

// wants applies the filtering rules: global events go to anyone whose
// type filter admits them; platform events only to matching platform
// filters; a subscriber with no platform filter sees only global
// events.
func (s *subscriber) wants(ev hub.Event) bool {
	if s.types != nil {
		if _, ok := s.types[ev.Type]; !ok {
			return false
		}
	}
	if ev.Platform == "" {
		return true
	}
	return s.platform == ev.Platform
}

// enqueue never blocks the broadcast path: on overflow the oldest
// queued event is dropped to make room.
func (s *subscriber) enqueue(payload []byte, b *Broker) {
	for {
		select {
		case s.queue <- payload:
			return
		default:
			select {
			case <-s.queue:
				b.mu.Lock()
				b.dropped++
				b.mu.Unlock()
			default:
			}
		}
	}
}

func (b *Broker) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(b.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case payload := <-sub.queue:
			if err := sub.send(payload); err != nil {
				log.Debug().Err(err).Str("subscriber", sub.id).Msg("Send failed, removing subscriber")
				b.remove(sub)
				return
			}
		case <-ticker.C:
			if err := sub.send(nil); err != nil {
				b.remove(sub)
				return
			}
		}
	}
}

func (b *Broker) remove(sub *subscriber) {
	sub.once.Do(func() { close(sub.done) })

	b.mu.Lock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	n := len(b.subs)
	b.mu.Unlock()

	log.Debug().Str("subscriber", sub.id).Int("total", n).Msg("Display unsubscribed")
}

// DroppedEvents reports how many queued events were discarded to
// overflow across all subscribers.
func (b *Broker) DroppedEvents() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Shutdown detaches every subscriber. Queues are dropped, not drained;
// displays reconnect and replay from the synthetic init event.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.once.Do(func() { close(s.done) })
	}
}
