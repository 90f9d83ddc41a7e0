package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/barpath/tracker/internal/cache"
	"github.com/barpath/tracker/internal/model"
)

// Precondition resource names, as listed in 428 replies.
const (
	ResourceDatabase     = "database"
	ResourceTranslations = "translations"
	ResourceFlags        = "flags"
)

// Asset readiness categories.
const (
	AssetFlags    = "flags"
	AssetPictures = "pictures"
	AssetStyles   = "styles"
)

// Config tunes the hub's windows. Zero values fall back to defaults.
type Config struct {
	DebounceWindow   time.Duration // same platform+type events inside this window are dropped
	RerequestWindow  time.Duration // identical precondition re-requests inside this window keep their requestedAt
	RecentLoadWindow time.Duration // checksum-less snapshots inside this window short-circuit
}

func (c *Config) defaults() {
	if c.DebounceWindow == 0 {
		c.DebounceWindow = 100 * time.Millisecond
	}
	if c.RerequestWindow == 0 {
		c.RerequestWindow = time.Second
	}
	if c.RecentLoadWindow == 0 {
		c.RecentLoadWindow = 2 * time.Second
	}
}

// MetricsCallback receives counter increments. Nil is fine.
type MetricsCallback func(name string, value float64, labels map[string]string)

// Hub is the single source of truth for competition state: the database
// snapshot, per-platform live state, translations, asset readiness and
// session lifecycle. All mutations hold the write lock; consistent
// reads take the read lock.
type Hub struct {
	mu sync.RWMutex

	cfg     Config
	epochs  *cache.EpochRegistry
	metrics MetricsCallback

	db           *model.Database
	lastChecksum string
	dbLoadedAt   time.Time
	loadToken    atomic.Bool

	translationsRaw      map[string]map[string]string
	translationsResolved map[string]map[string]string
	translationsChecksum string

	fop map[string]*FopState

	assetsLoaded map[string]bool
	requestedAt  map[string]time.Time

	debounce map[string]time.Time

	sinks  map[uint64]Sink
	nextID uint64

	stateVersion uint64
	sawSource    bool

	counters Counters
}

// Counters are the message totals surfaced by the status endpoint.
type Counters struct {
	FramesText      uint64 `json:"framesText"`
	FramesBinary    uint64 `json:"framesBinary"`
	Updates         uint64 `json:"updates"`
	DatabaseLoads   uint64 `json:"databaseLoads"`
	EventsEmitted   uint64 `json:"eventsEmitted"`
	EventsDebounced uint64 `json:"eventsDebounced"`
}

// IngestResult is the outcome of a database ingest.
type IngestResult struct {
	Accepted bool
	Cached   bool
}

// UpdateResult is the outcome of a live update ingest. A non-empty
// Missing list means the update was not applied to views but the
// platform state was still recorded.
type UpdateResult struct {
	Missing []string
}

// ErrAlreadyLoading is returned while a concurrent database load holds
// the load token.
type alreadyLoadingError struct{}

func (alreadyLoadingError) Error() string { return "already_loading" }

var ErrAlreadyLoading error = alreadyLoadingError{}

// New creates a hub bound to the given epoch registry.
func New(epochs *cache.EpochRegistry, cfg Config, metrics MetricsCallback) *Hub {
	cfg.defaults()
	return &Hub{
		cfg:                  cfg,
		epochs:               epochs,
		metrics:              metrics,
		translationsRaw:      make(map[string]map[string]string),
		translationsResolved: make(map[string]map[string]string),
		fop:                  make(map[string]*FopState),
		assetsLoaded:         make(map[string]bool),
		requestedAt:          make(map[string]time.Time),
		debounce:             make(map[string]time.Time),
		sinks:                make(map[uint64]Sink),
	}
}

// Subscribe attaches an event sink and returns its unsubscribe handle.
// The broker is the usual subscriber; it does the per-display
// filtering.
func (h *Hub) Subscribe(sink Sink) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID

	// Late joiners get a synthetic first event before attaching to the
	// live stream, so they never render a gap. Delivered under the lock
	// so no live emission can slip in between.
	initial := Event{Type: EventWaiting, Timestamp: time.Now()}
	if h.db != nil {
		initial = Event{Type: EventInit, Timestamp: time.Now(), Fields: map[string]interface{}{
			"competitionName": h.db.Competition.Name,
		}}
	}
	sink(initial)
	h.sinks[id] = sink

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.sinks, id)
	}
}

// SourceConnected must be called when a source channel opens. The first
// connection of the process clears all cached state and bumps the cache
// epoch; later reconnects rely on checksums to skip stale content.
func (h *Hub) SourceConnected() {
	h.mu.Lock()
	first := !h.sawSource
	h.sawSource = true
	if first {
		h.db = nil
		h.lastChecksum = ""
		h.dbLoadedAt = time.Time{}
		h.translationsRaw = make(map[string]map[string]string)
		h.translationsResolved = make(map[string]map[string]string)
		h.translationsChecksum = ""
		h.assetsLoaded = make(map[string]bool)
		h.requestedAt = make(map[string]time.Time)
		h.stateVersion++
	}
	h.mu.Unlock()

	if first {
		h.epochs.Bump()
		log.Info().Msg("First source connection, cleared cached competition state")
	}
}

// Refresh clears the snapshot and all platform sessions, then tells
// displays to wait. Called on source disconnect and idle timeout.
func (h *Hub) Refresh() {
	h.mu.Lock()
	h.db = nil
	h.lastChecksum = ""
	h.dbLoadedAt = time.Time{}
	for _, s := range h.fop {
		s.State = FopInactive
		s.SessionDone = false
		s.CurrentAthlete = ""
	}
	h.stateVersion++
	h.mu.Unlock()

	h.epochs.Bump()
	h.emit(Event{Type: EventWaiting, Timestamp: time.Now()})
}

// IngestDatabase stores a snapshot. Single-flight: a second call while
// one is running gets ErrAlreadyLoading. A checksum matching the stored
// one, or a checksum-less snapshot arriving inside the recently-loaded
// window, is a cached no-op.
func (h *Hub) IngestDatabase(db *model.Database) (*IngestResult, error) {
	if !h.loadToken.CompareAndSwap(false, true) {
		return nil, ErrAlreadyLoading
	}
	defer h.loadToken.Store(false)

	h.mu.Lock()
	if db.Checksum != "" && db.Checksum == h.lastChecksum {
		h.mu.Unlock()
		log.Debug().Str("checksum", db.Checksum).Msg("Database checksum unchanged, skipping")
		return &IngestResult{Accepted: true, Cached: true}, nil
	}
	if db.Checksum == "" && !h.dbLoadedAt.IsZero() && time.Since(h.dbLoadedAt) < h.cfg.RecentLoadWindow {
		h.mu.Unlock()
		return &IngestResult{Accepted: true, Cached: true}, nil
	}

	if err := db.Validate(); err != nil {
		h.mu.Unlock()
		return nil, err
	}

	// A metadata-only snapshot from the sentinel flow does not count as
	// an initialized competition.
	first := h.db == nil || len(h.db.Athletes) == 0
	h.db = db
	h.lastChecksum = db.Checksum
	h.dbLoadedAt = time.Now()
	h.stateVersion++
	h.counters.DatabaseLoads++
	name := db.Competition.Name
	athletes := len(db.Athletes)
	h.mu.Unlock()

	h.epochs.Bump()
	h.count("tracker_database_loads_total", nil)

	now := time.Now()
	if first {
		h.emit(Event{Type: EventCompetitionInitialized, Timestamp: now, Fields: map[string]interface{}{
			"competitionName": name,
			"athleteCount":    athletes,
		}})
	}
	h.emit(Event{Type: EventHubReady, Timestamp: now})

	log.Info().Str("competition", name).Int("athletes", athletes).Msg("Database snapshot ingested")
	return &IngestResult{Accepted: true}, nil
}

// SetDatabaseMetadata records competition metadata from an empty
// database sentinel frame; the athlete body is expected as a
// database_zip shortly after.
func (h *Hub) SetDatabaseMetadata(c model.Competition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		h.db = &model.Database{Competition: c}
		return
	}
	h.db.Competition = c
}

// IngestUpdate merges a live frame into the platform's state. With
// preconditions missing the state is still recorded but no events fire;
// the missing resources come back in the result.
func (h *Hub) IngestUpdate(platform string, payload []byte, kind UpdateKind) (*UpdateResult, error) {
	now := time.Now()

	h.mu.Lock()
	state, ok := h.fop[platform]
	if !ok {
		state = newFopState(platform)
		h.fop[platform] = state
	}
	if err := state.mergePayload(payload, kind, now); err != nil {
		h.mu.Unlock()
		return nil, err
	}
	h.counters.Updates++

	missing := h.missingLocked()
	if len(missing) > 0 {
		for _, res := range missing {
			if at, ok := h.requestedAt[res]; !ok || now.Sub(at) >= h.cfg.RerequestWindow {
				h.requestedAt[res] = now
			}
		}
		h.mu.Unlock()
		return &UpdateResult{Missing: missing}, nil
	}

	h.stateVersion++
	snapshot := state.clone()
	h.mu.Unlock()

	fields := map[string]interface{}{"fopState": snapshot.State}
	if snapshot.UIEvent != "" {
		fields["uiEvent"] = snapshot.UIEvent
	}
	h.emit(Event{Type: EventFopUpdate, Platform: platform, Timestamp: now, Fields: fields})

	switch kind {
	case KindTimer:
		h.emit(Event{Type: EventTimer, Platform: platform, Timestamp: now, Fields: map[string]interface{}{
			"athleteTimerEventType":  snapshot.TimerEventType,
			"athleteMillisRemaining": snapshot.TimerMillis,
		}})
	case KindDecision:
		h.emit(Event{Type: EventDecision, Platform: platform, Timestamp: now, Fields: map[string]interface{}{
			"decision": snapshot.Decision,
		}})
	}

	return &UpdateResult{}, nil
}

// missingLocked lists unmet preconditions. Flags stay listed until the
// archive actually landed, so the source keeps being reminded.
func (h *Hub) missingLocked() []string {
	var missing []string
	if h.db == nil || len(h.db.Athletes) == 0 {
		missing = append(missing, ResourceDatabase)
	}
	if len(h.translationsResolved) == 0 {
		missing = append(missing, ResourceTranslations)
	}
	if !h.assetsLoaded[AssetFlags] {
		missing = append(missing, ResourceFlags)
	}
	return missing
}

// MissingPreconditions lists the resources still required before live
// updates are accepted.
func (h *Hub) MissingPreconditions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.missingLocked()
}

// RequestedAt returns when a missing resource was last requested from
// the source; zero if never.
func (h *Hub) RequestedAt(resource string) time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.requestedAt[resource]
}

// SetTranslations ingests one locale map.
func (h *Hub) SetTranslations(locale string, m map[string]string) {
	h.mu.Lock()
	h.setTranslationsLocked(locale, m)
	h.stateVersion++
	h.mu.Unlock()
}

// SetTranslationsChecksum records the bundle checksum used to skip
// reprocessing an identical translations archive.
func (h *Hub) SetTranslationsChecksum(sum string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.translationsChecksum = sum
}

// TranslationsChecksum returns the stored bundle checksum.
func (h *Hub) TranslationsChecksum() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.translationsChecksum
}

// SetAssetLoaded marks one asset category ready.
func (h *Hub) SetAssetLoaded(category string) {
	h.mu.Lock()
	h.assetsLoaded[category] = true
	h.stateVersion++
	h.mu.Unlock()
	log.Info().Str("category", category).Msg("Asset set ready")
}

// AssetLoaded reports one category's readiness.
func (h *Hub) AssetLoaded(category string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.assetsLoaded[category]
}

// DatabaseState returns the published snapshot, or nil before the first
// successful ingest.
func (h *Hub) DatabaseState() *model.Database {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.db
}

// FopUpdate returns a copy of one platform's live state, or nil if the
// platform has never reported.
func (h *Hub) FopUpdate(platform string) *FopState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.fop[platform]
	if !ok {
		return nil
	}
	return s.clone()
}

// SessionStatus answers the done/active question for one platform.
func (h *Hub) SessionStatus(platform string) SessionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.fop[platform]
	if !ok {
		return SessionStatus{State: FopInactive}
	}
	return SessionStatus{IsDone: s.SessionDone, GroupName: s.DoneGroupName, State: s.State}
}

// Platforms lists platforms that have reported at least once.
func (h *Hub) Platforms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.fop))
	for p := range h.fop {
		out = append(out, p)
	}
	return out
}

// StateVersion increases on every view-affecting mutation; plugin cache
// keys include it.
func (h *Hub) StateVersion() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stateVersion
}

// CountersSnapshot returns the message totals.
func (h *Hub) CountersSnapshot() Counters {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counters
}

// CountFrame feeds the status counters from the channel server.
func (h *Hub) CountFrame(binary bool) {
	kind := "text"
	h.mu.Lock()
	if binary {
		h.counters.FramesBinary++
		kind = "binary"
	} else {
		h.counters.FramesText++
	}
	h.mu.Unlock()
	h.count("tracker_frames_total", map[string]string{"kind": kind})
}

// EmitProtocolError publishes a protocol dispute to displays.
func (h *Hub) EmitProtocolError(received, minimum string) {
	h.emit(Event{Type: EventProtocolError, Timestamp: time.Now(), Fields: map[string]interface{}{
		"received": received,
		"minimum":  minimum,
	}})
}

// EmitProtocolOK signals the dispute is resolved.
func (h *Hub) EmitProtocolOK() {
	h.emit(Event{Type: EventProtocolOK, Timestamp: time.Now()})
}

// emit fans an event out to sinks, applying the per-platform-per-type
// debounce. Distinct event types for the same platform never coalesce.
func (h *Hub) emit(ev Event) {
	key := ev.Platform + "-" + ev.Type

	h.mu.Lock()
	if last, ok := h.debounce[key]; ok && ev.Timestamp.Sub(last) < h.cfg.DebounceWindow {
		h.counters.EventsDebounced++
		h.mu.Unlock()
		h.count("tracker_events_debounced_total", map[string]string{"type": ev.Type})
		return
	}
	h.debounce[key] = ev.Timestamp
	h.counters.EventsEmitted++
	sinks := make([]Sink, 0, len(h.sinks))
	for _, s := range h.sinks {
		sinks = append(sinks, s)
	}
	h.mu.Unlock()

	h.count("tracker_events_emitted_total", map[string]string{"type": ev.Type})
	for _, s := range sinks {
		s(ev)
	}
}

func (h *Hub) count(name string, labels map[string]string) {
	if h.metrics != nil {
		h.metrics(name, 1, labels)
	}
}
