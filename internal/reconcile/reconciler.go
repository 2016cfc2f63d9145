// Package reconcile turns the stream of authoritative snapshots and deltas
// into a consistent world state, and produces a time-interpolated view of it
// for smooth rendering despite discrete network updates.
package reconcile

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/internal/game"
)

const (
	// DefaultHorizon bounds the snapshot buffer: entries older than this
	// relative to the newest snapshot are evicted.
	DefaultHorizon = 2 * time.Second
	// DefaultDelay is how far behind "now" the render timestamp sits. The
	// intentional lag absorbs network jitter.
	DefaultDelay = 100 * time.Millisecond
	// DefaultRate is the interpolation loop period (~60 Hz).
	DefaultRate = 16 * time.Millisecond
)

// TickGapError reports a delta that does not chain onto the current tick.
// The caller is expected to request a full resync rather than repair.
type TickGapError struct {
	Have     uint64
	FromTick uint64
	ToTick   uint64
}

func (e *TickGapError) Error() string {
	return fmt.Sprintf("reconcile: delta %d->%d does not apply at tick %d", e.FromTick, e.ToTick, e.Have)
}

type Config struct {
	Horizon time.Duration
	Delay   time.Duration
	Rate    time.Duration

	// OnChange fires after every applied snapshot or delta with the new
	// authoritative state. Refresh is driven by data changes, not polling.
	OnChange func(game.Snapshot)
	// OnGap fires when a delta cannot be chained and a resync is needed.
	OnGap func(*TickGapError)
}

type Reconciler struct {
	mu      sync.RWMutex
	current game.Snapshot
	has     bool
	buffer  []game.Snapshot // ascending by timestamp

	renderMu sync.Mutex
	rendered game.Snapshot
	hasRend  bool

	cfg Config
	log *zap.Logger
	now func() time.Time
}

func New(cfg Config, log *zap.Logger) *Reconciler {
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{cfg: cfg, log: log, now: time.Now}
}

// ApplySnapshot replaces the authoritative world state wholesale. A snapshot
// for a tick at or below the current one is a duplicate or late delivery and
// is ignored.
func (r *Reconciler) ApplySnapshot(s game.Snapshot) {
	r.mu.Lock()
	if r.has && s.Tick <= r.current.Tick {
		r.mu.Unlock()
		r.log.Debug("ignoring stale snapshot", zap.Uint64("tick", s.Tick), zap.Uint64("current", r.current.Tick))
		return
	}
	snap := s.Clone()
	r.current = snap
	r.has = true
	r.push(snap)
	r.mu.Unlock()

	if r.cfg.OnChange != nil {
		r.cfg.OnChange(snap.Clone())
	}
}

// ApplyDelta chains an incremental update onto the current snapshot. Player
// entries are last-write-wins replacements, pin adds are idempotent by ID.
// A delta whose ToTick is already covered is a no-op; a delta whose FromTick
// does not match the current tick mutates nothing and raises the gap
// condition.
func (r *Reconciler) ApplyDelta(d game.Delta) error {
	r.mu.Lock()
	if r.has && d.ToTick <= r.current.Tick {
		r.mu.Unlock()
		return nil // duplicate or already superseded
	}
	if !r.has || d.FromTick != r.current.Tick {
		have := uint64(0)
		if r.has {
			have = r.current.Tick
		}
		r.mu.Unlock()
		gap := &TickGapError{Have: have, FromTick: d.FromTick, ToTick: d.ToTick}
		r.log.Warn("delta gap detected", zap.Uint64("have", gap.Have), zap.Uint64("fromTick", d.FromTick))
		if r.cfg.OnGap != nil {
			r.cfg.OnGap(gap)
		}
		return gap
	}

	work := r.current.Clone()
	work.Tick = d.ToTick
	work.Timestamp = d.Timestamp
	for id, p := range d.Players {
		if p.Location != nil {
			loc := *p.Location
			p.Location = &loc
		}
		work.Players[id] = p
	}
	for _, pin := range d.AddedPins {
		if !containsPin(work.Pins, pin.ID) {
			work.Pins = append(work.Pins, pin)
		}
	}
	for _, id := range d.RemovedPinIDs {
		work.Pins = removePin(work.Pins, id)
	}
	r.current = work
	r.push(work)
	r.mu.Unlock()

	if r.cfg.OnChange != nil {
		r.cfg.OnChange(work.Clone())
	}
	return nil
}

// push appends snap to the time-ordered buffer and evicts entries that fell
// out of the horizon. Caller holds r.mu.
func (r *Reconciler) push(snap game.Snapshot) {
	i := len(r.buffer)
	for i > 0 && r.buffer[i-1].Timestamp.After(snap.Timestamp) {
		i--
	}
	r.buffer = append(r.buffer, game.Snapshot{})
	copy(r.buffer[i+1:], r.buffer[i:])
	r.buffer[i] = snap

	cutoff := r.buffer[len(r.buffer)-1].Timestamp.Add(-r.cfg.Horizon)
	drop := 0
	for drop < len(r.buffer)-1 && r.buffer[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		r.buffer = append(r.buffer[:0:0], r.buffer[drop:]...)
	}
}

func containsPin(pins []game.Pin, id string) bool {
	for _, p := range pins {
		if p.ID == id {
			return true
		}
	}
	return false
}

func removePin(pins []game.Pin, id string) []game.Pin {
	for i, p := range pins {
		if p.ID == id {
			return append(pins[:i], pins[i+1:]...)
		}
	}
	return pins
}

// Current returns the latest authoritative snapshot, if any.
func (r *Reconciler) Current() (game.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.has {
		return game.Snapshot{}, false
	}
	return r.current.Clone(), true
}

func (r *Reconciler) Tick() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Tick
}

func (r *Reconciler) BufferLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buffer)
}

// Reset drops all state. Called on session teardown and before a full resync
// of a rejoined session.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.current = game.Snapshot{}
	r.has = false
	r.buffer = nil
	r.mu.Unlock()
	r.renderMu.Lock()
	r.rendered = game.Snapshot{}
	r.hasRend = false
	r.renderMu.Unlock()
}
