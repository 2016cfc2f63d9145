package reconcile

import (
	"context"
	"time"

	"github.com/Raincor5/tacmap/internal/game"
)

// Run drives the interpolation loop at the configured rate until ctx is
// cancelled. The loop only reads the snapshot buffer and writes the rendered
// output, so it is safe alongside inbound message processing.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Rate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, ok := r.InterpolatedAt(r.now())
			if !ok {
				continue
			}
			r.renderMu.Lock()
			r.rendered = snap
			r.hasRend = true
			r.renderMu.Unlock()
		}
	}
}

// Interpolated returns the view computed by the last loop iteration, falling
// back to the latest authoritative snapshot before the loop has produced one.
func (r *Reconciler) Interpolated() (game.Snapshot, bool) {
	r.renderMu.Lock()
	if r.hasRend {
		snap := r.rendered.Clone()
		r.renderMu.Unlock()
		return snap, true
	}
	r.renderMu.Unlock()
	return r.Current()
}

// InterpolatedAt computes the rendering view for the given wall-clock time.
// The render timestamp sits Delay behind now; the two buffered snapshots
// bracketing it are blended per player. With fewer than two usable snapshots
// the latest one is returned unmodified.
func (r *Reconciler) InterpolatedAt(now time.Time) (game.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.has {
		return game.Snapshot{}, false
	}
	if len(r.buffer) < 2 {
		return r.current.Clone(), true
	}

	renderTime := now.Add(-r.cfg.Delay)
	from, to, ok := r.bracket(renderTime)
	if !ok {
		return r.current.Clone(), true
	}
	span := to.Timestamp.Sub(from.Timestamp)
	if span <= 0 {
		return to.Clone(), true
	}
	alpha := float64(renderTime.Sub(from.Timestamp)) / float64(span)
	return blend(from, to, alpha), true
}

// bracket finds the adjacent buffered snapshots surrounding renderTime.
// Caller holds r.mu.
func (r *Reconciler) bracket(renderTime time.Time) (from, to game.Snapshot, ok bool) {
	for i := len(r.buffer) - 1; i > 0; i-- {
		if !r.buffer[i-1].Timestamp.After(renderTime) {
			if r.buffer[i].Timestamp.Before(renderTime) {
				// renderTime is newer than everything buffered.
				return game.Snapshot{}, game.Snapshot{}, false
			}
			return r.buffer[i-1], r.buffer[i], true
		}
	}
	return game.Snapshot{}, game.Snapshot{}, false
}

// blend interpolates matched players between two snapshots. Players that
// only exist in the "to" snapshot pass through unmodified; pins and scores
// are discrete and come from "to" as-is.
func blend(from, to game.Snapshot, alpha float64) game.Snapshot {
	out := to.Clone()
	for id, tp := range to.Players {
		fp, ok := from.Players[id]
		if !ok || fp.Location == nil || tp.Location == nil {
			continue
		}
		loc := game.LerpLocation(*fp.Location, *tp.Location, alpha)
		p := tp
		p.Location = &loc
		out.Players[id] = p
	}
	return out
}
