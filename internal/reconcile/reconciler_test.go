package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raincor5/tacmap/internal/game"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func snapAt(tick uint64, ts time.Time, players map[string]game.Player, pins ...game.Pin) game.Snapshot {
	if players == nil {
		players = map[string]game.Player{}
	}
	return game.Snapshot{
		Tick:      tick,
		Timestamp: ts,
		Players:   players,
		Pins:      pins,
		Phase:     game.PhaseActive,
	}
}

func playerAt(id string, lat, lon float64, ts time.Time) game.Player {
	return game.Player{
		ID:       id,
		Location: &game.Location{Latitude: lat, Longitude: lon, Timestamp: ts},
	}
}

func TestApplySnapshotReplacesState(t *testing.T) {
	r := New(Config{}, nil)
	r.ApplySnapshot(snapAt(3, t0, map[string]game.Player{"p1": playerAt("p1", 1, 1, t0)}))

	cur, ok := r.Current()
	require.True(t, ok)
	assert.EqualValues(t, 3, cur.Tick)
	assert.Contains(t, cur.Players, "p1")
}

func TestDuplicateSnapshotIsNoOp(t *testing.T) {
	r := New(Config{}, nil)
	r.ApplySnapshot(snapAt(3, t0, map[string]game.Player{"p1": playerAt("p1", 1, 1, t0)}))
	r.ApplySnapshot(snapAt(3, t0.Add(time.Second), map[string]game.Player{"p1": playerAt("p1", 9, 9, t0)}))

	cur, _ := r.Current()
	assert.Equal(t, 1.0, cur.Players["p1"].Location.Latitude)
	assert.Equal(t, 1, r.BufferLen())
}

func TestDeltaGapDetection(t *testing.T) {
	var gotGap *TickGapError
	r := New(Config{OnGap: func(g *TickGapError) { gotGap = g }}, nil)
	r.ApplySnapshot(snapAt(3, t0, map[string]game.Player{"p1": playerAt("p1", 1, 1, t0)}))

	err := r.ApplyDelta(game.Delta{
		FromTick:  5,
		ToTick:    6,
		Timestamp: t0.Add(time.Second),
		Players:   map[string]game.Player{"p1": playerAt("p1", 9, 9, t0)},
	})

	var gap *TickGapError
	require.True(t, errors.As(err, &gap))
	assert.EqualValues(t, 3, gap.Have)
	assert.EqualValues(t, 5, gap.FromTick)
	require.NotNil(t, gotGap)

	// State must be untouched.
	cur, _ := r.Current()
	assert.EqualValues(t, 3, cur.Tick)
	assert.Equal(t, 1.0, cur.Players["p1"].Location.Latitude)
}

func TestDeltaBeforeFirstSnapshotIsAGap(t *testing.T) {
	r := New(Config{}, nil)
	err := r.ApplyDelta(game.Delta{FromTick: 0, ToTick: 1, Timestamp: t0})
	var gap *TickGapError
	assert.True(t, errors.As(err, &gap))
}

func TestDuplicateDeltaIsNoOp(t *testing.T) {
	r := New(Config{}, nil)
	r.ApplySnapshot(snapAt(3, t0, nil))
	require.NoError(t, r.ApplyDelta(game.Delta{FromTick: 3, ToTick: 4, Timestamp: t0.Add(100 * time.Millisecond)}))

	// Same delta redelivered: no error, no tick movement.
	require.NoError(t, r.ApplyDelta(game.Delta{FromTick: 3, ToTick: 4, Timestamp: t0.Add(100 * time.Millisecond)}))
	assert.EqualValues(t, 4, r.Tick())
}

func TestDeltaPlayerOverwriteIsLastWriteWins(t *testing.T) {
	r := New(Config{}, nil)
	r.ApplySnapshot(snapAt(1, t0, map[string]game.Player{
		"p1": {ID: "p1", Name: "Ana", TeamID: "team-red", Location: &game.Location{Latitude: 1, Timestamp: t0}},
	}))

	require.NoError(t, r.ApplyDelta(game.Delta{
		FromTick:  1,
		ToTick:    2,
		Timestamp: t0.Add(100 * time.Millisecond),
		Players:   map[string]game.Player{"p1": {ID: "p1", Name: "Ana", Location: &game.Location{Latitude: 2, Timestamp: t0}}},
	}))

	cur, _ := r.Current()
	assert.Equal(t, 2.0, cur.Players["p1"].Location.Latitude)
	// Whole-state replacement: the delta's entry did not carry a team.
	assert.Equal(t, "", cur.Players["p1"].TeamID)
}

func TestDeltaPinAddIsIdempotentAndRemovalApplies(t *testing.T) {
	pin := game.Pin{ID: "pin-1", Type: game.PinObjective}
	r := New(Config{}, nil)
	r.ApplySnapshot(snapAt(1, t0, nil, pin))

	require.NoError(t, r.ApplyDelta(game.Delta{
		FromTick:  1,
		ToTick:    2,
		Timestamp: t0.Add(100 * time.Millisecond),
		AddedPins: []game.Pin{pin, {ID: "pin-2"}},
	}))
	cur, _ := r.Current()
	assert.Len(t, cur.Pins, 2)

	require.NoError(t, r.ApplyDelta(game.Delta{
		FromTick:      2,
		ToTick:        3,
		Timestamp:     t0.Add(200 * time.Millisecond),
		RemovedPinIDs: []string{"pin-1"},
	}))
	cur, _ = r.Current()
	require.Len(t, cur.Pins, 1)
	assert.Equal(t, "pin-2", cur.Pins[0].ID)
}

func TestBufferEvictsBeyondHorizon(t *testing.T) {
	r := New(Config{Horizon: 2 * time.Second}, nil)
	for i := 0; i < 6; i++ {
		r.ApplySnapshot(snapAt(uint64(i+1), t0.Add(time.Duration(i)*time.Second), nil))
	}

	// Newest is t0+5s; only entries at or after t0+3s survive.
	assert.Equal(t, 3, r.BufferLen())
}

func TestOnChangeFiresPerApply(t *testing.T) {
	var ticks []uint64
	r := New(Config{OnChange: func(s game.Snapshot) { ticks = append(ticks, s.Tick) }}, nil)
	r.ApplySnapshot(snapAt(1, t0, nil))
	require.NoError(t, r.ApplyDelta(game.Delta{FromTick: 1, ToTick: 2, Timestamp: t0.Add(time.Second)}))
	r.ApplySnapshot(snapAt(1, t0, nil)) // duplicate: no notification

	assert.Equal(t, []uint64{1, 2}, ticks)
}

func TestResetClearsEverything(t *testing.T) {
	r := New(Config{}, nil)
	r.ApplySnapshot(snapAt(5, t0, nil))
	r.Reset()

	_, ok := r.Current()
	assert.False(t, ok)
	assert.Zero(t, r.BufferLen())
	assert.Zero(t, r.Tick())
}
