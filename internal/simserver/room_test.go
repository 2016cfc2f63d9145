package simserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raincor5/tacmap/internal/game"
	"github.com/Raincor5/tacmap/pkg/wire"
)

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sess := &game.Session{
		ID:      game.NewID(),
		Code:    "TEST01",
		Name:    "test",
		Players: map[string]game.Player{},
		Teams:   game.DefaultTeams(),
	}
	return NewRoom(ctx, sess, nil)
}

func joinRoom(t *testing.T, r *Room, clientID, playerID, name string) chan wire.Message {
	t.Helper()
	out := make(chan wire.Message, 32)
	r.Inbox() <- Join{ClientID: clientID, PlayerID: playerID, PlayerName: name, Outbox: out}
	joined := recvMsg(t, out)
	require.IsType(t, &wire.SessionJoined{}, joined)
	return out
}

func recvMsg(t *testing.T, ch chan wire.Message) wire.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "outbox closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

// recvKind discards messages until one of the wanted kind arrives.
func recvKind(t *testing.T, ch chan wire.Message, kind string) wire.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m, ok := <-ch:
			require.True(t, ok, "outbox closed")
			if m.Kind() == kind {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", kind)
			return nil
		}
	}
}

func roomSession(r *Room) *game.Session {
	reply := make(chan *game.Session, 1)
	r.Inbox() <- GetSession{Reply: reply}
	return <-reply
}

func TestFirstJoinerBecomesHost(t *testing.T) {
	r := newTestRoom(t)
	joinRoom(t, r, "c1", "p1", "Dana")
	joinRoom(t, r, "c2", "p2", "Riley")

	sess := roomSession(r)
	assert.Equal(t, "p1", sess.HostID)
	assert.True(t, sess.Players["p1"].IsHost)
	assert.False(t, sess.Players["p2"].IsHost)
}

func TestJoinAnnouncedToOthers(t *testing.T) {
	r := newTestRoom(t)
	out1 := joinRoom(t, r, "c1", "p1", "Dana")
	joinRoom(t, r, "c2", "p2", "Riley")

	msg := recvKind(t, out1, wire.TypePlayerJoined).(*wire.PlayerJoined)
	assert.Equal(t, "p2", msg.Player.ID)
	assert.Equal(t, "Riley", msg.Player.Name)
}

func TestLocationUpdateBroadcastsDeltaAndAck(t *testing.T) {
	r := newTestRoom(t)
	out1 := joinRoom(t, r, "c1", "p1", "Dana")
	out2 := joinRoom(t, r, "c2", "p2", "Riley")

	r.Inbox() <- FromClient{ClientID: "c2", Msg: &wire.LocationUpdate{
		Seq:      1,
		PlayerID: "p2",
		Location: game.Location{Latitude: 50, Longitude: 7, Timestamp: time.Now()},
	}}

	delta := recvKind(t, out1, wire.TypeGameDelta).(*wire.GameDelta)
	assert.Equal(t, uint64(0), delta.FromTick)
	assert.Equal(t, uint64(1), delta.ToTick)
	require.Contains(t, delta.Players, "p2")
	assert.InDelta(t, 50, delta.Players["p2"].Location.Latitude, 1e-9)

	ack := recvKind(t, out2, wire.TypeAck).(*wire.Ack)
	assert.Equal(t, uint64(1), ack.Seq)
}

func TestDuplicatePinDoesNotAdvanceTick(t *testing.T) {
	r := newTestRoom(t)
	out1 := joinRoom(t, r, "c1", "p1", "Dana")

	pin := game.Pin{ID: "pin-1", Type: game.PinEnemy, Name: "sniper", PlayerID: "p1"}
	r.Inbox() <- FromClient{ClientID: "c1", Msg: &wire.AddPin{Seq: 1, Pin: pin}}
	recvKind(t, out1, wire.TypeGameDelta)
	recvKind(t, out1, wire.TypeAck)

	r.Inbox() <- FromClient{ClientID: "c1", Msg: &wire.AddPin{Seq: 2, Pin: pin}}
	// The duplicate still gets acked, but no delta precedes the ack.
	msg := recvMsg(t, out1)
	ack, ok := msg.(*wire.Ack)
	require.True(t, ok, "expected ack, got %s", msg.Kind())
	assert.Equal(t, uint64(2), ack.Seq)

	r.Inbox() <- FromClient{ClientID: "c1", Msg: &wire.SyncRequest{}}
	snap := recvKind(t, out1, wire.TypeGameSnapshot).(*wire.GameSnapshot)
	assert.Equal(t, uint64(1), snap.Tick)
	assert.Len(t, snap.Pins, 1)
}

func TestAssignTeamRequiresHost(t *testing.T) {
	r := newTestRoom(t)
	joinRoom(t, r, "c1", "p1", "Dana")
	out2 := joinRoom(t, r, "c2", "p2", "Riley")

	r.Inbox() <- FromClient{ClientID: "c2", Msg: &wire.AssignTeam{Seq: 1, PlayerID: "p1", TeamID: "team-red"}}
	errMsg := recvKind(t, out2, wire.TypeError).(*wire.Error)
	assert.Equal(t, wire.CodeNotHost, errMsg.Code)

	sess := roomSession(r)
	assert.Empty(t, sess.Players["p1"].TeamID)
}

func TestSyncRequestCarriesCumulativeAck(t *testing.T) {
	r := newTestRoom(t)
	out1 := joinRoom(t, r, "c1", "p1", "Dana")

	for seq := uint64(1); seq <= 3; seq++ {
		r.Inbox() <- FromClient{ClientID: "c1", Msg: &wire.AddPin{Seq: seq, Pin: game.Pin{
			ID: game.NewID(), Type: game.PinWaypoint, Name: "wp", PlayerID: "p1",
		}}}
	}
	r.Inbox() <- FromClient{ClientID: "c1", Msg: &wire.SyncRequest{}}

	snap := recvKind(t, out1, wire.TypeGameSnapshot).(*wire.GameSnapshot)
	assert.Equal(t, uint64(3), snap.Ack)
	assert.Equal(t, uint64(3), snap.Tick)
	assert.Len(t, snap.Pins, 3)
}

func TestLeaveRemovesPlayerAndNotifies(t *testing.T) {
	r := newTestRoom(t)
	out1 := joinRoom(t, r, "c1", "p1", "Dana")
	joinRoom(t, r, "c2", "p2", "Riley")

	r.Inbox() <- FromClient{ClientID: "c2", Msg: &wire.LeaveSession{PlayerID: "p2"}}

	left := recvKind(t, out1, wire.TypePlayerLeft).(*wire.PlayerLeft)
	assert.Equal(t, "p2", left.PlayerID)
	sess := roomSession(r)
	assert.NotContains(t, sess.Players, "p2")
}

func TestSlowClientDroppedWithoutClosingOutbox(t *testing.T) {
	r := newTestRoom(t)
	out1 := joinRoom(t, r, "c1", "p1", "Dana")

	// A single-slot outbox that nobody reads: sessionJoined fills it, so the
	// first broadcast overflows and the room drops the client.
	slow := make(chan wire.Message, 1)
	r.Inbox() <- Join{ClientID: "c2", PlayerID: "p2", PlayerName: "Riley", Outbox: slow}

	r.Inbox() <- FromClient{ClientID: "c1", Msg: &wire.AddPin{Seq: 1, Pin: game.Pin{
		ID: "pin-1", Type: game.PinEnemy, Name: "sniper", PlayerID: "p1",
	}}}
	recvKind(t, out1, wire.TypeGameDelta)

	// The websocket handler still owns the channel and writes pongs and
	// errors into it after the room gave up on the client.
	<-slow
	slow <- &wire.Pong{Timestamp: time.Now()}

	// The dropped client gets nothing further from the room.
	r.Inbox() <- FromClient{ClientID: "c1", Msg: &wire.RemovePin{Seq: 2, PinID: "pin-1"}}
	recvKind(t, out1, wire.TypeGameDelta)
	require.Len(t, slow, 1)
	assert.IsType(t, &wire.Pong{}, <-slow)
}

func TestReconnectKeepsRosterEntry(t *testing.T) {
	r := newTestRoom(t)
	out1 := joinRoom(t, r, "c1", "p1", "Dana")
	joinRoom(t, r, "c2", "p2", "Riley")

	// A second connection claims the same player id, then the old one leaves:
	// the roster entry must survive.
	joinRoom(t, r, "c3", "p2", "Riley")
	r.Inbox() <- Leave{ClientID: "c2"}

	sess := roomSession(r)
	assert.Contains(t, sess.Players, "p2")
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case m := <-out1:
			assert.NotEqual(t, wire.TypePlayerLeft, m.Kind())
		case <-deadline:
			return
		}
	}
}
