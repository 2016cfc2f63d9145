// Package simserver is an in-process authoritative peer for offline runs and
// integration tests. It speaks the same wire protocol as the real backend:
// sessions keyed by join code, cumulative input acks, tick-numbered deltas
// and full snapshots on demand.
package simserver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/internal/game"
	"github.com/Raincor5/tacmap/pkg/wire"
)

type roomMsg interface{ isRoomMsg() }

// Join registers a client connection. PlayerID empty means spectator until a
// create/join message names one.
type Join struct {
	ClientID   string
	PlayerID   string
	PlayerName string
	Created    bool // reply with sessionCreated instead of sessionJoined
	Outbox     chan wire.Message
}

type Leave struct{ ClientID string }

type FromClient struct {
	ClientID string
	Msg      wire.Message
}

type GetSession struct {
	Reply chan *game.Session
}

type Shutdown struct{}

func (Join) isRoomMsg()       {}
func (Leave) isRoomMsg()      {}
func (FromClient) isRoomMsg() {}
func (GetSession) isRoomMsg() {}
func (Shutdown) isRoomMsg()   {}

type Room struct {
	inbox   chan roomMsg
	session *game.Session
	tick    uint64
	clients map[string]chan wire.Message
	players map[string]string // clientID -> playerID
	lastSeq map[string]uint64 // clientID -> highest input seq seen
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRoom(parent context.Context, session *game.Session, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	r := &Room{
		inbox:   make(chan roomMsg, 64),
		session: session,
		clients: make(map[string]chan wire.Message),
		players: make(map[string]string),
		lastSeq: make(map[string]uint64),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- roomMsg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)
			case Leave:
				r.handleLeave(msg.ClientID)
			case FromClient:
				r.handleClient(msg.ClientID, msg.Msg)
			case GetSession:
				msg.Reply <- r.session.Clone()
			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	r.clients[msg.ClientID] = msg.Outbox
	if msg.PlayerID != "" {
		r.players[msg.ClientID] = msg.PlayerID
		if _, ok := r.session.Players[msg.PlayerID]; !ok {
			p := game.Player{ID: msg.PlayerID, Name: msg.PlayerName}
			if r.session.HostID == "" {
				r.session.HostID = msg.PlayerID
				p.IsHost = true
			}
			r.session.Players[msg.PlayerID] = p
			r.broadcastExcept(msg.ClientID, &wire.PlayerJoined{Player: p})
		}
	}
	if msg.Created {
		r.send(msg.ClientID, &wire.SessionCreated{Session: r.session.Clone()})
	} else {
		r.send(msg.ClientID, &wire.SessionJoined{Session: r.session.Clone()})
	}
}

func (r *Room) handleLeave(clientID string) {
	playerID, hadPlayer := r.players[clientID]
	delete(r.clients, clientID)
	delete(r.players, clientID)
	delete(r.lastSeq, clientID)
	if hadPlayer {
		// The player might be back shortly (reconnect keeps the id); only
		// drop them from the roster if no other connection claims the id.
		for _, pid := range r.players {
			if pid == playerID {
				return
			}
		}
		delete(r.session.Players, playerID)
		r.broadcast(&wire.PlayerLeft{PlayerID: playerID})
	}
}

func (r *Room) handleClient(clientID string, raw wire.Message) {
	switch msg := raw.(type) {
	case *wire.LocationUpdate:
		r.noteSeq(clientID, msg.Seq)
		p, ok := r.session.Players[msg.PlayerID]
		if !ok {
			return
		}
		loc := msg.Location
		p.Location = &loc
		r.session.Players[msg.PlayerID] = p
		r.advance(game.Delta{Players: map[string]game.Player{p.ID: p}})
		r.ack(clientID)

	case *wire.AddPin:
		r.noteSeq(clientID, msg.Seq)
		if r.session.AddPin(msg.Pin) {
			r.advance(game.Delta{AddedPins: []game.Pin{msg.Pin}})
		}
		r.ack(clientID)

	case *wire.RemovePin:
		r.noteSeq(clientID, msg.Seq)
		if r.session.RemovePin(msg.PinID) {
			r.advance(game.Delta{RemovedPinIDs: []string{msg.PinID}})
		}
		r.ack(clientID)

	case *wire.SendMessage:
		r.noteSeq(clientID, msg.Seq)
		if r.session.AppendMessage(msg.Message) {
			r.broadcast(&wire.MessageReceived{Message: msg.Message})
		}
		r.ack(clientID)

	case *wire.AssignTeam:
		r.noteSeq(clientID, msg.Seq)
		if r.players[clientID] != r.session.HostID {
			r.send(clientID, &wire.Error{Code: wire.CodeNotHost, Message: "only the host assigns teams"})
			return
		}
		p, ok := r.session.Players[msg.PlayerID]
		if !ok {
			return
		}
		p.TeamID = msg.TeamID
		r.session.Players[msg.PlayerID] = p
		r.broadcast(&wire.TeamAssigned{PlayerID: msg.PlayerID, TeamID: msg.TeamID})
		r.advance(game.Delta{Players: map[string]game.Player{p.ID: p}})
		r.ack(clientID)

	case *wire.SyncRequest:
		r.send(clientID, &wire.GameSnapshot{Snapshot: r.snapshot(), Ack: r.lastSeq[clientID]})

	case *wire.LeaveSession:
		r.handleLeave(clientID)

	default:
		r.log.Debug("room ignoring message", zap.String("type", raw.Kind()))
	}
}

func (r *Room) noteSeq(clientID string, seq uint64) {
	if seq > r.lastSeq[clientID] {
		r.lastSeq[clientID] = seq
	}
}

// ack confirms everything the client has sent so far, cumulatively.
func (r *Room) ack(clientID string) {
	if seq := r.lastSeq[clientID]; seq > 0 {
		r.send(clientID, &wire.Ack{Seq: seq})
	}
}

// advance bumps the tick and broadcasts the delta carrying the change.
func (r *Room) advance(d game.Delta) {
	d.FromTick = r.tick
	r.tick++
	d.ToTick = r.tick
	d.Timestamp = time.Now()
	r.broadcast(&wire.GameDelta{Delta: d})
}

func (r *Room) snapshot() game.Snapshot {
	players := make(map[string]game.Player, len(r.session.Players))
	for id, p := range r.session.Players {
		if p.Location != nil {
			loc := *p.Location
			p.Location = &loc
		}
		players[id] = p
	}
	return game.Snapshot{
		Tick:      r.tick,
		Timestamp: time.Now(),
		Players:   players,
		Pins:      append([]game.Pin(nil), r.session.Pins...),
		Phase:     game.PhaseActive,
	}
}

// send delivers one frame to a client. A client that cannot keep up is
// dropped from the room, but its channel stays open: the websocket handler
// owns the channel and may still write pongs and errors into it.
func (r *Room) send(clientID string, msg wire.Message) {
	ch, ok := r.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		delete(r.clients, clientID)
	}
}

func (r *Room) broadcast(msg wire.Message) {
	for id, ch := range r.clients {
		select {
		case ch <- msg:
		default:
			delete(r.clients, id)
		}
	}
}

func (r *Room) broadcastExcept(skip string, msg wire.Message) {
	for id, ch := range r.clients {
		if id == skip {
			continue
		}
		select {
		case ch <- msg:
		default:
			delete(r.clients, id)
		}
	}
}

func (r *Room) shutdown() {
	for id := range r.clients {
		delete(r.clients, id)
	}
	r.cancel()
}
