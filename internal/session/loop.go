package session

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/internal/conn"
	"github.com/Raincor5/tacmap/internal/game"
	"github.com/Raincor5/tacmap/internal/notify"
	"github.com/Raincor5/tacmap/internal/reconcile"
	"github.com/Raincor5/tacmap/pkg/wire"
)

type managerMsg interface{ isManagerMsg() }

type createMsg struct {
	name       string
	playerName string
	reply      chan error
}

type joinMsg struct {
	code       string
	playerName string
	reply      chan error
}

type leaveMsg struct{ reply chan error }

type locationMsg struct{ loc game.Location }

type addPinResult struct {
	pin game.Pin
	err error
}

type addPinMsg struct {
	pinType game.PinType
	name    string
	at      game.Coordinate
	reply   chan addPinResult
}

type removePinMsg struct{ pinID string }

type chatMsg struct{ text string }

type assignTeamMsg struct {
	playerID string
	teamID   string
	reply    chan error
}

type inboundMsg struct{ m wire.Message }

type connStateMsg struct{ st conn.Status }

type dropMsg struct {
	m       wire.Message
	retries int
}

type connectedMsg struct{ resumed bool }

type getViewMsg struct{ reply chan View }

type subscribeMsg struct {
	id string
	ch chan View
}

type unsubscribeMsg struct{ id string }

func (createMsg) isManagerMsg()      {}
func (joinMsg) isManagerMsg()        {}
func (leaveMsg) isManagerMsg()       {}
func (locationMsg) isManagerMsg()    {}
func (addPinMsg) isManagerMsg()      {}
func (removePinMsg) isManagerMsg()   {}
func (chatMsg) isManagerMsg()        {}
func (assignTeamMsg) isManagerMsg()  {}
func (inboundMsg) isManagerMsg()     {}
func (connStateMsg) isManagerMsg()   {}
func (dropMsg) isManagerMsg()        {}
func (connectedMsg) isManagerMsg()   {}
func (getViewMsg) isManagerMsg()     {}
func (subscribeMsg) isManagerMsg()   {}
func (unsubscribeMsg) isManagerMsg() {}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			for id, ch := range m.subs {
				close(ch)
				delete(m.subs, id)
			}
			return

		case raw := <-m.inbox:
			switch msg := raw.(type) {
			case createMsg:
				m.handleCreate(msg)
			case joinMsg:
				m.handleJoin(msg)
			case leaveMsg:
				m.handleLeave(msg)
			case locationMsg:
				m.handleLocation(msg.loc)
			case addPinMsg:
				m.handleAddPin(msg)
			case removePinMsg:
				m.handleRemovePin(msg.pinID)
			case chatMsg:
				m.handleChat(msg.text)
			case assignTeamMsg:
				m.handleAssignTeam(msg)
			case inboundMsg:
				m.handleInbound(msg.m)
			case connStateMsg:
				m.handleConnState(msg.st)
			case dropMsg:
				m.handleDrop(msg.m, msg.retries)
			case connectedMsg:
				m.handleResume(msg.resumed)
			case getViewMsg:
				msg.reply <- m.view()
			case subscribeMsg:
				m.subs[msg.id] = msg.ch
				msg.ch <- m.view()
			case unsubscribeMsg:
				if ch, ok := m.subs[msg.id]; ok {
					close(ch)
					delete(m.subs, msg.id)
				}
			}
		}
	}
}

func (m *Manager) handleCreate(msg createMsg) {
	m.selfName = msg.playerName
	m.session = game.NewSession(msg.name, m.selfID, msg.playerName, "")
	m.provisional = true
	m.lastError = ""
	m.sendOrQueue(&wire.CreateSession{
		SessionName: msg.name,
		PlayerName:  msg.playerName,
		PlayerID:    m.selfID,
	})
	msg.reply <- nil
	m.broadcast()
}

func (m *Manager) handleJoin(msg joinMsg) {
	m.selfName = msg.playerName
	m.code = msg.code
	m.provisional = true
	m.lastError = ""
	// Offline runs can at least show the stored session while the join is
	// in flight.
	if m.dir != nil && m.link.Status().State != conn.StateConnected {
		if s, err := m.dir.Find(m.ctx, msg.code); err == nil {
			m.session = s
		}
	}
	m.sendOrQueue(&wire.JoinSession{
		SessionCode: msg.code,
		PlayerName:  msg.playerName,
		PlayerID:    m.selfID,
	})
	msg.reply <- nil
	m.broadcast()
}

func (m *Manager) handleLeave(msg leaveMsg) {
	if m.session == nil && m.code == "" {
		msg.reply <- ErrNoSession
		return
	}
	// Best effort; leaving while offline just drops local state.
	_ = m.link.Send(&wire.LeaveSession{PlayerID: m.selfID})
	m.session = nil
	m.code = ""
	m.provisional = false
	m.lastError = ""
	m.seq.Reset()
	m.out.Clear()
	m.rec.Reset()
	m.link.Disconnect(true)
	msg.reply <- nil
	m.broadcast()
}

func (m *Manager) handleLocation(loc game.Location) {
	if m.session == nil {
		return
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now()
	}
	if p, ok := m.session.Players[m.selfID]; ok {
		l := loc
		p.Location = &l
		m.session.Players[m.selfID] = p
	}
	in := m.seq.Submit(&wire.LocationUpdate{PlayerID: m.selfID, Location: loc})
	m.sendOrQueue(&wire.LocationUpdate{Seq: in.Seq, PlayerID: m.selfID, Location: loc})
	m.broadcast()
}

func (m *Manager) handleAddPin(msg addPinMsg) {
	if m.session == nil {
		msg.reply <- addPinResult{err: ErrNoSession}
		return
	}
	if !msg.pinType.Valid() {
		msg.reply <- addPinResult{err: ErrBadPinType}
		return
	}
	pin := game.Pin{
		ID:         game.NewID(),
		Type:       msg.pinType,
		Name:       msg.name,
		Coordinate: msg.at,
		PlayerID:   m.selfID,
		TeamID:     m.selfTeamID(),
		Timestamp:  time.Now(),
	}
	m.session.AddPin(pin)
	in := m.seq.Submit(&wire.AddPin{Pin: pin})
	m.sendOrQueue(&wire.AddPin{Seq: in.Seq, Pin: pin})
	msg.reply <- addPinResult{pin: pin}
	m.broadcast()
}

func (m *Manager) handleRemovePin(pinID string) {
	if m.session == nil {
		return
	}
	m.session.RemovePin(pinID)
	in := m.seq.Submit(&wire.RemovePin{PinID: pinID})
	m.sendOrQueue(&wire.RemovePin{Seq: in.Seq, PinID: pinID})
	m.broadcast()
}

func (m *Manager) handleChat(text string) {
	if m.session == nil {
		return
	}
	cm := game.ChatMessage{
		ID:         game.NewID(),
		Text:       text,
		PlayerID:   m.selfID,
		PlayerName: m.selfName,
		TeamID:     m.selfTeamID(),
		Timestamp:  time.Now(),
	}
	m.session.AppendMessage(cm)
	in := m.seq.Submit(&wire.SendMessage{Message: cm})
	m.sendOrQueue(&wire.SendMessage{Seq: in.Seq, Message: cm})
	m.broadcast()
}

func (m *Manager) handleAssignTeam(msg assignTeamMsg) {
	if m.session == nil {
		msg.reply <- ErrNoSession
		return
	}
	if m.selfID != m.session.HostID {
		msg.reply <- ErrNotHost
		return
	}
	if _, ok := m.session.Team(msg.teamID); !ok {
		msg.reply <- errors.New("session: unknown team " + msg.teamID)
		return
	}
	p, ok := m.session.Players[msg.playerID]
	if !ok {
		msg.reply <- errors.New("session: unknown player " + msg.playerID)
		return
	}
	p.TeamID = msg.teamID
	m.session.Players[msg.playerID] = p
	in := m.seq.Submit(&wire.AssignTeam{PlayerID: msg.playerID, TeamID: msg.teamID})
	m.sendOrQueue(&wire.AssignTeam{Seq: in.Seq, PlayerID: msg.playerID, TeamID: msg.teamID})
	msg.reply <- nil
	m.broadcast()
}

// handleResume replays session membership and requests a full resync after
// a reconnect, flushing the queue in between so unacknowledged actions get
// re-sent before the authoritative state lands.
func (m *Manager) handleResume(resumed bool) {
	if resumed && m.code != "" {
		_ = m.link.Send(&wire.JoinSession{
			SessionCode: m.code,
			PlayerName:  m.selfName,
			PlayerID:    m.selfID,
		})
	}
	sent, dropped := m.out.Flush(m.link.Send)
	if sent > 0 || dropped > 0 {
		m.log.Info("outbound queue flushed", zap.Int("sent", sent), zap.Int("dropped", dropped))
	}
	if resumed && m.code != "" {
		_ = m.link.Send(&wire.SyncRequest{PlayerID: m.selfID})
	}
	m.broadcast()
}

// handleDrop resolves the pending sequence of an action the outbound queue
// abandoned, and tells the user their action was lost.
func (m *Manager) handleDrop(msg wire.Message, retries int) {
	if seq := wire.SeqOf(msg); seq > 0 {
		m.seq.Drop(seq)
	}
	m.lastError = fmt.Sprintf("could not deliver %s after %d attempts", msg.Kind(), retries)
	m.notifier.Alert(notify.AlertConnectionFailed, m.lastError, notify.UrgencyWarning, nil)
	m.log.Warn("outbound action abandoned", zap.String("type", msg.Kind()), zap.Int("retries", retries))
	m.broadcast()
}

func (m *Manager) handleConnState(st conn.Status) {
	if st.State == conn.StateFailed && st.Terminal {
		m.notifier.Alert(notify.AlertConnectionFailed, "connection lost: "+st.Reason, notify.UrgencyCritical, nil)
	}
	m.broadcast()
}

func (m *Manager) handleInbound(raw wire.Message) {
	switch msg := raw.(type) {
	case *wire.SessionCreated:
		m.adoptSession(msg.Session)
	case *wire.SessionJoined:
		m.adoptSession(msg.Session)

	case *wire.SessionEnded:
		m.notifier.Alert(notify.AlertSessionEnded, "session ended", notify.UrgencyWarning, nil)
		m.session = nil
		m.code = ""
		m.provisional = false
		m.seq.Reset()
		m.rec.Reset()
		m.broadcast()

	case *wire.LocationUpdate:
		if m.session == nil {
			return
		}
		if p, ok := m.session.Players[msg.PlayerID]; ok {
			loc := msg.Location
			p.Location = &loc
			m.session.Players[msg.PlayerID] = p
			m.broadcast()
		}

	case *wire.PinAdded:
		if m.session == nil {
			return
		}
		if m.session.AddPin(msg.Pin) && msg.Pin.PlayerID != m.selfID {
			at := msg.Pin.Coordinate
			m.notifier.Alert(notify.AlertPinAdded, "pin: "+msg.Pin.Name, notify.UrgencyInfo, &at)
		}
		m.broadcast()

	case *wire.PinRemoved:
		if m.session == nil {
			return
		}
		m.session.RemovePin(msg.PinID)
		m.broadcast()

	case *wire.MessageReceived:
		if m.session == nil {
			return
		}
		m.session.AppendMessage(msg.Message)
		m.broadcast()

	case *wire.TeamAssigned:
		if m.session == nil {
			return
		}
		if p, ok := m.session.Players[msg.PlayerID]; ok {
			p.TeamID = msg.TeamID
			m.session.Players[msg.PlayerID] = p
			m.broadcast()
		}

	case *wire.PlayerJoined:
		if m.session == nil {
			return
		}
		m.session.Players[msg.Player.ID] = msg.Player
		if msg.Player.ID != m.selfID {
			m.notifier.Alert(notify.AlertPlayerJoined, msg.Player.Name+" joined", notify.UrgencyInfo, nil)
		}
		m.broadcast()

	case *wire.PlayerLeft:
		if m.session == nil {
			return
		}
		if p, ok := m.session.Players[msg.PlayerID]; ok {
			delete(m.session.Players, msg.PlayerID)
			m.notifier.Alert(notify.AlertPlayerLeft, p.Name+" left", notify.UrgencyInfo, nil)
		}
		m.broadcast()

	case *wire.GameSnapshot:
		if msg.Ack > 0 {
			m.seq.Ack(msg.Ack)
		}
		m.rec.ApplySnapshot(msg.Snapshot)
		m.mergeAuthoritative()

	case *wire.GameDelta:
		if msg.Ack > 0 {
			m.seq.Ack(msg.Ack)
		}
		err := m.rec.ApplyDelta(msg.Delta)
		var gap *reconcile.TickGapError
		if errors.As(err, &gap) {
			m.sendOrQueue(&wire.SyncRequest{PlayerID: m.selfID})
			return
		}
		for _, ev := range msg.Events {
			m.notifyEvent(ev)
		}
		m.mergeAuthoritative()

	case *wire.Ack:
		m.seq.Ack(msg.Seq)
		m.broadcast()

	case *wire.Ping:
		_ = m.link.Send(&wire.Pong{Timestamp: msg.Timestamp})

	case *wire.Error:
		if msg.Code == wire.CodeSessionNotFound {
			code := msg.SessionCode
			if code == "" {
				code = m.code
			}
			m.lastError = (&NotFoundError{Code: code}).Error()
			if m.provisional {
				m.code = ""
				m.provisional = false
			}
		} else {
			m.lastError = msg.Message
		}
		m.log.Warn("server error", zap.String("code", msg.Code), zap.String("message", msg.Message))
		m.broadcast()

	default:
		m.log.Debug("ignoring message", zap.String("type", raw.Kind()))
	}
}

// adoptSession replaces the provisional view with the server-confirmed one.
// The reconciler starts empty, so a resync is requested right away; without
// it the first delta would be guaranteed to gap.
func (m *Manager) adoptSession(s *game.Session) {
	if s == nil {
		return
	}
	m.session = s.Clone()
	m.code = s.Code
	m.provisional = false
	m.lastError = ""
	m.rec.Reset()
	m.sendOrQueue(&wire.SyncRequest{PlayerID: m.selfID})
	if m.dir != nil {
		if err := m.dir.Store(m.ctx, m.session); err != nil {
			m.log.Warn("directory store failed", zap.Error(err))
		}
	}
	m.broadcast()
}

// mergeAuthoritative folds the reconciler's latest snapshot into the merged
// session view: roster and pins come from the snapshot, chat and team
// reference data stay local.
func (m *Manager) mergeAuthoritative() {
	snap, ok := m.rec.Current()
	if !ok || m.session == nil {
		m.broadcast()
		return
	}
	players := make(map[string]game.Player, len(snap.Players))
	for id, p := range snap.Players {
		p.IsHost = id == m.session.HostID
		players[id] = p
	}
	m.session.Players = players
	m.session.Pins = append([]game.Pin(nil), snap.Pins...)
	m.broadcast()
}

func (m *Manager) notifyEvent(ev game.Event) {
	switch ev.Type {
	case game.EventPlayerJoined:
		m.notifier.Alert(notify.AlertPlayerJoined, ev.Text, notify.UrgencyInfo, nil)
	case game.EventPlayerLeft:
		m.notifier.Alert(notify.AlertPlayerLeft, ev.Text, notify.UrgencyInfo, nil)
	}
}

func (m *Manager) selfTeamID() string {
	if m.session == nil {
		return ""
	}
	return m.session.Players[m.selfID].TeamID
}

// sendOrQueue is the single path outbound messages take: direct send while
// connected, otherwise into the queue for the next flush.
func (m *Manager) sendOrQueue(msg wire.Message) {
	if err := m.link.Send(msg); err != nil {
		m.out.Enqueue(msg)
	}
}

func (m *Manager) view() View {
	return View{
		Session:   m.session.Clone(),
		Conn:      m.link.Status(),
		Pending:   m.seq.PendingCount(),
		LastError: m.lastError,
	}
}

// broadcast pushes the refreshed view to every subscriber; one that cannot
// keep up gets closed and dropped.
func (m *Manager) broadcast() {
	if len(m.subs) == 0 {
		return
	}
	v := m.view()
	for id, ch := range m.subs {
		select {
		case ch <- v:
		default:
			close(ch)
			delete(m.subs, id)
		}
	}
}
