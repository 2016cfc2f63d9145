// Package session bridges the raw network layers to the application-facing
// merged view: roster, teams, pins and chat. It owns the session lifecycle
// and applies local actions optimistically, letting the next authoritative
// snapshot or delta supersede them.
package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/internal/conn"
	"github.com/Raincor5/tacmap/internal/directory"
	"github.com/Raincor5/tacmap/internal/game"
	"github.com/Raincor5/tacmap/internal/notify"
	"github.com/Raincor5/tacmap/internal/outbox"
	"github.com/Raincor5/tacmap/internal/reconcile"
	"github.com/Raincor5/tacmap/internal/sequencer"
	"github.com/Raincor5/tacmap/pkg/wire"
)

var (
	ErrNoSession  = errors.New("session: no active session")
	ErrNotHost    = errors.New("session: host-only action")
	ErrBadPinType = errors.New("session: invalid pin type")
)

// NotFoundError surfaces a join against an invalid or expired code,
// distinctly from a generic connection failure.
type NotFoundError struct {
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session: no session with code %q", e.Code)
}

// Link is what the manager needs from the connection controller.
type Link interface {
	Connect(addr string)
	Disconnect(manual bool)
	Send(msg wire.Message) error
	Status() conn.Status
}

// GameTransportClient is the one contract the rest of the app programs
// against. Manager is its only production implementation; alternative
// transports plug in beneath the connection controller, not beside this.
type GameTransportClient interface {
	CreateSession(name, playerName string) error
	JoinSession(code, playerName string) error
	LeaveSession() error
	UpdateLocation(loc game.Location)
	AddPin(pinType game.PinType, name string, at game.Coordinate) (game.Pin, error)
	RemovePin(pinID string)
	SendChat(text string)
	AssignTeam(playerID, teamID string) error
	View() View
	Subscribe(id string, buf int) <-chan View
	Unsubscribe(id string)
}

// View is the merged state handed to subscribers on every change.
type View struct {
	Session   *game.Session
	Conn      conn.Status
	Pending   int
	LastError string
}

type Manager struct {
	inbox  chan managerMsg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	link     Link
	out      *outbox.Queue
	seq      *sequencer.Sequencer
	rec      *reconcile.Reconciler
	dir      directory.Directory
	notifier notify.Notifier
	log      *zap.Logger

	// Loop-owned; never touched outside the loop goroutine.
	session     *game.Session
	selfID      string
	selfName    string
	code        string
	lastError   string
	provisional bool
	subs        map[string]chan View
}

type Deps struct {
	Link      Link
	Outbox    *outbox.Queue
	Sequencer *sequencer.Sequencer
	Reconcile *reconcile.Reconciler
	Directory directory.Directory // optional
	Notifier  notify.Notifier     // optional
	Log       *zap.Logger
}

func NewManager(d Deps) *Manager {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		inbox:    make(chan managerMsg, 64),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		link:     d.Link,
		out:      d.Outbox,
		seq:      d.Sequencer,
		rec:      d.Reconcile,
		dir:      d.Directory,
		notifier: d.Notifier,
		log:      d.Log,
		selfID:   game.NewID(),
		subs:     make(map[string]chan View),
	}
	go m.loop()
	return m
}

var _ GameTransportClient = (*Manager)(nil)

// Close stops the loop and closes all subscriber channels.
func (m *Manager) Close() {
	m.cancel()
	<-m.done
}

// SelfID is this client's stable player id; it survives reconnects so the
// server can recognize a rejoin.
func (m *Manager) SelfID() string { return m.selfID }

// HandleMessage is wired as the connection controller's inbound sink. It
// hands the message to the loop so inbound processing stays single-threaded.
func (m *Manager) HandleMessage(msg wire.Message) { m.post(inboundMsg{m: msg}) }

// HandleConnected is wired as the controller's OnConnected callback.
func (m *Manager) HandleConnected(resumed bool) { m.post(connectedMsg{resumed: resumed}) }

// HandleConnState is wired as the controller's OnState callback.
func (m *Manager) HandleConnState(st conn.Status) { m.post(connStateMsg{st: st}) }

// HandleDrop is wired as the outbound queue's drop callback. The abandoned
// action's pending sequence is resolved so the unconfirmed count does not
// linger on an input that will never be acked.
func (m *Manager) HandleDrop(msg wire.Message, retries int) {
	m.post(dropMsg{m: msg, retries: retries})
}

func (m *Manager) CreateSession(name, playerName string) error {
	reply := make(chan error, 1)
	m.post(createMsg{name: name, playerName: playerName, reply: reply})
	return m.wait(reply)
}

func (m *Manager) JoinSession(code, playerName string) error {
	reply := make(chan error, 1)
	m.post(joinMsg{code: code, playerName: playerName, reply: reply})
	return m.wait(reply)
}

func (m *Manager) LeaveSession() error {
	reply := make(chan error, 1)
	m.post(leaveMsg{reply: reply})
	return m.wait(reply)
}

func (m *Manager) UpdateLocation(loc game.Location) {
	m.post(locationMsg{loc: loc})
}

// AddPin creates the pin locally, applies it optimistically and submits it
// for sequencing. The returned pin carries the generated id.
func (m *Manager) AddPin(pinType game.PinType, name string, at game.Coordinate) (game.Pin, error) {
	reply := make(chan addPinResult, 1)
	m.post(addPinMsg{pinType: pinType, name: name, at: at, reply: reply})
	select {
	case res := <-reply:
		return res.pin, res.err
	case <-m.ctx.Done():
		return game.Pin{}, m.ctx.Err()
	}
}

func (m *Manager) RemovePin(pinID string) {
	m.post(removePinMsg{pinID: pinID})
}

func (m *Manager) SendChat(text string) {
	m.post(chatMsg{text: text})
}

// AssignTeam is host-only; a non-host call fails fast with ErrNotHost and
// never touches the network.
func (m *Manager) AssignTeam(playerID, teamID string) error {
	reply := make(chan error, 1)
	m.post(assignTeamMsg{playerID: playerID, teamID: teamID, reply: reply})
	return m.wait(reply)
}

func (m *Manager) View() View {
	reply := make(chan View, 1)
	m.post(getViewMsg{reply: reply})
	select {
	case v := <-reply:
		return v
	case <-m.ctx.Done():
		return View{}
	}
}

// Subscribe registers a change-notification channel. Every state mutation
// broadcasts a fresh View; a subscriber that falls behind is dropped.
func (m *Manager) Subscribe(id string, buf int) <-chan View {
	if buf <= 0 {
		buf = 8
	}
	ch := make(chan View, buf)
	m.post(subscribeMsg{id: id, ch: ch})
	return ch
}

func (m *Manager) Unsubscribe(id string) {
	m.post(unsubscribeMsg{id: id})
}

func (m *Manager) post(msg managerMsg) {
	select {
	case m.inbox <- msg:
	case <-m.ctx.Done():
	}
}

func (m *Manager) wait(reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-m.ctx.Done():
		return m.ctx.Err()
	}
}
