// Package conn owns the transport life-cycle: connect with a liveness probe,
// heartbeat, reconnect with linear backoff, manual versus involuntary
// disconnect, and background/foreground transitions. Everything runs on a
// single event-loop goroutine fed by a typed inbox, so inbound messages are
// processed one at a time in arrival order.
package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/pkg/wire"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Status is the coarse connection indicator surfaced to the user, plus the
// latest heartbeat round-trip for latency reporting.
type Status struct {
	State    State
	Reason   string
	Attempts int
	// Terminal means the controller stopped retrying on its own; only a
	// fresh Connect can revive it.
	Terminal bool
	RTT      time.Duration
}

type Config struct {
	HeartbeatInterval           time.Duration // while foregrounded
	BackgroundHeartbeatInterval time.Duration // widened to conserve battery
	ConnectTimeout              time.Duration // dial + liveness probe ack
	BackoffBase                 time.Duration // delay = base * attempt
	MaxAttempts                 int
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.BackgroundHeartbeatInterval <= 0 {
		c.BackgroundHeartbeatInterval = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
}

// Callbacks are invoked from the event loop; implementations must not block.
type Callbacks struct {
	// OnMessage receives every decoded inbound message except pong.
	OnMessage func(wire.Message)
	// OnState fires on every state transition.
	OnState func(Status)
	// OnConnected fires once the liveness probe is acknowledged. resumed is
	// true when this connection replaces an earlier one, in which case the
	// session layer replays membership and requests a full resync before
	// flushing queued sends.
	OnConnected func(resumed bool)
}

type ctrlMsg interface{ isCtrlMsg() }

type connectMsg struct{ addr string }
type disconnectMsg struct {
	manual bool
	reason string
}
type backgroundMsg struct{}
type foregroundMsg struct{}
type dialResult struct {
	gen  uint64
	conn Conn
	err  error
}
type frameMsg struct {
	gen  uint64
	data []byte
}
type connLost struct {
	gen uint64
	err error
}

func (connectMsg) isCtrlMsg()    {}
func (disconnectMsg) isCtrlMsg() {}
func (backgroundMsg) isCtrlMsg() {}
func (foregroundMsg) isCtrlMsg() {}
func (dialResult) isCtrlMsg()    {}
func (frameMsg) isCtrlMsg()      {}
func (connLost) isCtrlMsg()      {}

type Controller struct {
	cfg       Config
	transport Transport
	cb        Callbacks
	log       *zap.Logger

	inbox  chan ctrlMsg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Shared with external callers.
	mu     sync.Mutex
	status Status
	conn   Conn

	// Loop-owned state.
	gen          uint64 // connection generation, stale pump output is dropped
	addr         string
	attempts     int
	background   bool
	everConnect  bool
	resumeOnNext bool
	readCancel   context.CancelFunc
}

func NewController(cfg Config, transport Transport, cb Callbacks, log *zap.Logger) *Controller {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:       cfg,
		transport: transport,
		cb:        cb,
		log:       log,
		inbox:     make(chan ctrlMsg, 64),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    Status{State: StateDisconnected},
	}
	go c.loop()
	return c
}

// Connect opens the transport asynchronously. The connected state is only
// declared after the liveness probe is acknowledged.
func (c *Controller) Connect(addr string) {
	c.post(connectMsg{addr: addr})
}

// Disconnect tears the transport down. A manual disconnect suppresses
// auto-reconnect and cancels any pending backoff.
func (c *Controller) Disconnect(manual bool) {
	reason := "connection lost"
	if manual {
		reason = "disconnected by user"
	}
	c.post(disconnectMsg{manual: manual, reason: reason})
}

// EnterBackground widens the heartbeat interval.
func (c *Controller) EnterBackground() { c.post(backgroundMsg{}) }

// EnterForeground treats any existing connection as dead, since the OS may
// have silently killed the socket, and forces a fresh connect.
func (c *Controller) EnterForeground() { c.post(foregroundMsg{}) }

// Send encodes and writes one message on the live connection. Callers are
// expected to go through the outbound queue when not connected.
func (c *Controller) Send(msg wire.Message) error {
	c.mu.Lock()
	cn := c.conn
	st := c.status.State
	c.mu.Unlock()
	if cn == nil || st != StateConnected {
		return errors.New("conn: not connected")
	}
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
	defer cancel()
	return cn.Send(ctx, data)
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Close stops the event loop, the heartbeat and any pending backoff timer.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}

func (c *Controller) post(m ctrlMsg) {
	select {
	case c.inbox <- m:
	case <-c.ctx.Done():
	}
}
