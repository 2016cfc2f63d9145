package conn

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/pkg/wire"
)

func (c *Controller) loop() {
	defer close(c.done)

	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	var (
		retryTimer *time.Timer
		retryC     <-chan time.Time
		probeTimer *time.Timer
		probeC     <-chan time.Time
	)
	stopRetry := func() {
		if retryTimer != nil {
			retryTimer.Stop()
			retryTimer, retryC = nil, nil
		}
	}
	stopProbe := func() {
		if probeTimer != nil {
			probeTimer.Stop()
			probeTimer, probeC = nil, nil
		}
	}
	armRetry := func(d time.Duration) {
		stopRetry()
		retryTimer = time.NewTimer(d)
		retryC = retryTimer.C
	}
	armProbe := func() {
		stopProbe()
		probeTimer = time.NewTimer(c.cfg.ConnectTimeout)
		probeC = probeTimer.C
	}

	for {
		select {
		case <-c.ctx.Done():
			stopRetry()
			stopProbe()
			c.teardownConn()
			c.setState(StateDisconnected, "shut down")
			return

		case <-retryC:
			stopRetry()
			if c.addr == "" {
				break
			}
			c.setState(StateReconnecting, "")
			c.dial()

		case <-probeC:
			stopProbe()
			c.teardownConn()
			c.handleFailure("liveness probe timed out", false, armRetry)

		case <-heartbeat.C:
			c.sendPing()

		case m := <-c.inbox:
			switch msg := m.(type) {
			case connectMsg:
				stopRetry()
				c.addr = msg.addr
				c.attempts = 0
				c.mu.Lock()
				c.status.Terminal = false
				c.mu.Unlock()
				c.teardownConn()
				c.setState(StateConnecting, "")
				c.dial()

			case disconnectMsg:
				stopRetry()
				stopProbe()
				c.teardownConn()
				if msg.manual {
					c.addr = ""
					c.attempts = 0
					c.mu.Lock()
					c.status.Terminal = false
					c.mu.Unlock()
				}
				c.setState(StateDisconnected, msg.reason)

			case backgroundMsg:
				c.background = true
				heartbeat.Reset(c.cfg.BackgroundHeartbeatInterval)

			case foregroundMsg:
				c.background = false
				heartbeat.Reset(c.cfg.HeartbeatInterval)
				if c.addr == "" {
					break
				}
				// Assume the OS killed the socket while we were away.
				stopRetry()
				stopProbe()
				c.teardownConn()
				c.attempts = 0
				c.resumeOnNext = true
				c.setState(StateReconnecting, "resuming after background")
				c.dial()

			case dialResult:
				if msg.gen != c.gen {
					if msg.conn != nil {
						_ = msg.conn.Close()
					}
					break // stale dial from a superseded attempt
				}
				if msg.err != nil {
					c.handleFailure(msg.err.Error(), false, armRetry)
					break
				}
				c.installConn(msg.conn)
				armProbe()
				c.sendPing()

			case frameMsg:
				if msg.gen != c.gen {
					break
				}
				c.handleFrame(msg.data, stopProbe)

			case connLost:
				if msg.gen != c.gen {
					break
				}
				stopProbe()
				c.teardownConn()
				benign := errors.Is(msg.err, ErrBenignClose)
				c.handleFailure(msg.err.Error(), benign, armRetry)
			}
		}
	}
}

// dial kicks the blocking transport dial onto its own goroutine so the loop
// stays responsive; the result comes back through the inbox tagged with the
// current generation.
func (c *Controller) dial() {
	c.gen++
	gen := c.gen
	addr := c.addr
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.ConnectTimeout)
		defer cancel()
		cn, err := c.transport.Dial(ctx, addr)
		select {
		case c.inbox <- dialResult{gen: gen, conn: cn, err: err}:
		case <-c.ctx.Done():
			if cn != nil {
				_ = cn.Close()
			}
		}
	}()
}

// installConn wires the read pump for a freshly dialed connection. The state
// stays connecting/reconnecting until the probe pong arrives.
func (c *Controller) installConn(cn Conn) {
	readCtx, cancel := context.WithCancel(c.ctx)
	c.readCancel = cancel
	gen := c.gen
	c.mu.Lock()
	c.conn = cn
	c.mu.Unlock()
	go func() {
		for {
			data, err := cn.Receive(readCtx)
			if err != nil {
				select {
				case c.inbox <- connLost{gen: gen, err: err}:
				case <-c.ctx.Done():
				}
				return
			}
			select {
			case c.inbox <- frameMsg{gen: gen, data: data}:
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

func (c *Controller) teardownConn() {
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	c.mu.Lock()
	cn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if cn != nil {
		_ = cn.Close()
	}
	c.gen++ // orphan any in-flight pump output
}

// handleFailure routes an involuntary connection loss. Benign closes do not
// burn an attempt; real failures back off linearly until the budget runs out.
func (c *Controller) handleFailure(reason string, benign bool, armRetry func(time.Duration)) {
	if c.addr == "" {
		c.setState(StateDisconnected, reason)
		return
	}
	if benign {
		c.log.Info("expected disconnection", zap.String("reason", reason))
		c.setState(StateDisconnected, reason)
		armRetry(c.cfg.BackoffBase)
		return
	}
	c.attempts++
	if c.attempts >= c.cfg.MaxAttempts {
		c.log.Warn("reconnection attempts exhausted", zap.Int("attempts", c.attempts))
		c.mu.Lock()
		c.status.Terminal = true
		c.mu.Unlock()
		c.setState(StateFailed, "reconnection attempts exhausted: "+reason)
		return
	}
	delay := time.Duration(c.attempts) * c.cfg.BackoffBase
	c.log.Info("connection attempt failed",
		zap.String("reason", reason),
		zap.Int("attempt", c.attempts),
		zap.Duration("retryIn", delay))
	c.setState(StateFailed, reason)
	armRetry(delay)
}

func (c *Controller) sendPing() {
	c.mu.Lock()
	cn := c.conn
	c.mu.Unlock()
	if cn == nil {
		return
	}
	data, err := wire.Encode(&wire.Ping{Timestamp: time.Now()})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
	defer cancel()
	if err := cn.Send(ctx, data); err != nil {
		c.log.Debug("ping send failed", zap.Error(err))
	}
}

// handleFrame decodes one inbound frame. A malformed or unknown message is
// logged and skipped; it must never wedge the loop.
func (c *Controller) handleFrame(data []byte, stopProbe func()) {
	msg, err := wire.Decode(data)
	if err != nil {
		c.log.Warn("discarding bad frame", zap.Error(err))
		return
	}
	if pong, ok := msg.(*wire.Pong); ok {
		rtt := time.Since(pong.Timestamp)
		c.mu.Lock()
		c.status.RTT = rtt
		connecting := c.status.State == StateConnecting || c.status.State == StateReconnecting
		c.mu.Unlock()
		if connecting {
			stopProbe()
			resumed := c.everConnect || c.resumeOnNext
			c.attempts = 0
			c.everConnect = true
			c.resumeOnNext = false
			c.setState(StateConnected, "")
			if c.cb.OnConnected != nil {
				c.cb.OnConnected(resumed)
			}
		}
		return
	}
	if c.cb.OnMessage != nil {
		c.cb.OnMessage(msg)
	}
}

func (c *Controller) setState(s State, reason string) {
	c.mu.Lock()
	changed := c.status.State != s || c.status.Reason != reason
	c.status.State = s
	c.status.Reason = reason
	c.status.Attempts = c.attempts
	st := c.status
	c.mu.Unlock()
	if !changed {
		return
	}
	c.log.Info("connection state", zap.String("state", string(s)), zap.String("reason", reason))
	if c.cb.OnState != nil {
		c.cb.OnState(st)
	}
}
