// Package outbox buffers outbound messages that cannot be sent yet, so
// actions issued while disconnected survive until the next connect. Retries
// are bounded: a message that keeps failing is dropped and reported, never
// retried forever against a recovering connection.
package outbox

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/pkg/wire"
)

const DefaultMaxRetries = 3

type queued struct {
	msg     wire.Message
	retries int
}

// SendFunc attempts one transport send of an encoded-able message.
type SendFunc func(wire.Message) error

// DropFunc observes a message dropped after exhausting its retries.
type DropFunc func(wire.Message, int)

type Queue struct {
	mu         sync.Mutex
	items      []queued
	maxRetries int
	onDrop     DropFunc
	log        *zap.Logger
}

func New(maxRetries int, onDrop DropFunc, log *zap.Logger) *Queue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{maxRetries: maxRetries, onDrop: onDrop, log: log}
}

// Enqueue never fails. Session lifetimes are short and the message rate is
// seconds-scale, so the queue is unbounded.
func (q *Queue) Enqueue(msg wire.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, queued{msg: msg})
	q.log.Debug("message queued", zap.String("type", msg.Kind()), zap.Int("depth", len(q.items)))
}

// Flush sends queued messages in FIFO order. On a send failure the message's
// retry counter is bumped; if it still has retries left it stays at the head
// and the flush stops (the connection is evidently not healthy), otherwise it
// is dropped and reported. Returns how many were sent and dropped.
func (q *Queue) Flush(send SendFunc) (sent, dropped int) {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return sent, dropped
		}
		head := q.items[0]
		q.mu.Unlock()

		err := send(head.msg)
		q.mu.Lock()
		if len(q.items) == 0 || q.items[0].msg != head.msg {
			// Cleared underneath us, e.g. by a manual disconnect.
			q.mu.Unlock()
			return sent, dropped
		}
		if err == nil {
			q.items = q.items[1:]
			q.mu.Unlock()
			sent++
			continue
		}
		q.items[0].retries++
		if q.items[0].retries >= q.maxRetries {
			drop := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			dropped++
			q.log.Warn("dropping undeliverable message",
				zap.String("type", drop.msg.Kind()),
				zap.Int("retries", drop.retries),
				zap.Error(err))
			if q.onDrop != nil {
				q.onDrop(drop.msg, drop.retries)
			}
			continue
		}
		q.mu.Unlock()
		q.log.Debug("send failed, will retry on next flush",
			zap.String("type", head.msg.Kind()), zap.Error(err))
		return sent, dropped
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear empties the queue without reporting drops. Used on manual disconnect
// when the session state is being thrown away anyway.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
