package simserver

import (
	"context"
	"crypto/rand"
	"math/big"

	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/internal/game"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom makes a room under a fresh unique join code. The session starts
// empty; the first player to join becomes host.
type CreateRoom struct {
	Name  string
	Reply chan *Room
}

type GetRoom struct {
	Code  string
	Reply chan *Room
}

type RemoveRoom struct {
	Code string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*Room
	codes  map[*Room]string
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*Room),
		codes:  make(map[*Room]string),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				code := h.freshCode()
				sess := &game.Session{
					ID:      game.NewID(),
					Code:    code,
					Name:    msg.Name,
					Players: map[string]game.Player{},
					Teams:   game.DefaultTeams(),
				}
				room := NewRoom(h.ctx, sess, h.log.Named("room").With(zap.String("code", code)))
				h.rooms[code] = room
				h.codes[room] = code
				msg.Reply <- room

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case RemoveRoom:
				if room, ok := h.rooms[msg.Code]; ok {
					room.Inbox() <- Shutdown{}
					delete(h.codes, room)
					delete(h.rooms, msg.Code)
				}

			case ShutdownHub:
				for code, room := range h.rooms {
					room.Inbox() <- Shutdown{}
					delete(h.codes, room)
					delete(h.rooms, code)
				}
				h.cancel()
			}
		}
	}
}

// Code returns the join code a room was registered under. Codes never change
// after creation, so reading it off the session is race-free.
func (h *Hub) Code(r *Room) string {
	reply := make(chan *game.Session, 1)
	r.Inbox() <- GetSession{Reply: reply}
	return (<-reply).Code
}

func (h *Hub) freshCode() string {
	for {
		code, err := generateCode(6)
		if err != nil {
			continue
		}
		if _, taken := h.rooms[code]; !taken {
			return code
		}
	}
}

func generateCode(n int) (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, n)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
