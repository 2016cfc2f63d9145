package simserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/internal/directory"
	"github.com/Raincor5/tacmap/internal/game"
	"github.com/Raincor5/tacmap/pkg/wire"
)

type Server struct {
	hub *Hub
	dir directory.Directory // optional; persists sessions on create/join
	log *zap.Logger
}

func NewServer(ctx context.Context, dir directory.Directory, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{hub: NewHub(ctx, log), dir: dir, log: log}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/sessions", s.createSession)
	r.Get("/healthz", s.healthz)
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// createSession reserves a join code ahead of any websocket traffic so a host
// can put the code in a QR before connecting.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	reply := make(chan *Room, 1)
	s.hub.Inbox() <- CreateRoom{Name: body.Name, Reply: reply}
	room := <-reply
	if room == nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(struct {
		Code string `json:"code"`
	}{Code: s.hub.Code(room)})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "bye")

	out := make(chan wire.Message, 16)
	clientID := game.NewID()

	// Writer goroutine. The outbox channel is never closed; the goroutine
	// stops when the handler returns and cancels writeCtx.
	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for {
			var msg wire.Message
			select {
			case <-writeCtx.Done():
				return
			case msg = <-out:
			}
			data, err := wire.Encode(msg)
			if err != nil {
				continue
			}
			ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
			_ = c.Write(ctx, websocket.MessageText, data)
			cancel()
		}
	}()

	var room *Room
	defer func() {
		if room != nil {
			room.Inbox() <- Leave{ClientID: clientID}
		}
	}()

	for {
		_, data, err := c.Read(r.Context())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			return
		}

		msg, err := wire.Decode(data)
		if err != nil {
			s.log.Warn("discarding bad frame", zap.Error(err))
			out <- &wire.Error{Code: wire.CodeBadRequest, Message: err.Error()}
			continue
		}

		switch m := msg.(type) {
		case *wire.Ping:
			// Answered here so the liveness probe works before any join.
			out <- &wire.Pong{Timestamp: m.Timestamp}

		case *wire.CreateSession:
			reply := make(chan *Room, 1)
			s.hub.Inbox() <- CreateRoom{Name: m.SessionName, Reply: reply}
			room = <-reply
			room.Inbox() <- Join{
				ClientID:   clientID,
				PlayerID:   m.PlayerID,
				PlayerName: m.PlayerName,
				Created:    true,
				Outbox:     out,
			}
			s.persist(room)

		case *wire.JoinSession:
			reply := make(chan *Room, 1)
			s.hub.Inbox() <- GetRoom{Code: m.SessionCode, Reply: reply}
			found := <-reply
			if found == nil {
				out <- &wire.Error{
					Code:        wire.CodeSessionNotFound,
					Message:     "no session with that code",
					SessionCode: m.SessionCode,
				}
				continue
			}
			room = found
			room.Inbox() <- Join{
				ClientID:   clientID,
				PlayerID:   m.PlayerID,
				PlayerName: m.PlayerName,
				Outbox:     out,
			}
			s.persist(room)

		default:
			if room == nil {
				out <- &wire.Error{Code: wire.CodeBadRequest, Message: "join a session first"}
				continue
			}
			room.Inbox() <- FromClient{ClientID: clientID, Msg: msg}
		}
	}
}

func (s *Server) persist(room *Room) {
	if s.dir == nil || room == nil {
		return
	}
	reply := make(chan *game.Session, 1)
	room.Inbox() <- GetSession{Reply: reply}
	if err := s.dir.Store(context.Background(), <-reply); err != nil {
		s.log.Warn("directory store failed", zap.Error(err))
	}
}
