package wire

import (
	"time"

	"github.com/Raincor5/tacmap/internal/game"
)

// Message is one decoded wire frame. Exactly one concrete type exists per
// "type" tag; Decode produces the matching variant so consumers switch
// exhaustively instead of digging through untyped maps.
type Message interface {
	Kind() string
}

// Type tags, client -> server unless noted.
const (
	TypeCreateSession   = "createSession"
	TypeJoinSession     = "joinSession"
	TypeLeaveSession    = "leaveSession"
	TypeSessionCreated  = "sessionCreated" // in
	TypeSessionJoined   = "sessionJoined"  // in
	TypeSessionEnded    = "sessionEnded"   // in
	TypeLocationUpdate  = "locationUpdate" // both
	TypeAddPin          = "addPin"
	TypePinAdded        = "pinAdded" // in
	TypeRemovePin       = "removePin"
	TypePinRemoved      = "pinRemoved" // in
	TypeSendMessage     = "sendMessage"
	TypeMessageReceived = "messageReceived" // in
	TypeAssignTeam      = "assignTeam"
	TypeTeamAssigned    = "teamAssigned" // in
	TypePlayerJoined    = "playerJoined" // in
	TypePlayerLeft      = "playerLeft"   // in
	TypeGameSnapshot    = "gameSnapshot" // in
	TypeGameDelta       = "gameDelta"    // in
	TypePing            = "ping"         // both
	TypePong            = "pong"         // both
	TypeAck             = "ack"          // in
	TypeSyncRequest     = "syncRequest"
	TypeError           = "error" // in
)

type CreateSession struct {
	SessionName string `json:"sessionName"`
	PlayerName  string `json:"playerName"`
	PlayerID    string `json:"playerId"`
}

type JoinSession struct {
	SessionCode string `json:"sessionCode"`
	PlayerName  string `json:"playerName"`
	PlayerID    string `json:"playerId"`
}

type LeaveSession struct {
	PlayerID string `json:"playerId"`
}

type SessionCreated struct {
	Session *game.Session `json:"session"`
}

type SessionJoined struct {
	Session *game.Session `json:"session"`
}

type SessionEnded struct {
	Reason string `json:"reason,omitempty"`
}

type LocationUpdate struct {
	Seq      uint64        `json:"seq,omitempty"`
	PlayerID string        `json:"playerId"`
	Location game.Location `json:"location"`
}

type AddPin struct {
	Seq uint64   `json:"seq,omitempty"`
	Pin game.Pin `json:"pin"`
}

type PinAdded struct {
	Pin game.Pin `json:"pin"`
}

type RemovePin struct {
	Seq   uint64 `json:"seq,omitempty"`
	PinID string `json:"pinId"`
}

type PinRemoved struct {
	PinID string `json:"pinId"`
}

type SendMessage struct {
	Seq     uint64           `json:"seq,omitempty"`
	Message game.ChatMessage `json:"message"`
}

type MessageReceived struct {
	Message game.ChatMessage `json:"message"`
}

type AssignTeam struct {
	Seq      uint64 `json:"seq,omitempty"`
	PlayerID string `json:"playerId"`
	TeamID   string `json:"teamId"`
}

type TeamAssigned struct {
	PlayerID string `json:"playerId"`
	TeamID   string `json:"teamId"`
}

type PlayerJoined struct {
	Player game.Player `json:"player"`
}

type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

// GameSnapshot carries a full authoritative world state. Ack, when non-zero,
// is the highest client input sequence the server has processed.
type GameSnapshot struct {
	game.Snapshot
	Ack uint64 `json:"ack,omitempty"`
}

type GameDelta struct {
	game.Delta
	Ack uint64 `json:"ack,omitempty"`
}

type Ping struct {
	Timestamp time.Time `json:"timestamp"`
}

type Pong struct {
	Timestamp time.Time `json:"timestamp"`
}

// Ack is a standalone cumulative acknowledgment of client input sequences.
type Ack struct {
	Seq uint64 `json:"seq"`
}

type SyncRequest struct {
	PlayerID string `json:"playerId,omitempty"`
}

// Error codes the server distinguishes.
const (
	CodeSessionNotFound = "sessionNotFound"
	CodeNotHost         = "notHost"
	CodeBadRequest      = "badRequest"
)

type Error struct {
	Code        string `json:"code,omitempty"`
	Message     string `json:"message"`
	SessionCode string `json:"sessionCode,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// SeqOf returns the client input sequence carried by m, 0 when m is not a
// sequenced action.
func SeqOf(m Message) uint64 {
	switch v := m.(type) {
	case *LocationUpdate:
		return v.Seq
	case *AddPin:
		return v.Seq
	case *RemovePin:
		return v.Seq
	case *SendMessage:
		return v.Seq
	case *AssignTeam:
		return v.Seq
	}
	return 0
}

func (*CreateSession) Kind() string   { return TypeCreateSession }
func (*JoinSession) Kind() string     { return TypeJoinSession }
func (*LeaveSession) Kind() string    { return TypeLeaveSession }
func (*SessionCreated) Kind() string  { return TypeSessionCreated }
func (*SessionJoined) Kind() string   { return TypeSessionJoined }
func (*SessionEnded) Kind() string    { return TypeSessionEnded }
func (*LocationUpdate) Kind() string  { return TypeLocationUpdate }
func (*AddPin) Kind() string          { return TypeAddPin }
func (*PinAdded) Kind() string        { return TypePinAdded }
func (*RemovePin) Kind() string       { return TypeRemovePin }
func (*PinRemoved) Kind() string      { return TypePinRemoved }
func (*SendMessage) Kind() string     { return TypeSendMessage }
func (*MessageReceived) Kind() string { return TypeMessageReceived }
func (*AssignTeam) Kind() string      { return TypeAssignTeam }
func (*TeamAssigned) Kind() string    { return TypeTeamAssigned }
func (*PlayerJoined) Kind() string    { return TypePlayerJoined }
func (*PlayerLeft) Kind() string      { return TypePlayerLeft }
func (*GameSnapshot) Kind() string    { return TypeGameSnapshot }
func (*GameDelta) Kind() string       { return TypeGameDelta }
func (*Ping) Kind() string            { return TypePing }
func (*Pong) Kind() string            { return TypePong }
func (*Ack) Kind() string             { return TypeAck }
func (*SyncRequest) Kind() string     { return TypeSyncRequest }
func (*Error) Kind() string           { return TypeError }
