package game

import "time"

type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

// Snapshot is a complete authoritative world state at one server tick. It is
// deliberately narrower than Session: roster positions and pins only, no chat
// history or team reference data.
type Snapshot struct {
	Tick      uint64            `json:"tick"`
	Timestamp time.Time         `json:"timestamp"`
	Players   map[string]Player `json:"players"`
	Pins      []Pin             `json:"pins"`
	Phase     Phase             `json:"phase"`
	Scores    map[string]int    `json:"scores,omitempty"`
}

func (s Snapshot) Clone() Snapshot {
	out := s
	out.Players = make(map[string]Player, len(s.Players))
	for id, p := range s.Players {
		if p.Location != nil {
			loc := *p.Location
			p.Location = &loc
		}
		out.Players[id] = p
	}
	out.Pins = append([]Pin(nil), s.Pins...)
	if s.Scores != nil {
		out.Scores = make(map[string]int, len(s.Scores))
		for k, v := range s.Scores {
			out.Scores[k] = v
		}
	}
	return out
}

type EventType string

const (
	EventPlayerJoined EventType = "playerJoined"
	EventPlayerLeft   EventType = "playerLeft"
	EventPinAdded     EventType = "pinAdded"
	EventPinRemoved   EventType = "pinRemoved"
)

type Event struct {
	Type     EventType `json:"type"`
	PlayerID string    `json:"playerId,omitempty"`
	PinID    string    `json:"pinId,omitempty"`
	Text     string    `json:"text,omitempty"`
}

// Delta is the diff between two ticks. Player entries are whole-state
// replacements, not field-level merges.
type Delta struct {
	FromTick      uint64            `json:"fromTick"`
	ToTick        uint64            `json:"toTick"`
	Timestamp     time.Time         `json:"timestamp"`
	Players       map[string]Player `json:"players,omitempty"`
	AddedPins     []Pin             `json:"addedPins,omitempty"`
	RemovedPinIDs []string          `json:"removedPinIds,omitempty"`
	Events        []Event           `json:"events,omitempty"`
}
