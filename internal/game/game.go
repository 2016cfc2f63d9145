package game

import (
	"time"

	"github.com/google/uuid"
)

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location is a player's last reported position fix. Heading is degrees
// clockwise from north in [0, 360). Timestamp is the capture time from the
// authoritative clock when available, the device clock otherwise.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (l Location) Coordinate() Coordinate {
	return Coordinate{Latitude: l.Latitude, Longitude: l.Longitude}
}

type Team struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// DefaultTeams returns the two fixed teams every session starts with.
func DefaultTeams() []Team {
	return []Team{
		{ID: "team-red", Name: "Red", Color: "#FF3B30"},
		{ID: "team-blue", Name: "Blue", Color: "#007AFF"},
	}
}

type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	TeamID   string    `json:"teamId,omitempty"`
	Location *Location `json:"location,omitempty"`
	IsHost   bool      `json:"isHost,omitempty"`
}

type PinType string

const (
	PinEnemy     PinType = "enemy"
	PinFriendly  PinType = "friendly"
	PinObjective PinType = "objective"
	PinHazard    PinType = "hazard"
	PinWaypoint  PinType = "waypoint"
	PinCover     PinType = "cover"
)

func (t PinType) Valid() bool {
	switch t {
	case PinEnemy, PinFriendly, PinObjective, PinHazard, PinWaypoint, PinCover:
		return true
	}
	return false
}

// Pin is immutable once created; it only ever gets removed. Identity is by
// ID, so duplicate deliveries merge to a single pin.
type Pin struct {
	ID         string     `json:"id"`
	Type       PinType    `json:"type"`
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
	PlayerID   string     `json:"playerId"`
	TeamID     string     `json:"teamId,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	TeamID     string    `json:"teamId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewID generates an identifier for players, pins and chat messages created
// on this client.
func NewID() string {
	return uuid.NewString()
}
