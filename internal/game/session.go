package game

import "time"

// Session is the merged application-facing view of a running game: roster,
// teams, pins and chat. The session manager owns it exclusively; everybody
// else sees copies.
type Session struct {
	ID        string            `json:"id"`
	Code      string            `json:"code"`
	Name      string            `json:"name"`
	Players   map[string]Player `json:"players"`
	Teams     []Team            `json:"teams"`
	Pins      []Pin             `json:"pins"`
	Messages  []ChatMessage     `json:"messages"`
	HostID    string            `json:"hostId"`
	CreatedAt time.Time         `json:"createdAt"`
}

func NewSession(name, hostID, hostName, code string) *Session {
	host := Player{ID: hostID, Name: hostName, IsHost: true}
	return &Session{
		ID:        NewID(),
		Code:      code,
		Name:      name,
		Players:   map[string]Player{hostID: host},
		Teams:     DefaultTeams(),
		Pins:      []Pin{},
		Messages:  []ChatMessage{},
		HostID:    hostID,
		CreatedAt: time.Now(),
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Players = make(map[string]Player, len(s.Players))
	for id, p := range s.Players {
		if p.Location != nil {
			loc := *p.Location
			p.Location = &loc
		}
		out.Players[id] = p
	}
	out.Teams = append([]Team(nil), s.Teams...)
	out.Pins = append([]Pin(nil), s.Pins...)
	out.Messages = append([]ChatMessage(nil), s.Messages...)
	return &out
}

// AddPin inserts the pin unless one with the same ID already exists.
// Reports whether the pin was actually added.
func (s *Session) AddPin(p Pin) bool {
	for _, existing := range s.Pins {
		if existing.ID == p.ID {
			return false
		}
	}
	s.Pins = append(s.Pins, p)
	return true
}

// RemovePin deletes the pin by ID. Reports whether it was present.
func (s *Session) RemovePin(id string) bool {
	for i, p := range s.Pins {
		if p.ID == id {
			s.Pins = append(s.Pins[:i], s.Pins[i+1:]...)
			return true
		}
	}
	return false
}

// AppendMessage appends the chat message unless its ID was already seen.
func (s *Session) AppendMessage(m ChatMessage) bool {
	for _, existing := range s.Messages {
		if existing.ID == m.ID {
			return false
		}
	}
	s.Messages = append(s.Messages, m)
	return true
}

func (s *Session) Team(id string) (Team, bool) {
	for _, t := range s.Teams {
		if t.ID == id {
			return t, true
		}
	}
	return Team{}, false
}
