package wire

import (
	"encoding/json"
	"fmt"
)

// UnknownTypeError reports a frame whose type tag has no registered variant.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("wire: unknown message type %q", e.Type)
}

var decoders = map[string]func() Message{
	TypeCreateSession:   func() Message { return &CreateSession{} },
	TypeJoinSession:     func() Message { return &JoinSession{} },
	TypeLeaveSession:    func() Message { return &LeaveSession{} },
	TypeSessionCreated:  func() Message { return &SessionCreated{} },
	TypeSessionJoined:   func() Message { return &SessionJoined{} },
	TypeSessionEnded:    func() Message { return &SessionEnded{} },
	TypeLocationUpdate:  func() Message { return &LocationUpdate{} },
	TypeAddPin:          func() Message { return &AddPin{} },
	TypePinAdded:        func() Message { return &PinAdded{} },
	TypeRemovePin:       func() Message { return &RemovePin{} },
	TypePinRemoved:      func() Message { return &PinRemoved{} },
	TypeSendMessage:     func() Message { return &SendMessage{} },
	TypeMessageReceived: func() Message { return &MessageReceived{} },
	TypeAssignTeam:      func() Message { return &AssignTeam{} },
	TypeTeamAssigned:    func() Message { return &TeamAssigned{} },
	TypePlayerJoined:    func() Message { return &PlayerJoined{} },
	TypePlayerLeft:      func() Message { return &PlayerLeft{} },
	TypeGameSnapshot:    func() Message { return &GameSnapshot{} },
	TypeGameDelta:       func() Message { return &GameDelta{} },
	TypePing:            func() Message { return &Ping{} },
	TypePong:            func() Message { return &Pong{} },
	TypeAck:             func() Message { return &Ack{} },
	TypeSyncRequest:     func() Message { return &SyncRequest{} },
	TypeError:           func() Message { return &Error{} },
}

// Decode parses one frame into its typed variant. The envelope is flat:
// the type tag sits beside the payload fields, so the frame is unmarshaled
// twice: once for the tag, once into the variant.
func Decode(data []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: malformed frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("wire: frame missing type tag")
	}
	mk, ok := decoders[env.Type]
	if !ok {
		return nil, &UnknownTypeError{Type: env.Type}
	}
	m := mk()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("wire: bad %s payload: %w", env.Type, err)
	}
	return m, nil
}

// Encode renders the flat envelope by splicing the type tag into the
// message's own JSON object.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", m.Kind(), err)
	}
	tag, err := json.Marshal(m.Kind())
	if err != nil {
		return nil, err
	}
	out := append([]byte(`{"type":`), tag...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
		return out, nil
	}
	return append(out, '}'), nil
}
