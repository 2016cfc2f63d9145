// Package directory is the session-lookup store used for offline and
// simulator runs. It is always an injected collaborator, never ambient
// global state.
package directory

import (
	"context"
	"errors"
	"sync"

	"github.com/Raincor5/tacmap/internal/game"
)

var ErrNotFound = errors.New("directory: session not found")

// Directory stores sessions keyed by their short join code.
type Directory interface {
	Store(ctx context.Context, s *game.Session) error
	Find(ctx context.Context, code string) (*game.Session, error)
	Remove(ctx context.Context, code string) error
}

// Memory is the in-process implementation backing the simulator server and
// tests.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*game.Session
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*game.Session)}
}

func (m *Memory) Store(_ context.Context, s *game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Code] = s.Clone()
	return nil
}

func (m *Memory) Find(_ context.Context, code string) (*game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[code]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Remove(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, code)
	return nil
}
