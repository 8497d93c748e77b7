// Package session owns per-connection engine state and the registry of live
// connections.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/engine"
	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// Registry tracks the live sessions of a server, keyed by connection ID.
// It is the only structure shared between connection goroutines.
type Registry struct {
	mu       sync.RWMutex
	engine   *engine.Engine
	mode     models.Mode
	sessions map[uuid.UUID]*Handle
}

// NewRegistry creates an empty registry. New sessions start in defaultMode.
func NewRegistry(e *engine.Engine, defaultMode models.Mode) (*Registry, error) {
	// Fail at startup rather than on the first connection.
	if _, err := e.NewSession(defaultMode); err != nil {
		return nil, err
	}
	return &Registry{
		engine:   e,
		mode:     defaultMode,
		sessions: make(map[uuid.UUID]*Handle),
	}, nil
}

// Open creates and registers a session for a new connection.
func (r *Registry) Open(remoteAddr string, now time.Time) *Handle {
	// defaultMode was validated in NewRegistry.
	s, _ := r.engine.NewSession(r.mode)
	h := newHandle(uuid.New(), remoteAddr, r.engine, s, now)

	r.mu.Lock()
	r.sessions[h.id] = h
	r.mu.Unlock()
	return h
}

// Get returns the session for id.
func (r *Registry) Get(id uuid.UUID) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	return h, ok
}

// Close removes the session for id. It is a no-op for unknown IDs.
func (r *Registry) Close(id uuid.UUID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns snapshots of all live sessions, oldest connection first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, h := range r.sessions {
		out = append(out, h.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
