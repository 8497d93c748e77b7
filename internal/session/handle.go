package session

import (
	"sync/atomic"
	"time"

	"github.com/claude/repcoach/internal/engine"
	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// Snapshot is a read-only view of a session for status endpoints.
type Snapshot struct {
	ID          uuid.UUID       `json:"id"`
	RemoteAddr  string          `json:"remote_addr"`
	Mode        models.Mode     `json:"mode"`
	Phase       engine.Phase    `json:"phase"`
	State       engine.RepState `json:"state"`
	Reps        int             `json:"reps"`
	Frames      int64           `json:"frames"`
	ConnectedAt time.Time       `json:"connected_at"`
	SetStarted  time.Time       `json:"set_started_at"`
	LastFrameAt *time.Time      `json:"last_frame_at,omitempty"`
}

// Handle is one connection's session. Frame, Configure and Finish must be
// called from the connection's own goroutine only; Snapshot is safe from any
// goroutine.
type Handle struct {
	id          uuid.UUID
	remoteAddr  string
	connectedAt time.Time
	engine      *engine.Engine

	state      engine.Session
	setStarted time.Time
	frames     int64
	lastFrame  time.Time

	published atomic.Pointer[Snapshot]
}

func newHandle(id uuid.UUID, remoteAddr string, e *engine.Engine, s engine.Session, now time.Time) *Handle {
	h := &Handle{
		id:          id,
		remoteAddr:  remoteAddr,
		connectedAt: now,
		engine:      e,
		state:       s,
		setStarted:  now,
	}
	h.publish()
	return h
}

// ID returns the connection identity.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Session returns a copy of the current engine state.
func (h *Handle) Session() engine.Session {
	return h.state
}

// Frame runs one frame through the engine. lm is nil when no body was detected.
func (h *Handle) Frame(lm *models.LandmarkSet, now time.Time) models.Event {
	var ev models.Event
	h.state, ev = h.engine.Step(h.state, lm, now)
	h.frames++
	h.lastFrame = now
	h.publish()
	return ev
}

// Configure resets the session in place for a new mode. If the previous set
// has reps it is returned so the caller can persist it. On error the session
// is left unchanged and no set is returned.
func (h *Handle) Configure(ev models.ConfigEvent, now time.Time) (*models.ExerciseSetRow, error) {
	next, err := h.engine.Configure(h.state, ev)
	if err != nil {
		return nil, err
	}
	finished := h.finishedSet(now)
	h.state = next
	h.setStarted = now
	h.publish()
	return finished, nil
}

// Finish closes the current set at disconnect. It returns nil when no reps
// were counted.
func (h *Handle) Finish(now time.Time) *models.ExerciseSetRow {
	return h.finishedSet(now)
}

func (h *Handle) finishedSet(now time.Time) *models.ExerciseSetRow {
	if h.state.Reps == 0 {
		return nil
	}
	return &models.ExerciseSetRow{
		ID:           uuid.New(),
		ConnectionID: h.id,
		Mode:         h.state.Mode,
		Reps:         h.state.Reps,
		StartedAt:    h.setStarted,
		EndedAt:      now,
	}
}

// Snapshot returns the most recently published state.
func (h *Handle) Snapshot() Snapshot {
	return *h.published.Load()
}

func (h *Handle) publish() {
	snap := &Snapshot{
		ID:          h.id,
		RemoteAddr:  h.remoteAddr,
		Mode:        h.state.Mode,
		Phase:       h.state.Phase,
		State:       h.state.State,
		Reps:        h.state.Reps,
		Frames:      h.frames,
		ConnectedAt: h.connectedAt,
		SetStarted:  h.setStarted,
	}
	if !h.lastFrame.IsZero() {
		t := h.lastFrame
		snap.LastFrameAt = &t
	}
	h.published.Store(snap)
}
