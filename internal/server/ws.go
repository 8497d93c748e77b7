package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/vision"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// handleWS runs one coaching session. Messages are handled strictly in order:
// each frame is fully resolved and answered before the next read.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	if !s.streams.add(conn) {
		goingAway(conn)
		return
	}
	defer s.streams.done(conn)
	conn.SetReadLimit(s.opts.MaxMessageBytes)

	peer := s.peerName(r.Context(), r.RemoteAddr)
	h := s.sessions.Open(peer, s.now())
	log := s.log.With("conn", h.ID())
	log.Info("client connected", "remote", r.RemoteAddr, "peer", peer, "mode", h.Session().Mode)

	defer func() {
		s.sessions.Close(h.ID())
		s.persistSet(log, h.Finish(s.now()))
		snap := h.Snapshot()
		log.Info("client disconnected", "frames", snap.Frames, "reps", snap.Reps)
	}()

	ctx := r.Context()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout)); err != nil {
			return
		}
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", "error", err)
			}
			return
		}

		reply, ok := s.handleMessage(ctx, log, h, kind, data)
		if !ok {
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn("websocket write failed", "error", err)
			return
		}
	}
}

// errorReply is sent when a config message names an unknown mode.
type errorReply struct {
	Error string `json:"error"`
}

// handleMessage routes one inbound message. ok=false means nothing is sent back.
func (s *Server) handleMessage(ctx context.Context, log *slog.Logger, h *session.Handle, kind int, data []byte) (reply any, ok bool) {
	if kind == websocket.BinaryMessage {
		return s.handleImage(ctx, log, h, data)
	}

	switch models.ClassifyMessage(data) {
	case models.MessageConfig:
		var ev models.ConfigEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn("dropping malformed config", "error", err)
			return nil, false
		}
		finished, err := h.Configure(ev, s.now())
		if err != nil {
			log.Warn("config rejected", "mode", ev.Mode, "error", err)
			return errorReply{Error: err.Error()}, true
		}
		s.persistSet(log, finished)
		log.Info("mode switched", "mode", h.Session().Mode)
		return nil, false

	case models.MessageLandmarks:
		var msg models.FrameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("dropping malformed landmarks", "error", err)
			return nil, false
		}
		return h.Frame(msg.Landmarks, s.now()), true

	default:
		jpeg, err := vision.DecodeFrame(data)
		if err != nil {
			log.Warn("dropping undecodable frame", "error", err)
			return nil, false
		}
		return s.handleImage(ctx, log, h, jpeg)
	}
}

// handleImage runs the pose pipeline on one JPEG frame and renders the overlay.
func (s *Server) handleImage(ctx context.Context, log *slog.Logger, h *session.Handle, jpeg []byte) (any, bool) {
	if s.pose == nil {
		log.Warn("dropping image frame: no pose pipeline configured")
		return nil, false
	}

	frame, err := s.pose.Process(ctx, jpeg)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn("pose inference failed", "error", err)
		}
		return nil, false
	}
	defer frame.Close()

	ev := h.Frame(frame.Landmarks(), s.now())
	img, err := frame.Render(ev)
	if err != nil {
		log.Warn("rendering overlay failed", "error", err)
		return ev, true
	}
	ev.ProcessedImage = img
	return ev, true
}

// persistSet stores a finished set. Failures are logged; the live session is
// never affected by history errors.
func (s *Server) persistSet(log *slog.Logger, set *models.ExerciseSetRow) {
	if set == nil || s.store == nil {
		return
	}
	ctx, cancel := contextWithTimeout()
	defer cancel()
	if err := s.store.InsertExerciseSet(ctx, *set); err != nil {
		log.Error("failed to store set", "mode", set.Mode, "reps", set.Reps, "error", err)
		return
	}
	log.Info("set stored", "mode", set.Mode, "reps", set.Reps, "duration", set.EndedAt.Sub(set.StartedAt).String())
}
