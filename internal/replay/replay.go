// Package replay feeds recorded landmark streams through the engine offline.
//
// A recording is JSON lines. Each line is either a config message
// ({"config": true, "mode": "curl"}) or a frame ({"t_ms": 1234, "landmarks":
// [[x, y, conf] ×17] | null}). Frame times are milliseconds since the start of
// the recording; a frame without t_ms is placed one FrameInterval after the
// previous one.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/claude/repcoach/internal/engine"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
)

// FrameInterval is the assumed spacing of frames without a timestamp (30fps).
const FrameInterval = 33 * time.Millisecond

const maxLineBytes = 1 << 20

// Stats tracks replay progress.
type Stats struct {
	Lines         int
	Frames        int
	NoDetection   int
	Malformed     int
	ConfigChanges int

	SetsCompleted int
	SetsStored    int
	Reps          map[models.Mode]int
	Warnings      map[string]int // form warnings by feedback label
}

// ModeNames returns the modes with reps, sorted.
func (s *Stats) ModeNames() []string {
	names := make([]string, 0, len(s.Reps))
	for m := range s.Reps {
		names = append(names, string(m))
	}
	sort.Strings(names)
	return names
}

// Replayer runs recordings through a fresh session each.
type Replayer struct {
	sessions *session.Registry
	store    storage.Store
	log      *slog.Logger
	dryRun   bool
	base     time.Time
}

// New creates a Replayer. Completed sets are written to store unless dryRun
// is set or store is nil. base anchors the recording's relative timestamps.
func New(e *engine.Engine, store storage.Store, log *slog.Logger, dryRun bool, base time.Time) (*Replayer, error) {
	reg, err := session.NewRegistry(e, models.DefaultMode)
	if err != nil {
		return nil, err
	}
	return &Replayer{sessions: reg, store: store, log: log, dryRun: dryRun || store == nil, base: base}, nil
}

// ReplayFile replays the recording at path.
func (rp *Replayer) ReplayFile(ctx context.Context, path string) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()
	return rp.Replay(ctx, f, path)
}

// Replay processes one recording read from in. name labels the session in logs.
func (rp *Replayer) Replay(ctx context.Context, in io.Reader, name string) (*Stats, error) {
	stats := &Stats{Reps: map[models.Mode]int{}, Warnings: map[string]int{}}

	h := rp.sessions.Open(name, rp.base)
	defer rp.sessions.Close(h.ID())
	log := rp.log.With("recording", name, "session", h.ID())

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	now := rp.base
	started := false
	reps := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		switch models.ClassifyMessage(line) {
		case models.MessageConfig:
			var ev models.ConfigEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				log.Warn("malformed config line", "line", stats.Lines, "error", err)
				stats.Malformed++
				continue
			}
			finished, err := h.Configure(ev, now)
			if err != nil {
				log.Warn("config rejected", "line", stats.Lines, "error", err)
				stats.Malformed++
				continue
			}
			stats.ConfigChanges++
			reps = 0
			if err := rp.finishSet(ctx, log, stats, finished); err != nil {
				return stats, err
			}

		case models.MessageLandmarks:
			var msg models.FrameMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				log.Warn("malformed frame line", "line", stats.Lines, "error", err)
				stats.Malformed++
				continue
			}
			now = frameTime(rp.base, now, msg.TimestampMs, started)
			started = true

			ev := h.Frame(msg.Landmarks, now)
			stats.Frames++
			if len(ev.Keypoints) == 0 {
				stats.NoDetection++
			}
			if ev.AIRemark != "" {
				stats.Warnings[ev.Feedback]++
			}
			if ev.Reps > reps {
				reps = ev.Reps
				log.Debug("rep", "mode", ev.Mode, "reps", reps, "t", now.Sub(rp.base).String())
			}

		default:
			log.Warn("skipping line that is neither config nor landmarks", "line", stats.Lines)
			stats.Malformed++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading recording: %w", err)
	}

	if err := rp.finishSet(ctx, log, stats, h.Finish(now)); err != nil {
		return stats, err
	}
	return stats, nil
}

// frameTime places a frame on the simulated clock. Timestamps never move
// backwards; a missing timestamp advances by FrameInterval.
func frameTime(base, prev time.Time, tMs int64, started bool) time.Time {
	if tMs <= 0 {
		if !started {
			return base
		}
		return prev.Add(FrameInterval)
	}
	t := base.Add(time.Duration(tMs) * time.Millisecond)
	if t.Before(prev) {
		return prev
	}
	return t
}

func (rp *Replayer) finishSet(ctx context.Context, log *slog.Logger, stats *Stats, set *models.ExerciseSetRow) error {
	if set == nil {
		return nil
	}
	stats.SetsCompleted++
	stats.Reps[set.Mode] += set.Reps
	log.Info("set completed", "mode", set.Mode, "reps", set.Reps, "duration", set.EndedAt.Sub(set.StartedAt).String())

	if rp.dryRun {
		return nil
	}
	if err := rp.store.InsertExerciseSet(ctx, *set); err != nil {
		return fmt.Errorf("storing set: %w", err)
	}
	stats.SetsStored++
	return nil
}
