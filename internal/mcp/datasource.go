package mcp

import (
	"context"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
)

// DataSource abstracts the set history for MCP tools. Both *storage.DB and
// *storage.SQLite satisfy it.
type DataSource interface {
	QueryExerciseSets(ctx context.Context, start, end time.Time, mode models.Mode) ([]models.ExerciseSetRow, error)
	GetSetSummary(ctx context.Context, start, end time.Time) ([]models.SetSummary, error)
}

// SessionLister exposes live session snapshots.
type SessionLister interface {
	List() []session.Snapshot
}

// Compile-time checks.
var (
	_ DataSource    = (*storage.DB)(nil)
	_ DataSource    = (*storage.SQLite)(nil)
	_ SessionLister = (*session.Registry)(nil)
)
