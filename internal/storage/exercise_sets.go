package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/repcoach/internal/models"
)

// InsertExerciseSet stores a completed set. Re-inserting the same ID is a no-op.
func (db *DB) InsertExerciseSet(ctx context.Context, r models.ExerciseSetRow) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO exercise_sets (id, connection_id, mode, reps, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.ConnectionID, string(r.Mode), r.Reps, r.StartedAt, r.EndedAt)
	if err != nil {
		return fmt.Errorf("inserting exercise set: %w", err)
	}
	return nil
}

// QueryExerciseSets retrieves sets that ended in [start, end), newest first.
// An empty mode matches every mode.
func (db *DB) QueryExerciseSets(ctx context.Context, start, end time.Time, mode models.Mode) ([]models.ExerciseSetRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, connection_id, mode, reps, started_at, ended_at
		 FROM exercise_sets
		 WHERE ended_at >= $1 AND ended_at < $2 AND ($3 = '' OR mode = $3)
		 ORDER BY ended_at DESC`,
		start, end, string(mode))
	if err != nil {
		return nil, fmt.Errorf("querying exercise sets: %w", err)
	}
	defer rows.Close()

	var result []models.ExerciseSetRow
	for rows.Next() {
		var r models.ExerciseSetRow
		var m string
		if err := rows.Scan(&r.ID, &r.ConnectionID, &m, &r.Reps, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning exercise set: %w", err)
		}
		r.Mode = models.Mode(m)
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetSetSummary aggregates sets that ended in [start, end) per mode.
func (db *DB) GetSetSummary(ctx context.Context, start, end time.Time) ([]models.SetSummary, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT mode,
		        COUNT(*)::int,
		        COALESCE(SUM(reps), 0)::int,
		        COALESCE(MAX(reps), 0)::int,
		        COALESCE(AVG(reps), 0)::float8,
		        COALESCE(SUM(EXTRACT(EPOCH FROM ended_at - started_at)), 0)::float8,
		        MAX(ended_at)
		 FROM exercise_sets
		 WHERE ended_at >= $1 AND ended_at < $2
		 GROUP BY mode
		 ORDER BY mode`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("querying set summary: %w", err)
	}
	defer rows.Close()

	var result []models.SetSummary
	for rows.Next() {
		var s models.SetSummary
		var m string
		if err := rows.Scan(&m, &s.Sets, &s.TotalReps, &s.MaxReps, &s.AvgReps, &s.TotalSec, &s.LastSetEnd); err != nil {
			return nil, fmt.Errorf("scanning set summary: %w", err)
		}
		s.Mode = models.Mode(m)
		result = append(result, s)
	}
	return result, rows.Err()
}

// InsertExerciseSet stores a completed set. Re-inserting the same ID is a no-op.
func (s *SQLite) InsertExerciseSet(ctx context.Context, r models.ExerciseSetRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exercise_sets (id, connection_id, mode, reps, started_ms, ended_ms)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID.String(), r.ConnectionID.String(), string(r.Mode), r.Reps,
		r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting exercise set: %w", err)
	}
	return nil
}

// QueryExerciseSets retrieves sets that ended in [start, end), newest first.
// An empty mode matches every mode.
func (s *SQLite) QueryExerciseSets(ctx context.Context, start, end time.Time, mode models.Mode) ([]models.ExerciseSetRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, connection_id, mode, reps, started_ms, ended_ms
		 FROM exercise_sets
		 WHERE ended_ms >= ? AND ended_ms < ? AND (? = '' OR mode = ?)
		 ORDER BY ended_ms DESC`,
		start.UnixMilli(), end.UnixMilli(), string(mode), string(mode))
	if err != nil {
		return nil, fmt.Errorf("querying exercise sets: %w", err)
	}
	defer rows.Close()

	var result []models.ExerciseSetRow
	for rows.Next() {
		var (
			r                models.ExerciseSetRow
			id, conn, m      string
			startMs, endedMs int64
		)
		if err := rows.Scan(&id, &conn, &m, &r.Reps, &startMs, &endedMs); err != nil {
			return nil, fmt.Errorf("scanning exercise set: %w", err)
		}
		if err := r.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("parsing set id %q: %w", id, err)
		}
		if err := r.ConnectionID.UnmarshalText([]byte(conn)); err != nil {
			return nil, fmt.Errorf("parsing connection id %q: %w", conn, err)
		}
		r.Mode = models.Mode(m)
		r.StartedAt = time.UnixMilli(startMs).UTC()
		r.EndedAt = time.UnixMilli(endedMs).UTC()
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetSetSummary aggregates sets that ended in [start, end) per mode.
func (s *SQLite) GetSetSummary(ctx context.Context, start, end time.Time) ([]models.SetSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mode,
		        COUNT(*),
		        COALESCE(SUM(reps), 0),
		        COALESCE(MAX(reps), 0),
		        COALESCE(AVG(reps), 0.0),
		        COALESCE(SUM(ended_ms - started_ms), 0) / 1000.0,
		        MAX(ended_ms)
		 FROM exercise_sets
		 WHERE ended_ms >= ? AND ended_ms < ?
		 GROUP BY mode
		 ORDER BY mode`,
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying set summary: %w", err)
	}
	defer rows.Close()

	var result []models.SetSummary
	for rows.Next() {
		var (
			sum    models.SetSummary
			m      string
			lastMs *int64
		)
		if err := rows.Scan(&m, &sum.Sets, &sum.TotalReps, &sum.MaxReps, &sum.AvgReps, &sum.TotalSec, &lastMs); err != nil {
			return nil, fmt.Errorf("scanning set summary: %w", err)
		}
		sum.Mode = models.Mode(m)
		if lastMs != nil {
			t := time.UnixMilli(*lastMs).UTC()
			sum.LastSetEnd = &t
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}
