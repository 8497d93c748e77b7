package models

import (
	"time"

	"github.com/google/uuid"
)

// ExerciseSetRow is a completed set, ready for insertion into the exercise_sets table.
type ExerciseSetRow struct {
	ID           uuid.UUID `json:"id"`
	ConnectionID uuid.UUID `json:"connection_id"`
	Mode         Mode      `json:"mode"`
	Reps         int       `json:"reps"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}

// DurationSec returns the wall time of the set in seconds.
func (r ExerciseSetRow) DurationSec() float64 {
	return r.EndedAt.Sub(r.StartedAt).Seconds()
}

// SetSummary aggregates completed sets for one mode.
type SetSummary struct {
	Mode       Mode       `json:"mode"`
	Sets       int        `json:"sets"`
	TotalReps  int        `json:"total_reps"`
	MaxReps    int        `json:"max_reps"`
	AvgReps    float64    `json:"avg_reps"`
	TotalSec   float64    `json:"total_sec"`
	LastSetEnd *time.Time `json:"last_set_end,omitempty"`
}
