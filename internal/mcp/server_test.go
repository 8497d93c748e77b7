package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

type fakeSource struct {
	sets    []models.ExerciseSetRow
	err     error
	gotMode models.Mode
}

func (f *fakeSource) QueryExerciseSets(ctx context.Context, start, end time.Time, mode models.Mode) ([]models.ExerciseSetRow, error) {
	f.gotMode = mode
	return f.sets, f.err
}

func (f *fakeSource) GetSetSummary(ctx context.Context, start, end time.Time) ([]models.SetSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.SetSummary{{Mode: models.ModeCurl, Sets: len(f.sets)}}, nil
}

type fakeSessions []session.Snapshot

func (f fakeSessions) List() []session.Snapshot { return f }

func newTestHandlers(ds DataSource, sessions SessionLister) *handlers {
	return &handlers{ds: ds, sessions: sessions, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

// TestDefaultTimeRange verifies time range defaults (last 7 days) and parsing.
func TestDefaultTimeRange(t *testing.T) {
	// Both empty → defaults to last 7 days
	start, end, err := defaultTimeRange("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	diff := end.Sub(start)
	if diff.Hours() < 167 || diff.Hours() > 169 { // ~168 hours = 7 days
		t.Errorf("default range = %.0f hours, want ~168", diff.Hours())
	}

	// Explicit dates
	start, end, err = defaultTimeRange("2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Year() != 2024 || start.Month() != 1 || start.Day() != 1 {
		t.Errorf("start = %v, want 2024-01-01", start)
	}
	if end.Year() != 2024 || end.Month() != 1 || end.Day() != 31 {
		t.Errorf("end = %v, want 2024-01-31", end)
	}

	// RFC3339
	start, _, err = defaultTimeRange("2024-06-15T10:30:00Z", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Hour() != 10 || start.Minute() != 30 {
		t.Errorf("start = %v, want 10:30", start)
	}

	// Invalid
	_, _, err = defaultTimeRange("not-a-date", "")
	if err == nil {
		t.Error("expected error for invalid date")
	}
}

// TestGetExerciseSets verifies the tool passes the mode filter and returns JSON rows.
func TestGetExerciseSets(t *testing.T) {
	row := models.ExerciseSetRow{ID: uuid.New(), Mode: models.ModeCurl, Reps: 12}
	ds := &fakeSource{sets: []models.ExerciseSetRow{row}}
	h := newTestHandlers(ds, fakeSessions(nil))

	res, err := h.getExerciseSets(context.Background(), callRequest(map[string]any{"mode": "Curl"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if ds.gotMode != models.ModeCurl {
		t.Errorf("mode filter = %q, want curl", ds.gotMode)
	}

	var got []models.ExerciseSetRow
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != row.ID || got[0].Reps != 12 {
		t.Errorf("rows = %+v", got)
	}
}

// TestGetExerciseSetsErrors verifies bad arguments and query failures become tool errors.
func TestGetExerciseSetsErrors(t *testing.T) {
	tests := []struct {
		name string
		ds   *fakeSource
		args map[string]any
	}{
		{"bad mode", &fakeSource{}, map[string]any{"mode": "plank"}},
		{"bad date", &fakeSource{}, map[string]any{"start": "last tuesday"}},
		{"query failure", &fakeSource{err: errors.New("db down")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandlers(tt.ds, fakeSessions(nil))
			res, err := h.getExerciseSets(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError {
				t.Error("expected tool error result")
			}
		})
	}
}

// TestGetSetSummary verifies summary rows are serialized.
func TestGetSetSummary(t *testing.T) {
	ds := &fakeSource{sets: make([]models.ExerciseSetRow, 3)}
	h := newTestHandlers(ds, fakeSessions(nil))

	res, err := h.getSetSummary(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	var got []models.SetSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Sets != 3 {
		t.Errorf("summary = %+v", got)
	}
}

// TestActiveSessions verifies the tool and the resource expose registry snapshots.
func TestActiveSessions(t *testing.T) {
	snaps := fakeSessions{{ID: uuid.New(), Mode: models.ModeSquat, Reps: 4}}
	h := newTestHandlers(nil, snaps)

	res, err := h.listActiveSessions(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	var got []session.Snapshot
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Reps != 4 {
		t.Errorf("sessions = %+v", got)
	}

	var req mcp.ReadResourceRequest
	req.Params.URI = "repcoach://active_sessions"
	contents, err := h.activeSessions(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok || text.URI != req.Params.URI || text.MIMEType != "application/json" {
		t.Errorf("resource = %+v", contents[0])
	}

	empty := newTestHandlers(nil, fakeSessions(nil))
	res, _ = empty.listActiveSessions(context.Background(), callRequest(nil))
	if txt := resultText(t, res); txt != "[]" {
		t.Errorf("empty sessions = %s, want []", txt)
	}
}

// TestNewWithoutHistory verifies the server builds when history is disabled.
func TestNewWithoutHistory(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if New(nil, fakeSessions(nil), "test", log) == nil {
		t.Fatal("New returned nil")
	}
}

// TestRegisteredTools verifies tools are only offered when their data exists.
func TestRegisteredTools(t *testing.T) {
	tests := []struct {
		name          string
		ds            DataSource
		sessions      SessionLister
		wantTools     []string
		wantResources int
	}{
		{"history and sessions", &fakeSource{}, fakeSessions(nil), []string{"list_active_sessions", "get_exercise_sets", "get_set_summary"}, 1},
		{"sessions only", nil, fakeSessions(nil), []string{"list_active_sessions"}, 1},
		{"history only", &fakeSource{}, nil, []string{"get_exercise_sets", "get_set_summary"}, 0},
		{"nothing", nil, nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandlers(tt.ds, tt.sessions)
			var got []string
			for _, st := range h.tools() {
				got = append(got, st.Tool.Name)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantTools, ",") {
				t.Errorf("tools = %v, want %v", got, tt.wantTools)
			}
			if n := len(h.resources()); n != tt.wantResources {
				t.Errorf("resources = %d, want %d", n, tt.wantResources)
			}
		})
	}
}
