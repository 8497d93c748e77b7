package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/engine"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
	"github.com/claude/repcoach/internal/vision"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const testAPIKey = "test-key"

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

// memStore records inserted sets.
type memStore struct {
	mu   sync.Mutex
	sets []models.ExerciseSetRow
}

func (m *memStore) InsertExerciseSet(ctx context.Context, r models.ExerciseSetRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = append(m.sets, r)
	return nil
}

func (m *memStore) QueryExerciseSets(ctx context.Context, start, end time.Time, mode models.Mode) ([]models.ExerciseSetRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ExerciseSetRow(nil), m.sets...), nil
}

func (m *memStore) GetSetSummary(ctx context.Context, start, end time.Time) ([]models.SetSummary, error) {
	return nil, nil
}

func (m *memStore) Close() {}

func (m *memStore) stored() []models.ExerciseSetRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ExerciseSetRow(nil), m.sets...)
}

// fakePose returns fixed landmarks and a canned rendered image.
type fakePose struct {
	landmarks *models.LandmarkSet
	got       chan []byte
	err       error
}

func (f *fakePose) Process(ctx context.Context, jpeg []byte) (vision.Frame, error) {
	if f.got != nil {
		f.got <- jpeg
	}
	if f.err != nil {
		return nil, f.err
	}
	return fakeFrame{lm: f.landmarks}, nil
}

func (f *fakePose) Close() error { return nil }

type fakeFrame struct{ lm *models.LandmarkSet }

func (f fakeFrame) Landmarks() *models.LandmarkSet      { return f.lm }
func (f fakeFrame) Render(models.Event) (string, error) { return "cmVuZGVyZWQ=", nil }
func (f fakeFrame) Close()                              {}

// steppingClock advances 40ms per call, like a 25fps camera.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(40 * time.Millisecond)
		return now
	}
}

func newTestServer(t *testing.T, store storage.Store, pose vision.Estimator) (*httptest.Server, *Server) {
	t.Helper()
	e, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	reg, err := session.NewRegistry(e, models.DefaultMode)
	if err != nil {
		t.Fatal(err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := Options{APIKey: testAPIKey, IdleTimeout: 5 * time.Second, MaxMessageBytes: 1 << 20}

	s := New(reg, store, pose, nil, opts, log)
	s.now = steppingClock()
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts, s
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) (models.Event, map[string]json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	var raw map[string]json.RawMessage
	json.Unmarshal(data, &raw)
	return ev, raw
}

// arm returns a left arm with the wrist straight down (180°) or folded onto
// the shoulder (0°).
func arm(straight bool) models.FrameMessage {
	var lm models.LandmarkSet
	lm[models.LeftShoulder] = models.Landmark{Point: models.Point{X: 100, Y: 100}, Confidence: 0.9}
	lm[models.LeftElbow] = models.Landmark{Point: models.Point{X: 100, Y: 200}, Confidence: 0.9}
	wrist := models.Point{X: 100, Y: 300}
	if !straight {
		wrist = models.Point{X: 100, Y: 130}
	}
	lm[models.LeftWrist] = models.Landmark{Point: wrist, Confidence: 0.9}
	return models.FrameMessage{Landmarks: &lm}
}

// curlRep switches to curl and performs one rep, returning the last event.
func curlRep(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	send(t, conn, models.ConfigEvent{Config: true, Mode: "curl"})

	var last models.Event
	frames := []bool{false, true, true, true, true, true, false, false, false, false, false}
	for _, straight := range frames {
		send(t, conn, arm(straight))
		last, _ = readEvent(t, conn)
	}
	return last
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestWebSocketCurlSession drives a full curl rep over the wire and checks the
// set is stored on disconnect.
func TestWebSocketCurlSession(t *testing.T) {
	store := &memStore{}
	ts, s := newTestServer(t, store, nil)
	conn := dial(t, ts)

	ev := curlRep(t, conn)
	if ev.Reps != 1 {
		t.Errorf("reps = %d, want 1", ev.Reps)
	}
	if ev.Mode != models.ModeCurl || ev.Phase != string(engine.PhaseActive) {
		t.Errorf("mode/phase = %s/%s, want curl/active", ev.Mode, ev.Phase)
	}
	if _, ok := ev.Keypoints["elbow"]; !ok {
		t.Errorf("keypoints = %v, want elbow", ev.Keypoints)
	}
	if s.sessions.Len() != 1 {
		t.Errorf("active sessions = %d, want 1", s.sessions.Len())
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, "set persisted", func() bool { return len(store.stored()) == 1 })
	waitFor(t, "session closed", func() bool { return s.sessions.Len() == 0 })
	if got := store.stored()[0]; got.Mode != models.ModeCurl || got.Reps != 1 {
		t.Errorf("stored set = %+v, want 1 curl rep", got)
	}
}

// TestWebSocketModeSwitchStoresSet verifies a mode change closes the previous set.
func TestWebSocketModeSwitchStoresSet(t *testing.T) {
	store := &memStore{}
	ts, _ := newTestServer(t, store, nil)
	conn := dial(t, ts)

	curlRep(t, conn)
	send(t, conn, models.ConfigEvent{Config: true, Mode: "squat"})
	send(t, conn, models.FrameMessage{})
	ev, _ := readEvent(t, conn)

	if ev.Reps != 0 || ev.Mode != models.ModeSquat || ev.Phase != string(engine.PhaseCalibrating) {
		t.Errorf("after switch = %+v, want fresh squat session", ev)
	}
	sets := store.stored()
	if len(sets) != 1 || sets[0].Mode != models.ModeCurl {
		t.Errorf("stored = %+v, want one curl set", sets)
	}
}

// TestWebSocketNoDetection verifies the neutral event keeps keypoints as an object.
func TestWebSocketNoDetection(t *testing.T) {
	ts, _ := newTestServer(t, nil, nil)
	conn := dial(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"landmarks": null}`)); err != nil {
		t.Fatal(err)
	}
	ev, raw := readEvent(t, conn)
	if ev.Feedback != engine.FeedbackStandInFrame || ev.Color != models.ColorGray {
		t.Errorf("event = %q/%s, want stand in frame/gray", ev.Feedback, ev.Color)
	}
	if string(raw["keypoints"]) != "{}" {
		t.Errorf("keypoints = %s, want {}", raw["keypoints"])
	}
	if _, ok := raw["processed_image"]; ok {
		t.Error("processed_image must be omitted without an image pipeline")
	}
	if ev.Mode != models.ModeSquat {
		t.Errorf("default mode = %s, want squat", ev.Mode)
	}
}

// TestWebSocketDropsBadMessages verifies malformed input gets no reply and
// the loop keeps going.
func TestWebSocketDropsBadMessages(t *testing.T) {
	ts, _ := newTestServer(t, nil, nil)
	conn := dial(t, ts)

	for _, msg := range []string{
		`{"landmarks": [[1, 2, 3]]}`,
		`{"config": "yes"}`,
		"data:image/jpeg;base64,/9j/4AAQ", // no pipeline configured
		"data:image/jpeg;base64,",
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}
	send(t, conn, models.FrameMessage{})

	ev, _ := readEvent(t, conn)
	if ev.Feedback != engine.FeedbackStandInFrame {
		t.Errorf("first reply = %q, want the neutral event for the valid frame", ev.Feedback)
	}
}

// TestWebSocketUnknownMode verifies a bad mode is reported and the session kept.
func TestWebSocketUnknownMode(t *testing.T) {
	ts, _ := newTestServer(t, nil, nil)
	conn := dial(t, ts)

	send(t, conn, models.ConfigEvent{Config: true, Mode: "plank"})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply errorReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(reply.Error, "unknown exercise mode") {
		t.Errorf("error = %q", reply.Error)
	}

	send(t, conn, models.FrameMessage{})
	if ev, _ := readEvent(t, conn); ev.Mode != models.ModeSquat {
		t.Errorf("mode = %s, want squat unchanged", ev.Mode)
	}
}

// TestWebSocketImagePipeline verifies binary and data URL frames go through the
// estimator and come back with the rendered overlay.
func TestWebSocketImagePipeline(t *testing.T) {
	pose := &fakePose{got: make(chan []byte, 2)}
	ts, _ := newTestServer(t, nil, pose)
	conn := dial(t, ts)

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	if err := conn.WriteMessage(websocket.BinaryMessage, jpeg); err != nil {
		t.Fatal(err)
	}
	ev, _ := readEvent(t, conn)
	if ev.ProcessedImage != "cmVuZGVyZWQ=" {
		t.Errorf("processed_image = %q", ev.ProcessedImage)
	}
	if got := <-pose.got; string(got) != string(jpeg) {
		t.Errorf("estimator got %x, want %x", got, jpeg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("data:image/jpeg;base64,/9j/2Q==")); err != nil {
		t.Fatal(err)
	}
	if ev, _ := readEvent(t, conn); ev.ProcessedImage == "" {
		t.Error("data URL frame was not rendered")
	}
	if got := <-pose.got; string(got) != string(jpeg) {
		t.Errorf("estimator got %x from data URL, want %x", got, jpeg)
	}
}

// TestWebSocketInferenceFailure verifies a failing estimator drops the frame only.
func TestWebSocketInferenceFailure(t *testing.T) {
	pose := &fakePose{err: errors.New("model exploded")}
	ts, _ := newTestServer(t, nil, pose)
	conn := dial(t, ts)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0xFF, 0xD8}); err != nil {
		t.Fatal(err)
	}
	send(t, conn, models.FrameMessage{})
	if ev, _ := readEvent(t, conn); ev.Feedback != engine.FeedbackStandInFrame {
		t.Errorf("reply = %q, want the landmark frame's event", ev.Feedback)
	}
}

// TestHealthAndSessions verifies the status endpoints reflect live connections.
func TestHealthAndSessions(t *testing.T) {
	ts, _ := newTestServer(t, nil, nil)

	var health map[string]any
	getJSON(t, ts.URL+"/api/v1/health", "", http.StatusOK, &health)
	if health["status"] != "ok" || health["active_sessions"] != float64(0) || health["history"] != false {
		t.Errorf("health = %v", health)
	}

	conn := dial(t, ts)
	send(t, conn, models.FrameMessage{})
	readEvent(t, conn)

	var snaps []session.Snapshot
	getJSON(t, ts.URL+"/api/v1/sessions", "", http.StatusOK, &snaps)
	if len(snaps) != 1 {
		t.Fatalf("sessions = %d, want 1", len(snaps))
	}
	if snaps[0].Frames != 1 || snaps[0].Mode != models.ModeSquat {
		t.Errorf("snapshot = %+v", snaps[0])
	}
}

// TestQuerySets verifies history endpoints against the embedded store.
func TestQuerySets(t *testing.T) {
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)

	ended := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	row := models.ExerciseSetRow{
		ID: uuid.New(), ConnectionID: uuid.New(), Mode: models.ModeSquat, Reps: 9,
		StartedAt: ended.Add(-time.Minute), EndedAt: ended,
	}
	if err := store.InsertExerciseSet(context.Background(), row); err != nil {
		t.Fatal(err)
	}
	ts, _ := newTestServer(t, store, nil)

	getJSON(t, ts.URL+"/api/v1/sets", "", http.StatusUnauthorized, nil)

	var sets []models.ExerciseSetRow
	getJSON(t, ts.URL+"/api/v1/sets?mode=squat", testAPIKey, http.StatusOK, &sets)
	if len(sets) != 1 || sets[0].ID != row.ID || sets[0].Reps != 9 {
		t.Errorf("sets = %+v", sets)
	}

	getJSON(t, ts.URL+"/api/v1/sets?mode=curl", testAPIKey, http.StatusOK, &sets)
	if len(sets) != 0 {
		t.Errorf("curl sets = %d, want 0", len(sets))
	}

	getJSON(t, ts.URL+"/api/v1/sets?mode=plank", testAPIKey, http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/api/v1/sets?start=yesterday", testAPIKey, http.StatusBadRequest, nil)

	var summary []models.SetSummary
	getJSON(t, ts.URL+"/api/v1/sets/summary", testAPIKey, http.StatusOK, &summary)
	if len(summary) != 1 || summary[0].TotalReps != 9 {
		t.Errorf("summary = %+v", summary)
	}
}

// TestQuerySetsHistoryDisabled verifies a clear error without a store.
func TestQuerySetsHistoryDisabled(t *testing.T) {
	ts, _ := newTestServer(t, nil, nil)
	getJSON(t, ts.URL+"/api/v1/sets", testAPIKey, http.StatusServiceUnavailable, nil)
	getJSON(t, ts.URL+"/api/v1/sets/summary", testAPIKey, http.StatusServiceUnavailable, nil)
}

func getJSON(t *testing.T, url, apiKey string, wantStatus int, out any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

// TestShutdownStoresOpenSets verifies a graceful shutdown ends live streams
// and waits until their in-progress sets are stored.
func TestShutdownStoresOpenSets(t *testing.T) {
	store := &memStore{}
	ts, s := newTestServer(t, store, nil)
	conn := dial(t, ts)

	if ev := curlRep(t, conn); ev.Reps != 1 {
		t.Fatalf("reps = %d, want 1", ev.Reps)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ts.Config.Shutdown(ctx); err != nil {
		t.Fatalf("http shutdown: %v", err)
	}
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if got := store.stored(); len(got) != 1 || got[0].Reps != 1 {
		t.Errorf("stored sets = %+v, want one 1-rep curl set", got)
	}
	if s.sessions.Len() != 0 {
		t.Errorf("active sessions = %d, want 0", s.sessions.Len())
	}

	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("client read err = %v, want going away close", err)
	}
}

// TestShutdownRefusesNewStreams verifies connections arriving after shutdown
// are closed straight away.
func TestShutdownRefusesNewStreams(t *testing.T) {
	ts, s := newTestServer(t, nil, nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	conn := dial(t, ts)
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read err = %v, want going away close", err)
	}
	if s.sessions.Len() != 0 {
		t.Errorf("active sessions = %d, want 0", s.sessions.Len())
	}
}
