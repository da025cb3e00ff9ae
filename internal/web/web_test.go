package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskgate/internal/config"
	"taskgate/internal/engine"
	"taskgate/internal/model"
)

type fakeStore struct {
	tasks []model.Task
	logs  []model.ExecutionLog
	err   error
}

func (f *fakeStore) ActiveTasks(_ context.Context) ([]model.Task, error) {
	return f.tasks, f.err
}

func (f *fakeStore) LogsInRange(_ context.Context, _ []string, _, _ time.Time) ([]model.ExecutionLog, error) {
	return f.logs, f.err
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.FocusTags = []string{"focus"}
	return cfg
}

func testTask() model.Task {
	return model.Task{
		ID:     "t1",
		Title:  "Deep work",
		Active: true,
		Rules:  []model.RecurrenceRule{{Cadence: model.CadenceDaily}},
		Times:  []model.TimeRule{{Start: "09:00", End: "10:00"}},
		Tags:   []string{"focus"},
	}
}

func newTestServer(store Storage) *Server {
	return NewServer(testConfig(), store, engine.NewZoneCache())
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleWindows_HappyPath(t *testing.T) {
	s := newTestServer(&fakeStore{tasks: []model.Task{testTask()}})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/windows?date=2024-06-10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=") {
		t.Errorf("Cache-Control = %q", cc)
	}

	var windows []windowDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &windows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(windows))
	}

	w := windows[0]
	if w.StartAt != "2024-06-10T09:00:00+00:00" {
		t.Errorf("start_at = %q", w.StartAt)
	}
	if strings.HasSuffix(w.StartAt, "Z") || strings.HasSuffix(w.EndAt, "Z") {
		t.Error("instants must carry an explicit numeric offset, not Z")
	}
	if w.Policy.Mode != "blocklist" {
		t.Errorf("policy.mode = %q", w.Policy.Mode)
	}
	if w.Policy.Severity != model.SeverityStrict {
		t.Errorf("policy.severity = %q", w.Policy.Severity)
	}
	if w.Reason != "Task: Deep work #focus" {
		t.Errorf("reason = %q", w.Reason)
	}
}

func TestHandleWindows_MalformedDateFailsLoudly(t *testing.T) {
	s := newTestServer(&fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/windows?date=June+10th", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWindows_NegativeGraceRejected(t *testing.T) {
	s := newTestServer(&fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/windows?pre_grace=-5", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWindows_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	s := newTestServer(&fakeStore{tasks: []model.Task{testTask()}})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/windows?date=2024-06-10&tz=Not/A_Zone", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with UTC fallback", rec.Code)
	}
	var windows []windowDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &windows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(windows) != 1 || !strings.HasSuffix(windows[0].StartAt, "+00:00") {
		t.Errorf("windows = %+v, want UTC offsets", windows)
	}
}

func TestHandleWindows_StoreFailure(t *testing.T) {
	s := newTestServer(&fakeStore{err: errors.New("db locked")})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/windows?date=2024-06-10", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleWindows_DebugMetadata(t *testing.T) {
	task := testTask()
	logTime, _ := time.Parse(time.RFC3339, "2024-06-10T09:30:00Z")
	s := newTestServer(&fakeStore{
		tasks: []model.Task{task},
		logs:  []model.ExecutionLog{{TaskID: "t1", At: logTime, Quantity: 1}},
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/windows?date=2024-06-10&debug=true", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp debugResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Debug.TaskCount != 1 || resp.Debug.WindowCount != 1 {
		t.Errorf("debug = %+v", resp.Debug)
	}
	if resp.Debug.Targets["t1"] != 1 {
		t.Errorf("targets = %v", resp.Debug.Targets)
	}
	if resp.Debug.Completions["t1"] != 1 {
		t.Errorf("completions = %v", resp.Debug.Completions)
	}
}

func TestHandleWindows_CachedResponse(t *testing.T) {
	fs := &fakeStore{tasks: []model.Task{testTask()}}
	s := newTestServer(fs)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/windows?date=2024-06-10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	// Second identical request is served from cache even when the store
	// starts failing.
	fs.err = errors.New("db gone")
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/api/windows?date=2024-06-10", nil))
	if rec2.Code != http.StatusOK {
		t.Errorf("cached status = %d, want 200", rec2.Code)
	}
}

func TestHandleWindowsICS(t *testing.T) {
	s := newTestServer(&fakeStore{tasks: []model.Task{testTask()}})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/windows.ics?date=2024-06-10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "Deep work") {
		t.Errorf("body = %q", body)
	}
}

func TestHandleStats(t *testing.T) {
	logTime, _ := time.Parse(time.RFC3339, "2024-06-10T09:30:00Z")
	s := newTestServer(&fakeStore{
		tasks: []model.Task{testTask()},
		logs:  []model.ExecutionLog{{TaskID: "t1", At: logTime, Quantity: 1}},
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/stats?from=2024-06-09&to=2024-06-10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Days) != 2 {
		t.Fatalf("got %d days, want 2", len(resp.Days))
	}
	if resp.Days[0].Date != "2024-06-09" || resp.Days[0].Done {
		t.Errorf("day 0 = %+v", resp.Days[0])
	}
	if resp.Days[1].Date != "2024-06-10" || !resp.Days[1].Done {
		t.Errorf("day 1 = %+v", resp.Days[1])
	}
	if resp.Streak.Current != 1 {
		t.Errorf("streak = %+v", resp.Streak)
	}
	if resp.Streak.BreakDate != "2024-06-09" {
		t.Errorf("break date = %q", resp.Streak.BreakDate)
	}
}

func TestHandleStats_FromAfterTo(t *testing.T) {
	s := newTestServer(&fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/stats?from=2024-06-12&to=2024-06-10", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	s := NewServer(cfg, &fakeStore{tasks: []model.Task{testTask()}}, engine.NewZoneCache())

	// /health stays open.
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("unauthenticated /health = %d, want 200", rec.Code)
	}

	// API requires credentials.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/windows", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /api/windows = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/windows?date=2024-06-10", nil)
	req.SetBasicAuth("admin", "secret")
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated /api/windows = %d, want 200", rec.Code)
	}
}
