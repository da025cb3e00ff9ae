package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskgate/internal/config"
	"taskgate/internal/engine"
	"taskgate/internal/ical"
	appLog "taskgate/internal/log"
	"taskgate/internal/model"
)

// statsLookback is how far beyond the evaluated date range execution logs
// are fetched, so completions logged near midnight in distant zones are
// never undercounted.
const statsLookback = 48 * time.Hour

// Storage is the read-only contract the boundary needs from the storage
// collaborator. I/O failures propagate as hard failures; the engine holds
// no fallback data of its own.
type Storage interface {
	ActiveTasks(ctx context.Context) ([]model.Task, error)
	LogsInRange(ctx context.Context, taskIDs []string, from, to time.Time) ([]model.ExecutionLog, error)
}

// Server exposes the rule engine over HTTP for the polling blocking
// client and the dashboard.
type Server struct {
	cfg   *config.Config
	store Storage
	zones *engine.ZoneCache
	mux   *http.ServeMux

	// In-memory cache for the most recent /api/windows response, so the
	// polling client does not trigger a recompute on every request. The
	// cron refresher repopulates it on schedule.
	windowsMu    sync.RWMutex
	windowsCache *windowsCache
}

// windowsCache holds one cached windows payload keyed by its canonical
// request parameters.
type windowsCache struct {
	key       string
	windows   []model.Window
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, store Storage, zones *engine.ZoneCache) *Server {
	if zones == nil {
		zones = engine.NewZoneCache()
	}
	s := &Server{
		cfg:   cfg,
		store: store,
		zones: zones,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Treat empty username or password as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays unauthenticated so liveness probes keep working.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="taskgate", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the HTTP server until ctx is canceled, with graceful
// shutdown and a cron-driven background recompute of the windows cache.
func Serve(ctx context.Context, cfg *config.Config, store Storage) error {
	s := NewServer(cfg, store, engine.NewZoneCache())

	c := cron.New()
	if _, err := c.AddFunc(cfg.RefreshCron, func() {
		s.refreshWindowsCache(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", cfg.RefreshCron, err)
	}
	c.Start()
	defer c.Stop()

	// Warm the cache so the first poll after startup is served hot.
	s.refreshWindowsCache(ctx)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/windows", s.handleWindows)
	s.mux.HandleFunc("/api/windows.ics", s.handleWindowsICS)
	s.mux.HandleFunc("/api/stats", s.handleStats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// windowRequest is the validated per-request configuration for a window
// computation, resolved from query parameters and config defaults.
type windowRequest struct {
	date      engine.Date
	zone      string
	focusOnly bool
	merge     bool
	preGrace  int
	postGrace int
	duration  int
	debug     bool
}

// parseWindowRequest validates query parameters per the boundary rules:
// a malformed date or a negative numeric option fails loudly with an
// error; an unresolvable timezone quietly falls back to UTC. The engine
// itself never sees invalid input.
func (s *Server) parseWindowRequest(q url.Values) (windowRequest, error) {
	req := windowRequest{
		zone:      s.cfg.Timezone,
		focusOnly: true,
		merge:     true,
		preGrace:  s.cfg.PreGraceMinutes,
		postGrace: s.cfg.PostGraceMinutes,
		duration:  s.cfg.DurationMinutes,
	}

	if tz := q.Get("tz"); tz != "" {
		req.zone = tz
	}
	if !s.zones.Valid(req.zone) {
		appLog.Error("unresolvable timezone, falling back to UTC", errors.New("unknown zone"), "tz", req.zone)
		req.zone = "UTC"
	}
	loc, err := s.zones.Load(req.zone)
	if err != nil {
		// UTC always resolves; reaching this means a broken zone database.
		return req, fmt.Errorf("resolve timezone: %w", err)
	}

	if ds := q.Get("date"); ds != "" {
		d, err := engine.ParseDate(ds)
		if err != nil {
			return req, err
		}
		req.date = d
	} else {
		req.date = engine.Today(loc)
	}

	var perr error
	req.focusOnly = parseBoolDefault(q.Get("focus_only"), true, &perr)
	req.merge = parseBoolDefault(q.Get("merge"), true, &perr)
	req.preGrace = parseNonNegDefault(q.Get("pre_grace"), req.preGrace, &perr)
	req.postGrace = parseNonNegDefault(q.Get("post_grace"), req.postGrace, &perr)
	req.duration = parseNonNegDefault(q.Get("duration"), req.duration, &perr)
	req.debug = parseBoolDefault(q.Get("debug"), false, &perr)
	if perr != nil {
		return req, perr
	}

	return req, nil
}

func (r windowRequest) cacheKey() string {
	return fmt.Sprintf("%s|%s|%t|%t|%d|%d|%d",
		r.date, r.zone, r.focusOnly, r.merge, r.preGrace, r.postGrace, r.duration)
}

func (s *Server) windowOptions(req windowRequest) engine.WindowOptions {
	return engine.WindowOptions{
		Date:               req.date,
		DefaultTimezone:    req.zone,
		PreGraceMin:        req.preGrace,
		PostGraceMin:       req.postGrace,
		DurationDefaultMin: req.duration,
		FocusTags:          s.cfg.FocusTags,
		FocusOnly:          req.focusOnly,
		RedirectURL:        s.cfg.RedirectURL,
		Merge:              req.merge,
	}
}

// computeWindows runs the full pipeline for one request, consulting the
// TTL cache first. Only non-debug requests are cacheable.
func (s *Server) computeWindows(ctx context.Context, req windowRequest) ([]model.Window, []model.Task, error) {
	key := req.cacheKey()
	ttl := time.Duration(s.cfg.CacheTTLSeconds) * time.Second

	if !req.debug {
		s.windowsMu.RLock()
		wc := s.windowsCache
		s.windowsMu.RUnlock()
		if wc != nil && wc.key == key && time.Since(wc.updatedAt) < ttl {
			return wc.windows, nil, nil
		}
	}

	tasks, err := s.store.ActiveTasks(ctx)
	if err != nil {
		return nil, nil, err
	}

	windows := engine.BuildWindows(tasks, s.windowOptions(req), s.zones)

	if !req.debug {
		s.windowsMu.Lock()
		s.windowsCache = &windowsCache{key: key, windows: windows, updatedAt: time.Now()}
		s.windowsMu.Unlock()
	}
	return windows, tasks, nil
}

// refreshWindowsCache recomputes the default-parameter window list, used
// by the cron schedule to keep the polling client's view warm.
func (s *Server) refreshWindowsCache(ctx context.Context) {
	req, err := s.parseWindowRequest(url.Values{})
	if err != nil {
		appLog.Error("windows refresh: bad default request", err)
		return
	}

	tasks, err := s.store.ActiveTasks(ctx)
	if err != nil {
		appLog.Error("windows refresh: store unavailable", err)
		return
	}

	windows := engine.BuildWindows(tasks, s.windowOptions(req), s.zones)

	s.windowsMu.Lock()
	s.windowsCache = &windowsCache{key: req.cacheKey(), windows: windows, updatedAt: time.Now()}
	s.windowsMu.Unlock()

	appLog.Info("windows cache refreshed", "date", req.date.String(), "window_count", len(windows))
}

// windowDTO is the wire shape consumed by the polling blocking client.
type windowDTO struct {
	StartAt string    `json:"start_at"`
	EndAt   string    `json:"end_at"`
	Reason  string    `json:"reason"`
	Policy  policyDTO `json:"policy"`
}

type policyDTO struct {
	Mode        string `json:"mode"`
	RedirectURL string `json:"redirect_url"`
	Severity    string `json:"severity"`
}

func toWindowDTOs(windows []model.Window) []windowDTO {
	dtos := make([]windowDTO, 0, len(windows))
	for _, w := range windows {
		dtos = append(dtos, windowDTO{
			StartAt: engine.FormatInstant(w.Start),
			EndAt:   engine.FormatInstant(w.End),
			Reason:  w.Reason,
			Policy: policyDTO{
				Mode:        "blocklist",
				RedirectURL: w.RedirectURL,
				Severity:    w.Severity,
			},
		})
	}
	return dtos
}

// debugResponse wraps the window list with evaluation metadata when the
// debug flag is set.
type debugResponse struct {
	Windows []windowDTO `json:"windows"`
	Debug   debugMeta   `json:"debug"`
}

type debugMeta struct {
	TaskCount   int            `json:"task_count"`
	WindowCount int            `json:"window_count"`
	Targets     map[string]int `json:"targets"`
	Completions map[string]int `json:"completions"`
}

// handleWindows serves the blocking window list for one date.
//
// GET /api/windows?date=2024-06-10&tz=America/New_York&focus_only=true
//
//	&merge=true&pre_grace=0&post_grace=3&duration=60&debug=false
func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := s.parseWindowRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	windows, tasks, err := s.computeWindows(ctx, req)
	if err != nil {
		appLog.Error("windows: store unavailable", err)
		writeError(w, http.StatusInternalServerError, "failed to load task snapshots")
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", s.cfg.CacheTTLSeconds))

	if !req.debug {
		writeJSON(w, http.StatusOK, toWindowDTOs(windows))
		return
	}

	meta, err := s.debugMetadata(ctx, req, tasks, len(windows))
	if err != nil {
		appLog.Error("windows: debug metadata failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load completion logs")
		return
	}
	writeJSON(w, http.StatusOK, debugResponse{Windows: toWindowDTOs(windows), Debug: meta})
}

func (s *Server) debugMetadata(ctx context.Context, req windowRequest, tasks []model.Task, windowCount int) (debugMeta, error) {
	meta := debugMeta{
		TaskCount:   len(tasks),
		WindowCount: windowCount,
		Targets:     make(map[string]int, len(tasks)),
		Completions: make(map[string]int, len(tasks)),
	}

	from := req.date.Time().Add(-statsLookback)
	to := req.date.Time().Add(24*time.Hour + statsLookback)
	logs, err := s.store.LogsInRange(ctx, nil, from, to)
	if err != nil {
		return meta, err
	}

	locByTask := make(map[string]string, len(tasks))
	for _, task := range tasks {
		meta.Targets[task.ID] = engine.Target(task, req.date)
		meta.Completions[task.ID] = 0
		locByTask[task.ID] = engine.EffectiveZone(task, req.zone)
	}

	for _, entry := range logs {
		zone, ok := locByTask[entry.TaskID]
		if !ok {
			continue
		}
		loc, err := s.zones.Load(zone)
		if err != nil {
			loc = time.UTC
		}
		if entry.At.In(loc).Format("2006-01-02") != req.date.String() {
			continue
		}
		qty := entry.Quantity
		if qty <= 0 {
			qty = 1
		}
		meta.Completions[entry.TaskID] += qty
	}

	return meta, nil
}

// handleWindowsICS serves the same windows as an iCalendar feed.
func (s *Server) handleWindowsICS(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseWindowRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.debug = false

	windows, _, err := s.computeWindows(r.Context(), req)
	if err != nil {
		appLog.Error("windows.ics: store unavailable", err)
		writeError(w, http.StatusInternalServerError, "failed to load task snapshots")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", s.cfg.CacheTTLSeconds))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ical.Serialize(windows, time.Now().UTC())))
}

// statsResponse is the dashboard payload: per-day aggregates in ascending
// date order plus the streak summary.
type statsResponse struct {
	Days     []dayStatDTO `json:"days"`
	Streak   streakDTO    `json:"streak"`
	Timezone string       `json:"timezone"`
}

type dayStatDTO struct {
	Date           string `json:"date"`
	Required       int    `json:"required"`
	CompletedCount int    `json:"completed_count"`
	Done           bool   `json:"done"`
}

type streakDTO struct {
	Current   int    `json:"current"`
	Longest   int    `json:"longest"`
	BreakDate string `json:"break_date,omitempty"`
}

// handleStats serves rolling day stats and streaks.
//
// GET /api/stats?from=2024-06-01&to=2024-06-14&tz=America/New_York
//
// from/to default to the last 14 days ending today in the requested
// timezone. Task snapshots and execution logs are fetched concurrently;
// computation waits for both.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	zone := s.cfg.Timezone
	if tz := q.Get("tz"); tz != "" {
		zone = tz
	}
	if !s.zones.Valid(zone) {
		appLog.Error("unresolvable timezone, falling back to UTC", errors.New("unknown zone"), "tz", zone)
		zone = "UTC"
	}
	loc, err := s.zones.Load(zone)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve timezone")
		return
	}

	to := engine.Today(loc)
	if ts := q.Get("to"); ts != "" {
		d, err := engine.ParseDate(ts)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		to = d
	}
	from := to.AddDays(-13)
	if fs := q.Get("from"); fs != "" {
		d, err := engine.ParseDate(fs)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		from = d
	}
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "from is after to")
		return
	}

	var (
		wg       sync.WaitGroup
		tasks    []model.Task
		logs     []model.ExecutionLog
		tasksErr error
		logsErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		tasks, tasksErr = s.store.ActiveTasks(ctx)
	}()
	go func() {
		defer wg.Done()
		logs, logsErr = s.store.LogsInRange(ctx, nil,
			from.Time().Add(-statsLookback),
			to.Time().Add(24*time.Hour+statsLookback))
	}()
	wg.Wait()

	if tasksErr != nil || logsErr != nil {
		appLog.Error("stats: store unavailable", errors.Join(tasksErr, logsErr))
		writeError(w, http.StatusInternalServerError, "failed to load snapshots")
		return
	}

	stats := engine.DayStats(tasks, logs, from, to, zone, s.zones)
	streak := engine.Streak(stats, from, to, to)

	days := make([]dayStatDTO, 0, len(stats))
	for d := from; !d.After(to); d = d.AddDays(1) {
		st := stats[d.String()]
		days = append(days, dayStatDTO{
			Date:           st.Date,
			Required:       st.Required,
			CompletedCount: st.Completed,
			Done:           st.Done,
		})
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Days: days,
		Streak: streakDTO{
			Current:   streak.Current,
			Longest:   streak.Longest,
			BreakDate: streak.BreakDate,
		},
		Timezone: zone,
	})
}

func parseBoolDefault(s string, def bool, perr *error) bool {
	if s == "" || *perr != nil {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		*perr = fmt.Errorf("invalid boolean %q", s)
		return def
	}
	return v
}

func parseNonNegDefault(s string, def int, perr *error) int {
	if s == "" || *perr != nil {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		*perr = fmt.Errorf("invalid non-negative integer %q", s)
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
