package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"skycal/internal/config"
	"skycal/internal/fetch"
	appLog "skycal/internal/log"
	"skycal/internal/model"
	"skycal/internal/schedule"
	"skycal/internal/widget"
)

// Coordinator is the part of the fetch coordinator the API exposes.
type Coordinator interface {
	Refresh(ctx context.Context, force bool, anchor time.Time) fetch.Report
	LastReport() fetch.Report
}

// Server exposes the widget view model and its navigation commands as JSON.
type Server struct {
	cfg     *config.Config
	widget  *widget.Widget
	coord   Coordinator
	metrics http.Handler
	mux     *http.ServeMux
}

// NewServer constructs a new Server. metrics may be nil, in which case
// /metrics is not registered.
func NewServer(cfg *config.Config, w *widget.Widget, coord Coordinator, metrics http.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		widget:  w,
		coord:   coord,
		metrics: metrics,
		mux:     http.NewServeMux(),
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

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// 빈 사용자명 또는 비밀번호가 설정된 경우에는 비활성화로 취급한다.
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
		// /health 는 항상 무인증으로 노출한다.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="SkyCal", charset="UTF-8"`)
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

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully, giving in-flight requests up to five seconds.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("GET /api/view", s.handleView)
	s.mux.HandleFunc("GET /api/day", s.handleDay)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	s.mux.HandleFunc("POST /api/next", s.handleNext)
	s.mux.HandleFunc("POST /api/previous", s.handlePrevious)
	s.mux.HandleFunc("POST /api/today", s.handleToday)
	s.mux.HandleFunc("POST /api/view-mode", s.handleViewMode)
	s.mux.HandleFunc("POST /api/sources/{id}/toggle", s.handleToggle)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	v, err := s.widget.View()
	if err != nil {
		appLog.Error("failed to build view", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// dayResponse is the JSON response shape for /api/day.
type dayResponse struct {
	Date   string                `json:"date"`
	Events []model.CalendarEvent `json:"events"`
	More   int                   `json:"more,omitempty"`
}

// handleDay lists the visible events of one day in list order.
//
// GET /api/day?date=2024-06-05&limit=0
//   - date:  표시 타임존 기준 날짜 (필수)
//   - limit: 최대 개수, 0 이하이면 전부
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	loc := resolveLocationOrLocal(s.cfg.Timezone)
	day, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	events := schedule.SortForList(s.widget.EventsForDay(day))
	events, more := schedule.Truncate(events, parseIntDefault(q.Get("limit"), 0))
	writeJSON(w, http.StatusOK, dayResponse{Date: raw, Events: events, More: more})
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	State  widget.ViewState `json:"state"`
	Report fetch.Report     `json:"last_refresh"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		State:  s.widget.State(),
		Report: s.coord.LastReport(),
	})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.widget.Next(r.Context()))
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.widget.Previous(r.Context()))
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.widget.Today(r.Context()))
}

func (s *Server) handleViewMode(w http.ResponseWriter, r *http.Request) {
	state, err := s.widget.SetViewMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	state, err := s.widget.ToggleSource(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleRefresh runs a forced refresh around the current anchor and returns
// its report. A refresh already in flight yields a skipped_busy report.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	report := s.coord.Refresh(context.WithoutCancel(r.Context()), true, s.widget.State().Anchor)
	writeJSON(w, http.StatusOK, report)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
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
