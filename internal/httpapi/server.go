// Package httpapi serves dedication reports over HTTP as JSON or CSV.
package httpapi

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/verte-zerg/dedication/internal/dedication"
	"github.com/verte-zerg/dedication/internal/export"
	"github.com/verte-zerg/dedication/internal/logging"
	"github.com/verte-zerg/dedication/internal/model"
	"github.com/verte-zerg/dedication/internal/report"
)

// Server answers report requests from a single source.
type Server struct {
	src      report.Source
	defaults model.ReportConfig
	now      func() time.Time
}

// NewServer creates a server. Limit, IgnoreThreshold and Location of
// defaults apply when a request does not override them.
func NewServer(src report.Source, defaults model.ReportConfig) *Server {
	return &Server{src: src, defaults: defaults, now: time.Now}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/courses/{course}", func(r chi.Router) {
		r.Get("/dedication", s.courseDedication)
		r.Get("/users/{user}/dedication", s.userDedication)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdlog.New(logging.Logger(), "", 0),
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logging.Info().Msg("http server stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) courseDedication(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.reportConfig(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if v := r.URL.Query().Get("inactive"); v != "" {
		if cfg.IncludeInactive, err = strconv.ParseBool(v); err != nil {
			writeError(w, r, http.StatusBadRequest, errors.New("inactive must be a boolean"))
			return
		}
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	rep, err := report.BuildCourseReport(r.Context(), s.src, cfg)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	if format == export.FormatCSV {
		writeCSVHeaders(w, export.Filename(rep.Course, format))
		if err := export.WriteCourseCSV(w, rep); err != nil {
			logging.Error().Err(err).Msg("failed to write course csv")
		}
		return
	}
	writeJSON(w, http.StatusOK, export.NewCourseDocument(rep))
}

func (s *Server) userDedication(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.reportConfig(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	userID, err := pathID(r, "user")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	simple := false
	if v := r.URL.Query().Get("simple"); v != "" {
		if simple, err = strconv.ParseBool(v); err != nil {
			writeError(w, r, http.StatusBadRequest, errors.New("simple must be a boolean"))
			return
		}
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	rep, err := report.BuildUserReport(r.Context(), s.src, cfg, userID)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	if simple {
		writeJSON(w, http.StatusOK, rep.Detail(true))
		return
	}
	if format == export.FormatCSV {
		writeCSVHeaders(w, export.Filename(rep.Course, format))
		if err := export.WriteUserCSV(w, rep); err != nil {
			logging.Error().Err(err).Msg("failed to write user csv")
		}
		return
	}
	writeJSON(w, http.StatusOK, export.NewUserDocument(rep))
}

// reportConfig merges query parameters over the server defaults.
func (s *Server) reportConfig(r *http.Request) (model.ReportConfig, error) {
	cfg := s.defaults
	courseID, err := pathID(r, "course")
	if err != nil {
		return cfg, err
	}
	cfg.Course = courseID
	q := r.URL.Query()
	cfg.Since, cfg.Until, err = report.ResolvePeriod(q.Get("since"), q.Get("until"), cfg.Location, s.now())
	if err != nil {
		return cfg, err
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.ParseInt(v, 10, 64)
		if err != nil || limit <= 0 {
			return cfg, errors.New("limit must be a positive number of seconds")
		}
		cfg.Limit = limit
	}
	if v := q.Get("ignore"); v != "" {
		ignore, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ignore < 0 {
			return cfg, errors.New("ignore must be a non-negative number of seconds")
		}
		cfg.IgnoreThreshold = &ignore
	}
	return cfg, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return id, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dedication.ErrInvalidPeriod), errors.Is(err, dedication.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	reqID := chimiddleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("request_id", reqID).Str("path", r.URL.Path).Msg("request failed")
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = strings.ToLower(http.StatusText(status))
	}
	writeJSON(w, status, errorBody{Error: msg, RequestID: reqID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal json response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Warn().Err(err).Msg("failed to write json response")
	}
}

func writeCSVHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Cache-Control", "no-cache")
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log := logging.With().Str("component", "http").Logger()
		log.Info().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
