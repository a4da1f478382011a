// Package api serves the JSON HTTP interface: the ringing session, alarm
// management, runtime configuration and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"lautenbacher.net/sagealarm/alarm"
	"lautenbacher.net/sagealarm/config"
	"lautenbacher.net/sagealarm/controller"
	"lautenbacher.net/sagealarm/metrics"
	"lautenbacher.net/sagealarm/ring"
)

// Engine is the part of controller.Controller the API drives.
type Engine interface {
	Active() *ring.Session
	Dismiss() error
	Tap(value int) (bool, error)
	Alarms(ctx context.Context) ([]alarm.Definition, error)
	Save(ctx context.Context, d alarm.Definition) (alarm.Definition, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) (alarm.Definition, error)
	Delete(ctx context.Context, id int64) error
	NextTrigger(ctx context.Context, id int64) (time.Time, error)
	Upcoming(ctx context.Context) ([]controller.Upcoming, error)
}

type Options struct {
	Listen string
	// Requests per minute and client on the session endpoints. Zero
	// disables the limit.
	RateLimit int
	// ConfigFile enables /api/config when set.
	ConfigFile string
	// Tones lists the selectable tone sources.
	Tones []string
}

type server struct {
	engine Engine
	opts   Options
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(engine Engine, opts Options) http.Handler {
	s := &server{engine: engine, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Group(func(r chi.Router) {
				if opts.RateLimit > 0 {
					r.Use(rateLimit(opts.RateLimit, time.Minute))
				}
				r.Post("/dismiss", s.dismiss)
				r.Post("/tap", s.tap)
			})
		})
		r.Route("/alarms", func(r chi.Router) {
			r.Get("/", s.listAlarms)
			r.Post("/", s.saveAlarm)
			r.Put("/{id}/enabled", s.setEnabled)
			r.Delete("/{id}", s.deleteAlarm)
			r.Get("/{id}/next", s.nextTrigger)
		})
		r.Get("/upcoming", s.upcoming)
		r.Get("/tones", s.tones)
		if opts.ConfigFile != "" {
			r.HandleFunc("/config", config.ConfigHandler(opts.ConfigFile))
		}
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
		}),
	)
}

// Serve runs the HTTP server until ctx is done.
func Serve(ctx context.Context, engine Engine, opts Options) error {
	srv := &http.Server{
		Addr:              opts.Listen,
		Handler:           NewRouter(engine, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("API: listening", "addr", opts.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	slog.Info("API: stopped")
	return nil
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("API: failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Error: code, Detail: detail})
}

// writeEngineError maps the domain sentinel errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, controller.ErrNoSession):
		writeError(w, http.StatusNotFound, "no_session", err.Error())
	case errors.Is(err, ring.ErrPuzzleRequired):
		writeError(w, http.StatusConflict, "puzzle_required", err.Error())
	case errors.Is(err, ring.ErrNoPuzzle):
		writeError(w, http.StatusConflict, "no_puzzle", err.Error())
	case errors.Is(err, alarm.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, alarm.ErrInvalidDefinition):
		writeError(w, http.StatusBadRequest, "invalid_alarm", err.Error())
	case errors.Is(err, controller.ErrDuplicateTime):
		writeError(w, http.StatusConflict, "duplicate_time", err.Error())
	case errors.Is(err, alarm.ErrUnschedulable):
		writeError(w, http.StatusUnprocessableEntity, "unschedulable", err.Error())
	default:
		slog.Error("API: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
