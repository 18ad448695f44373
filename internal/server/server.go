// Package server exposes the voice store over HTTP: commands become
// dispatched actions, state is served as JSON and the action stream is
// relayed over a websocket.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/eventbus"
	"github.com/nupi-ai/voxflux/internal/status"
	"github.com/nupi-ai/voxflux/internal/version"
)

const maxRequestBodyBytes = 1 << 20

// HealthResponse is served on /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Store is the part of the flux store the server drives.
type Store interface {
	Dispatch(a action.Action) action.Action
	State() status.State
	Bus() *eventbus.Bus
}

// Devices lists the identifiers with a live client.
type Devices interface {
	DeviceIDs() []string
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the logger used for request and stream logs.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With().Str("component", "server").Logger()
	}
}

// WithMetrics serves h on GET /v1/metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithDevices adds the registered identifiers to GET /v1/state.
func WithDevices(d Devices) Option {
	return func(s *Server) {
		s.devices = d
	}
}

// WithOriginCheck accepts websocket origins for which allowed returns true,
// in addition to the loopback origins that are always accepted.
func WithOriginCheck(allowed func(origin string) bool) Option {
	return func(s *Server) {
		s.originAllowed = allowed
	}
}

// Server routes HTTP requests into the store.
type Server struct {
	store         Store
	actions       *action.Factory
	devices       Devices
	metrics       http.Handler
	logger        zerolog.Logger
	originAllowed func(string) bool
	upgrader      websocket.Upgrader
}

// New builds a server dispatching into store with actions built by actions.
// A nil factory falls back to action.Default.
func New(store Store, actions *action.Factory, opts ...Option) *Server {
	if actions == nil {
		actions = action.Default
	}
	s := &Server{
		store:   store,
		actions: actions,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return s.checkOrigin(r.Header.Get("Origin"))
		},
	}
	return s
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: version.String()})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/actions", s.handleActions)

		r.Post("/devices/{id}/setup", s.handleSetup)
		r.Post("/devices/{id}/test-output", s.handleTestOutput)
		r.Delete("/devices/{id}", s.handleDestroy)

		r.Put("/audio/input", s.handleAudioDevice(action.CommandSetInputDevice))
		r.Put("/audio/output", s.handleAudioDevice(action.CommandSetOutputDevice))

		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics)
		}
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("HTTP request")
		}()
		next.ServeHTTP(ww, r)
	})
}
