// Package server exposes the engine lifecycle over HTTP. It replaces the
// process-embedding boundary of the engine with a small JSON surface: every
// response error is a taxonomy value, never a driver error.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kilnworks/kiln/core/engine"
	"github.com/kilnworks/kiln/core/introspect"
	"github.com/kilnworks/kiln/core/shared/errors"
	"github.com/kilnworks/kiln/core/shared/logging"
)

// Server serves one engine instance.
type Server struct {
	engine       *engine.Engine
	introspector *introspect.Introspector
	httpServer   *http.Server
	port         string
}

// Option configures a Server.
type Option func(*Server)

// WithPort sets the listen port (default 4466).
func WithPort(port string) Option {
	return func(s *Server) {
		if port != "" {
			s.port = port
		}
	}
}

// WithIntrospector replaces the default introspector.
func WithIntrospector(in *introspect.Introspector) Option {
	return func(s *Server) {
		s.introspector = in
	}
}

// New builds a server around an engine.
func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine:       eng,
		introspector: introspect.New(),
		port:         "4466",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routes. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/connect", s.handleConnect)
	r.Post("/disconnect", s.handleDisconnect)
	r.Post("/query", s.handleQuery)
	r.Post("/introspect", s.handleIntrospect)
	r.Get("/schema", s.handleSchema)
	r.Get("/schema/sdl", s.handleSDL)
	r.Get("/config", s.handleConfig)
	r.Get("/server-info", s.handleServerInfo)
	r.Get("/healthz", s.handleHealth)

	return r
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	if err := s.StartAsync(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return s.Stop()
}

// StartAsync starts serving without blocking.
func (s *Server) StartAsync() error {
	log := logging.New("server")

	s.httpServer = &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("engine server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	return nil
}

// Stop disconnects the engine if needed and shuts the listener down.
func (s *Server) Stop() error {
	log := logging.New("server")
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.engine.Connected() {
		if err := s.engine.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Msg("disconnect during shutdown failed")
		}
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Connect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Disconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": false})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req engine.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeQueryError, "request body is not valid JSON", err))
		return
	}

	resp, err := s.engine.Query(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type introspectRequest struct {
	Schema          string   `json:"schema"`
	PreviewFeatures []string `json:"previewFeatures,omitempty"`
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	var req introspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeQueryError, "request body is not valid JSON", err))
		return
	}

	result, err := s.introspector.Introspect(r.Context(), req.Schema, &introspect.Context{
		PreviewFeatures: req.PreviewFeatures,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": result.SchemaText})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.engine.SchemaText()))
}

func (s *Server) handleSDL(w http.ResponseWriter, r *http.Request) {
	sdl, err := s.engine.SDLSchema()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(sdl))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ServerInfo())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"connected": s.engine.Connected(),
	})
}

// errorBody is the wire shape of a taxonomy error.
type errorBody struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Identity   string   `json:"identity,omitempty"`
	Constraint string   `json:"constraint,omitempty"`
	RawCode    string   `json:"rawCode,omitempty"`
	URL        string   `json:"url,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	e := errors.AsEngineError(err)
	if e == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": errorBody{Code: "INTERNAL_ERROR", Message: err.Error()},
		})
		return
	}

	body := errorBody{
		Code:     string(e.Code),
		Message:  e.Message,
		Identity: e.Identity,
		RawCode:  e.RawCode,
		URL:      e.URL,
	}
	if e.Constraint != nil {
		body.Constraint = e.Constraint.String()
	}
	for _, sub := range e.Errors {
		body.Errors = append(body.Errors, sub.Error())
	}

	writeJSON(w, errors.HTTPStatus(e.Code), map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
