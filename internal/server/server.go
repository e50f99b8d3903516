// Package server is the HTTP front of the interaction engine.
//
// POST /interactions verifies the platform signature, answers pings,
// routes component and modal callbacks, writes the response, and only then
// hands any continuation to the deferred executor.
package server

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/roach88/interflow/internal/deferred"
	"github.com/roach88/interflow/internal/metrics"
	"github.com/roach88/interflow/internal/router"
)

// DefaultMaxBodyBytes bounds interaction payloads.
const DefaultMaxBodyBytes = 1 << 20

// Router routes one interaction to a response and optional continuation.
type Router interface {
	Route(ctx context.Context, i *discordgo.Interaction) router.Result
}

// Submitter schedules continuations.
type Submitter interface {
	Submit(name string, t deferred.Task) error
}

// Check reports whether a dependency is ready.
type Check func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithReadiness adds a named readiness check to /readyz.
func WithReadiness(name string, c Check) Option {
	return func(s *Server) {
		s.checkNames = append(s.checkNames, name)
		s.checks = append(s.checks, c)
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// Server serves the interaction endpoint and operational routes.
type Server struct {
	publicKey  ed25519.PublicKey
	router     Router
	deferred   Submitter
	metrics    *metrics.Metrics
	checkNames []string
	checks     []Check
	maxBody    int64
}

// New creates a Server. publicKey verifies interaction signatures.
func New(publicKey ed25519.PublicKey, r Router, d Submitter, opts ...Option) *Server {
	s := &Server{
		publicKey: publicKey,
		router:    r,
		deferred:  d,
		maxBody:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/interactions", s.handleInteraction).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if !discordgo.VerifyInteraction(r, s.publicKey) {
		http.Error(w, "invalid request signature", http.StatusUnauthorized)
		return
	}

	var i discordgo.Interaction
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		http.Error(w, "invalid interaction payload", http.StatusBadRequest)
		return
	}

	if i.Type == discordgo.InteractionPing {
		writeJSON(w, http.StatusOK, &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
		return
	}

	log := slog.With("interaction_id", i.ID, "type", int(i.Type))
	res := s.router.Route(r.Context(), &i)
	writeJSON(w, http.StatusOK, res.Response)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	if res.Continuation == nil {
		return
	}
	name := fmt.Sprintf("interaction %s", i.ID)
	if i.ID == "" {
		name = "interaction " + uuid.NewString()
	}
	if err := s.deferred.Submit(name, deferred.Task(res.Continuation)); err != nil {
		log.Warn("continuation not scheduled", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failures := make(map[string]string)
	for idx, check := range s.checks {
		if err := check(ctx); err != nil {
			failures[s.checkNames[idx]] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// Serve listens on addr until ctx ends, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, readTimeout, writeTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	slog.Info("listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
