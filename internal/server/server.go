// Package server exposes the chat over an HTTP JSON API for a browser
// front-end. Every /api route except login and signup requires the session
// token as a bearer token.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/longkey1/flowchat/internal/flowchat/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAddr = "127.0.0.1:8080"

	// MaxBodyBytes leaves room for a base64 encoded attachment at the size limit.
	MaxBodyBytes = 8 << 20

	shutdownTimeout = 10 * time.Second
)

// Options configures the server
type Options struct {
	Addr      string
	RateLimit float64 // requests per second per client; 0 disables
	Burst     int
}

// Server serves the API for one application state
type Server struct {
	app     *app.App
	logger  *zap.Logger
	opts    Options
	mux     *http.ServeMux
	limiter *RateLimiter
}

// New creates a server for a.
func New(a *app.App, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	s := &Server{
		app:     a,
		logger:  a.Logger.Named("server"),
		opts:    opts,
		mux:     http.NewServeMux(),
		limiter: NewRateLimiter(opts.RateLimit, opts.Burst),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/signup", s.handleSignup)
	s.mux.HandleFunc("POST /api/logout", s.authed(s.handleLogout))

	s.mux.HandleFunc("GET /api/conversations", s.authed(s.handleListConversations))
	s.mux.HandleFunc("POST /api/conversations/new", s.authed(s.handleNewChat))
	s.mux.HandleFunc("GET /api/conversations/{id}", s.authed(s.handleGetConversation))
	s.mux.HandleFunc("POST /api/conversations/{id}/select", s.authed(s.handleSelectConversation))
	s.mux.HandleFunc("PATCH /api/conversations/{id}", s.authed(s.handleRenameConversation))
	s.mux.HandleFunc("DELETE /api/conversations/{id}", s.authed(s.handleDeleteConversation))
	s.mux.HandleFunc("GET /api/conversations/{id}/export", s.authed(s.handleExportConversation))
	s.mux.HandleFunc("GET /api/conversations/{id}/messages/{index}/blocks/{block}/preview", s.authed(s.handlePreview))

	s.mux.HandleFunc("POST /api/chat", s.authed(s.handleChat))
	s.mux.HandleFunc("POST /api/speech", s.authed(s.handleSpeech))
	s.mux.HandleFunc("GET /api/settings/speech-language", s.authed(s.handleGetSpeechLanguage))
	s.mux.HandleFunc("PUT /api/settings/speech-language", s.authed(s.handlePutSpeechLanguage))
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
		RateLimitMiddleware(s.limiter, s.logger),
		BodyLimitMiddleware(MaxBodyBytes),
	)(s.mux)
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln and watches the flow templates for changes until ctx
// is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.app.Prompts.Watch(ctx)
	})
	return g.Wait()
}

func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.app.Auth.Verify(bearerToken(r)); err != nil {
			s.logger.Debug("Unauthorized request", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
