package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	v1 "github.com/gosuda/handoff/internal/api/v1"
	"github.com/gosuda/handoff/internal/auth"
	"github.com/gosuda/handoff/internal/config"
	handoffslack "github.com/gosuda/handoff/internal/messenger/slack"
	"github.com/gosuda/handoff/internal/server/middleware"
)

// Handlers are the transport front-ends mounted by New.
type Handlers struct {
	Guard     *auth.Guard
	Questions v1.QuestionService
	MCP       http.Handler
	Form      FormRoutes
	Slack     *handoffslack.Handler // nil when Slack interactions are not configured
	Stats     Stats                 // optional
}

// FormRoutes mounts the reviewer answer page.
type FormRoutes interface {
	Routes(r chi.Router)
}

// Stats reports registry size for the health endpoint.
type Stats interface {
	Len() int
}

// Server runs the agent listener (MCP and REST) and the reviewer listener
// (answer form and Slack callbacks).
type Server struct {
	agent    *http.Server
	reviewer *http.Server
}

// New creates a Server with all routes wired. ctx bounds background
// middleware goroutines.
func New(ctx context.Context, cfg *config.Config, h Handlers, version string) *Server {
	agentRouter := newRouter(ctx, cfg)
	registerAgentRoutes(agentRouter, h, version, cfg.Server.WriteTimeout)

	reviewerRouter := newRouter(ctx, cfg)
	registerReviewerRoutes(reviewerRouter, h)

	return &Server{
		// MCP streams responses over SSE for as long as a session lives, so the
		// agent listener has no server-wide write timeout. REST routes get
		// cfg.Server.WriteTimeout per request instead.
		agent: &http.Server{
			Addr:        cfg.Server.AgentAddr,
			Handler:     agentRouter,
			ReadTimeout: cfg.Server.ReadTimeout,
		},
		reviewer: &http.Server{
			Addr:         cfg.Server.FormAddr,
			Handler:      reviewerRouter,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

func newRouter(ctx context.Context, cfg *config.Config) chi.Router {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "Mcp-Session-Id"},
		ExposedHeaders: []string{"X-Request-ID", "Mcp-Session-Id"},
		MaxAge:         300,
	}).Handler)
	router.Use(middleware.RateLimitByIP(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

	return router
}

// AgentHandler returns the agent-facing router.
func (s *Server) AgentHandler() http.Handler {
	return s.agent.Handler
}

// ReviewerHandler returns the reviewer-facing router.
func (s *Server) ReviewerHandler() http.Handler {
	return s.reviewer.Handler
}

// Start listens on both addresses until Shutdown is called or one listener fails.
func (s *Server) Start(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{s.agent, s.reviewer} {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server.Start: %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown gracefully stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range []*http.Server{s.agent, s.reviewer} {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server.Shutdown: %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}
