package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/handoff/internal/api/v1"
	"github.com/gosuda/handoff/internal/server/middleware"
)

func registerAgentRoutes(router chi.Router, h Handlers, version string, writeTimeout time.Duration) {
	if h.MCP != nil {
		router.With(middleware.RequireAPIKey(h.Guard)).Handle("/mcp", h.MCP)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.WriteDeadline(writeTimeout))

		apiConfig := huma.DefaultConfig("Human Handoff API", version)
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)
		v1.RegisterQuestionRoutes(api, h.Questions)
	})

	router.With(middleware.WriteDeadline(writeTimeout)).Get("/healthz", healthz(h.Stats, version))
}

func registerReviewerRoutes(router chi.Router, h Handlers) {
	router.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("human handoff: open the link from your notification to answer a question\n"))
	})
	h.Form.Routes(router)

	// Slack webhook routes: real handler if configured, 501 placeholder otherwise.
	router.Route("/slack", func(r chi.Router) {
		if h.Slack != nil {
			r.Post("/interactions", h.Slack.HandleInteractions)
			return
		}
		r.Post("/interactions", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotImplemented)
		})
	})

	router.Get("/healthz", healthz(h.Stats, ""))
}

func healthz(stats Stats, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		if version != "" {
			body["version"] = version
		}
		if stats != nil {
			body["questions"] = stats.Len()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Warn().Err(err).Msg("healthz: write response")
		}
	}
}
