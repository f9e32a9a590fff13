package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/handoff/internal/api/form"
	mcpapi "github.com/gosuda/handoff/internal/api/mcp"
	"github.com/gosuda/handoff/internal/auth"
	"github.com/gosuda/handoff/internal/config"
	"github.com/gosuda/handoff/internal/handoff"
	"github.com/gosuda/handoff/internal/messenger/pushover"
	handoffslack "github.com/gosuda/handoff/internal/messenger/slack"
	"github.com/gosuda/handoff/internal/notify"
	"github.com/gosuda/handoff/internal/question"
	"github.com/gosuda/handoff/internal/server"
	redisstore "github.com/gosuda/handoff/internal/store/redis"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent and reviewer HTTP servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	setupLogging(config.LoadLog())

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	settings := handoff.Settings{
		DefaultTTLSeconds:   cfg.Question.TTLSeconds,
		PollIntervalSeconds: cfg.Question.PollIntervalSeconds,
		FallbackAnswer:      cfg.Question.FallbackAnswer,
	}

	regOpts := []question.Option{
		question.WithDefaultTTL(cfg.Question.TTLSeconds),
		question.WithMinRetention(settings.MinRetention()),
	}

	// Redis is optional; when configured every question transition is published.
	if cfg.Redis.Addr != "" {
		pubsub, redisErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if redisErr != nil {
			return redisErr
		}
		defer pubsub.Close()

		publisher := redisstore.NewPublisher(pubsub)
		regOpts = append(regOpts, question.WithObserver(publisher.Observe))
		g.Go(func() error { return publisher.Run(gctx) })
		log.Info().Str("addr", cfg.Redis.Addr).Msg("publishing question events to redis")
	}

	registry := question.NewRegistry(regOpts...)
	sweeper := question.NewSweeper(registry, cfg.Question.SweepInterval, cfg.Question.FallbackAnswer)
	g.Go(func() error { return sweeper.Run(gctx) })

	notifier, slackAPI := buildNotifier(cfg)

	guard := auth.NewGuard(cfg.APIKey)
	svc := handoff.NewService(guard, registry, notifier, settings)

	formHandler, err := form.NewHandler(svc)
	if err != nil {
		return fmt.Errorf("answer form: %w", err)
	}

	var slackHandler *handoffslack.Handler
	if cfg.Slack.SigningSecret != "" {
		var api handoffslack.SlackAPI
		if slackAPI != nil {
			api = slackAPI
		}
		slackHandler = handoffslack.NewHandler(cfg.Slack.SigningSecret, svc, api)
		log.Info().Msg("slack interactions enabled")
	}

	mcpServer := mcpapi.NewServer(svc, settings, version)

	srv := server.New(gctx, cfg, server.Handlers{
		Guard:     guard,
		Questions: svc,
		MCP:       mcpapi.NewHandler(mcpServer),
		Form:      formHandler,
		Slack:     slackHandler,
		Stats:     registry,
	}, version)

	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info().
		Str("agent_addr", cfg.Server.AgentAddr).
		Str("form_addr", cfg.Server.FormAddr).
		Str("public_url", cfg.Server.PublicURL).
		Bool("api_key", guard.Enabled()).
		Msg("handoff started")

	err = g.Wait()
	notifier.Wait()
	if err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}

// buildNotifier registers every configured channel in priority order:
// Pushover first, then Slack. The Slack client is returned for the
// interaction handler and is nil when Slack is not configured.
func buildNotifier(cfg *config.Config) (*notify.Notifier, *slacklib.Client) {
	messengers := notify.NewRegistry()

	if cfg.Pushover.Enabled() {
		messengers.Register(pushover.New(cfg.Pushover.Token, cfg.Pushover.UserKey))
	}

	var slackAPI *slacklib.Client
	if cfg.Slack.Enabled() {
		slackAPI = slacklib.New(cfg.Slack.BotToken)
		messengers.Register(handoffslack.NewSlackMessenger(slackAPI, cfg.Slack.ChannelID))
	}

	log.Info().Int("channels", messengers.Len()).Msg("notification channels registered")
	return notify.New(messengers, cfg.Server.PublicURL, cfg.Notify.Timeout), slackAPI
}
