package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/handoff/internal/config"
	redisstore "github.com/gosuda/handoff/internal/store/redis"
)

func newWatchCmd() *cobra.Command {
	var questionID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream question events published by a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), questionID)
		},
	}
	cmd.Flags().StringVar(&questionID, "question", "", "only show events for this question id")
	return cmd
}

func runWatch(ctx context.Context, questionID string) error {
	setupLogging(config.LoadLog())

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Redis.Addr == "" {
		return errors.New("watch: HANDOFF_REDIS_ADDR is not set")
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	sub, err := pubsub.Subscribe(ctx, redisstore.ChannelFor(questionID))
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Info().Str("channel", sub.Channel).Msg("watching question events")

	for m := range sub.Events() {
		log.Info().
			Str("event", string(m.Type)).
			Str("question_id", m.QuestionID).
			Str("status", string(m.Status)).
			Str("answer", m.Answer).
			Bool("expired", m.Expired).
			Time("at", m.At).
			Msg(m.Question)
	}
	return nil
}
