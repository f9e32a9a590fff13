// Package redis publishes question lifecycle events over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// EventsChannel carries every question event.
	EventsChannel = "handoff:questions"

	questionChannelPrefix = "handoff:question:"

	// watchers are interactive; a small buffer is enough to absorb bursts
	// such as an expiry followed immediately by a purge.
	subscriptionBuffer = 16
)

// QuestionChannel returns the channel carrying events for a single question.
func QuestionChannel(questionID string) string {
	return questionChannelPrefix + questionID
}

// ChannelFor picks the channel a watcher should follow: one question when
// questionID is set, otherwise every question.
func ChannelFor(questionID string) string {
	if questionID == "" {
		return EventsChannel
	}
	return QuestionChannel(questionID)
}

// PubSub fans question events out to the shared and per-question channels.
type PubSub struct {
	client *redis.Client
	addr   string
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping %s: %w", addr, err)
	}

	return &PubSub{client: client, addr: addr}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %s: %w", ps.addr, err)
	}
	return nil
}

// PublishEvent sends m to EventsChannel and to the question's own channel in
// a single round trip.
func (ps *PubSub) PublishEvent(ctx context.Context, m EventMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis.PubSub.PublishEvent: %w", err)
	}

	_, err = ps.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, EventsChannel, payload)
		pipe.Publish(ctx, QuestionChannel(m.QuestionID), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis.PubSub.PublishEvent: question %s: %w", m.QuestionID, err)
	}
	return nil
}

// Subscription streams decoded events from one channel.
type Subscription struct {
	Channel string

	sub    *redis.PubSub
	events chan EventMessage
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan EventMessage {
	return s.events
}

func (s *Subscription) Close() error {
	if err := s.sub.Close(); err != nil {
		return fmt.Errorf("redis.Subscription.Close: %s: %w", s.Channel, err)
	}
	return nil
}

// Subscribe follows channel until ctx is cancelled or the subscription is
// closed. Payloads that are not event messages are logged and skipped.
func (ps *PubSub) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	sub := ps.client.Subscribe(ctx, channel)

	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis.PubSub.Subscribe: %s: %w", channel, err)
	}

	s := &Subscription{
		Channel: channel,
		sub:     sub,
		events:  make(chan EventMessage, subscriptionBuffer),
	}
	go s.forward(ctx, sub.Channel())

	return s, nil
}

func (s *Subscription) forward(ctx context.Context, msgs <-chan *redis.Message) {
	defer close(s.events)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			m, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				log.Warn().Err(err).Str("channel", s.Channel).Msg("skipping malformed question event")
				continue
			}
			select {
			case s.events <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}
