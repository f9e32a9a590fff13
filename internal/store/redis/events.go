package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/handoff/internal/domain"
	"github.com/gosuda/handoff/internal/question"
)

const (
	defaultQueueSize = 256
	publishTimeout   = 2 * time.Second
)

// EventMessage is the JSON payload published for each question transition.
// The auth key is never included.
type EventMessage struct {
	Type       question.EventType    `json:"type"`
	QuestionID string                `json:"question_id"`
	Question   string                `json:"question"`
	Status     domain.QuestionStatus `json:"status"`
	Answer     string                `json:"answer,omitempty"`
	Expired    bool                  `json:"expired"`
	At         time.Time             `json:"at"`
}

// NewEventMessage converts a registry event.
func NewEventMessage(e question.Event) EventMessage {
	q := e.Question
	return EventMessage{
		Type:       e.Type,
		QuestionID: q.ID,
		Question:   q.Text,
		Status:     q.Status(e.At),
		Answer:     q.Answer,
		Expired:    q.Expired,
		At:         e.At.UTC(),
	}
}

// DecodeEvent parses a payload published by PublishEvent.
func DecodeEvent(payload []byte) (EventMessage, error) {
	var m EventMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return EventMessage{}, fmt.Errorf("redis.DecodeEvent: %w", err)
	}
	return m, nil
}

// Publisher queues registry events and publishes them from its own goroutine
// so the registry never waits on Redis.
type Publisher struct {
	ps    *PubSub
	queue chan question.Event
}

// NewPublisher creates a Publisher. Call Run to start publishing.
func NewPublisher(ps *PubSub) *Publisher {
	return &Publisher{
		ps:    ps,
		queue: make(chan question.Event, defaultQueueSize),
	}
}

// Observe is a question.Observer. Events are dropped when the queue is full.
func (p *Publisher) Observe(e question.Event) {
	select {
	case p.queue <- e:
	default:
		log.Warn().Str("question_id", e.Question.ID).Str("event", string(e.Type)).Msg("event queue full, dropping")
	}
}

// Run publishes queued events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-p.queue:
			if err := p.publish(ctx, e); err != nil {
				log.Warn().Err(err).Str("question_id", e.Question.ID).Msg("publish question event")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, e question.Event) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ps.PublishEvent(ctx, NewEventMessage(e))
}
