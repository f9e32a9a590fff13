package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/handoff/internal/auth"
	"github.com/gosuda/handoff/internal/domain"
)

// QuestionStore is the subset of question.Registry used by Service.
type QuestionStore interface {
	Create(text string, presets []string, ttlSeconds int) (domain.Question, error)
	ResolveWithTTL(id, authKey, fallback string, now time.Time) (domain.Question, error)
	Answer(id, authKey, answer, fallback string, now time.Time) (domain.Question, bool, error)
}

// Dispatcher alerts reviewers about a new question without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, q domain.Question)
}

// Settings carries the configured question defaults.
type Settings struct {
	DefaultTTLSeconds   int
	PollIntervalSeconds int
	FallbackAnswer      string
}

// retentionPolls is how many advertised poll intervals a finished question
// stays readable after its answer or expiry.
const retentionPolls = 2

// MinRetention is the shortest time a finished question must be kept so an
// agent polling at the advertised interval still reads the answer.
func (s Settings) MinRetention() time.Duration {
	return retentionPolls * time.Duration(s.PollIntervalSeconds) * time.Second
}

// AskInput is the agent's request to escalate a question.
type AskInput struct {
	Question      string
	PresetAnswers []string
	TTLSeconds    int // 0 selects the default
}

// AskResult is returned once when a question is created.
type AskResult struct {
	QuestionID       string                `json:"question_id"`
	AuthKey          string                `json:"auth_key"`
	Status           domain.QuestionStatus `json:"status"`
	ExpiresInSeconds int                   `json:"expires_in_seconds"`
	PollMetadata
	ReplyLocator  string `json:"reply_locator"`
	ReplyEndpoint string `json:"reply_endpoint"`
}

// ReplyBody holds the final answer.
type ReplyBody struct {
	Answer  string `json:"answer"`
	Expired bool   `json:"expired"`
}

// Reply is the polling view of a question. Pending replies carry poll hints;
// terminal replies carry the answer.
type Reply struct {
	Answered              bool                  `json:"answered"`
	Status                domain.QuestionStatus `json:"status"`
	Reply                 *ReplyBody            `json:"reply,omitempty"`
	ExpiresInSeconds      int                   `json:"expires_in_seconds,omitempty"`
	PollIntervalSeconds   int                   `json:"poll_interval_seconds,omitempty"`
	PollInstructions      string                `json:"poll_instructions,omitempty"`
	ReplyTool             string                `json:"reply_tool,omitempty"`
	ReplyResourceTemplate string                `json:"reply_resource_template,omitempty"`
}

// Option configures optional Service parameters.
type Option func(*Service)

// WithClock overrides the clock used for TTL evaluation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service is the single entry point every front-end goes through. Agent
// operations require the API key; reviewer operations rely on the
// per-question auth key alone.
type Service struct {
	guard     *auth.Guard
	questions QuestionStore
	notifier  Dispatcher
	settings  Settings
	now       func() time.Time
}

// NewService wires a Service. notifier may be nil.
func NewService(guard *auth.Guard, questions QuestionStore, notifier Dispatcher, settings Settings, opts ...Option) *Service {
	s := &Service{
		guard:     guard,
		questions: questions,
		notifier:  notifier,
		settings:  settings,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask creates a question and alerts reviewers in the background.
func (s *Service) Ask(ctx context.Context, cred auth.CredentialSource, in AskInput) (*AskResult, error) {
	if err := s.guard.Authorize(cred); err != nil {
		return nil, fmt.Errorf("handoff.Service.Ask: %w", err)
	}
	if in.TTLSeconds < 0 {
		return nil, fmt.Errorf("handoff.Service.Ask: ttl_seconds must not be negative: %w", domain.ErrInvalidInput)
	}

	ttl := in.TTLSeconds
	if ttl == 0 {
		ttl = s.settings.DefaultTTLSeconds
	}

	q, err := s.questions.Create(in.Question, in.PresetAnswers, ttl)
	if err != nil {
		return nil, fmt.Errorf("handoff.Service.Ask: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, q)
	}

	log.Info().
		Str("question_id", q.ID).
		Int("presets", len(q.PresetAnswers)).
		Int("ttl_seconds", q.TTLSeconds).
		Msg("question created")

	return &AskResult{
		QuestionID:       q.ID,
		AuthKey:          q.AuthKey,
		Status:           domain.QuestionStatusPending,
		ExpiresInSeconds: q.TTLSeconds,
		PollMetadata:     NewPollMetadata(s.settings.PollIntervalSeconds),
		ReplyLocator:     ReplyLocator(q.ID, q.AuthKey),
		ReplyEndpoint:    ReplyEndpoint(q.ID, q.AuthKey),
	}, nil
}

// GetReply reports the current state of a question, committing expiry if due.
func (s *Service) GetReply(_ context.Context, cred auth.CredentialSource, questionID, authKey string) (*Reply, error) {
	if err := s.guard.Authorize(cred); err != nil {
		return nil, fmt.Errorf("handoff.Service.GetReply: %w", err)
	}

	now := s.now()
	q, err := s.questions.ResolveWithTTL(questionID, authKey, s.settings.FallbackAnswer, now)
	if err != nil {
		log.Warn().Err(err).Str("question_id", questionID).Msg("get_reply rejected")
		return nil, fmt.Errorf("handoff.Service.GetReply: %w", err)
	}

	status := q.Status(now)
	if status == domain.QuestionStatusPending {
		meta := NewPollMetadata(s.settings.PollIntervalSeconds)
		return &Reply{
			Answered:              false,
			Status:                status,
			ExpiresInSeconds:      ceilSeconds(q.Remaining(now)),
			PollIntervalSeconds:   meta.PollIntervalSeconds,
			PollInstructions:      meta.PollInstructions,
			ReplyTool:             meta.ReplyTool,
			ReplyResourceTemplate: meta.ReplyResourceTemplate,
		}, nil
	}

	answer := q.Answer
	if answer == "" {
		answer = s.settings.FallbackAnswer
	}

	log.Debug().Str("question_id", q.ID).Str("status", string(status)).Msg("returning reply")

	return &Reply{
		Answered: true,
		Status:   status,
		Reply:    &ReplyBody{Answer: answer, Expired: q.Expired},
	}, nil
}

// Review returns a question for the reviewer, committing expiry if due.
func (s *Service) Review(_ context.Context, questionID, authKey string) (domain.Question, error) {
	q, err := s.questions.ResolveWithTTL(questionID, authKey, s.settings.FallbackAnswer, s.now())
	if err != nil {
		return domain.Question{}, fmt.Errorf("handoff.Service.Review: %w", err)
	}
	return q, nil
}

// Submit records a reviewer's answer. recorded is false when the question
// had already closed; the closed question is returned without error.
func (s *Service) Submit(_ context.Context, questionID, authKey, answer string) (domain.Question, bool, error) {
	q, recorded, err := s.questions.Answer(questionID, authKey, answer, s.settings.FallbackAnswer, s.now())
	if err != nil {
		return domain.Question{}, false, fmt.Errorf("handoff.Service.Submit: %w", err)
	}

	if recorded {
		log.Info().Str("question_id", q.ID).Msg("question answered")
	} else {
		log.Info().Str("question_id", q.ID).Bool("expired", q.Expired).Msg("late answer discarded")
	}

	return q, recorded, nil
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}
