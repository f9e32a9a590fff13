package question

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/handoff/internal/domain"
)

// DefaultTTLSeconds applies when neither the caller nor the registry options
// specify a TTL.
const DefaultTTLSeconds = 300

const authKeyRandLen = 32 // 32 bytes = 43 base64url chars

// EventType names a lifecycle transition of a question.
type EventType string

const (
	EventCreated  EventType = "created"
	EventAnswered EventType = "answered"
	EventExpired  EventType = "expired"
	EventPurged   EventType = "purged"
)

// Event describes a single transition. Question is a snapshot taken while the
// registry lock was held.
type Event struct {
	Type     EventType
	Question domain.Question
	At       time.Time
}

// Observer receives transition events after the registry lock is released.
// Observers must not call back into the registry synchronously.
type Observer func(Event)

// Option configures optional Registry parameters.
type Option func(*Registry)

// WithDefaultTTL sets the TTL used when Create is called with a non-positive TTL.
func WithDefaultTTL(seconds int) Option {
	return func(r *Registry) {
		if seconds > 0 {
			r.defaultTTL = seconds
		}
	}
}

// WithMinRetention keeps a terminal question for at least d after it was
// answered or expired, so agents polling at a fixed interval still see it.
func WithMinRetention(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.minRetention = d
		}
	}
}

// WithClock overrides the clock used to stamp new questions.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithObserver registers an observer for lifecycle events.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observers = append(r.observers, o)
	}
}

// Registry is the sole owner of question state. Every read-modify-write,
// including lazy expiry, happens under mu so that an expiry racing an answer
// settles on exactly one terminal outcome.
type Registry struct {
	mu           sync.Mutex
	records      map[string]*domain.Question
	defaultTTL   int
	minRetention time.Duration
	now          func() time.Time
	observers    []Observer
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records:    make(map[string]*domain.Question),
		defaultTTL: DefaultTTLSeconds,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new pending question with a fresh id and auth key.
// Empty presets are dropped; a non-positive ttlSeconds selects the default.
func (r *Registry) Create(text string, presets []string, ttlSeconds int) (domain.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Question{}, fmt.Errorf("question.Registry.Create: question text is empty: %w", domain.ErrInvalidInput)
	}

	authKey, err := newAuthKey()
	if err != nil {
		return domain.Question{}, fmt.Errorf("question.Registry.Create: %w", err)
	}

	if ttlSeconds <= 0 {
		ttlSeconds = r.defaultTTL
	}

	q := &domain.Question{
		ID:            uuid.NewString(),
		AuthKey:       authKey,
		Text:          text,
		PresetAnswers: cleanPresets(presets),
		CreatedAt:     r.now().UTC(),
		TTLSeconds:    ttlSeconds,
	}

	r.mu.Lock()
	r.records[q.ID] = q
	snap := snapshot(q)
	r.mu.Unlock()

	r.emit(Event{Type: EventCreated, Question: snap, At: snap.CreatedAt})
	return snap, nil
}

// Lookup returns the question with the given id without applying TTL rules.
func (r *Registry) Lookup(id string) (domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.records[id]
	if !ok {
		return domain.Question{}, fmt.Errorf("question.Registry.Lookup: %w", domain.ErrNotFound)
	}
	return snapshot(q), nil
}

// Authorize returns the question if authKey matches exactly.
func (r *Registry) Authorize(id, authKey string) (domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, err := r.authorizeLocked(id, authKey)
	if err != nil {
		return domain.Question{}, fmt.Errorf("question.Registry.Authorize: %w", err)
	}
	return snapshot(q), nil
}

// ResolveWithTTL authorizes and then, if the question is unanswered and now is
// at or past its deadline, records fallback as an expired answer. This is the
// read path shared by every front-end.
func (r *Registry) ResolveWithTTL(id, authKey, fallback string, now time.Time) (domain.Question, error) {
	r.mu.Lock()
	q, err := r.authorizeLocked(id, authKey)
	if err != nil {
		r.mu.Unlock()
		return domain.Question{}, fmt.Errorf("question.Registry.ResolveWithTTL: %w", err)
	}
	expired := commitExpiry(q, fallback, now)
	snap := snapshot(q)
	r.mu.Unlock()

	if expired {
		r.emit(Event{Type: EventExpired, Question: snap, At: now})
	}
	return snap, nil
}

// Answer records a human answer. TTL rules are applied first, so an expiry
// that raced ahead of the human wins. Late submissions are discarded and the
// terminal question is returned with recorded=false; this is not an error.
func (r *Registry) Answer(id, authKey, answer, fallback string, now time.Time) (q domain.Question, recorded bool, err error) {
	r.mu.Lock()
	rec, err := r.authorizeLocked(id, authKey)
	if err != nil {
		r.mu.Unlock()
		return domain.Question{}, false, fmt.Errorf("question.Registry.Answer: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		r.mu.Unlock()
		return domain.Question{}, false, fmt.Errorf("question.Registry.Answer: answer is empty: %w", domain.ErrInvalidInput)
	}

	expired := commitExpiry(rec, fallback, now)
	if !rec.IsAnswered() {
		at := now.UTC()
		rec.Answer = answer
		rec.AnsweredAt = &at
		recorded = true
	}
	snap := snapshot(rec)
	r.mu.Unlock()

	switch {
	case expired:
		r.emit(Event{Type: EventExpired, Question: snap, At: now})
	case recorded:
		r.emit(Event{Type: EventAnswered, Question: snap, At: now})
	}
	return snap, recorded, nil
}

// Purge removes a question that has reached a terminal state. Overdue
// questions are expired through the read path first. Pending or unknown
// questions are left alone and false is returned.
func (r *Registry) Purge(id, fallback string) bool {
	now := r.now()

	r.mu.Lock()
	q, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	expired := commitExpiry(q, fallback, now)
	if !q.IsAnswered() {
		r.mu.Unlock()
		return false
	}
	delete(r.records, id)
	snap := snapshot(q)
	r.mu.Unlock()

	if expired {
		r.emit(Event{Type: EventExpired, Question: snap, At: now})
	}
	r.emit(Event{Type: EventPurged, Question: snap, At: now})
	return true
}

// Sweep commits expiry for every overdue pending question and purges terminal
// questions past their retention. It uses the same commit path as reads. A
// question expired by this pass is never purged by the same pass.
func (r *Registry) Sweep(now time.Time, fallback string) (expired, purged int) {
	var events []Event

	r.mu.Lock()
	for id, q := range r.records {
		if commitExpiry(q, fallback, now) {
			expired++
			events = append(events, Event{Type: EventExpired, Question: snapshot(q), At: now})
			continue
		}
		if q.IsAnswered() && !now.Before(r.retainUntil(q)) {
			delete(r.records, id)
			purged++
			events = append(events, Event{Type: EventPurged, Question: snapshot(q), At: now})
		}
	}
	r.mu.Unlock()

	for _, e := range events {
		r.emit(e)
	}
	return expired, purged
}

// Len returns the number of questions currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// retainUntil is the later of CreatedAt+2*TTL and AnsweredAt+minRetention.
// Callers must hold the lock.
func (r *Registry) retainUntil(q *domain.Question) time.Time {
	until := q.CreatedAt.Add(2 * time.Duration(q.TTLSeconds) * time.Second)
	if q.AnsweredAt != nil {
		if floor := q.AnsweredAt.Add(r.minRetention); floor.After(until) {
			until = floor
		}
	}
	return until
}

// authorizeLocked must be called with mu held.
func (r *Registry) authorizeLocked(id, authKey string) (*domain.Question, error) {
	q, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(q.AuthKey), []byte(authKey)) != 1 {
		return nil, domain.ErrAccessDenied
	}
	return q, nil
}

func (r *Registry) emit(e Event) {
	for _, o := range r.observers {
		o(e)
	}
}

// commitExpiry marks an overdue, unanswered question as answered by fallback.
// It reports whether the transition happened. Callers must hold the lock.
func commitExpiry(q *domain.Question, fallback string, now time.Time) bool {
	if q.IsAnswered() || !q.Overdue(now) {
		return false
	}
	at := now.UTC()
	q.Answer = fallback
	q.AnsweredAt = &at
	q.Expired = true
	return true
}

func snapshot(q *domain.Question) domain.Question {
	s := *q
	s.PresetAnswers = slices.Clone(q.PresetAnswers)
	if q.AnsweredAt != nil {
		at := *q.AnsweredAt
		s.AnsweredAt = &at
	}
	return s
}

func cleanPresets(presets []string) []string {
	cleaned := make([]string, 0, len(presets))
	for _, p := range presets {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}

func newAuthKey() (string, error) {
	raw := make([]byte, authKeyRandLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate auth key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
