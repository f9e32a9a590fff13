package domain

import "time"

type QuestionStatus string

const (
	QuestionStatusPending  QuestionStatus = "pending"
	QuestionStatusAnswered QuestionStatus = "answered"
	QuestionStatusExpired  QuestionStatus = "expired"
)

// Question is a point-in-time view of a question handed to a human reviewer.
// Answer and AnsweredAt are set together; Expired marks an answer that was
// filled in with the fallback text when the deadline passed.
type Question struct {
	ID            string     `json:"question_id"`
	AuthKey       string     `json:"-"`
	Text          string     `json:"question"`
	PresetAnswers []string   `json:"preset_answers"`
	CreatedAt     time.Time  `json:"created_at"`
	TTLSeconds    int        `json:"ttl_seconds"`
	Answer        string     `json:"answer,omitempty"`
	AnsweredAt    *time.Time `json:"answered_at,omitempty"`
	Expired       bool       `json:"expired"`
}

// IsAnswered reports whether an answer (human or fallback) has been recorded.
func (q *Question) IsAnswered() bool {
	return q.AnsweredAt != nil
}

// Deadline returns the instant at which an unanswered question expires.
func (q *Question) Deadline() time.Time {
	return q.CreatedAt.Add(time.Duration(q.TTLSeconds) * time.Second)
}

// Overdue reports whether now is at or past the deadline.
func (q *Question) Overdue(now time.Time) bool {
	return !now.Before(q.Deadline())
}

// Status derives the logical status at now. It never mutates the question.
func (q *Question) Status(now time.Time) QuestionStatus {
	switch {
	case q.Expired:
		return QuestionStatusExpired
	case q.IsAnswered():
		return QuestionStatusAnswered
	case q.Overdue(now):
		return QuestionStatusExpired
	default:
		return QuestionStatusPending
	}
}

// Remaining returns the time left before the deadline, floored at zero.
func (q *Question) Remaining(now time.Time) time.Duration {
	d := q.Deadline().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
