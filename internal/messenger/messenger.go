package messenger

import "context"

// QuestionOption represents a preset answer presented to the reviewer.
type QuestionOption struct {
	Label string `json:"label"` // display text
	Value string `json:"value"` // answer recorded on selection
}

// Notification is a platform-agnostic alert asking a human to answer a question.
type Notification struct {
	Title    string
	Message  string
	URL      string // review page for the question
	URLTitle string

	// QuestionID and AuthKey let interactive platforms submit an answer
	// without the reviewer opening URL.
	QuestionID string
	AuthKey    string
	Options    []QuestionOption
}

// Messenger abstracts a push channel (Pushover, Slack, etc.).
// Implementations handle platform-specific API calls; the interface is platform-agnostic.
type Messenger interface {
	// SendNotification delivers n to the platform's configured recipient.
	SendNotification(ctx context.Context, n Notification) error

	// Platform returns the messenger platform identifier (e.g. "slack", "pushover").
	Platform() string
}
