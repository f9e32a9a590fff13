package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/handoff/internal/domain"
	"github.com/gosuda/handoff/internal/messenger"
)

const (
	// Title is the notification title shown to reviewers.
	Title = "Agent escalation requires your input"
	// URLTitle labels the review link.
	URLTitle = "Answer now"

	defaultTimeout = 10 * time.Second
)

// MessengerRegistry lists the channels a Notifier tries, in order.
type MessengerRegistry interface {
	All() []messenger.Messenger
}

// Notifier alerts reviewers that a question is waiting. Delivery never
// affects the caller: Dispatch runs in the background and only logs failures.
type Notifier struct {
	messengers MessengerRegistry
	serverURL  string
	timeout    time.Duration

	wg sync.WaitGroup
}

// New creates a Notifier. serverURL is the public base of the review form.
// A non-positive timeout selects a 10s default.
func New(messengers MessengerRegistry, serverURL string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{
		messengers: messengers,
		serverURL:  strings.TrimRight(serverURL, "/"),
		timeout:    timeout,
	}
}

// ReviewURL returns the form link for q.
func (n *Notifier) ReviewURL(q domain.Question) string {
	return ReviewURL(n.serverURL, q.AuthKey, q.ID)
}

// ReviewURL joins the form path onto serverURL.
func ReviewURL(serverURL, authKey, questionID string) string {
	return fmt.Sprintf("%s/answer_question/%s/%s",
		strings.TrimRight(serverURL, "/"), url.PathEscape(authKey), url.PathEscape(questionID))
}

// Build composes the notification for q.
func (n *Notifier) Build(q domain.Question) messenger.Notification {
	options := make([]messenger.QuestionOption, 0, len(q.PresetAnswers))
	for _, p := range q.PresetAnswers {
		options = append(options, messenger.QuestionOption{Label: p, Value: p})
	}

	return messenger.Notification{
		Title:      Title,
		Message:    FormatMessage(q.Text, q.PresetAnswers),
		URL:        n.ReviewURL(q),
		URLTitle:   URLTitle,
		QuestionID: q.ID,
		AuthKey:    q.AuthKey,
		Options:    options,
	}
}

// FormatMessage renders the question followed by its preset answers, if any.
func FormatMessage(question string, presets []string) string {
	if len(presets) == 0 {
		return question
	}

	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\nOptions:")
	for _, p := range presets {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	return b.String()
}

// Notify sends msg through the first channel that accepts it.
// With no channels registered the message is logged and nil is returned.
func (n *Notifier) Notify(ctx context.Context, msg messenger.Notification) error {
	channels := n.messengers.All()
	if len(channels) == 0 {
		log.Info().Str("question_id", msg.QuestionID).Str("url", msg.URL).Msg("notify: no channels configured")
		return nil
	}

	// Try each channel until one succeeds.
	var errs []error
	for _, ch := range channels {
		sendErr := ch.SendNotification(ctx, msg)
		if sendErr == nil {
			log.Debug().Str("platform", ch.Platform()).Str("question_id", msg.QuestionID).Msg("notify: delivered")
			return nil
		}
		log.Warn().Err(sendErr).Str("platform", ch.Platform()).Msg("notify: channel failed")
		errs = append(errs, fmt.Errorf("%s: %w", ch.Platform(), sendErr))
	}

	return fmt.Errorf("notify.Notifier.Notify: all channels failed: %w", errors.Join(errs...))
}

// Dispatch notifies reviewers about q in the background. It is detached from
// ctx cancellation but keeps its values, and is bounded by the notifier timeout.
func (n *Notifier) Dispatch(ctx context.Context, q domain.Question) {
	msg := n.Build(q)
	base := context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		sendCtx, cancel := context.WithTimeout(base, n.timeout)
		defer cancel()

		if err := n.Notify(sendCtx, msg); err != nil {
			log.Error().Err(err).Str("question_id", q.ID).Msg("notify: dispatch failed")
		}
	}()
}

// Wait blocks until every dispatched notification has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
