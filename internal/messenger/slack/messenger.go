package slack

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/handoff/internal/messenger"
)

// SlackAPI abstracts the subset of the Slack client used by this package.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slacklib.MsgOption) (string, string, string, error)
}

// SlackMessenger implements messenger.Messenger by posting to a single channel.
type SlackMessenger struct {
	api       SlackAPI
	channelID string
}

// Compile-time interface check.
var _ messenger.Messenger = (*SlackMessenger)(nil) //nolint:gochecknoglobals // compile-time check

// NewSlackMessenger creates a SlackMessenger posting to channelID.
func NewSlackMessenger(api SlackAPI, channelID string) *SlackMessenger {
	return &SlackMessenger{api: api, channelID: channelID}
}

// SendNotification posts the question with answer buttons and a review link.
func (m *SlackMessenger) SendNotification(ctx context.Context, n messenger.Notification) error {
	_, _, err := m.api.PostMessageContext(ctx, m.channelID,
		slacklib.MsgOptionText(fmt.Sprintf("%s: %s", n.Title, n.Message), false),
		slacklib.MsgOptionBlocks(BuildQuestionBlocks(n)...),
	)
	if err != nil {
		return fmt.Errorf("slack.SlackMessenger.SendNotification: %w", err)
	}

	return nil
}

// Platform returns the messenger platform identifier.
func (m *SlackMessenger) Platform() string {
	return "slack"
}
