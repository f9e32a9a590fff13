package pushover

import (
	"context"
	"fmt"

	po "github.com/gregdel/pushover"

	"github.com/gosuda/handoff/internal/messenger"
)

// Pushover field limits.
const (
	maxTitleLen    = 250
	maxMessageLen  = 1024
	maxURLTitleLen = 100
)

// PushoverAPI abstracts the subset of the Pushover client used by PushoverMessenger.
type PushoverAPI interface {
	SendMessage(message *po.Message, recipient *po.Recipient) (*po.Response, error)
}

// PushoverMessenger implements messenger.Messenger for a single Pushover user or group.
type PushoverMessenger struct {
	api       PushoverAPI
	recipient *po.Recipient
}

// Compile-time interface check.
var _ messenger.Messenger = (*PushoverMessenger)(nil) //nolint:gochecknoglobals // compile-time check

// NewPushoverMessenger creates a PushoverMessenger delivering to userKey.
func NewPushoverMessenger(api PushoverAPI, userKey string) *PushoverMessenger {
	return &PushoverMessenger{api: api, recipient: po.NewRecipient(userKey)}
}

// New builds a PushoverMessenger backed by the real Pushover client.
func New(token, userKey string) *PushoverMessenger {
	return NewPushoverMessenger(po.New(token), userKey)
}

// SendNotification pushes n with its review link attached as a supplementary URL.
// The client has no context support; ctx is only checked before sending.
func (m *PushoverMessenger) SendNotification(ctx context.Context, n messenger.Notification) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pushover.PushoverMessenger.SendNotification: %w", err)
	}

	msg := &po.Message{
		Title:    truncate(n.Title, maxTitleLen),
		Message:  truncate(n.Message, maxMessageLen),
		URL:      n.URL,
		URLTitle: truncate(n.URLTitle, maxURLTitleLen),
		Priority: po.PriorityNormal,
	}

	resp, err := m.api.SendMessage(msg, m.recipient)
	if err != nil {
		return fmt.Errorf("pushover.PushoverMessenger.SendNotification: %w", err)
	}
	if resp != nil && resp.Status != 1 {
		return fmt.Errorf("pushover.PushoverMessenger.SendNotification: status %d (request %s)", resp.Status, resp.ID)
	}

	return nil
}

// Platform returns the messenger platform identifier.
func (m *PushoverMessenger) Platform() string {
	return "pushover"
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
