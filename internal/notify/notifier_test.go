package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/handoff/internal/domain"
	"github.com/gosuda/handoff/internal/messenger"
	"github.com/gosuda/handoff/internal/notify"
)

// --- mocks ---

type mockMessenger struct {
	mu            sync.Mutex
	platform      string
	notifications []messenger.Notification
	notifyErr     error
	block         chan struct{}
	deadlineSeen  bool
}

func (m *mockMessenger) SendNotification(ctx context.Context, n messenger.Notification) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, m.deadlineSeen = ctx.Deadline()
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *mockMessenger) Platform() string { return m.platform }

func (m *mockMessenger) sent() []messenger.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]messenger.Notification(nil), m.notifications...)
}

func registryOf(ms ...messenger.Messenger) *notify.Registry {
	reg := notify.NewRegistry()
	for _, m := range ms {
		reg.Register(m)
	}
	return reg
}

func testQuestion() domain.Question {
	return domain.Question{
		ID:            "q1",
		AuthKey:       "secret",
		Text:          "Ship v2?",
		PresetAnswers: []string{"Yes", "No"},
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TTLSeconds:    120,
	}
}

// --- message formatting ---

func TestFormatMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Ship v2?\n\nOptions:\n- Yes\n- No", notify.FormatMessage("Ship v2?", []string{"Yes", "No"}))
	assert.Equal(t, "Free text?", notify.FormatMessage("Free text?", nil))
}

func TestReviewURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://localhost:8000/answer_question/secret/q1", notify.ReviewURL("http://localhost:8000", "secret", "q1"))
	assert.Equal(t, "https://x.example/answer_question/k/id", notify.ReviewURL("https://x.example/", "k", "id"))
}

func TestBuild(t *testing.T) {
	t.Parallel()

	n := notify.New(notify.NewRegistry(), "http://localhost:8000/", time.Second)
	msg := n.Build(testQuestion())

	assert.Equal(t, "Agent escalation requires your input", msg.Title)
	assert.Equal(t, "Answer now", msg.URLTitle)
	assert.Equal(t, "http://localhost:8000/answer_question/secret/q1", msg.URL)
	assert.Equal(t, "Ship v2?\n\nOptions:\n- Yes\n- No", msg.Message)
	assert.Equal(t, "q1", msg.QuestionID)
	assert.Equal(t, "secret", msg.AuthKey)
	assert.Equal(t, []messenger.QuestionOption{{Label: "Yes", Value: "Yes"}, {Label: "No", Value: "No"}}, msg.Options)
}

// --- Notify tests ---

func TestNotify(t *testing.T) {
	t.Parallel()

	msg := messenger.Notification{Title: "t", Message: "m", QuestionID: "q1"}

	t.Run("happy path sends via first channel", func(t *testing.T) {
		t.Parallel()

		first := &mockMessenger{platform: "pushover"}
		second := &mockMessenger{platform: "slack"}
		n := notify.New(registryOf(first, second), "http://localhost", time.Second)

		require.NoError(t, n.Notify(t.Context(), msg))
		assert.Len(t, first.sent(), 1)
		assert.Empty(t, second.sent())
	})

	t.Run("no channels logs without error", func(t *testing.T) {
		t.Parallel()

		n := notify.New(notify.NewRegistry(), "http://localhost", time.Second)
		require.NoError(t, n.Notify(t.Context(), msg))
	})

	t.Run("falls through to next channel", func(t *testing.T) {
		t.Parallel()

		failing := &mockMessenger{platform: "pushover", notifyErr: errors.New("rate limited")}
		working := &mockMessenger{platform: "slack"}
		n := notify.New(registryOf(failing, working), "http://localhost", time.Second)

		require.NoError(t, n.Notify(t.Context(), msg))
		assert.Len(t, working.sent(), 1)
	})

	t.Run("all channels fail", func(t *testing.T) {
		t.Parallel()

		errA := errors.New("a down")
		errB := errors.New("b down")
		n := notify.New(registryOf(
			&mockMessenger{platform: "pushover", notifyErr: errA},
			&mockMessenger{platform: "slack", notifyErr: errB},
		), "http://localhost", time.Second)

		err := n.Notify(t.Context(), msg)
		require.Error(t, err)
		require.ErrorIs(t, err, errA)
		require.ErrorIs(t, err, errB)
		assert.Contains(t, err.Error(), "all channels failed")
	})
}

// --- Dispatch tests ---

func TestDispatch(t *testing.T) {
	t.Parallel()

	t.Run("delivers in background with a deadline", func(t *testing.T) {
		t.Parallel()

		m := &mockMessenger{platform: "slack"}
		n := notify.New(registryOf(m), "http://localhost:8000", time.Second)

		n.Dispatch(t.Context(), testQuestion())
		n.Wait()

		sent := m.sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "http://localhost:8000/answer_question/secret/q1", sent[0].URL)
		assert.True(t, m.deadlineSeen)
	})

	t.Run("survives caller cancellation", func(t *testing.T) {
		t.Parallel()

		m := &mockMessenger{platform: "slack", block: make(chan struct{})}
		n := notify.New(registryOf(m), "http://localhost", time.Second)

		ctx, cancel := context.WithCancel(t.Context())
		n.Dispatch(ctx, testQuestion())
		cancel()
		close(m.block)
		n.Wait()

		assert.Len(t, m.sent(), 1)
	})

	t.Run("timeout bounds a stuck channel", func(t *testing.T) {
		t.Parallel()

		m := &mockMessenger{platform: "slack", block: make(chan struct{})}
		n := notify.New(registryOf(m), "http://localhost", 20*time.Millisecond)

		start := time.Now()
		n.Dispatch(t.Context(), testQuestion())
		n.Wait()

		assert.Less(t, time.Since(start), time.Second)
		assert.Empty(t, m.sent())
	})

	t.Run("failure is swallowed", func(t *testing.T) {
		t.Parallel()

		m := &mockMessenger{platform: "slack", notifyErr: errors.New("boom")}
		n := notify.New(registryOf(m), "http://localhost", time.Second)

		assert.NotPanics(t, func() {
			n.Dispatch(t.Context(), testQuestion())
			n.Wait()
		})
	})
}
