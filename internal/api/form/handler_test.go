package form_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/handoff/internal/api/form"
	"github.com/gosuda/handoff/internal/auth"
	"github.com/gosuda/handoff/internal/domain"
	"github.com/gosuda/handoff/internal/handoff"
	"github.com/gosuda/handoff/internal/question"
)

const fallback = "proceed with best judgement"

type fixture struct {
	router http.Handler
	svc    *handoff.Service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	reg := question.NewRegistry(question.WithClock(clock))
	// API key set on purpose: the form must not require it.
	f.svc = handoff.NewService(auth.NewGuard("agent-key"), reg, nil, handoff.Settings{
		DefaultTTLSeconds:   120,
		PollIntervalSeconds: 5,
		FallbackAnswer:      fallback,
	}, handoff.WithClock(clock))

	h, err := form.NewHandler(f.svc)
	require.NoError(t, err)

	r := chi.NewRouter()
	h.Routes(r)
	f.router = r
	return f
}

func (f *fixture) ask(t *testing.T, text string, presets ...string) *handoff.AskResult {
	t.Helper()
	res, err := f.svc.Ask(context.Background(), auth.StaticCredential("agent-key"), handoff.AskInput{
		Question:      text,
		PresetAnswers: presets,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (f *fixture) post(path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func answerPath(res *handoff.AskResult) string {
	return fmt.Sprintf("/answer_question/%s/%s", res.AuthKey, res.QuestionID)
}

func TestShow(t *testing.T) {
	t.Parallel()

	t.Run("pending renders form with presets", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.ask(t, "Ship v2?", "Yes", "No")

		rec := f.get(answerPath(res))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

		body := rec.Body.String()
		assert.Contains(t, body, "Ship v2?")
		assert.Contains(t, body, `value="Yes"`)
		assert.Contains(t, body, `value="No"`)
		assert.Contains(t, body, `name="custom_answer"`)
		assert.Contains(t, body, "Expires in 120 seconds")
	})

	t.Run("question text is escaped", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.ask(t, "<script>alert(1)</script>")

		rec := f.get(answerPath(res))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "<script>alert(1)</script>")
	})

	t.Run("unknown id and wrong secret are both 404", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.ask(t, "Ship v2?")

		unknown := f.get(fmt.Sprintf("/answer_question/%s/%s", res.AuthKey, "missing"))
		wrong := f.get(fmt.Sprintf("/answer_question/%s/%s", "bad-key", res.QuestionID))

		assert.Equal(t, http.StatusNotFound, unknown.Code)
		assert.Equal(t, http.StatusNotFound, wrong.Code)
		assert.Equal(t, unknown.Body.String(), wrong.Body.String())
		assert.NotContains(t, wrong.Body.String(), "Ship v2?")
	})

	t.Run("expired question shows fallback notice", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.ask(t, "Ship v2?")
		f.now = f.now.Add(121 * time.Second)

		rec := f.get(answerPath(res))
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Question expired")
		assert.Contains(t, body, fallback)
		assert.NotContains(t, body, "<form")
	})
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	t.Run("preset answer is recorded", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.ask(t, "Ship v2?", "Yes", "No")

		rec := f.post(answerPath(res), url.Values{"answer": {"Yes"}})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Answer recorded")

		reply, err := f.svc.GetReply(context.Background(), auth.StaticCredential("agent-key"), res.QuestionID, res.AuthKey)
		require.NoError(t, err)
		require.NotNil(t, reply.Reply)
		assert.Equal(t, "Yes", reply.Reply.Answer)
		assert.Equal(t, domain.QuestionStatusAnswered, reply.Status)
	})

	t.Run("custom text wins over preset", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.ask(t, "Ship v2?", "Yes", "No")

		rec := f.post(answerPath(res), url.Values{
			"answer":        {"Yes"},
			"custom_answer": {"  Only after QA signs off  "},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		q, err := f.svc.Review(context.Background(), res.QuestionID, res.AuthKey)
		require.NoError(t, err)
		assert.Equal(t, "Only after QA signs off", q.Answer)
	})

	t.Run("empty submission re-renders form with 400", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.ask(t, "Ship v2?", "Yes")

		rec := f.post(answerPath(res), url.Values{"custom_answer": {"   "}})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "<form")
		assert.Contains(t, body, "Please choose an option")

		q, err := f.svc.Review(context.Background(), res.QuestionID, res.AuthKey)
		require.NoError(t, err)
		assert.False(t, q.IsAnswered())
	})

	t.Run("second submission is not recorded", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.ask(t, "Ship v2?", "Yes", "No")

		require.Equal(t, http.StatusOK, f.post(answerPath(res), url.Values{"answer": {"Yes"}}).Code)

		rec := f.post(answerPath(res), url.Values{"answer": {"No"}})
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Question already answered")
		assert.Contains(t, body, "was not recorded")

		q, err := f.svc.Review(context.Background(), res.QuestionID, res.AuthKey)
		require.NoError(t, err)
		assert.Equal(t, "Yes", q.Answer)
	})

	t.Run("submission after deadline keeps fallback", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.ask(t, "Ship v2?")
		f.now = f.now.Add(2 * time.Minute)

		rec := f.post(answerPath(res), url.Values{"custom_answer": {"Yes"}})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Question expired")

		q, err := f.svc.Review(context.Background(), res.QuestionID, res.AuthKey)
		require.NoError(t, err)
		assert.True(t, q.Expired)
		assert.Equal(t, fallback, q.Answer)
	})

	t.Run("wrong secret is 404 even with empty body", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.ask(t, "Ship v2?")

		rec := f.post(fmt.Sprintf("/answer_question/%s/%s", "bad-key", res.QuestionID), url.Values{})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
