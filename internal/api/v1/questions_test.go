package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/handoff/internal/api/v1"
	"github.com/gosuda/handoff/internal/auth"
	"github.com/gosuda/handoff/internal/domain"
	"github.com/gosuda/handoff/internal/handoff"
	"github.com/gosuda/handoff/internal/question"
)

// ---------------------------------------------------------------------------
// Mock QuestionService
// ---------------------------------------------------------------------------

type mockQuestionService struct {
	askFunc      func(ctx context.Context, cred auth.CredentialSource, in handoff.AskInput) (*handoff.AskResult, error)
	getReplyFunc func(ctx context.Context, cred auth.CredentialSource, id, key string) (*handoff.Reply, error)
}

func (m *mockQuestionService) Ask(ctx context.Context, cred auth.CredentialSource, in handoff.AskInput) (*handoff.AskResult, error) {
	return m.askFunc(ctx, cred, in)
}

func (m *mockQuestionService) GetReply(ctx context.Context, cred auth.CredentialSource, id, key string) (*handoff.Reply, error) {
	return m.getReplyFunc(ctx, cred, id, key)
}

func credential(t *testing.T, src auth.CredentialSource) string {
	t.Helper()
	v, _ := src.Credential()
	return v
}

func decodeDetail(t *testing.T, body []byte) string {
	t.Helper()
	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))
	detail, _ := problem["detail"].(string)
	return detail
}

// ---------------------------------------------------------------------------
// TestAskQuestion
// ---------------------------------------------------------------------------

func TestAskQuestion(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		svc := &mockQuestionService{
			askFunc: func(_ context.Context, cred auth.CredentialSource, in handoff.AskInput) (*handoff.AskResult, error) {
				assert.Equal(t, "secret", credential(t, cred))
				assert.Equal(t, "Deploy?", in.Question)
				assert.Equal(t, []string{"Yes", "No"}, in.PresetAnswers)
				assert.Equal(t, 30, in.TTLSeconds)
				return &handoff.AskResult{
					QuestionID:       "q1",
					AuthKey:          "k1",
					Status:           domain.QuestionStatusPending,
					ExpiresInSeconds: 30,
					PollMetadata:     handoff.NewPollMetadata(5),
					ReplyLocator:     handoff.ReplyLocator("q1", "k1"),
					ReplyEndpoint:    handoff.ReplyEndpoint("q1", "k1"),
				}, nil
			},
		}
		v1.RegisterQuestionRoutes(api, svc)

		resp := api.Post("/ask_question", "X-API-Key: secret", map[string]any{
			"question":       "Deploy?",
			"preset_answers": []string{"Yes", "No"},
			"ttl_seconds":    30,
		})

		require.Equal(t, http.StatusCreated, resp.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "q1", body["question_id"])
		assert.Equal(t, "k1", body["auth_key"])
		assert.Equal(t, "pending", body["status"])
		assert.InDelta(t, 30, body["expires_in_seconds"], 0)
		assert.InDelta(t, 5, body["poll_interval_seconds"], 0)
		assert.Equal(t, "get_reply", body["reply_tool"])
		assert.Equal(t, "resource://get_reply/q1/k1", body["reply_locator"])
		assert.Equal(t, "/api/v1/get_reply/k1/q1", body["reply_endpoint"])
	})

	t.Run("empty_question_rejected_by_schema", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		svc := &mockQuestionService{
			askFunc: func(context.Context, auth.CredentialSource, handoff.AskInput) (*handoff.AskResult, error) {
				t.Fatal("service must not be called")
				return nil, nil
			},
		}
		v1.RegisterQuestionRoutes(api, svc)

		resp := api.Post("/ask_question", map[string]any{"question": ""})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	errCases := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{"invalid_api_key", fmt.Errorf("wrap: %w", auth.ErrInvalidAPIKey), http.StatusUnauthorized, "invalid or missing API key"},
		{"invalid_input", fmt.Errorf("ttl_seconds must not be negative: %w", domain.ErrInvalidInput), http.StatusBadRequest, "ttl_seconds must not be negative: domain: invalid input"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "failed to create question"},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			svc := &mockQuestionService{
				askFunc: func(context.Context, auth.CredentialSource, handoff.AskInput) (*handoff.AskResult, error) {
					return nil, tc.err
				},
			}
			v1.RegisterQuestionRoutes(api, svc)

			resp := api.Post("/ask_question", map[string]any{"question": "Deploy?"})
			require.Equal(t, tc.wantStatus, resp.Code)
			assert.Equal(t, tc.wantDetail, decodeDetail(t, resp.Body.Bytes()))
		})
	}
}

// ---------------------------------------------------------------------------
// TestGetReply
// ---------------------------------------------------------------------------

func TestGetReply(t *testing.T) {
	t.Parallel()

	t.Run("pending", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		svc := &mockQuestionService{
			getReplyFunc: func(_ context.Context, cred auth.CredentialSource, id, key string) (*handoff.Reply, error) {
				assert.Equal(t, "secret", credential(t, cred))
				assert.Equal(t, "q1", id)
				assert.Equal(t, "k1", key)
				return &handoff.Reply{
					Status:              domain.QuestionStatusPending,
					ExpiresInSeconds:    12,
					PollIntervalSeconds: 5,
				}, nil
			},
		}
		v1.RegisterQuestionRoutes(api, svc)

		resp := api.Get("/get_reply/k1/q1", "X-API-Key: secret")
		require.Equal(t, http.StatusOK, resp.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, false, body["answered"])
		assert.Equal(t, "pending", body["status"])
		assert.InDelta(t, 12, body["expires_in_seconds"], 0)
		assert.NotContains(t, body, "reply")
	})

	t.Run("answered", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		svc := &mockQuestionService{
			getReplyFunc: func(context.Context, auth.CredentialSource, string, string) (*handoff.Reply, error) {
				return &handoff.Reply{
					Answered: true,
					Status:   domain.QuestionStatusAnswered,
					Reply:    &handoff.ReplyBody{Answer: "Yes"},
				}, nil
			},
		}
		v1.RegisterQuestionRoutes(api, svc)

		resp := api.Get("/get_reply/k1/q1")
		require.Equal(t, http.StatusOK, resp.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, true, body["answered"])
		reply, ok := body["reply"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Yes", reply["answer"])
		assert.Equal(t, false, reply["expired"])
		assert.NotContains(t, body, "poll_interval_seconds")
	})

	errCases := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{"invalid_api_key", auth.ErrInvalidAPIKey, http.StatusUnauthorized, "invalid or missing API key"},
		{"wrong_auth_key", fmt.Errorf("wrap: %w", domain.ErrAccessDenied), http.StatusForbidden, "invalid auth key"},
		{"unknown_question", fmt.Errorf("wrap: %w", domain.ErrNotFound), http.StatusNotFound, "question not found"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "failed to read reply"},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			svc := &mockQuestionService{
				getReplyFunc: func(context.Context, auth.CredentialSource, string, string) (*handoff.Reply, error) {
					return nil, tc.err
				},
			}
			v1.RegisterQuestionRoutes(api, svc)

			resp := api.Get("/get_reply/k1/q1")
			require.Equal(t, tc.wantStatus, resp.Code)
			assert.Equal(t, tc.wantDetail, decodeDetail(t, resp.Body.Bytes()))
		})
	}
}

// ---------------------------------------------------------------------------
// TestQuestionRoundTrip exercises the handlers against a real service.
// ---------------------------------------------------------------------------

func TestQuestionRoundTrip(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	clock := func() time.Time { return now }

	reg := question.NewRegistry(question.WithClock(clock))
	svc := handoff.NewService(auth.NewGuard("secret"), reg, nil, handoff.Settings{
		DefaultTTLSeconds:   60,
		PollIntervalSeconds: 5,
		FallbackAnswer:      "proceed",
	}, handoff.WithClock(clock))

	_, api := humatest.New(t)
	v1.RegisterQuestionRoutes(api, svc)

	resp := api.Post("/ask_question", "X-API-Key: wrong", map[string]any{"question": "Deploy?"})
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = api.Post("/ask_question", "X-API-Key: secret", map[string]any{
		"question":       "Deploy?",
		"preset_answers": []string{"Yes", "No"},
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	var created handoff.AskResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, 60, created.ExpiresInSeconds)

	path := fmt.Sprintf("/get_reply/%s/%s", created.AuthKey, created.QuestionID)

	resp = api.Get(path, "X-API-Key: secret")
	require.Equal(t, http.StatusOK, resp.Code)
	var pending handoff.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	assert.False(t, pending.Answered)
	assert.Equal(t, 60, pending.ExpiresInSeconds)

	resp = api.Get(fmt.Sprintf("/get_reply/nope/%s", created.QuestionID), "X-API-Key: secret")
	assert.Equal(t, http.StatusForbidden, resp.Code)

	_, recorded, err := svc.Submit(context.Background(), created.QuestionID, created.AuthKey, "Yes")
	require.NoError(t, err)
	require.True(t, recorded)

	resp = api.Get(path, "X-API-Key: secret")
	require.Equal(t, http.StatusOK, resp.Code)
	var answered handoff.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answered))
	assert.True(t, answered.Answered)
	require.NotNil(t, answered.Reply)
	assert.Equal(t, "Yes", answered.Reply.Answer)
	assert.False(t, answered.Reply.Expired)
}
