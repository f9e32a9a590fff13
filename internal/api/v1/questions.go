package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/handoff/internal/auth"
	"github.com/gosuda/handoff/internal/domain"
	"github.com/gosuda/handoff/internal/handoff"
)

type AskQuestionInput struct {
	APIKey string `header:"X-API-Key" doc:"Shared API key; required when the server has one configured"`
	Body   struct {
		Question      string   `json:"question" minLength:"1" maxLength:"4000" doc:"Question for the human reviewer"`
		PresetAnswers []string `json:"preset_answers,omitempty" maxItems:"20" doc:"Answers the reviewer can pick with one click"`
		TTLSeconds    int      `json:"ttl_seconds,omitempty" minimum:"0" doc:"Seconds before the fallback answer applies (0 = server default)"`
	}
}

type AskQuestionOutput struct {
	Body *handoff.AskResult
}

type GetReplyInput struct {
	APIKey     string `header:"X-API-Key" doc:"Shared API key; required when the server has one configured"`
	AuthKey    string `path:"auth_key" doc:"auth_key returned by ask_question"`
	QuestionID string `path:"question_id" doc:"question_id returned by ask_question"`
}

type GetReplyOutput struct {
	Body *handoff.Reply
}

func RegisterQuestionRoutes(api huma.API, svc QuestionService) {
	huma.Register(api, huma.Operation{
		OperationID:   "ask-question",
		Method:        http.MethodPost,
		Path:          "/ask_question",
		Summary:       "Escalate a question to a human reviewer",
		Tags:          []string{"Questions"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *AskQuestionInput) (*AskQuestionOutput, error) {
		res, err := svc.Ask(ctx, auth.StaticCredential(input.APIKey), handoff.AskInput{
			Question:      input.Body.Question,
			PresetAnswers: input.Body.PresetAnswers,
			TTLSeconds:    input.Body.TTLSeconds,
		})
		if err != nil {
			return nil, questionError(err, "failed to create question")
		}

		return &AskQuestionOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-reply",
		Method:      http.MethodGet,
		Path:        "/get_reply/{auth_key}/{question_id}",
		Summary:     "Poll for the reviewer's answer",
		Tags:        []string{"Questions"},
	}, func(ctx context.Context, input *GetReplyInput) (*GetReplyOutput, error) {
		reply, err := svc.GetReply(ctx, auth.StaticCredential(input.APIKey), input.QuestionID, input.AuthKey)
		if err != nil {
			return nil, questionError(err, "failed to read reply")
		}

		return &GetReplyOutput{Body: reply}, nil
	})
}

// questionError maps service errors onto problem responses. Order matters:
// an API key failure also wraps domain.ErrAccessDenied.
func questionError(err error, internalMsg string) error {
	switch {
	case errors.Is(err, auth.ErrInvalidAPIKey):
		return huma.Error401Unauthorized("invalid or missing API key")
	case errors.Is(err, domain.ErrAccessDenied):
		return huma.Error403Forbidden("invalid auth key")
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound("question not found")
	case errors.Is(err, domain.ErrInvalidInput):
		return huma.Error400BadRequest(err.Error())
	default:
		log.Error().Err(err).Msg(internalMsg)
		return huma.Error500InternalServerError(internalMsg)
	}
}
