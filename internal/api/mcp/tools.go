package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/handoff/internal/auth"
	"github.com/gosuda/handoff/internal/domain"
	"github.com/gosuda/handoff/internal/handoff"
)

// Service is the subset of handoff.Service the MCP tools call.
type Service interface {
	Ask(ctx context.Context, cred auth.CredentialSource, in handoff.AskInput) (*handoff.AskResult, error)
	GetReply(ctx context.Context, cred auth.CredentialSource, questionID, authKey string) (*handoff.Reply, error)
}

// AskTool implements the ask_question tool.
type AskTool struct {
	svc Service
}

// NewAskTool creates an AskTool.
func NewAskTool(svc Service) *AskTool {
	return &AskTool{svc: svc}
}

// Definition describes ask_question.
func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool("ask_question",
		mcp.WithDescription("Escalate a decision to a human reviewer. Returns a question_id and auth_key; "+
			"poll get_reply with both until the status is answered or expired."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question for the human reviewer."),
		),
		mcp.WithArray("preset_answers",
			mcp.Description("Optional answers the reviewer can pick with one click."),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("ttl_seconds",
			mcp.Description("Seconds to wait for a human before the fallback answer applies. Defaults to the server setting."),
			mcp.Min(1),
		),
	)
}

// Handle creates the question.
func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	questionText, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.svc.Ask(ctx, auth.CredentialFromContext(ctx), handoff.AskInput{
		Question:      questionText,
		PresetAnswers: req.GetStringSlice("preset_answers", nil),
		TTLSeconds:    req.GetInt("ttl_seconds", 0),
	})
	if err != nil {
		return toolError("ask_question", err)
	}

	return jsonResult(res)
}

// ReplyTool implements the get_reply tool.
type ReplyTool struct {
	svc Service
}

// NewReplyTool creates a ReplyTool.
func NewReplyTool(svc Service) *ReplyTool {
	return &ReplyTool{svc: svc}
}

// Definition describes get_reply.
func (t *ReplyTool) Definition() mcp.Tool {
	return mcp.NewTool(handoff.ReplyToolName,
		mcp.WithDescription("Check whether a human has answered a question created by ask_question."),
		mcp.WithString("question_id",
			mcp.Required(),
			mcp.Description("question_id returned by ask_question."),
		),
		mcp.WithString("auth_key",
			mcp.Required(),
			mcp.Description("auth_key returned by ask_question."),
		),
	)
}

// Handle returns the current reply.
func (t *ReplyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	questionID, err := req.RequireString("question_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	authKey, err := req.RequireString("auth_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reply, err := t.svc.GetReply(ctx, auth.CredentialFromContext(ctx), questionID, authKey)
	if err != nil {
		return toolError(handoff.ReplyToolName, err)
	}

	return jsonResult(reply)
}

// toolError reports caller mistakes as tool results and everything else as a
// protocol error.
func toolError(tool string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, auth.ErrInvalidAPIKey):
		return mcp.NewToolResultError("invalid or missing API key"), nil
	case errors.Is(err, domain.ErrAccessDenied):
		return mcp.NewToolResultError("invalid auth key"), nil
	case errors.Is(err, domain.ErrNotFound):
		return mcp.NewToolResultError("unknown question_id"), nil
	case errors.Is(err, domain.ErrInvalidInput):
		return mcp.NewToolResultError(err.Error()), nil
	default:
		log.Error().Err(err).Str("tool", tool).Msg("mcp: tool failed")
		return nil, fmt.Errorf("mcp.%s: %w", tool, err)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp.jsonResult: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
