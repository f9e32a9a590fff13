package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gosuda/handoff/internal/auth"
	"github.com/gosuda/handoff/internal/domain"
	"github.com/gosuda/handoff/internal/handoff"
)

const replyURIPrefix = "resource://get_reply/"

var errBadReplyURI = errors.New("mcp: reply URI must be resource://get_reply/{question_id}/{auth_key}") //nolint:gochecknoglobals // sentinel error

// ReplyResource serves resource://get_reply/{question_id}/{auth_key}.
type ReplyResource struct {
	svc Service
}

// NewReplyResource creates a ReplyResource.
func NewReplyResource(svc Service) *ReplyResource {
	return &ReplyResource{svc: svc}
}

// Template describes the reply resource.
func (r *ReplyResource) Template() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(handoff.ReplyResourceTemplate, "get_reply",
		mcp.WithTemplateDescription("Reply to a question created by ask_question. Poll until answered or expired."),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// Handle reads the reply for the question addressed by the request URI.
func (r *ReplyResource) Handle(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	questionID, authKey, err := parseReplyURI(req.Params.URI)
	if err != nil {
		return nil, err
	}

	reply, err := r.svc.GetReply(ctx, auth.CredentialFromContext(ctx), questionID, authKey)
	if err != nil {
		return nil, resourceError(err)
	}

	b, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("mcp.ReplyResource.Handle: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func parseReplyURI(uri string) (questionID, authKey string, err error) {
	rest, ok := strings.CutPrefix(uri, replyURIPrefix)
	if !ok {
		return "", "", errBadReplyURI
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return "", "", errBadReplyURI
	}
	if questionID, err = url.PathUnescape(parts[0]); err != nil {
		return "", "", errBadReplyURI
	}
	if authKey, err = url.PathUnescape(parts[1]); err != nil {
		return "", "", errBadReplyURI
	}
	if questionID == "" || authKey == "" {
		return "", "", errBadReplyURI
	}
	return questionID, authKey, nil
}

// resourceError hides internal detail from resource readers.
func resourceError(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidAPIKey):
		return auth.ErrInvalidAPIKey
	case errors.Is(err, domain.ErrAccessDenied):
		return errors.New("invalid auth key")
	case errors.Is(err, domain.ErrNotFound):
		return errors.New("unknown question_id")
	default:
		return fmt.Errorf("mcp.ReplyResource: %w", err)
	}
}
