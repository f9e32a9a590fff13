package v1

import (
	"context"

	"github.com/gosuda/handoff/internal/auth"
	"github.com/gosuda/handoff/internal/handoff"
)

// QuestionService abstracts the agent-facing question operations for handler testing.
// *handoff.Service satisfies this interface.
type QuestionService interface {
	Ask(ctx context.Context, cred auth.CredentialSource, in handoff.AskInput) (*handoff.AskResult, error)
	GetReply(ctx context.Context, cred auth.CredentialSource, questionID, authKey string) (*handoff.Reply, error)
}
