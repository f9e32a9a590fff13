package handoff

import (
	"fmt"
	"net/url"
)

const (
	// ReplyToolName is the MCP tool agents poll for answers.
	ReplyToolName = "get_reply"
	// ReplyResourceTemplate is the MCP resource agents may poll instead of the tool.
	ReplyResourceTemplate = "resource://get_reply/{question_id}/{auth_key}"

	pollInstructionsFmt = "Poll the reply resource every %d seconds for the answer."
	replyLocatorFmt     = "resource://get_reply/%s/%s"
	replyEndpointFmt    = "/api/v1/get_reply/%s/%s"
)

// PollMetadata tells an agent how to wait for an answer.
type PollMetadata struct {
	PollIntervalSeconds   int    `json:"poll_interval_seconds"`
	PollInstructions      string `json:"poll_instructions"`
	ReplyTool             string `json:"reply_tool"`
	ReplyResourceTemplate string `json:"reply_resource_template"`
}

// NewPollMetadata builds the polling hints for the given interval.
func NewPollMetadata(intervalSeconds int) PollMetadata {
	return PollMetadata{
		PollIntervalSeconds:   intervalSeconds,
		PollInstructions:      PollInstructions(intervalSeconds),
		ReplyTool:             ReplyToolName,
		ReplyResourceTemplate: ReplyResourceTemplate,
	}
}

// PollInstructions is the human-readable polling hint.
func PollInstructions(intervalSeconds int) string {
	return fmt.Sprintf(pollInstructionsFmt, intervalSeconds)
}

// ReplyLocator fills ReplyResourceTemplate for one question.
func ReplyLocator(questionID, authKey string) string {
	return fmt.Sprintf(replyLocatorFmt, url.PathEscape(questionID), url.PathEscape(authKey))
}

// ReplyEndpoint is the REST path answering the same lookup as ReplyLocator.
func ReplyEndpoint(questionID, authKey string) string {
	return fmt.Sprintf(replyEndpointFmt, url.PathEscape(authKey), url.PathEscape(questionID))
}
