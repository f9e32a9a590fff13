package mcp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"github.com/gosuda/handoff/internal/auth"
	"github.com/gosuda/handoff/internal/handoff"
)

// ServerName identifies this MCP server to clients.
const ServerName = "human-handoff"

// NewServer registers the handoff tools and reply resource.
func NewServer(svc Service, settings handoff.Settings, version string) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithInstructions(Instructions(settings)),
	)

	ask := NewAskTool(svc)
	s.AddTool(ask.Definition(), ask.Handle)

	reply := NewReplyTool(svc)
	s.AddTool(reply.Definition(), reply.Handle)

	replyResource := NewReplyResource(svc)
	s.AddResourceTemplate(replyResource.Template(), replyResource.Handle)

	return s
}

// NewHandler wraps s in the streamable HTTP transport. The API key of every
// request is made available to tool handlers.
func NewHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithEndpointPath("/mcp"),
		server.WithHTTPContextFunc(CredentialContext),
	)
}

// CredentialContext copies the presented API key onto ctx.
func CredentialContext(ctx context.Context, r *http.Request) context.Context {
	if key, ok := auth.RequestCredential(r).Credential(); ok {
		return auth.WithCredential(ctx, key)
	}
	return ctx
}

// Instructions describes the escalation and polling loop to the agent.
func Instructions(settings handoff.Settings) string {
	return fmt.Sprintf("Use the ask_question tool to escalate tricky decisions to a human reviewer. "+
		"Always include the X-API-Key header when calling tools or resources. After calling "+
		"ask_question, call get_reply or read %s every %d seconds until you receive "+
		"an answered or expired status. Questions expire after %d seconds by default, "+
		"returning the fallback reply.",
		handoff.ReplyResourceTemplate, settings.PollIntervalSeconds, settings.DefaultTTLSeconds)
}
