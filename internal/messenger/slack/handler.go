package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/handoff/internal/domain"
)

// Responder records an answer chosen from a Slack message.
type Responder interface {
	Submit(ctx context.Context, questionID, authKey, answer string) (domain.Question, bool, error)
}

// Handler processes Slack interactive component callbacks.
type Handler struct {
	signingSecret string
	responder     Responder
	api           SlackAPI
}

// NewHandler creates a new Slack interaction handler. api may be nil, in
// which case answered messages are left unchanged.
func NewHandler(signingSecret string, responder Responder, api SlackAPI) *Handler {
	return &Handler{
		signingSecret: signingSecret,
		responder:     responder,
		api:           api,
	}
}

// HandleInteractions is an http.HandlerFunc for POST /slack/interactions.
func (h *Handler) HandleInteractions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if verifyErr := h.verifySignature(r.Header, body); verifyErr != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	// Interactions use form-encoded body; the payload is in the "payload" field.
	// We already consumed the body for signature verification, so re-create it
	// and let the stdlib parse the form.
	r.Body = io.NopCloser(bytes.NewReader(body))

	parseErr := r.ParseForm()
	if parseErr != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	payloadStr := r.FormValue("payload")
	if payloadStr == "" {
		payloadStr = extractFormPayload(string(body))
	}

	if payloadStr == "" {
		http.Error(w, "missing payload", http.StatusBadRequest)
		return
	}

	var callback slacklib.InteractionCallback
	if unmarshalErr := json.Unmarshal([]byte(payloadStr), &callback); unmarshalErr != nil {
		http.Error(w, "invalid payload JSON", http.StatusBadRequest)
		return
	}

	action, ok := extractAnswerAction(&callback)
	if !ok {
		// Link buttons and unrelated actions need no response.
		w.WriteHeader(http.StatusOK)
		return
	}

	questionID, authKey, answer, decodeErr := DecodeAnswerValue(action.Value)
	if decodeErr != nil {
		log.Warn().Str("action_id", action.ActionID).Msg("slack: ignoring malformed answer action")
		w.WriteHeader(http.StatusOK)
		return
	}

	q, recorded, submitErr := h.responder.Submit(r.Context(), questionID, authKey, answer)
	if submitErr != nil {
		log.Error().Err(submitErr).Str("question_id", questionID).Msg("slack: submit answer")
		w.WriteHeader(http.StatusOK)
		return
	}

	log.Info().
		Str("question_id", questionID).
		Str("slack_user", callback.User.ID).
		Bool("recorded", recorded).
		Msg("slack: answer received")

	h.closeMessage(r.Context(), &callback, q)
	w.WriteHeader(http.StatusOK)
}

// closeMessage rewrites the original message so the buttons cannot be reused.
func (h *Handler) closeMessage(ctx context.Context, callback *slacklib.InteractionCallback, q domain.Question) {
	if h.api == nil {
		return
	}

	channelID := callback.Container.ChannelID
	if channelID == "" {
		channelID = callback.Channel.ID
	}
	ts := callback.Container.MessageTs
	if ts == "" {
		ts = callback.Message.Timestamp
	}
	if channelID == "" || ts == "" {
		return
	}

	_, _, _, err := h.api.UpdateMessageContext(ctx, channelID, ts,
		slacklib.MsgOptionText(fmt.Sprintf("%s: %s", q.Text, q.Answer), false),
		slacklib.MsgOptionBlocks(BuildClosedBlocks(q.Text, q.Answer, q.Expired)...),
	)
	if err != nil {
		log.Warn().Err(err).Str("question_id", q.ID).Msg("slack: update answered message")
	}
}

// verifySignature validates the Slack request signature using the signing secret.
func (h *Handler) verifySignature(header http.Header, body []byte) error {
	sv, err := slacklib.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return fmt.Errorf("slack.Handler.verifySignature: create verifier: %w", err)
	}

	if _, writeErr := sv.Write(body); writeErr != nil {
		return fmt.Errorf("slack.Handler.verifySignature: write body: %w", writeErr)
	}

	if ensureErr := sv.Ensure(); ensureErr != nil {
		return fmt.Errorf("slack.Handler.verifySignature: ensure: %w", ensureErr)
	}

	return nil
}

// extractAnswerAction returns the first block action carrying an answer value.
func extractAnswerAction(callback *slacklib.InteractionCallback) (*slacklib.BlockAction, bool) {
	for _, a := range callback.ActionCallback.BlockActions {
		if a != nil && a.ActionID != openActionID && a.Value != "" {
			return a, true
		}
	}

	return nil, false
}

// extractFormPayload parses the "payload" value from a URL-encoded form body.
func extractFormPayload(body string) string {
	values, err := url.ParseQuery(body)
	if err != nil {
		return ""
	}

	return values.Get("payload")
}
