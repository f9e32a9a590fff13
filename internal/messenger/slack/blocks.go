package slack

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/handoff/internal/messenger"
)

const (
	actionBlockID   = "handoff_actions"
	answerActionFmt = "handoff_answer_%d"
	openActionID    = "handoff_open"
	valueSep        = "|"

	// Block Kit limits for button elements and action blocks.
	maxButtonText     = 75
	maxButtonValue    = 2000
	maxActionElements = 25
)

var errMalformedValue = errors.New("slack: malformed action value") //nolint:gochecknoglobals // sentinel error

// EncodeAnswerValue packs the question reference and a preset answer into a
// button value. Question ids and auth keys never contain the separator.
func EncodeAnswerValue(questionID, authKey, answer string) string {
	return questionID + valueSep + authKey + valueSep + answer
}

// DecodeAnswerValue reverses EncodeAnswerValue.
func DecodeAnswerValue(value string) (questionID, authKey, answer string, err error) {
	parts := strings.SplitN(value, valueSep, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", errMalformedValue
	}
	return parts[0], parts[1], parts[2], nil
}

// BuildQuestionBlocks builds Slack Block Kit blocks for a question notification.
// Preset options become answer buttons; the review URL becomes a link button.
func BuildQuestionBlocks(n messenger.Notification) []slacklib.Block {
	text := fmt.Sprintf("*%s*\n%s", n.Title, n.Message)
	textBlock := slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType, text, false, false),
		nil,
		nil,
	)

	elements := make([]slacklib.BlockElement, 0, len(n.Options)+1)
	if n.QuestionID != "" && n.AuthKey != "" {
		for i, opt := range n.Options {
			if len(elements) == maxActionElements-1 {
				break
			}
			// Answers that do not fit in a button value stay reachable from the form.
			value := EncodeAnswerValue(n.QuestionID, n.AuthKey, opt.Value)
			if len(value) > maxButtonValue {
				continue
			}
			btn := slacklib.NewButtonBlockElement(
				fmt.Sprintf(answerActionFmt, i),
				value,
				slacklib.NewTextBlockObject(slacklib.PlainTextType, truncate(opt.Label, maxButtonText), false, false),
			)
			elements = append(elements, btn)
		}
	}
	if n.URL != "" {
		title := n.URLTitle
		if title == "" {
			title = n.URL
		}
		link := slacklib.NewButtonBlockElement(
			openActionID,
			"",
			slacklib.NewTextBlockObject(slacklib.PlainTextType, truncate(title, maxButtonText), false, false),
		)
		link.URL = n.URL
		link.Style = slacklib.StylePrimary
		elements = append(elements, link)
	}

	if len(elements) == 0 {
		return []slacklib.Block{textBlock}
	}

	return []slacklib.Block{textBlock, slacklib.NewActionBlock(actionBlockID, elements...)}
}

// truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}

// BuildClosedBlocks replaces a question message once it has a final answer.
func BuildClosedBlocks(question, answer string, expired bool) []slacklib.Block {
	status := "Answered"
	if expired {
		status = "Expired"
	}
	text := fmt.Sprintf("*%s:* %s\n*Answer:* %s", status, question, answer)
	section := slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType, text, false, false),
		nil,
		nil,
	)

	return []slacklib.Block{section}
}
