// Package actions turns ACTION blocks in model output into stored,
// user-approvable proposals and executes them once approved.
package actions

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/pkg/log"
)

var actionBlockRe = regexp.MustCompile("(?s)```ACTION\\s*\\n(.*?)```")

// Extract parses ACTION blocks out of a complete response, returning the
// display text with the blocks removed and the valid proposals found.
// Malformed blocks are dropped: the user sees clean text either way.
func Extract(ctx context.Context, response string) (string, []core.ProposedAction) {
	logger := log.FromCtx(ctx)
	now := time.Now().UTC()

	var proposals []core.ProposedAction
	for _, match := range actionBlockRe.FindAllStringSubmatch(response, -1) {
		actionType, payload, reason, err := parseBlock(match[1])
		if err != nil {
			logger.Warn().Err(err).Msg("dropping unparseable action block")
			continue
		}
		data, err := core.ValidateActionPayload(actionType, payload)
		if err != nil {
			logger.Warn().Err(err).Str("type", string(actionType)).Msg("dropping invalid action block")
			continue
		}
		proposals = append(proposals, core.ProposedAction{
			ID:        uuid.NewString(),
			Type:      actionType,
			Status:    core.StatusPending,
			Data:      data,
			Reason:    reason,
			CreatedAt: now,
		})
	}

	display := actionBlockRe.ReplaceAllString(response, "")
	display = collapseBlankLines(display)
	return strings.TrimSpace(display), proposals
}

// parseBlock accepts both block layouts models produce: payload fields
// inline next to "type", or nested under a "data" key.
func parseBlock(raw string) (core.ActionType, json.RawMessage, string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return "", nil, "", err
	}

	var actionType core.ActionType
	if t, ok := fields["type"]; ok {
		if err := json.Unmarshal(t, &actionType); err != nil {
			return "", nil, "", err
		}
	}

	var reason string
	if r, ok := fields["reason"]; ok {
		_ = json.Unmarshal(r, &reason)
	}

	if data, ok := fields["data"]; ok {
		return actionType, data, reason, nil
	}

	delete(fields, "type")
	delete(fields, "reason")
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", nil, "", err
	}
	return actionType, payload, reason, nil
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankLinesRe.ReplaceAllString(s, "\n\n")
}
