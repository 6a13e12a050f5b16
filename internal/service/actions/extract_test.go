package actions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/aide/internal/core"
)

func TestExtract_NoBlocks(t *testing.T) {
	display, proposals := Extract(context.Background(), "Just a plain answer.")

	assert.Equal(t, "Just a plain answer.", display)
	assert.Empty(t, proposals)
}

func TestExtract_SingleTaskBlock(t *testing.T) {
	response := "I'll set that up.\n\n```ACTION\n" +
		`{"type": "create_task", "data": {"title": "Pay rent", "due_date": "2026-09-01"}, "reason": "You asked to be reminded"}` +
		"\n```\n\nAnything else?"

	display, proposals := Extract(context.Background(), response)

	require.Len(t, proposals, 1)
	p := proposals[0]
	assert.Equal(t, core.ActionCreateTask, p.Type)
	assert.Equal(t, core.StatusPending, p.Status)
	assert.Equal(t, "You asked to be reminded", p.Reason)
	assert.NotEmpty(t, p.ID)

	var d core.TaskData
	require.NoError(t, json.Unmarshal(p.Data, &d))
	assert.Equal(t, "Pay rent", d.Title)
	assert.Equal(t, "2026-09-01", d.DueDate)

	assert.Equal(t, "I'll set that up.\n\nAnything else?", display)
	assert.NotContains(t, display, "ACTION")
}

func TestExtract_FlatBlockLayout(t *testing.T) {
	response := "Done.\n```ACTION\n" +
		`{"type": "create_event", "subject": "Standup", "start_datetime": "2026-09-01T09:00:00", "end_datetime": "2026-09-01T09:15:00"}` +
		"\n```"

	_, proposals := Extract(context.Background(), response)

	require.Len(t, proposals, 1)
	assert.Equal(t, core.ActionCreateEvent, proposals[0].Type)

	var d core.EventData
	require.NoError(t, json.Unmarshal(proposals[0].Data, &d))
	assert.Equal(t, "Standup", d.Subject)
	assert.Equal(t, "2026-09-01T09:00:00", d.StartDateTime)
}

func TestExtract_MultipleBlocks(t *testing.T) {
	response := "Two things:\n" +
		"```ACTION\n{\"type\": \"create_task\", \"data\": {\"title\": \"A\"}, \"reason\": \"r1\"}\n```\n" +
		"and\n" +
		"```ACTION\n{\"type\": \"draft_email\", \"data\": {\"to\": [\"x@example.com\"], \"subject\": \"Hi\", \"body\": \"b\"}, \"reason\": \"r2\"}\n```\n"

	_, proposals := Extract(context.Background(), response)

	require.Len(t, proposals, 2)
	assert.Equal(t, core.ActionCreateTask, proposals[0].Type)
	assert.Equal(t, core.ActionDraftEmail, proposals[1].Type)
	assert.NotEqual(t, proposals[0].ID, proposals[1].ID)
}

func TestExtract_InvalidBlocksDropped(t *testing.T) {
	cases := []struct {
		name     string
		block    string
	}{
		{"broken json", "{not json"},
		{"unknown type", `{"type": "launch_rocket", "data": {}, "reason": "r"}`},
		{"missing required field", `{"type": "create_task", "data": {"body": "no title"}, "reason": "r"}`},
		{"missing event times", `{"type": "create_event", "data": {"subject": "Standup"}, "reason": "r"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			response := "Text.\n```ACTION\n" + tc.block + "\n```\nMore text."
			display, proposals := Extract(context.Background(), response)

			assert.Empty(t, proposals)
			assert.NotContains(t, display, "ACTION")
			assert.Contains(t, display, "Text.")
			assert.Contains(t, display, "More text.")
		})
	}
}

func TestExtract_CanonicalizesPayload(t *testing.T) {
	response := "```ACTION\n" +
		`{"type": "create_note", "data": {"folder": "Ideas", "filename": "app.md", "content": "c", "surprise": "dropped"}, "reason": "r"}` +
		"\n```"

	_, proposals := Extract(context.Background(), response)

	require.Len(t, proposals, 1)
	assert.NotContains(t, string(proposals[0].Data), "surprise")
}
