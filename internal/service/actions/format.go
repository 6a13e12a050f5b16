package actions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/aide/internal/core"
)

// FormatForChat renders a proposal as markdown for the conversation surface,
// ending with the approve/reject instructions.
func FormatForChat(action core.ProposedAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Proposed Action** (ID: %s)\n", action.ID)
	fmt.Fprintf(&b, "Type: %s\n", action.Type)
	fmt.Fprintf(&b, "Reason: %s\n", action.Reason)

	switch action.Type {
	case core.ActionCreateTask:
		var d core.TaskData
		if json.Unmarshal(action.Data, &d) == nil {
			b.WriteString("\n**Task Details:**\n")
			fmt.Fprintf(&b, "- Title: %s\n", d.Title)
			writeOpt(&b, "Description", d.Body)
			writeOpt(&b, "Due", d.DueDate)
			if d.Importance != "" && d.Importance != "normal" {
				fmt.Fprintf(&b, "- Priority: %s\n", d.Importance)
			}
		}

	case core.ActionUpdateTask:
		var d core.TaskUpdateData
		if json.Unmarshal(action.Data, &d) == nil {
			b.WriteString("\n**Task Update:**\n")
			fmt.Fprintf(&b, "- Task ID: %s\n", d.TaskID)
			writeOpt(&b, "New Title", d.Title)
			writeOpt(&b, "New Description", d.Body)
			writeOpt(&b, "New Due Date", d.DueDate)
			writeOpt(&b, "Status", d.Status)
			writeOpt(&b, "Priority", d.Importance)
		}

	case core.ActionCreateEvent:
		var d core.EventData
		if json.Unmarshal(action.Data, &d) == nil {
			b.WriteString("\n**Event Details:**\n")
			fmt.Fprintf(&b, "- Subject: %s\n", d.Subject)
			fmt.Fprintf(&b, "- Start: %s\n", d.StartDateTime)
			fmt.Fprintf(&b, "- End: %s\n", d.EndDateTime)
			writeOpt(&b, "Location", d.Location)
			if len(d.Attendees) > 0 {
				fmt.Fprintf(&b, "- Attendees: %s\n", strings.Join(d.Attendees, ", "))
			}
		}

	case core.ActionCreateNote, core.ActionEditNote:
		var d core.NoteData
		if json.Unmarshal(action.Data, &d) == nil {
			b.WriteString("\n**Note Details:**\n")
			fmt.Fprintf(&b, "- Folder: %s\n", d.Folder)
			fmt.Fprintf(&b, "- Filename: %s\n", d.Filename)
			fmt.Fprintf(&b, "- Content:\n```\n%s\n```\n", d.Content)
		}

	case core.ActionMoveNote:
		var d core.MoveNoteData
		if json.Unmarshal(action.Data, &d) == nil {
			b.WriteString("\n**Note Move:**\n")
			fmt.Fprintf(&b, "- Filename: %s\n", d.Filename)
			fmt.Fprintf(&b, "- From: %s\n", d.SourceFolder)
			fmt.Fprintf(&b, "- To: %s\n", d.TargetFolder)
		}

	case core.ActionDraftEmail:
		var d core.EmailDraftData
		if json.Unmarshal(action.Data, &d) == nil {
			b.WriteString("\n**Email Draft:**\n")
			fmt.Fprintf(&b, "- To: %s\n", strings.Join(d.To, ", "))
			fmt.Fprintf(&b, "- Subject: %s\n", d.Subject)
			fmt.Fprintf(&b, "- Body:\n```\n%s\n```\n", d.Body)
		}
	}

	fmt.Fprintf(&b, "\n*Reply with 'approve %s' or 'reject %s'*", action.ID, action.ID)
	return b.String()
}

func writeOpt(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "- %s: %s\n", label, value)
	}
}
