package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sandevgo/aide/internal/core"
)

// Executor dispatches an approved action to the external service that can
// carry it out. A nil collaborator means the capability is not configured.
type Executor struct {
	Tasks  core.TaskWriter
	Events core.EventWriter
	Notes  core.NoteWriter
	Mail   core.MailDrafter
}

// Execute performs the side effect and returns the external handle. The
// error is safe to store and show to the user.
func (e *Executor) Execute(ctx context.Context, action core.ProposedAction) (string, error) {
	switch action.Type {
	case core.ActionCreateTask:
		if e.Tasks == nil {
			return "", errNotConfigured("tasks")
		}
		var d core.TaskData
		if err := decode(action.Data, &d); err != nil {
			return "", err
		}
		return e.Tasks.CreateTask(ctx, d)

	case core.ActionUpdateTask:
		if e.Tasks == nil {
			return "", errNotConfigured("tasks")
		}
		var d core.TaskUpdateData
		if err := decode(action.Data, &d); err != nil {
			return "", err
		}
		return e.Tasks.UpdateTask(ctx, d)

	case core.ActionCreateEvent:
		if e.Events == nil {
			return "", errNotConfigured("calendar")
		}
		var d core.EventData
		if err := decode(action.Data, &d); err != nil {
			return "", err
		}
		return e.Events.CreateEvent(ctx, d)

	case core.ActionCreateNote, core.ActionEditNote:
		if e.Notes == nil {
			return "", errNotConfigured("notes")
		}
		var d core.NoteData
		if err := decode(action.Data, &d); err != nil {
			return "", err
		}
		if action.Type == core.ActionEditNote {
			return e.Notes.EditNote(ctx, d)
		}
		return e.Notes.CreateNote(ctx, d)

	case core.ActionMoveNote:
		if e.Notes == nil {
			return "", errNotConfigured("notes")
		}
		var d core.MoveNoteData
		if err := decode(action.Data, &d); err != nil {
			return "", err
		}
		return e.Notes.MoveNote(ctx, d)

	case core.ActionDraftEmail:
		if e.Mail == nil {
			return "", errNotConfigured("email")
		}
		var d core.EmailDraftData
		if err := decode(action.Data, &d); err != nil {
			return "", err
		}
		return e.Mail.DraftEmail(ctx, d)
	}
	return "", fmt.Errorf("unsupported action type %q", action.Type)
}

func decode(raw json.RawMessage, into any) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("action payload is corrupted: %w", err)
	}
	return nil
}

func errNotConfigured(what string) error {
	return fmt.Errorf("the %s service is not configured", what)
}
