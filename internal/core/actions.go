package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType tags the payload variant of a proposed action.
type ActionType string

const (
	ActionCreateTask  ActionType = "create_task"
	ActionUpdateTask  ActionType = "update_task"
	ActionCreateEvent ActionType = "create_event"
	ActionCreateNote  ActionType = "create_note"
	ActionEditNote    ActionType = "edit_note"
	ActionMoveNote    ActionType = "move_note"
	ActionDraftEmail  ActionType = "draft_email"
)

// ActionStatus is the approval lifecycle state. Executed, failed and
// rejected are terminal: no transition ever leaves them.
type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusApproved ActionStatus = "approved"
	StatusExecuted ActionStatus = "executed"
	StatusRejected ActionStatus = "rejected"
	StatusFailed   ActionStatus = "failed"
)

// Terminal reports whether no further transition is permitted.
func (s ActionStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed || s == StatusRejected
}

// ProposedAction is a structured, user-approvable side effect extracted from
// model output. Status changes only through the action store's state machine.
type ProposedAction struct {
	ID        string          `json:"id"`
	Type      ActionType      `json:"type"`
	Status    ActionStatus    `json:"status"`
	Data      json.RawMessage `json:"data"`
	Reason    string          `json:"reason"`
	Error     string          `json:"error,omitempty"`
	Result    string          `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	DecidedAt *time.Time      `json:"decided_at,omitempty"`
}

func (a ProposedAction) Ref() ActionRef {
	return ActionRef{ID: a.ID, Type: a.Type}
}

// TaskData is the payload for create_task.
type TaskData struct {
	Title      string `json:"title"`
	Body       string `json:"body,omitempty"`
	DueDate    string `json:"due_date,omitempty"`
	ListID     string `json:"list_id,omitempty"`
	Importance string `json:"importance,omitempty"`
}

// TaskUpdateData is the payload for update_task.
type TaskUpdateData struct {
	TaskID     string `json:"task_id"`
	ListID     string `json:"list_id"`
	Title      string `json:"title,omitempty"`
	Body       string `json:"body,omitempty"`
	DueDate    string `json:"due_date,omitempty"`
	Status     string `json:"status,omitempty"`
	Importance string `json:"importance,omitempty"`
}

// EventData is the payload for create_event.
type EventData struct {
	Subject       string   `json:"subject"`
	StartDateTime string   `json:"start_datetime"`
	EndDateTime   string   `json:"end_datetime"`
	Body          string   `json:"body,omitempty"`
	Location      string   `json:"location,omitempty"`
	Attendees     []string `json:"attendees,omitempty"`
}

// NoteData is the payload for create_note and edit_note.
type NoteData struct {
	Folder          string `json:"folder"`
	Filename        string `json:"filename"`
	Content         string `json:"content"`
	OriginalContent string `json:"original_content,omitempty"`
}

// MoveNoteData is the payload for move_note.
type MoveNoteData struct {
	Filename     string `json:"filename"`
	SourceFolder string `json:"source_folder"`
	TargetFolder string `json:"target_folder"`
}

// EmailDraftData is the payload for draft_email.
type EmailDraftData struct {
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	ReplyToID string   `json:"reply_to_id,omitempty"`
}

// ValidateActionPayload checks raw payload JSON against the schema for the
// given type and returns the canonical re-encoded payload. Unknown types and
// missing required fields are errors; callers drop such blocks.
func ValidateActionPayload(t ActionType, raw json.RawMessage) (json.RawMessage, error) {
	var reencode any

	switch t {
	case ActionCreateTask:
		var d TaskData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		if d.Title == "" {
			return nil, fmt.Errorf("%s: missing title", t)
		}
		reencode = d
	case ActionUpdateTask:
		var d TaskUpdateData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		if d.TaskID == "" || d.ListID == "" {
			return nil, fmt.Errorf("%s: missing task_id or list_id", t)
		}
		reencode = d
	case ActionCreateEvent:
		var d EventData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		if d.Subject == "" || d.StartDateTime == "" || d.EndDateTime == "" {
			return nil, fmt.Errorf("%s: missing subject or start/end time", t)
		}
		reencode = d
	case ActionCreateNote, ActionEditNote:
		var d NoteData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		if d.Folder == "" || d.Filename == "" || d.Content == "" {
			return nil, fmt.Errorf("%s: missing folder, filename or content", t)
		}
		reencode = d
	case ActionMoveNote:
		var d MoveNoteData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		if d.Filename == "" || d.SourceFolder == "" || d.TargetFolder == "" {
			return nil, fmt.Errorf("%s: missing filename or folders", t)
		}
		reencode = d
	case ActionDraftEmail:
		var d EmailDraftData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		if len(d.To) == 0 || d.Subject == "" {
			return nil, fmt.Errorf("%s: missing recipients or subject", t)
		}
		reencode = d
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}

	out, err := json.Marshal(reencode)
	if err != nil {
		return nil, fmt.Errorf("re-encode %s payload: %w", t, err)
	}
	return out, nil
}
