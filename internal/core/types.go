package core

import "time"

const (
	AideName          = "Aide"
	AideUserAgent     = "Aide-Assistant/0.1"
	AideVersion       = "0.1.0"
	AideRepositoryURL = "https://github.com/sandevgo/aide"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation. Once appended to a session's
// history it is immutable; ordering defines the dialogue sent to the LLM.
type Message struct {
	Role            string      `json:"role"`
	Content         string      `json:"content"`
	Sources         []string    `json:"sources,omitempty"`
	ProposedActions []ActionRef `json:"proposed_actions,omitempty"`
	CreatedAt       time.Time   `json:"created_at,omitempty"`
}

// ActionRef is the part of a proposed action that travels with a Message:
// enough for a client to render an approve/reject prompt, never the
// execution payload internals or credentials.
type ActionRef struct {
	ID   string     `json:"id"`
	Type ActionType `json:"type"`
}

// Session is the capability bundle for one authenticated principal. The
// pipeline treats it as opaque: providers are already bound to the
// principal's credentials, ID only keys history and caches.
type Session struct {
	ID string
}

// SourceKind identifies which collaborator a context fragment came from.
type SourceKind string

const (
	SourceNotes    SourceKind = "notes"
	SourceTasks    SourceKind = "tasks"
	SourceCalendar SourceKind = "calendar"
	SourceEmail    SourceKind = "email"
)

// DirectiveKind distinguishes the in-band lookups the model may request.
type DirectiveKind string

const (
	DirectiveSearch DirectiveKind = "search"
	DirectiveFetch  DirectiveKind = "fetch"
)

// Directive is an in-band instruction emitted by the model mid-response.
// It is consumed by the generation loop and never shown to the user.
type Directive struct {
	Kind    DirectiveKind
	Payload string
}

// EventType enumerates the wire-level stream events.
type EventType string

const (
	EventMeta    EventType = "meta"
	EventContent EventType = "content"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// StreamEvent is one frame of the response stream. A well-formed stream is
// one meta frame, zero or more content frames, then exactly one done or
// error frame.
type StreamEvent struct {
	Type    EventType   `json:"type"`
	Sources []string    `json:"sources,omitempty"`
	Content string      `json:"content,omitempty"`
	Actions []ActionRef `json:"actions,omitempty"`
	Message string      `json:"message,omitempty"`
}
