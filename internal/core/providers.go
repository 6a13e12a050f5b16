package core

import "context"

// AIProvider is the black-box completion service. Stream invokes the model
// with the full message list and delivers raw output increments through fn;
// a non-nil error from fn aborts the stream.
type AIProvider interface {
	Stream(ctx context.Context, messages []Message, fn func(delta string) error) error
}

// NoteHit is one semantic-similarity result from the notes index.
type NoteHit struct {
	ID    string
	Text  string
	Score float64
}

// NoteSearcher is the vector-index collaborator for notes retrieval.
type NoteSearcher interface {
	Search(ctx context.Context, query string, k int) ([]NoteHit, error)
}

// TaskRecord is a bounded-read task entry.
type TaskRecord struct {
	ID         string
	ListID     string
	ListName   string
	Title      string
	Body       string
	Status     string
	Importance string
	DueDate    string
}

// EventRecord is a bounded-read calendar entry.
type EventRecord struct {
	ID        string
	Subject   string
	Start     string
	End       string
	Location  string
	Organizer string
}

// MailRecord is a bounded-read inbox entry.
type MailRecord struct {
	ID       string
	Sender   string
	Subject  string
	Preview  string
	Received string
	Read     bool
}

// TaskReader, EventReader and MailReader expose the small recent/near-term
// slices the context aggregator consumes. Providers bound the result size
// server-side; n is a hard cap, not a promise.
type TaskReader interface {
	RecentTasks(ctx context.Context, n int) ([]TaskRecord, error)
}

type EventReader interface {
	UpcomingEvents(ctx context.Context, n int) ([]EventRecord, error)
}

type MailReader interface {
	RecentMail(ctx context.Context, n int) ([]MailRecord, error)
}

// Writer interfaces used by the action executor after approval. Each returns
// an opaque handle from the external service for the audit record.
type TaskWriter interface {
	CreateTask(ctx context.Context, data TaskData) (string, error)
	UpdateTask(ctx context.Context, data TaskUpdateData) (string, error)
}

type EventWriter interface {
	CreateEvent(ctx context.Context, data EventData) (string, error)
}

type NoteWriter interface {
	CreateNote(ctx context.Context, data NoteData) (string, error)
	EditNote(ctx context.Context, data NoteData) (string, error)
	MoveNote(ctx context.Context, data MoveNoteData) (string, error)
}

type MailDrafter interface {
	DraftEmail(ctx context.Context, data EmailDraftData) (string, error)
}

// SearchResult is one web-search hit.
type SearchResult struct {
	Title   string
	Snippet string
	URL     string
}

// WebSearcher is the web-search collaborator used for SEARCH directives.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// FetchedPage is the extracted text of a web page.
type FetchedPage struct {
	URL     string
	Title   string
	Content string
}

// PageFetcher is the URL-fetch collaborator used for FETCH directives.
// Implementations strip markup and cap content length.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (FetchedPage, error)
}
