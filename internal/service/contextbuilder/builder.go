// Package contextbuilder assembles the multi-source grounding document for
// one request. Provider calls fan out concurrently, each behind its own
// timeout; a failing source contributes nothing and never fails the request.
package contextbuilder

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/errgroup"

	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/internal/sanitize"
	"github.com/sandevgo/aide/pkg/log"
)

// Toggles enables individual context sources for a request.
type Toggles struct {
	UseNotes    bool
	UseTasks    bool
	UseCalendar bool
	UseEmail    bool
}

// Options bound the aggregation.
type Options struct {
	NotesTopK     int
	TaskLimit     int
	EventLimit    int
	MailLimit     int
	SourceTimeout time.Duration
	CharBudget    int
	TokenBudget   int
	TokenModel    string
}

func DefaultOptions() Options {
	return Options{
		NotesTopK:     5,
		TaskLimit:     10,
		EventLimit:    15,
		MailLimit:     10,
		SourceTimeout: 20 * time.Second,
		CharBudget:    24000,
		TokenBudget:   6000,
		TokenModel:    "cl100k_base",
	}
}

// Builder gathers and sanitizes context. Safe for concurrent use.
type Builder struct {
	opts      Options
	sanitizer *sanitize.Sanitizer
	cache     *Cache

	notes    core.NoteSearcher
	tasks    core.TaskReader
	calendar core.EventReader
	mail     core.MailReader

	encoder *tiktoken.Tiktoken
}

func New(
	opts Options,
	sanitizer *sanitize.Sanitizer,
	cache *Cache,
	notes core.NoteSearcher,
	tasks core.TaskReader,
	calendar core.EventReader,
	mail core.MailReader,
) *Builder {
	b := &Builder{
		opts:      opts,
		sanitizer: sanitizer,
		cache:     cache,
		notes:     notes,
		tasks:     tasks,
		calendar:  calendar,
		mail:      mail,
	}
	// Token counting is advisory; without the encoding we estimate
	if enc, err := tiktoken.GetEncoding(opts.TokenModel); err == nil {
		b.encoder = enc
	}
	return b
}

// Gather fans out one call per enabled source and joins the sanitized
// results into a Document within the character budget.
func (b *Builder) Gather(ctx context.Context, session core.Session, toggles Toggles, query string) Document {
	var doc Document
	var noteSources []string

	g, gctx := errgroup.WithContext(ctx)

	if toggles.UseNotes && b.notes != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, b.opts.SourceTimeout)
			defer cancel()
			doc.Notes, noteSources = b.gatherNotes(sctx, query)
			return nil
		})
	}
	if toggles.UseTasks && b.tasks != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, b.opts.SourceTimeout)
			defer cancel()
			doc.Tasks = b.gatherCached(sctx, core.SourceTasks, session.ID, b.gatherTasks)
			return nil
		})
	}
	if toggles.UseCalendar && b.calendar != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, b.opts.SourceTimeout)
			defer cancel()
			doc.Calendar = b.gatherCached(sctx, core.SourceCalendar, session.ID, b.gatherCalendar)
			return nil
		})
	}
	if toggles.UseEmail && b.mail != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, b.opts.SourceTimeout)
			defer cancel()
			doc.Email = b.gatherCached(sctx, core.SourceEmail, session.ID, b.gatherMail)
			return nil
		})
	}

	// Goroutines report failure by omission, never by error
	_ = g.Wait()

	doc.Sources = append(doc.Sources, noteSources...)
	if doc.Tasks != "" {
		doc.Sources = append(doc.Sources, string(core.SourceTasks))
	}
	if doc.Calendar != "" {
		doc.Sources = append(doc.Sources, string(core.SourceCalendar))
	}
	if doc.Email != "" {
		doc.Sources = append(doc.Sources, string(core.SourceEmail))
	}

	b.applyBudget(ctx, &doc)
	doc.TokenEstimate = b.estimateTokens(doc.Render())

	return doc
}

type gatherFn func(ctx context.Context) string

func (b *Builder) gatherCached(ctx context.Context, kind core.SourceKind, principal string, fn gatherFn) string {
	if b.cache != nil {
		if cached, ok := b.cache.Get(kind, principal); ok {
			return cached
		}
	}
	result := fn(ctx)
	if b.cache != nil && result != "" {
		b.cache.Set(kind, principal, result)
	}
	return result
}

func (b *Builder) gatherNotes(ctx context.Context, query string) (string, []string) {
	hits, err := b.notes.Search(ctx, query, b.opts.NotesTopK)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("notes context fetch failed")
		return "", nil
	}

	var parts []string
	var sources []string
	for _, hit := range hits {
		content := b.sanitizer.Sanitize(ctx, hit.Text, sanitize.TypeNoteContent, hit.ID, true)
		source := b.sanitizer.Sanitize(ctx, hit.ID, sanitize.TypeNoteSource, hit.ID, true)
		if !contains(sources, source) {
			sources = append(sources, source)
		}
		parts = append(parts, fmt.Sprintf("[From: %s]\n%s", source, content))
	}
	return strings.Join(parts, "\n\n---\n\n"), sources
}

func (b *Builder) gatherTasks(ctx context.Context) string {
	records, err := b.tasks.RecentTasks(ctx, b.opts.TaskLimit)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("tasks context fetch failed")
		return ""
	}

	var lines []string
	currentList := ""
	for i, task := range records {
		if i >= b.opts.TaskLimit {
			break
		}
		if task.ListName != "" && task.ListName != currentList {
			currentList = task.ListName
			lines = append(lines, fmt.Sprintf("## %s", b.sanitizer.Sanitize(ctx, currentList, sanitize.TypeTaskTitle, task.ID, true)))
		}
		title := b.sanitizer.Sanitize(ctx, task.Title, sanitize.TypeTaskTitle, task.ID, true)
		status := task.Status
		if status == "" {
			status = "notStarted"
		}
		line := fmt.Sprintf("- [%s] %s", status, title)
		if task.Importance == "high" {
			line += " (HIGH PRIORITY)"
		}
		if task.DueDate != "" {
			line += fmt.Sprintf(" (due: %s)", clip(task.DueDate, 10))
		}
		if task.ID != "" && task.ListID != "" {
			line += fmt.Sprintf(" [task_id: %s, list_id: %s]", task.ID, task.ListID)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (b *Builder) gatherCalendar(ctx context.Context) string {
	events, err := b.calendar.UpcomingEvents(ctx, b.opts.EventLimit)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("calendar context fetch failed")
		return ""
	}

	var lines []string
	currentDate := ""
	for i, ev := range events {
		if i >= b.opts.EventLimit {
			break
		}
		subject := b.sanitizer.Sanitize(ctx, ev.Subject, sanitize.TypeCalendarSubject, ev.ID, true)
		location := b.sanitizer.Sanitize(ctx, ev.Location, sanitize.TypeCalendarLocation, ev.ID, true)
		organizer := b.sanitizer.Sanitize(ctx, ev.Organizer, sanitize.TypeCalendarPerson, ev.ID, true)

		date := clip(ev.Start, 10)
		if date != currentDate {
			currentDate = date
			lines = append(lines, fmt.Sprintf("## %s", date))
		}

		line := fmt.Sprintf("- %s: %s", timeOfDay(ev.Start), subject)
		if location != "" {
			line += " @ " + location
		}
		if organizer != "" {
			line += fmt.Sprintf(" (organizer: %s)", organizer)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (b *Builder) gatherMail(ctx context.Context) string {
	records, err := b.mail.RecentMail(ctx, b.opts.MailLimit)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("email context fetch failed")
		return ""
	}

	var lines []string
	for i, msg := range records {
		if i >= b.opts.MailLimit {
			break
		}
		sender := b.sanitizer.Sanitize(ctx, msg.Sender, sanitize.TypeEmailSender, msg.ID, true)
		subject := b.sanitizer.Sanitize(ctx, msg.Subject, sanitize.TypeEmailSubject, msg.ID, true)
		preview := b.sanitizer.Sanitize(ctx, msg.Preview, sanitize.TypeEmailPreview, msg.ID, true)

		readState := "unread"
		if msg.Read {
			readState = "read"
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s from %s: %s", readState, clip(msg.Received, 10), sender, subject))
		if preview != "" {
			lines = append(lines, fmt.Sprintf("  Preview: %s...", preview))
		}
	}
	return strings.Join(lines, "\n")
}

// charsPerToken converts a token overshoot into a byte trim amount; four
// bytes per token is the usual estimate for English text.
const charsPerToken = 4

// applyBudget trims lower-priority sections first (email, then calendar,
// then tasks, then notes) until the document fits both the character and
// the token budget.
func (b *Builder) applyBudget(ctx context.Context, doc *Document) {
	total := func() int {
		return len(doc.Notes) + len(doc.Tasks) + len(doc.Calendar) + len(doc.Email)
	}
	sections := []*string{&doc.Email, &doc.Calendar, &doc.Tasks, &doc.Notes}

	shrinkTo := func(budget int) {
		if budget < 0 {
			budget = 0
		}
		for _, section := range sections {
			over := total() - budget
			if over <= 0 {
				return
			}
			doc.Truncated = true
			if len(*section) <= over {
				*section = ""
				continue
			}
			*section = trimTail(*section, len(*section)-over)
		}
	}

	if b.opts.CharBudget > 0 {
		shrinkTo(b.opts.CharBudget)
	}

	// The token count of the rendered document is the bound that actually
	// matters to the model; converge on it by converting the overshoot
	// back into bytes.
	if b.opts.TokenBudget > 0 {
		for total() > 0 {
			over := b.estimateTokens(doc.Render()) - b.opts.TokenBudget
			if over <= 0 {
				break
			}
			shrinkTo(total() - over*charsPerToken)
		}
	}

	if doc.Truncated {
		log.FromCtx(ctx).Debug().
			Int("char_budget", b.opts.CharBudget).
			Int("token_budget", b.opts.TokenBudget).
			Msg("context document trimmed to budget")
	}
}

func (b *Builder) estimateTokens(text string) int {
	if b.encoder != nil {
		return len(b.encoder.Encode(text, nil, nil))
	}
	return len(text) / charsPerToken
}

// longestEntity covers the escapes html.EscapeString emits (&quot; etc).
const longestEntity = 8

// trimTail cuts s to at most limit bytes without splitting a rune or
// leaving a severed HTML entity at the cut point.
func trimTail(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.RuneStart(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	if i := strings.LastIndexByte(s, '&'); i >= 0 && len(s)-i <= longestEntity && !strings.ContainsRune(s[i:], ';') {
		s = s[:i]
	}
	return s
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// timeOfDay extracts HH:MM from an ISO datetime, empty when absent.
func timeOfDay(iso string) string {
	if len(iso) >= 16 {
		return iso[11:16]
	}
	return ""
}
