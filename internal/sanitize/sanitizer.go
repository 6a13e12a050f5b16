// Package sanitize defends LLM prompts against injection carried in
// external data. Every fragment of provider content passes through here
// before it is concatenated into a prompt.
package sanitize

import (
	"context"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/sandevgo/aide/internal/core"
)

// FilteredMarker replaces a fragment when an injection pattern matches.
const FilteredMarker = "[Content filtered for security]"

// ContentType selects the length budget for a fragment.
type ContentType string

const (
	TypeMessage          ContentType = "message"
	TypeEmailSender      ContentType = "email_sender"
	TypeEmailSubject     ContentType = "email_subject"
	TypeEmailPreview     ContentType = "email_preview"
	TypeTaskTitle        ContentType = "task_title"
	TypeTaskBody         ContentType = "task_body"
	TypeCalendarSubject  ContentType = "calendar_subject"
	TypeCalendarLocation ContentType = "calendar_location"
	TypeCalendarPerson   ContentType = "calendar_person"
	TypeNoteContent      ContentType = "note_content"
	TypeNoteSource       ContentType = "note_source"
	TypeSearchQuery      ContentType = "search_query"
	TypeFetchedPage      ContentType = "fetched_page"
	TypePageTitle        ContentType = "page_title"
)

var maxLengths = map[ContentType]int{
	TypeMessage:          10000,
	TypeEmailSender:      100,
	TypeEmailSubject:     200,
	TypeEmailPreview:     300,
	TypeTaskTitle:        200,
	TypeTaskBody:         500,
	TypeCalendarSubject:  200,
	TypeCalendarLocation: 100,
	TypeCalendarPerson:   100,
	TypeNoteContent:      1000,
	TypeNoteSource:       200,
	TypeSearchQuery:      200,
	TypeFetchedPage:      50000,
	TypePageTitle:        200,
}

const defaultMaxLength = 500

// MaxLength returns the configured budget for a content type.
func MaxLength(ct ContentType) int {
	if n, ok := maxLengths[ct]; ok {
		return n
	}
	return defaultMaxLength
}

// Pattern families: instruction override, role switching, model-token
// markers, identity manipulation, context escape. Matching happens after
// NFKC normalization so fullwidth and compatibility lookalikes collapse
// onto ASCII first.
var dangerousPatterns = compile([]string{
	`ignore\s*(all\s*)?(previous|prior|above)\s*(instructions?|prompts?)`,
	`forget\s*(all\s*)?(previous|prior|above)`,
	`you\s+are\s+now\s+(a|an|in)`,
	`new\s+(instructions?|rules?|role)`,
	`system\s*prompt`,
	`override\s*(instructions?|rules?)`,
	`disregard\s*(previous|prior|above)`,
	`act\s+as\s+(if\s+)?(a|an|you)`,
	`pretend\s+(to\s+be|you\s+are)`,
	`jailbreak`,
	`DAN\s+mode`,
	`\bDAN\b`,
	"```\\s*(system|assistant|user)",
	`\[INST\]|\[/INST\]`,
	`<\|[^|]*\|>`,
	`(^|\s)(human|assistant|system)\s*:`,
	`###\s*(instruction|response|system)`,
	`as\s+an?\s+(ai|language\s+model|chatbot|assistant)`,
	`you\s+(must|will|shall|should)\s+(now|always|never)`,
	`(end|exit|escape)\s*(context|prompt|instruction)`,
	`===+\s*(end|system|new)`,
})

func compile(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?im)`+p))
	}
	return out
}

// Sanitizer cleans external text for prompt inclusion. It holds no mutable
// state beyond the audit recorder and is safe for concurrent use.
type Sanitizer struct {
	audit core.AuditRecorder
}

func New(audit core.AuditRecorder) *Sanitizer {
	return &Sanitizer{audit: audit}
}

// Normalize collapses unicode to NFKC so lookalike characters cannot slip
// past the pattern filters.
func Normalize(text string) string {
	return norm.NFKC.String(text)
}

// ContainsInjection reports whether text matches any dangerous pattern.
func ContainsInjection(text string) bool {
	normalized := Normalize(text)
	for _, p := range dangerousPatterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

// Sanitize normalizes, truncates to the content type's budget, collapses
// whitespace and escapes markup. With filterInjections set, a pattern match
// replaces the whole fragment with FilteredMarker and records an audit
// event under fragmentID. It never fails the request.
func (s *Sanitizer) Sanitize(ctx context.Context, text string, ct ContentType, fragmentID string, filterInjections bool) string {
	if text == "" {
		return ""
	}

	result := Normalize(text)
	limit := MaxLength(ct)

	// Oversized input is trimmed, never fatal; the audit trail records it
	if len(result) > limit && s.audit != nil {
		s.audit.Record(ctx, core.SecurityEvent{
			Kind:     core.EventInputRejected,
			Fragment: fragmentID,
			Details: map[string]string{
				"content_type": string(ct),
				"length":       strconv.Itoa(len(result)),
			},
		})
	}

	// Head truncation: the budget keeps the start of the fragment
	result = truncate(result, limit)

	result = strings.Join(strings.Fields(result), " ")
	result = html.EscapeString(result)

	// Escaping can inflate the text past the budget again; the budget is a
	// hard cap on what reaches the prompt
	result = truncate(result, limit)

	if filterInjections && ContainsInjection(result) {
		if s.audit != nil {
			s.audit.Record(ctx, core.SecurityEvent{
				Kind:     core.EventInjectionAttempt,
				Fragment: fragmentID,
				Details:  map[string]string{"content_type": string(ct)},
			})
		}
		return FilteredMarker
	}

	return result
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.RuneStart(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	if len(s) > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s); r == utf8.RuneError {
			s = s[:len(s)-1]
		}
	}
	return s
}
