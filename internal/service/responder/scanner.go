package responder

import (
	"strings"

	"github.com/sandevgo/aide/internal/core"
)

// Markers recognized in model output. Directives request an external
// lookup; ACTION fences carry proposals that must never reach the visible
// stream raw.
const (
	markerSearch      = "SEARCH: "
	markerFetch       = "FETCH: "
	markerActionFence = "```ACTION"
	fenceClose        = "```"
)

var markers = []string{markerSearch, markerFetch, markerActionFence}

type scanState int

const (
	stateScanning scanState = iota
	stateDirective
	stateAction
)

// scanner is an incremental filter over streamed model output. It forwards
// visible text through emit as soon as that text can no longer begin a
// marker, holding only the minimal unterminated suffix. Directive payloads
// are returned to the caller; ACTION fences are withheld from the visible
// stream but kept in the full transcript for the extractor.
type scanner struct {
	emit func(string)

	directivesEnabled bool

	held  string
	state scanState
	kind  core.DirectiveKind
	full  strings.Builder
}

func newScanner(emit func(string), directivesEnabled bool) *scanner {
	return &scanner{emit: emit, directivesEnabled: directivesEnabled}
}

// Feed consumes one delta and returns the first complete directive found,
// if any. After a directive is returned the caller aborts the stream; any
// unprocessed remainder is deliberately dropped.
func (s *scanner) Feed(delta string) *core.Directive {
	s.held += delta

	for {
		switch s.state {
		case stateScanning:
			idx, marker := findMarker(s.held)
			if idx < 0 {
				keep := longestMarkerPrefixSuffix(s.held)
				release := s.held[:len(s.held)-keep]
				if release != "" {
					s.forward(release)
					s.held = s.held[len(release):]
				}
				return nil
			}

			s.forward(s.held[:idx])
			s.held = s.held[idx:]

			if marker == markerActionFence {
				s.state = stateAction
				continue
			}

			s.held = s.held[len(marker):]
			s.state = stateDirective
			if marker == markerSearch {
				s.kind = core.DirectiveSearch
			} else {
				s.kind = core.DirectiveFetch
			}

		case stateDirective:
			nl := strings.IndexByte(s.held, '\n')
			if nl < 0 {
				return nil
			}
			payload := strings.TrimSpace(s.held[:nl])
			s.held = s.held[nl+1:]
			s.state = stateScanning
			if !s.directivesEnabled || payload == "" {
				// Stripped but not executed
				continue
			}
			return &core.Directive{Kind: s.kind, Payload: payload}

		case stateAction:
			// Block runs from the opening fence to a closing fence at the
			// start of a line
			end := strings.Index(s.held[len(markerActionFence):], "\n"+fenceClose)
			if end < 0 {
				return nil
			}
			blockEnd := len(markerActionFence) + end + 1 + len(fenceClose)
			// Swallow the line remainder after the closing fence
			if nl := strings.IndexByte(s.held[blockEnd:], '\n'); nl >= 0 {
				blockEnd += nl + 1
			} else if blockEnd < len(s.held) {
				// Closing fence not yet followed by a newline; wait unless
				// this is everything we will get
				return nil
			}
			s.full.WriteString(s.held[:blockEnd])
			s.held = s.held[blockEnd:]
			s.state = stateScanning
		}
	}
}

// Finish releases whatever is held at end of stream. A directive cut off at
// EOF without a trailing newline still counts.
func (s *scanner) Finish() *core.Directive {
	switch s.state {
	case stateDirective:
		payload := strings.TrimSpace(s.held)
		s.held = ""
		s.state = stateScanning
		if s.directivesEnabled && payload != "" {
			return &core.Directive{Kind: s.kind, Payload: payload}
		}
	case stateAction:
		// Unterminated block: keep it in the transcript, still hidden from
		// the visible stream
		s.full.WriteString(s.held)
		s.held = ""
		s.state = stateScanning
	default:
		if s.held != "" {
			s.forward(s.held)
			s.held = ""
		}
	}
	return nil
}

// FullText is the pass transcript minus directive lines: visible text plus
// withheld ACTION blocks.
func (s *scanner) FullText() string {
	return s.full.String()
}

func (s *scanner) forward(text string) {
	if text == "" {
		return
	}
	s.full.WriteString(text)
	if s.emit != nil {
		s.emit(text)
	}
}

// findMarker locates the earliest marker occurrence that sits at a word
// boundary (so RESEARCH: is not a directive). Returns -1 when none.
func findMarker(text string) (int, string) {
	best := -1
	var bestMarker string
	for _, m := range markers {
		from := 0
		for {
			i := strings.Index(text[from:], m)
			if i < 0 {
				break
			}
			abs := from + i
			if abs == 0 || !isWordByte(text[abs-1]) {
				if best < 0 || abs < best {
					best, bestMarker = abs, m
				}
				break
			}
			from = abs + 1
		}
	}
	return best, bestMarker
}

// longestMarkerPrefixSuffix reports how many trailing bytes of text could
// still grow into a marker and must therefore stay held.
func longestMarkerPrefixSuffix(text string) int {
	max := 0
	for _, m := range markers {
		limit := len(m) - 1
		if limit > len(text) {
			limit = len(text)
		}
		for n := limit; n > max; n-- {
			start := len(text) - n
			if text[start:] == m[:n] && (start == 0 || !isWordByte(text[start-1])) {
				max = n
				break
			}
		}
	}
	return max
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
