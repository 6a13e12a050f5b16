// Package responder drives answer generation: it streams model output,
// intercepts SEARCH/FETCH directives, folds lookup results back into the
// conversation, and re-invokes the model until a clean answer emerges.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/internal/sanitize"
	"github.com/sandevgo/aide/internal/service/contextbuilder"
	"github.com/sandevgo/aide/internal/service/roles"
	"github.com/sandevgo/aide/pkg/log"
)

// errStopGeneration aborts a model stream once a directive is detected; the
// rest of that pass is discarded.
var errStopGeneration = errors.New("responder: stop generation")

type Options struct {
	MaxSearches   int
	MaxFetches    int
	MaxResults    int
	SearchTimeout time.Duration
	FetchTimeout  time.Duration
	Clock         func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaxSearches:   3,
		MaxFetches:    3,
		MaxResults:    3,
		SearchTimeout: 10 * time.Second,
		FetchTimeout:  15 * time.Second,
		Clock:         time.Now,
	}
}

type Responder struct {
	ai        core.AIProvider
	searcher  core.WebSearcher
	fetcher   core.PageFetcher
	sanitizer *sanitize.Sanitizer
	opts      Options
}

func New(ai core.AIProvider, searcher core.WebSearcher, fetcher core.PageFetcher, sanitizer *sanitize.Sanitizer, opts Options) *Responder {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Responder{ai: ai, searcher: searcher, fetcher: fetcher, sanitizer: sanitizer, opts: opts}
}

// Respond generates the answer for userMessage, streaming visible text
// through emit as it is produced. The returned string is the complete
// response text including withheld ACTION blocks, ready for action
// extraction. Directive lines never reach emit.
func (r *Responder) Respond(
	ctx context.Context,
	sel roles.Selection,
	doc *contextbuilder.Document,
	history []core.Message,
	userMessage string,
	emit func(chunk string) error,
) (string, error) {
	logger := log.FromCtx(ctx)
	messages := buildMessages(sel, doc, history, userMessage, r.opts.Clock())

	searchesLeft := r.opts.MaxSearches
	fetchesLeft := r.opts.MaxFetches
	finalPass := false

	var full strings.Builder

	for {
		directivesEnabled := !finalPass && (sel.Caps.Search || sel.Caps.Fetch)

		var emitErr error
		sc := newScanner(func(chunk string) {
			if emitErr == nil {
				emitErr = emit(chunk)
			}
		}, directivesEnabled)

		var directive *core.Directive
		err := r.ai.Stream(ctx, messages, func(delta string) error {
			if emitErr != nil {
				return emitErr
			}
			if d := sc.Feed(delta); d != nil {
				directive = d
				return errStopGeneration
			}
			return nil
		})
		if directive == nil {
			if d := sc.Finish(); d != nil {
				directive = d
			}
		}
		full.WriteString(sc.FullText())

		switch {
		case emitErr != nil:
			return full.String(), emitErr
		case err != nil && !errors.Is(err, errStopGeneration):
			return full.String(), err
		}

		if directive == nil {
			return full.String(), nil
		}

		canRun := false
		switch directive.Kind {
		case core.DirectiveSearch:
			canRun = r.searcher != nil && sel.Caps.Search && searchesLeft > 0
		case core.DirectiveFetch:
			canRun = r.fetcher != nil && sel.Caps.Fetch && fetchesLeft > 0
		}

		messages = append(messages, core.Message{Role: core.RoleAssistant, Content: sc.FullText()})

		if !canRun {
			logger.Warn().
				Str("kind", string(directive.Kind)).
				Str("payload", directive.Payload).
				Msg("lookup budget exhausted, forcing final pass")
			messages = append(messages, core.Message{Role: core.RoleUser, Content: finalPassInstruction})
			finalPass = true
			continue
		}

		switch directive.Kind {
		case core.DirectiveSearch:
			searchesLeft--
		case core.DirectiveFetch:
			fetchesLeft--
		}

		result, lerr := r.execute(ctx, *directive)
		if lerr != nil {
			logger.Warn().Err(lerr).
				Str("kind", string(directive.Kind)).
				Str("payload", directive.Payload).
				Msg("lookup failed, continuing without it")
			messages = append(messages, lookupFailureMessage(*directive, lerr))
			continue
		}

		logger.Debug().
			Str("kind", string(directive.Kind)).
			Str("payload", directive.Payload).
			Int("result_len", len(result)).
			Msg("lookup completed")
		messages = append(messages, lookupResultMessage(*directive, result))
	}
}

func (r *Responder) execute(ctx context.Context, d core.Directive) (string, error) {
	switch d.Kind {
	case core.DirectiveSearch:
		return r.runSearch(ctx, d.Payload)
	case core.DirectiveFetch:
		return r.runFetch(ctx, d.Payload)
	}
	return "", fmt.Errorf("unknown directive kind %q", d.Kind)
}

func (r *Responder) runSearch(ctx context.Context, query string) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
	defer cancel()

	results, err := r.searcher.Search(sctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found.", nil
	}
	if len(results) > r.opts.MaxResults {
		results = results[:r.opts.MaxResults]
	}

	var b strings.Builder
	for i, res := range results {
		title := r.sanitizer.Sanitize(ctx, res.Title, sanitize.TypePageTitle, res.URL, true)
		snippet := r.sanitizer.Sanitize(ctx, res.Snippet, sanitize.TypeNoteContent, res.URL, true)
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, title, res.URL, snippet)
	}
	return b.String(), nil
}

func (r *Responder) runFetch(ctx context.Context, url string) (string, error) {
	fctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()

	page, err := r.fetcher.Fetch(fctx, url)
	if err != nil {
		return "", err
	}

	title := r.sanitizer.Sanitize(ctx, page.Title, sanitize.TypePageTitle, url, true)
	content := r.sanitizer.Sanitize(ctx, page.Content, sanitize.TypeFetchedPage, url, true)
	return fmt.Sprintf("%s\n%s\n\n%s", title, page.URL, content), nil
}
