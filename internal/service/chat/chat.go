// Package chat is the pipeline that turns one user message into a streamed
// response: sanitize, gather context, pick a role, generate with directive
// handling, extract actions, persist the turn.
package chat

import (
	"context"
	"fmt"

	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/internal/sanitize"
	"github.com/sandevgo/aide/internal/service/actions"
	"github.com/sandevgo/aide/internal/service/contextbuilder"
	"github.com/sandevgo/aide/internal/service/responder"
	"github.com/sandevgo/aide/internal/service/roles"
	"github.com/sandevgo/aide/pkg/log"
)

const publicErrorMessage = "Something went wrong while generating the response."

type Service struct {
	sanitizer *sanitize.Sanitizer
	builder   *contextbuilder.Builder
	selector  *roles.Selector
	responder *responder.Responder
	store     *actions.Store
	messages  core.MessagesRepository

	toggles      contextbuilder.Toggles
	historyLimit int
}

func New(
	sanitizer *sanitize.Sanitizer,
	builder *contextbuilder.Builder,
	selector *roles.Selector,
	resp *responder.Responder,
	store *actions.Store,
	messages core.MessagesRepository,
	toggles contextbuilder.Toggles,
	historyLimit int,
) *Service {
	return &Service{
		sanitizer:    sanitizer,
		builder:      builder,
		selector:     selector,
		responder:    resp,
		store:        store,
		messages:     messages,
		toggles:      toggles,
		historyLimit: historyLimit,
	}
}

// Handle runs the pipeline for one user message, delivering frames through
// emit. Exactly one terminal frame (done or error) is always delivered,
// whatever fails in between.
func (s *Service) Handle(ctx context.Context, session core.Session, userMessage string, emit func(core.StreamEvent) error) error {
	logger := log.FromCtx(ctx)

	terminal := false
	defer func() {
		if !terminal {
			_ = emit(core.StreamEvent{Type: core.EventError, Message: publicErrorMessage})
		}
	}()

	fail := func(err error, stage string) error {
		logger.Error().Err(err).Str("stage", stage).Msg("chat pipeline failed")
		terminal = true
		_ = emit(core.StreamEvent{Type: core.EventError, Message: publicErrorMessage})
		return fmt.Errorf("%s: %w", stage, err)
	}

	// The user's own message is bounded and normalized but never filtered;
	// a detected injection pattern is recorded and the message proceeds.
	clean := s.sanitizer.Sanitize(ctx, userMessage, sanitize.TypeMessage, "user_message", false)
	if sanitize.ContainsInjection(clean) {
		logger.Warn().Str("session", session.ID).Msg("user message matches injection pattern")
	}

	history, err := s.messages.GetMessages(ctx, session.ID, s.historyLimit)
	if err != nil {
		return fail(err, "load history")
	}

	doc := s.builder.Gather(ctx, session, s.toggles, clean)
	sel := s.selector.Select(clean)

	logger.Info().
		Str("session", session.ID).
		Str("role", sel.RoleID).
		Strs("sources", doc.Sources).
		Int("context_tokens", doc.TokenEstimate).
		Bool("context_truncated", doc.Truncated).
		Msg("handling chat message")

	if err := emit(core.StreamEvent{Type: core.EventMeta, Sources: doc.Sources}); err != nil {
		return fail(err, "emit meta")
	}

	if err := s.messages.AddMessage(ctx, session.ID, core.Message{
		Role:    core.RoleUser,
		Content: clean,
	}); err != nil {
		return fail(err, "persist user message")
	}

	full, err := s.responder.Respond(ctx, sel, &doc, history, clean, func(chunk string) error {
		return emit(core.StreamEvent{Type: core.EventContent, Content: chunk})
	})
	if err != nil {
		return fail(err, "generate")
	}

	display, proposals := actions.Extract(ctx, full)

	var refs []core.ActionRef
	if len(proposals) > 0 && sel.Caps.Actions {
		if err := s.store.Propose(ctx, proposals); err != nil {
			return fail(err, "store actions")
		}
		refs = make([]core.ActionRef, 0, len(proposals))
		for _, p := range proposals {
			refs = append(refs, p.Ref())
		}
	}

	if err := s.messages.AddMessage(ctx, session.ID, core.Message{
		Role:            core.RoleAssistant,
		Content:         display,
		Sources:         doc.Sources,
		ProposedActions: refs,
	}); err != nil {
		return fail(err, "persist assistant message")
	}

	terminal = true
	if err := emit(core.StreamEvent{Type: core.EventDone, Actions: refs}); err != nil {
		return fmt.Errorf("emit done: %w", err)
	}
	return nil
}
