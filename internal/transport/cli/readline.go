package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sandevgo/aide/internal/config"
	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/internal/service/actions"
	"github.com/sandevgo/aide/internal/service/chat"
	"github.com/sandevgo/aide/pkg/log"
)

const defaultSessionID = "cli-local"

type ReadLine struct {
	cfg     *config.AppConfig
	chat    *chat.Service
	actions *actions.Store
	rl      *readline.Instance
}

func NewReadLine(chatSvc *chat.Service, store *actions.Store, cfg *config.AppConfig) (*ReadLine, error) {
	// Ensure runtime directory exists
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     filepath.Join(cfg.RuntimePath, "input_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &ReadLine{
		cfg:     cfg,
		chat:    chatSvc,
		actions: store,
		rl:      rl,
	}, nil
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Msg("ReadLine chat started. Type 'exit' to quit.")

	for {
		// Check context before blocking read
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					return nil // Exit on Ctrl+C
				}
				continue
			} else if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}

		if id, ok := parseDecision(line, "approve"); ok {
			r.decide(ctx, id, true)
			continue
		}
		if id, ok := parseDecision(line, "reject"); ok {
			r.decide(ctx, id, false)
			continue
		}

		if err := r.handleChat(ctx, line); err != nil {
			logger.Error().Err(err).Msg("chat failed")
		}
	}
}

func (r *ReadLine) handleChat(ctx context.Context, line string) error {
	out := r.rl.Stdout()
	session := core.Session{ID: defaultSessionID}

	streaming := false
	var refs []core.ActionRef

	err := r.chat.Handle(ctx, session, line, func(ev core.StreamEvent) error {
		switch ev.Type {
		case core.EventMeta:
			if len(ev.Sources) > 0 {
				fmt.Fprintf(out, "\033[38;5;240m[Context: %s]\033[0m\n", strings.Join(ev.Sources, ", "))
			}
		case core.EventContent:
			streaming = true
			fmt.Fprint(out, ev.Content)
		case core.EventDone:
			refs = ev.Actions
		case core.EventError:
			if streaming {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "Error: %s\n", ev.Message)
		}
		return nil
	})

	if streaming {
		fmt.Fprintln(out)
	}

	for _, ref := range refs {
		action, getErr := r.actions.Get(ctx, ref.ID)
		if getErr != nil {
			continue
		}
		fmt.Fprintf(out, "\n%s\n", actions.FormatForChat(action))
	}

	return err
}

func (r *ReadLine) decide(ctx context.Context, id string, approve bool) {
	out := r.rl.Stdout()

	var action core.ProposedAction
	var err error
	if approve {
		action, err = r.actions.Approve(ctx, id)
	} else {
		action, err = r.actions.Reject(ctx, id)
	}

	switch {
	case errors.Is(err, core.ErrNotFound):
		fmt.Fprintf(out, "No action with id %s.\n", id)
		return
	case errors.Is(err, core.ErrNotPending):
		fmt.Fprintf(out, "Action %s was already decided.\n", id)
		return
	case err != nil:
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	switch action.Status {
	case core.StatusExecuted:
		fmt.Fprintf(out, "Done: %s executed (%s).\n", action.Type, action.Result)
	case core.StatusFailed:
		fmt.Fprintf(out, "Approved, but execution failed: %s\n", action.Error)
	case core.StatusRejected:
		fmt.Fprintln(out, "Rejected.")
	}
}

// parseDecision matches "approve <id>" / "reject <id>" lines.
func parseDecision(text, verb string) (string, bool) {
	lower := strings.ToLower(text)
	if !strings.HasPrefix(lower, verb+" ") {
		return "", false
	}
	id := strings.TrimSpace(text[len(verb)+1:])
	if id == "" || strings.ContainsRune(id, ' ') {
		return "", false
	}
	return id, true
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
