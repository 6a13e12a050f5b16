package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/sandevgo/aide/internal/config"
	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/internal/service/actions"
	"github.com/sandevgo/aide/internal/service/chat"
	"github.com/sandevgo/aide/pkg/log"
)

const baseContextKey = "base_context"

type Bot struct {
	bot     *tele.Bot
	cfg     *config.TelegramConfig
	chat    *chat.Service
	store   *actions.Store
	sender  *sender
	ownerID int64

	// One open response per chat; telebot runs handlers concurrently
	inFlight sync.Map
}

func NewBot(
	ctx context.Context,
	cfg *config.TelegramConfig,
	chatSvc *chat.Service,
	store *actions.Store,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:     b,
		cfg:     cfg,
		chat:    chatSvc,
		store:   store,
		sender:  newSender(b),
		ownerID: cfg.OwnerID,
	}

	// Use context from Signal with logger
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(baseContextKey, ctx)
			return next(c)
		}
	})

	// Middleware: Only allow the owner
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender().ID != bot.ownerID {
				return nil // Ignore unauthorized users
			}
			return next(c)
		}
	})

	b.Handle(tele.OnText, bot.handleMessage)

	return bot, nil
}

func (b *Bot) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("starting telegram bot")
	b.bot.Start()
	return nil
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.bot.Stop()
	return nil
}

func (b *Bot) handleMessage(c tele.Context) error {
	ctx := c.Get(baseContextKey).(context.Context)
	logger := log.FromCtx(ctx)
	text := strings.TrimSpace(c.Text())

	// Approval commands short-circuit the pipeline
	if id, ok := parseDecision(text, "approve"); ok {
		return b.decide(ctx, c, id, true)
	}
	if id, ok := parseDecision(text, "reject"); ok {
		return b.decide(ctx, c, id, false)
	}

	sessionID := fmt.Sprintf("telegram-%d", c.Chat().ID)

	if _, busy := b.inFlight.LoadOrStore(sessionID, struct{}{}); busy {
		return c.Send("Still working on your previous message.")
	}
	defer b.inFlight.Delete(sessionID)

	// Notify user we are working
	_ = c.Notify(tele.Typing)

	// Telegram has no token streaming; buffer content frames and deliver
	// the finished message.
	var buf strings.Builder
	var refs []core.ActionRef

	err := b.chat.Handle(ctx, core.Session{ID: sessionID}, text, func(ev core.StreamEvent) error {
		switch ev.Type {
		case core.EventContent:
			buf.WriteString(ev.Content)
		case core.EventDone:
			refs = ev.Actions
		case core.EventError:
			buf.Reset()
			buf.WriteString(ev.Message)
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("chat pipeline failed")
	}

	if msg := strings.TrimSpace(buf.String()); msg != "" {
		if err := b.sender.sendMarkdown(ctx, c.Chat(), msg, false); err != nil {
			return err
		}
	}

	for _, ref := range refs {
		action, err := b.store.Get(ctx, ref.ID)
		if err != nil {
			logger.Error().Err(err).Str("id", ref.ID).Msg("failed to load proposed action")
			continue
		}
		if err := b.sender.sendMarkdown(ctx, c.Chat(), actions.FormatForChat(action), true); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) decide(ctx context.Context, c tele.Context, id string, approve bool) error {
	var (
		action core.ProposedAction
		err    error
	)
	if approve {
		action, err = b.store.Approve(ctx, id)
	} else {
		action, err = b.store.Reject(ctx, id)
	}

	switch {
	case errors.Is(err, core.ErrNotFound):
		return c.Send(fmt.Sprintf("No action with id %s.", id))
	case errors.Is(err, core.ErrNotPending):
		return c.Send("That action has already been decided.")
	case err != nil:
		log.FromCtx(ctx).Error().Err(err).Str("id", id).Msg("action decision failed")
		return c.Send("Could not process that decision.")
	}

	switch action.Status {
	case core.StatusExecuted:
		return c.Send(fmt.Sprintf("Done: %s executed (%s).", action.Type, action.Result))
	case core.StatusFailed:
		return c.Send(fmt.Sprintf("Approved, but execution failed: %s", action.Error))
	case core.StatusRejected:
		return c.Send("Rejected.")
	}
	return nil
}

// parseDecision matches "approve <id>" / "reject <id>" messages.
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
