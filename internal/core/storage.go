package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for lookups of unknown ids.
var ErrNotFound = errors.New("not found")

// ErrNotPending is returned when a transition requires the pending state and
// the action has already been decided.
var ErrNotPending = errors.New("action is not pending")

// ActionRepository persists proposed actions. TransitionIfStatus must be
// atomic: it updates the status only when the stored status equals from, and
// reports whether the swap happened.
type ActionRepository interface {
	Insert(ctx context.Context, action ProposedAction) error
	Get(ctx context.Context, id string) (ProposedAction, error)
	TransitionIfStatus(ctx context.Context, id string, from, to ActionStatus) (bool, error)
	Finalize(ctx context.Context, id string, status ActionStatus, result, errMsg string, decidedAt time.Time) error
	ListByStatus(ctx context.Context, status ActionStatus) ([]ProposedAction, error)
	ListRecent(ctx context.Context, limit int) ([]ProposedAction, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessagesRepository persists completed conversation turns.
type MessagesRepository interface {
	AddMessage(ctx context.Context, sessionID string, msg Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
}
