package actions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/pkg/log"
)

// ContextInvalidator drops cached context for a source whose backing data
// an executed action just changed.
type ContextInvalidator interface {
	Invalidate(kind core.SourceKind)
}

// Store owns the action approval lifecycle. Approvals are at-most-once: the
// pending→approved transition is a conditional swap in the repository, and a
// per-action lock serializes racing callers so the side effect runs exactly
// once for the winner and everyone else gets ErrNotPending.
type Store struct {
	repo  core.ActionRepository
	exec  *Executor
	inval ContextInvalidator
	locks sync.Map // action id -> *sync.Mutex
	clock func() time.Time
}

func NewStore(repo core.ActionRepository, exec *Executor, inval ContextInvalidator) *Store {
	return &Store{repo: repo, exec: exec, inval: inval, clock: time.Now}
}

// Propose persists freshly extracted proposals in the pending state.
func (s *Store) Propose(ctx context.Context, proposals []core.ProposedAction) error {
	for _, p := range proposals {
		if err := s.repo.Insert(ctx, p); err != nil {
			return fmt.Errorf("store action %s: %w", p.ID, err)
		}
	}
	return nil
}

// Get returns one action by id.
func (s *Store) Get(ctx context.Context, id string) (core.ProposedAction, error) {
	return s.repo.Get(ctx, id)
}

// Approve moves a pending action to approved, executes it, and records the
// outcome as executed or failed. Concurrent approvals of the same id resolve
// to a single execution; losers receive ErrNotPending.
func (s *Store) Approve(ctx context.Context, id string) (core.ProposedAction, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	swapped, err := s.repo.TransitionIfStatus(ctx, id, core.StatusPending, core.StatusApproved)
	if err != nil {
		return core.ProposedAction{}, err
	}
	if !swapped {
		return core.ProposedAction{}, core.ErrNotPending
	}

	action, err := s.repo.Get(ctx, id)
	if err != nil {
		return core.ProposedAction{}, err
	}

	logger := log.FromCtx(ctx)
	result, execErr := s.exec.Execute(ctx, action)

	decidedAt := s.clock().UTC()
	if execErr != nil {
		logger.Warn().Err(execErr).Str("id", id).Str("type", string(action.Type)).Msg("action execution failed")
		if err := s.repo.Finalize(ctx, id, core.StatusFailed, "", execErr.Error(), decidedAt); err != nil {
			return core.ProposedAction{}, err
		}
	} else {
		logger.Info().Str("id", id).Str("type", string(action.Type)).Msg("action executed")
		if err := s.repo.Finalize(ctx, id, core.StatusExecuted, result, "", decidedAt); err != nil {
			return core.ProposedAction{}, err
		}
		// The execution mutated the source; cached context for it is stale
		if s.inval != nil {
			if kind, ok := sourceForAction(action.Type); ok {
				s.inval.Invalidate(kind)
			}
		}
	}
	s.locks.Delete(id)
	return s.repo.Get(ctx, id)
}

// Reject moves a pending action to rejected. No external call is made.
func (s *Store) Reject(ctx context.Context, id string) (core.ProposedAction, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	swapped, err := s.repo.TransitionIfStatus(ctx, id, core.StatusPending, core.StatusRejected)
	if err != nil {
		return core.ProposedAction{}, err
	}
	if !swapped {
		return core.ProposedAction{}, core.ErrNotPending
	}
	if err := s.repo.Finalize(ctx, id, core.StatusRejected, "", "", s.clock().UTC()); err != nil {
		return core.ProposedAction{}, err
	}
	s.locks.Delete(id)
	return s.repo.Get(ctx, id)
}

// ListPending returns all actions awaiting a decision.
func (s *Store) ListPending(ctx context.Context) ([]core.ProposedAction, error) {
	return s.repo.ListByStatus(ctx, core.StatusPending)
}

// History returns the most recent actions regardless of state.
func (s *Store) History(ctx context.Context, limit int) ([]core.ProposedAction, error) {
	return s.repo.ListRecent(ctx, limit)
}

// PurgeOlderThan removes terminal actions created before now-age. Pending
// and approved rows are never purged.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.clock().UTC().Add(-age)
	n, err := s.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.FromCtx(ctx).Info().Int64("purged", n).Time("cutoff", cutoff).Msg("purged old actions")
	}
	return n, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// sourceForAction maps an executed action to the context source it mutates.
func sourceForAction(t core.ActionType) (core.SourceKind, bool) {
	switch t {
	case core.ActionCreateTask, core.ActionUpdateTask:
		return core.SourceTasks, true
	case core.ActionCreateEvent:
		return core.SourceCalendar, true
	case core.ActionCreateNote, core.ActionEditNote, core.ActionMoveNote:
		return core.SourceNotes, true
	case core.ActionDraftEmail:
		return core.SourceEmail, true
	}
	return "", false
}
