package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/aide/internal/core"
)

type ActionsRepo struct {
	db *sql.DB
}

func NewActionsRepo(db *sql.DB) *ActionsRepo {
	return &ActionsRepo{db: db}
}

func (r *ActionsRepo) Insert(ctx context.Context, a core.ProposedAction) error {
	query := `INSERT INTO actions (id, type, status, data, reason, error, result, created_at, decided_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Type, a.Status, string(a.Data), a.Reason, a.Error, a.Result, a.CreatedAt, a.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

func (r *ActionsRepo) Get(ctx context.Context, id string) (core.ProposedAction, error) {
	query := `SELECT id, type, status, data, reason, error, result, created_at, decided_at FROM actions WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// TransitionIfStatus performs the conditional swap that makes approval
// at-most-once: the UPDATE matches on the current status, so exactly one
// caller observes a row change.
func (r *ActionsRepo) TransitionIfStatus(ctx context.Context, id string, from, to core.ActionStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE actions SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish a lost race from an unknown id
		if _, err := r.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *ActionsRepo) Finalize(ctx context.Context, id string, status core.ActionStatus, result, errMsg string, decidedAt time.Time) error {
	query := `UPDATE actions SET status = ?, result = ?, error = ?, decided_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, status, result, errMsg, decidedAt, id)
	if err != nil {
		return fmt.Errorf("failed to finalize action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *ActionsRepo) ListByStatus(ctx context.Context, status core.ActionStatus) ([]core.ProposedAction, error) {
	query := `SELECT id, type, status, data, reason, error, result, created_at, decided_at
	          FROM actions WHERE status = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *ActionsRepo) ListRecent(ctx context.Context, limit int) ([]core.ProposedAction, error) {
	query := `SELECT id, type, status, data, reason, error, result, created_at, decided_at
	          FROM actions ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *ActionsRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM actions WHERE created_at < ? AND status IN (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, cutoff,
		core.StatusExecuted, core.StatusFailed, core.StatusRejected)
	if err != nil {
		return 0, fmt.Errorf("failed to purge actions: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ActionsRepo) scanOne(row rowScanner) (core.ProposedAction, error) {
	var a core.ProposedAction
	var data string
	var reason, errMsg, result sql.NullString
	var decidedAt sql.NullTime

	err := row.Scan(&a.ID, &a.Type, &a.Status, &data, &reason, &errMsg, &result, &a.CreatedAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ProposedAction{}, core.ErrNotFound
	}
	if err != nil {
		return core.ProposedAction{}, fmt.Errorf("failed to scan action: %w", err)
	}

	a.Data = []byte(data)
	a.Reason = reason.String
	a.Error = errMsg.String
	a.Result = result.String
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	return a, nil
}

func (r *ActionsRepo) scanAll(rows *sql.Rows) ([]core.ProposedAction, error) {
	var out []core.ProposedAction
	for rows.Next() {
		a, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
