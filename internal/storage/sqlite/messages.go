package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/pkg/log"
)

type MessagesRepo struct {
	db *sql.DB
}

func NewMessagesRepo(db *sql.DB) *MessagesRepo {
	return &MessagesRepo{db: db}
}

func (r *MessagesRepo) AddMessage(ctx context.Context, sessionID string, msg core.Message) error {
	sources, err := marshalOrEmpty(msg.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	actions, err := marshalOrEmpty(msg.ProposedActions)
	if err != nil {
		return fmt.Errorf("failed to marshal action refs: %w", err)
	}

	query := `INSERT INTO messages (session_id, role, content, sources, actions) VALUES (?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query, sessionID, msg.Role, msg.Content, sources, actions)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *MessagesRepo) GetMessages(ctx context.Context, sessionID string, limit int) ([]core.Message, error) {
	// Fetch the LAST 'limit' messages by ordering DESC
	query := `SELECT role, content, sources, actions, created_at FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		var msg core.Message
		var content, sources, actions sql.NullString

		if err := rows.Scan(&msg.Role, &content, &sources, &actions, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.Content = content.String
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &msg.Sources); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
			}
		}
		if actions.Valid && actions.String != "" {
			if err := json.Unmarshal([]byte(actions.String), &msg.ProposedActions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal action refs: %w", err)
			}
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query returned messages newest first; flip back to chronological
	// order for the model.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	log.FromCtx(ctx).Debug().Int("count", len(messages)).Msg("loaded history messages")
	return messages, nil
}

// marshalOrEmpty stores nil slices as an empty string to save space.
func marshalOrEmpty(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	s := string(b)
	if s == "null" {
		s = ""
	}
	return s, nil
}
