package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"
)

// MessagesRepo tracks which conversation messages were already mined for memories.
type MessagesRepo struct {
	db *sql.DB
}

func NewMessagesRepo(db *sql.DB) *MessagesRepo {
	return &MessagesRepo{db: db}
}

// Unprocessed returns the subset of messageIDs not yet marked, in input order.
func (h *MessagesRepo) Unprocessed(ctx context.Context, conversationID string, messageIDs []string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	args := append([]any{conversationID}, stringArgs(messageIDs)...)
	rows, err := h.db.QueryContext(ctx, `SELECT message_id FROM processed_messages
		WHERE conversation_id = ? AND message_id IN (`+placeholders(len(messageIDs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed messages: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan processed message: %w", err)
		}
		done[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pending []string
	for _, id := range messageIDs {
		if _, ok := done[id]; ok || slices.Contains(pending, id) {
			continue
		}
		pending = append(pending, id)
	}
	return pending, nil
}

func (h *MessagesRepo) MarkProcessed(ctx context.Context, conversationID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	for _, id := range messageIDs {
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO processed_messages
			(conversation_id, message_id, processed_at) VALUES (?, ?, ?)`, conversationID, id, now)
		if err != nil {
			return fmt.Errorf("failed to mark message %s processed: %w", id, err)
		}
	}

	return tx.Commit()
}
