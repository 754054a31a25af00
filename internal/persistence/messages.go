package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MessageTypeGenePush marks a payload carrying full gene records pushed
// directly from another instance, bypassing the platform API.
const MessageTypeGenePush = "gene_push"

// Message represents a row in the instance_messages table.
type Message struct {
	ID           int64     `json:"id"`
	FromInstance string    `json:"from_instance"`
	ToInstance   string    `json:"to_instance"`
	Type         string    `json:"type"`
	Payload      string    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
}

// SendMessage stores a typed message from one instance to another.
func (s *Store) SendMessage(ctx context.Context, from, to, msgType, payload string) error {
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO instance_messages (from_instance, to_instance, type, payload) VALUES (?, ?, ?, ?);
		`, from, to, msgType, payload)
		return err
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// ReadMessages returns unread messages for an instance and marks them as
// read. Uses a transaction to prevent duplicate delivery under
// concurrent readers.
func (s *Store) ReadMessages(ctx context.Context, instanceID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read messages: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, from_instance, to_instance, type, payload, created_at
		FROM instance_messages
		WHERE to_instance = ? AND read_at IS NULL
		ORDER BY created_at ASC
		LIMIT ?;
	`, instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	var idArgs []any
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.FromInstance, &m.ToInstance, &m.Type, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
		idArgs = append(idArgs, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Mark as read within the same transaction using parameterized query.
	if len(idArgs) > 0 {
		placeholders := strings.Repeat("?,", len(idArgs))
		placeholders = placeholders[:len(placeholders)-1]
		query := `UPDATE instance_messages SET read_at = CURRENT_TIMESTAMP WHERE id IN (` + placeholders + `);`
		if _, err := tx.ExecContext(ctx, query, idArgs...); err != nil {
			return nil, fmt.Errorf("mark messages read: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("read messages: commit: %w", err)
	}

	return msgs, nil
}

// PeekMessages returns the count of unread messages for an instance.
func (s *Store) PeekMessages(ctx context.Context, instanceID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM instance_messages WHERE to_instance = ? AND read_at IS NULL;
	`, instanceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("peek messages: %w", err)
	}
	return count, nil
}

// TotalMessageCount returns the total number of inter-instance messages.
func (s *Store) TotalMessageCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM instance_messages;
	`).Scan(&count); err != nil {
		return 0, fmt.Errorf("total message count: %w", err)
	}
	return count, nil
}

// PurgeReadMessages deletes read messages older than the cutoff and
// returns the purged count.
func (s *Store) PurgeReadMessages(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM instance_messages WHERE read_at IS NOT NULL AND created_at < ?;
	`, before)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge messages: rows affected: %w", err)
	}
	return n, nil
}
