package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InstanceRecord represents a row in the instances table: one running
// agent instance known to this deployment.
type InstanceRecord struct {
	InstanceID  string    `json:"instance_id"`
	DisplayName string    `json:"display_name"`
	UserID      string    `json:"user_id"`
	Roles       string    `json:"roles"` // comma-separated
	Status      string    `json:"status"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RegisterInstance upserts the registry row for an instance and stamps
// last_seen_at.
func (s *Store) RegisterInstance(ctx context.Context, rec InstanceRecord) error {
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO instances (instance_id, display_name, user_id, roles, status, last_seen_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			ON CONFLICT(instance_id) DO UPDATE SET
				display_name = excluded.display_name,
				user_id = excluded.user_id,
				roles = excluded.roles,
				status = excluded.status,
				last_seen_at = CURRENT_TIMESTAMP,
				updated_at = CURRENT_TIMESTAMP;
		`, rec.InstanceID, rec.DisplayName, rec.UserID, rec.Roles, statusOrActive(rec.Status))
		return err
	})
	if err != nil {
		return fmt.Errorf("register instance: %w", err)
	}
	return nil
}

func statusOrActive(status string) string {
	if status == "" {
		return "active"
	}
	return status
}

// GetInstance returns the record for the given id, or nil if not found.
func (s *Store) GetInstance(ctx context.Context, instanceID string) (*InstanceRecord, error) {
	var rec InstanceRecord
	var lastSeen sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT instance_id, display_name, user_id, roles, status, last_seen_at, created_at, updated_at
		FROM instances WHERE instance_id = ?;
	`, instanceID).Scan(&rec.InstanceID, &rec.DisplayName, &rec.UserID, &rec.Roles,
		&rec.Status, &lastSeen, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}
	if lastSeen.Valid {
		rec.LastSeenAt = lastSeen.Time
	}
	return &rec, nil
}

// ListInstances returns all registry rows ordered by creation time.
func (s *Store) ListInstances(ctx context.Context) ([]InstanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, display_name, user_id, roles, status, last_seen_at, created_at, updated_at
		FROM instances ORDER BY created_at ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()
	var out []InstanceRecord
	for rows.Next() {
		var rec InstanceRecord
		var lastSeen sql.NullTime
		if err := rows.Scan(&rec.InstanceID, &rec.DisplayName, &rec.UserID, &rec.Roles,
			&rec.Status, &lastSeen, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		if lastSeen.Valid {
			rec.LastSeenAt = lastSeen.Time
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list instances: iterate: %w", err)
	}
	return out, nil
}

// ListActiveInstances returns instances whose status is "active",
// excluding the given id. Used to fan out a broadcast push.
func (s *Store) ListActiveInstances(ctx context.Context, excludeID string) ([]InstanceRecord, error) {
	all, err := s.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.Status == "active" && rec.InstanceID != excludeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// UpdateInstanceStatus sets the status field (e.g. "active", "stopped").
func (s *Store) UpdateInstanceStatus(ctx context.Context, instanceID, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE instances SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE instance_id = ?;
	`, status, instanceID)
	if err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}
	n, rowsErr := res.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("update instance status: rows affected: %w", rowsErr)
	}
	if n == 0 {
		return fmt.Errorf("instance %q not found", instanceID)
	}
	return nil
}

// TouchInstance bumps last_seen_at, used as a liveness heartbeat.
func (s *Store) TouchInstance(ctx context.Context, instanceID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE instances SET last_seen_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE instance_id = ?;
	`, instanceID)
	if err != nil {
		return fmt.Errorf("touch instance: %w", err)
	}
	return nil
}

// DeleteInstance removes an instance and its messages in one transaction.
func (s *Store) DeleteInstance(ctx context.Context, instanceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete instance: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM instances WHERE instance_id = ?;`, instanceID)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	n, rowsErr := res.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("delete instance: rows affected: %w", rowsErr)
	}
	if n == 0 {
		return fmt.Errorf("instance %q not found", instanceID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM instance_messages WHERE from_instance = ? OR to_instance = ?;`, instanceID, instanceID); err != nil {
		return fmt.Errorf("delete instance messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete instance: commit: %w", err)
	}
	return nil
}
