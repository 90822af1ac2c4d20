package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/gridpaint/internal/services/canvas/storage"
)

// ReadBalance returns a participant's remaining placement balance.
func (s *Store) ReadBalance(ctx context.Context, participantID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return 0, fmt.Errorf("participant id is required")
	}

	var balance int
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT balance FROM participants WHERE id = ?
`, participantID)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// WriteBalance stores a participant's new balance.
func (s *Store) WriteBalance(ctx context.Context, participantID string, balance int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return fmt.Errorf("participant id is required")
	}
	if balance < 0 {
		return fmt.Errorf("balance must not be negative")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE participants SET balance = ?, updated_at = ? WHERE id = ?
`, balance, toMillis(time.Now()), participantID)
	if err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write balance rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// EnsureParticipant creates a balance row at capacity if none exists yet.
// Existing rows, including their identifier hash, are left untouched.
func (s *Store) EnsureParticipant(ctx context.Context, participantID string, capacity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return fmt.Errorf("participant id is required")
	}
	if capacity < 0 {
		return fmt.Errorf("capacity must not be negative")
	}

	now := toMillis(time.Now())
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO participants (id, balance, created_at, updated_at)
VALUES (?, ?, ?, ?)
`, participantID, capacity, now, now)
	if err != nil {
		return fmt.Errorf("ensure participant: %w", err)
	}
	return nil
}

// ReplenishAll raises every balance below capacity by step, clamped. One
// statement covers all known participants, online or not.
func (s *Store) ReplenishAll(ctx context.Context, step, capacity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if step <= 0 {
		return fmt.Errorf("step must be greater than zero")
	}
	if capacity <= 0 {
		return fmt.Errorf("capacity must be greater than zero")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE participants
SET balance = MIN(balance + ?, ?), updated_at = ?
WHERE balance < ?
`, step, capacity, toMillis(time.Now()), capacity)
	if err != nil {
		return fmt.Errorf("replenish balances: %w", err)
	}
	return nil
}

// ResolveParticipant reads identity material for connection verification.
func (s *Store) ResolveParticipant(ctx context.Context, participantID string) (storage.Identity, error) {
	if err := ctx.Err(); err != nil {
		return storage.Identity{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Identity{}, fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return storage.Identity{}, fmt.Errorf("participant id is required")
	}

	var identity storage.Identity
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, identifier_hash FROM participants WHERE id = ?
`, participantID)
	if err := row.Scan(&identity.ParticipantID, &identity.IdentifierHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Identity{}, storage.ErrNotFound
		}
		return storage.Identity{}, fmt.Errorf("resolve participant: %w", err)
	}
	return identity, nil
}

// PutIdentity seeds or replaces a participant row with identity material.
// The identity system owns these rows in production; this path serves seed
// tooling and tests.
func (s *Store) PutIdentity(ctx context.Context, identity storage.Identity, balance int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	identity.ParticipantID = strings.TrimSpace(identity.ParticipantID)
	if identity.ParticipantID == "" {
		return fmt.Errorf("participant id is required")
	}
	if balance < 0 {
		return fmt.Errorf("balance must not be negative")
	}

	now := toMillis(time.Now())
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO participants (id, identifier_hash, balance, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	identifier_hash = excluded.identifier_hash,
	balance = excluded.balance,
	updated_at = excluded.updated_at
`, identity.ParticipantID, identity.IdentifierHash, balance, now, now)
	if err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}
