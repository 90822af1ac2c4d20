package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/gridpaint/internal/services/canvas/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Identity is the externally minted identity material the engine reads at
// connection time. IdentifierHash is a one-way hash of the secondary
// identifier issued at registration.
type Identity struct {
	ParticipantID  string
	IdentifierHash string
}

// CellStore persists authoritative grid state.
type CellStore interface {
	// ReadAllCells returns every cell for a new-session snapshot. Each cell
	// value is some value it held at some instant; no global atomicity is
	// promised across the scan.
	ReadAllCells(ctx context.Context) ([]domain.Cell, error)
	// UpsertCell creates the cell if absent, otherwise overwrites color and
	// owner. Last write wins.
	UpsertCell(ctx context.Context, cell domain.Cell) error
}

// QuotaStore persists per-participant placement balances.
type QuotaStore interface {
	ReadBalance(ctx context.Context, participantID string) (int, error)
	WriteBalance(ctx context.Context, participantID string, balance int) error
	// EnsureParticipant creates a balance row at capacity if none exists.
	EnsureParticipant(ctx context.Context, participantID string, capacity int) error
	// ReplenishAll raises every known balance by step, clamped to capacity,
	// whether or not the participant has a live session.
	ReplenishAll(ctx context.Context, step, capacity int) error
}

// IdentityStore resolves identity material minted by the external identity
// system. The engine never writes identity records during normal operation.
type IdentityStore interface {
	ResolveParticipant(ctx context.Context, participantID string) (Identity, error)
}
