package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/gridpaint/internal/platform/errors"
	"github.com/louisbranch/gridpaint/internal/services/canvas/domain"
	"github.com/louisbranch/gridpaint/internal/services/canvas/storage"
)

// Ledger is the authoritative view of participant placement balances. All
// balance mutations go through it so that a read-check-write never interleaves
// with a concurrent mutation for the same participant.
type Ledger struct {
	store    storage.QuotaStore
	capacity int
	step     int

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// replenishMu serializes full replenishment passes.
	replenishMu sync.Mutex
}

// NewLedger builds a ledger over the given store. Non-positive capacity or
// step fall back to the defaults.
func NewLedger(store storage.QuotaStore, capacity, step int) *Ledger {
	if capacity <= 0 {
		capacity = domain.DefaultQuotaCapacity
	}
	if step <= 0 {
		step = domain.DefaultReplenishStep
	}
	return &Ledger{
		store:    store,
		capacity: capacity,
		step:     step,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Capacity returns the maximum balance a participant can hold.
func (l *Ledger) Capacity() int {
	return l.capacity
}

// lockFor returns the mutex guarding a participant's balance, creating it on
// first use. Locks are never removed; the set is bounded by the participant
// population.
func (l *Ledger) lockFor(participantID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[participantID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[participantID] = lock
	}
	return lock
}

// Ensure guarantees a balance record exists for the participant, seeding it at
// capacity on first sight. Existing balances are left untouched.
func (l *Ledger) Ensure(ctx context.Context, participantID string) error {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return fmt.Errorf("participant id is required")
	}

	lock := l.lockFor(participantID)
	lock.Lock()
	defer lock.Unlock()

	if err := l.store.EnsureParticipant(ctx, participantID, l.capacity); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "ensure participant balance", err)
	}
	return nil
}

// TryConsume atomically decrements the participant's balance by one and
// returns the remaining balance. A zero balance fails with QUOTA_EXHAUSTED
// and mutates nothing.
func (l *Ledger) TryConsume(ctx context.Context, participantID string) (int, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return 0, fmt.Errorf("participant id is required")
	}

	lock := l.lockFor(participantID)
	lock.Lock()
	defer lock.Unlock()

	balance, err := l.store.ReadBalance(ctx, participantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, apperrors.New(apperrors.CodeQuotaParticipantUnknown, "participant has no balance record")
		}
		return 0, apperrors.Wrap(apperrors.CodeStorageUnavailable, "read balance", err)
	}
	if balance <= 0 {
		return 0, apperrors.New(apperrors.CodeQuotaExhausted, "placement balance is exhausted")
	}

	balance--
	if err := l.store.WriteBalance(ctx, participantID, balance); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageUnavailable, "write balance", err)
	}
	return balance, nil
}

// Refund returns one unit to the participant's balance, clamped to capacity.
// It compensates a consumption whose placement never committed.
func (l *Ledger) Refund(ctx context.Context, participantID string) (int, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return 0, fmt.Errorf("participant id is required")
	}

	lock := l.lockFor(participantID)
	lock.Lock()
	defer lock.Unlock()

	balance, err := l.store.ReadBalance(ctx, participantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, apperrors.New(apperrors.CodeQuotaParticipantUnknown, "participant has no balance record")
		}
		return 0, apperrors.Wrap(apperrors.CodeStorageUnavailable, "read balance", err)
	}

	refunded := domain.Replenished(balance, 1, l.capacity)
	if refunded == balance {
		return balance, nil
	}
	if err := l.store.WriteBalance(ctx, participantID, refunded); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageUnavailable, "write balance", err)
	}
	return refunded, nil
}

// BalanceOf reads the participant's current balance.
func (l *Ledger) BalanceOf(ctx context.Context, participantID string) (int, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return 0, fmt.Errorf("participant id is required")
	}

	lock := l.lockFor(participantID)
	lock.Lock()
	defer lock.Unlock()

	balance, err := l.store.ReadBalance(ctx, participantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, apperrors.New(apperrors.CodeQuotaParticipantUnknown, "participant has no balance record")
		}
		return 0, apperrors.Wrap(apperrors.CodeStorageUnavailable, "read balance", err)
	}
	return balance, nil
}

// ReplenishAll raises every stored balance below capacity by the configured
// step. Passes are serialized; a second caller waits for the first.
func (l *Ledger) ReplenishAll(ctx context.Context) error {
	l.replenishMu.Lock()
	defer l.replenishMu.Unlock()

	if err := l.store.ReplenishAll(ctx, l.step, l.capacity); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "replenish balances", err)
	}
	return nil
}
