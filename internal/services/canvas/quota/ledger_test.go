package quota

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "github.com/louisbranch/gridpaint/internal/platform/errors"
	"github.com/louisbranch/gridpaint/internal/services/canvas/storage"
)

type memoryQuotaStore struct {
	mu       sync.Mutex
	balances map[string]int

	readErr  error
	writeErr error
}

func newMemoryQuotaStore() *memoryQuotaStore {
	return &memoryQuotaStore{balances: make(map[string]int)}
}

func (m *memoryQuotaStore) ReadBalance(_ context.Context, participantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	balance, ok := m.balances[participantID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return balance, nil
}

func (m *memoryQuotaStore) WriteBalance(_ context.Context, participantID string, balance int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	if _, ok := m.balances[participantID]; !ok {
		return storage.ErrNotFound
	}
	m.balances[participantID] = balance
	return nil
}

func (m *memoryQuotaStore) EnsureParticipant(_ context.Context, participantID string, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[participantID]; !ok {
		m.balances[participantID] = capacity
	}
	return nil
}

func (m *memoryQuotaStore) ReplenishAll(_ context.Context, step, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, balance := range m.balances {
		if balance < capacity {
			balance += step
			if balance > capacity {
				balance = capacity
			}
			m.balances[id] = balance
		}
	}
	return nil
}

func (m *memoryQuotaStore) balanceOf(participantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[participantID]
}

func TestEnsureSeedsAtCapacityOnce(t *testing.T) {
	store := newMemoryQuotaStore()
	ledger := NewLedger(store, 10, 1)
	ctx := context.Background()

	if err := ledger.Ensure(ctx, "participant-a"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if balance := store.balanceOf("participant-a"); balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}

	if _, err := ledger.TryConsume(ctx, "participant-a"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := ledger.Ensure(ctx, "participant-a"); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if balance := store.balanceOf("participant-a"); balance != 9 {
		t.Fatalf("balance after second ensure = %d, want 9 (ensure must not reset)", balance)
	}
}

func TestTryConsumeDecrementsUntilExhausted(t *testing.T) {
	store := newMemoryQuotaStore()
	ledger := NewLedger(store, 3, 1)
	ctx := context.Background()

	if err := ledger.Ensure(ctx, "participant-a"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	for want := 2; want >= 0; want-- {
		balance, err := ledger.TryConsume(ctx, "participant-a")
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if balance != want {
			t.Fatalf("balance = %d, want %d", balance, want)
		}
	}

	_, err := ledger.TryConsume(ctx, "participant-a")
	if apperrors.CodeOf(err) != apperrors.CodeQuotaExhausted {
		t.Fatalf("err = %v, want exhausted code", err)
	}
	if balance := store.balanceOf("participant-a"); balance != 0 {
		t.Fatalf("balance after failed consume = %d, want 0 (no mutation)", balance)
	}
}

func TestTryConsumeUnknownParticipant(t *testing.T) {
	ledger := NewLedger(newMemoryQuotaStore(), 3, 1)

	_, err := ledger.TryConsume(context.Background(), "participant-missing")
	if apperrors.CodeOf(err) != apperrors.CodeQuotaParticipantUnknown {
		t.Fatalf("err = %v, want participant unknown code", err)
	}
}

func TestTryConsumeStoreFailure(t *testing.T) {
	store := newMemoryQuotaStore()
	store.readErr = errors.New("disk gone")
	ledger := NewLedger(store, 3, 1)

	_, err := ledger.TryConsume(context.Background(), "participant-a")
	if apperrors.CodeOf(err) != apperrors.CodeStorageUnavailable {
		t.Fatalf("err = %v, want storage unavailable code", err)
	}
}

func TestRefundClampsToCapacity(t *testing.T) {
	store := newMemoryQuotaStore()
	ledger := NewLedger(store, 5, 1)
	ctx := context.Background()

	if err := ledger.Ensure(ctx, "participant-a"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// At capacity a refund is a no-op.
	balance, err := ledger.Refund(ctx, "participant-a")
	if err != nil {
		t.Fatalf("refund at capacity: %v", err)
	}
	if balance != 5 {
		t.Fatalf("balance = %d, want 5", balance)
	}

	if _, err := ledger.TryConsume(ctx, "participant-a"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	balance, err = ledger.Refund(ctx, "participant-a")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if balance != 5 {
		t.Fatalf("balance after refund = %d, want 5", balance)
	}
}

func TestReplenishAllRaisesBelowCapacity(t *testing.T) {
	store := newMemoryQuotaStore()
	ledger := NewLedger(store, 100, 1)
	ctx := context.Background()

	store.balances["participant-low"] = 97
	store.balances["participant-full"] = 100
	store.balances["participant-zero"] = 0

	if err := ledger.ReplenishAll(ctx); err != nil {
		t.Fatalf("replenish all: %v", err)
	}

	want := map[string]int{
		"participant-low":  98,
		"participant-full": 100,
		"participant-zero": 1,
	}
	for id, wantBalance := range want {
		if balance := store.balanceOf(id); balance != wantBalance {
			t.Fatalf("%s balance = %d, want %d", id, balance, wantBalance)
		}
	}
}

func TestConcurrentConsumeNeverOversells(t *testing.T) {
	store := newMemoryQuotaStore()
	ledger := NewLedger(store, 50, 1)
	ctx := context.Background()

	if err := ledger.Ensure(ctx, "participant-a"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	const attempts = 200
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	exhausted := 0

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.TryConsume(ctx, "participant-a")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.CodeOf(err) == apperrors.CodeQuotaExhausted:
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 50 {
		t.Fatalf("successes = %d, want exactly 50", successes)
	}
	if exhausted != attempts-50 {
		t.Fatalf("exhausted = %d, want %d", exhausted, attempts-50)
	}
	if balance := store.balanceOf("participant-a"); balance != 0 {
		t.Fatalf("final balance = %d, want 0", balance)
	}
}
