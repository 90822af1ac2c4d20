package domain

// Quota defaults matching the reference deployment: one placement restored
// every 20 seconds up to a balance of 100.
const (
	DefaultQuotaCapacity    = 100
	DefaultReplenishStep    = 1
	DefaultReplenishSeconds = 20
)

// Participant is a verified identity permitted to place cells. The identity
// system owns its lifecycle; this engine only tracks the quota balance.
type Participant struct {
	ID      string
	Balance int
}

// Replenished returns a balance raised by step and clamped to capacity.
// Negative inputs clamp to zero so a corrupted row cannot leave the
// [0, capacity] range.
func Replenished(balance, step, capacity int) int {
	if balance < 0 {
		balance = 0
	}
	next := balance + step
	if next > capacity {
		return capacity
	}
	if next < 0 {
		return 0
	}
	return next
}
