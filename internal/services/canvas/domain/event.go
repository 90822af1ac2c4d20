package domain

// EventKind identifies a broadcast event fanned out to live sessions.
type EventKind string

const (
	// EventCellCommitted announces cells committed to the canvas store.
	EventCellCommitted EventKind = "cell_committed"
	// EventPresenceChanged announces a change in the online session count.
	EventPresenceChanged EventKind = "presence_changed"
	// EventQuotaChanged announces a participant's updated balance.
	EventQuotaChanged EventKind = "quota_changed"
	// EventQuotaExhausted announces a participant hitting a zero balance.
	EventQuotaExhausted EventKind = "quota_exhausted"
)
