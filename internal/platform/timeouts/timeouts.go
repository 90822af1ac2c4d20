// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between boundaries and makes the
// durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// StoreOp caps a single canvas or quota storage operation so a stalled
// store cannot accumulate unbounded pending placements.
const StoreOp = 2 * time.Second

// PeerPublish caps a best-effort event hand-off to one peer instance.
const PeerPublish = 2 * time.Second
