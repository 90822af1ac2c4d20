// Package canvas hosts the real-time shared canvas engine: authoritative
// grid state, per-participant placement quotas with scheduled replenishment,
// and websocket fan-out of committed changes to every live session.
package canvas
