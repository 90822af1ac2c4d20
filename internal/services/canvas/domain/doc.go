// Package domain defines the canvas engine's core types and validation
// rules: grid cells, participants, quota arithmetic, and broadcast events.
package domain
