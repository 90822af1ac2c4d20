// Package storage defines persistence interfaces for the canvas engine.
// Implementations live in subpackages.
package storage
