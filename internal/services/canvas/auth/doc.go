// Package auth verifies connection credentials against identity material
// minted by the external identity system.
package auth
