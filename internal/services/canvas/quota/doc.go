// Package quota manages per-participant placement budgets: atomic
// consumption, refunds, and the scheduled replenishment pass.
package quota
