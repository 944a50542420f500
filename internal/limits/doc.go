// Package limits derives upper/lower control limits and optional warning
// bounds from a committed baseline and configurable sigma multipliers.
// Limits are derived on demand and never cached: a baseline may be
// superseded between evaluation calls.
package limits
