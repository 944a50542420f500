// Package types defines the shared Go types for the baseline engine:
// measurements, committed baselines, recalculation candidates, derived
// control limits and classified points. These are the canonical in-memory
// representations; the engine defines no wire format of its own.
package types
