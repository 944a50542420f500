package types

import (
	"encoding/json"
	"math"
	"time"
)

// Measurement is one timestamped scalar reading from an instrument.
// Measurements are immutable once recorded; all statistics are computed
// within a single scope at a time.
type Measurement struct {
	// ScopeKey identifies the instrument combination (instrument +
	// workstation + technician) the reading belongs to.
	ScopeKey string `json:"scope_key"`

	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Baseline is the committed reference mean/sigma a measurement series is
// judged against. One current Baseline exists per scope; Version increments
// monotonically on every commit and doubles as the optimistic-concurrency
// token. Superseded baselines are never mutated in place.
type Baseline struct {
	ScopeKey    string    `json:"scope_key"`
	Mean        float64   `json:"mean"`
	Sigma       float64   `json:"sigma"`
	SampleCount int       `json:"sample_count"`
	Version     int       `json:"version"`
	CommittedAt time.Time `json:"committed_at"`
}

// Candidate is a proposed baseline produced by a recalculation request.
// BasedOnVersion records the committed Version observed at request time;
// commit rejects the candidate if another commit has happened since.
type Candidate struct {
	ScopeKey       string  `json:"scope_key"`
	Mean           float64 `json:"mean"`
	Sigma          float64 `json:"sigma"`
	SampleCount    int     `json:"sample_count"`
	BasedOnVersion int     `json:"based_on_version"`
}

// ControlLimits are the control and warning bounds derived from a Baseline.
// They are recomputed on demand and never persisted: a Baseline may be
// superseded between evaluation calls.
//
// WarningMultiplier == 0 means the warning band is disabled; WarningUpper
// and WarningLower then sit on UCL/LCL and no point classifies as warning.
type ControlLimits struct {
	Center            float64 `json:"center"`
	UCL               float64 `json:"ucl"`
	LCL               float64 `json:"lcl"`
	WarningUpper      float64 `json:"warning_upper"`
	WarningLower      float64 `json:"warning_lower"`
	SigmaMultiplier   float64 `json:"sigma_multiplier"`
	WarningMultiplier float64 `json:"warning_multiplier"`
}

// Status classifies one measurement against a set of control limits.
type Status string

// Status values, from the center of the band outward.
const (
	StatusInControl   Status = "in_control"
	StatusWarningHigh Status = "warning_high"
	StatusWarningLow  Status = "warning_low"
	StatusOutHigh     Status = "out_high"
	StatusOutLow      Status = "out_low"
)

// ClassifiedPoint is one measurement together with its classification.
// DeviationSigmas is the signed distance from the center line in units of
// the baseline sigma; ±Inf against a zero-variance baseline.
type ClassifiedPoint struct {
	Measurement     Measurement `json:"measurement"`
	Status          Status      `json:"status"`
	DeviationSigmas float64     `json:"deviation_sigmas"`
}

// MarshalJSON emits infinite deviations as the strings "+inf"/"-inf":
// encoding/json rejects IEEE infinities, and a zero-variance baseline
// legitimately produces them.
func (p ClassifiedPoint) MarshalJSON() ([]byte, error) {
	out := struct {
		Measurement     Measurement `json:"measurement"`
		Status          Status      `json:"status"`
		DeviationSigmas any         `json:"deviation_sigmas"`
	}{p.Measurement, p.Status, p.DeviationSigmas}

	switch {
	case math.IsInf(p.DeviationSigmas, 1):
		out.DeviationSigmas = "+inf"
	case math.IsInf(p.DeviationSigmas, -1):
		out.DeviationSigmas = "-inf"
	}
	return json.Marshal(out)
}

// Window is the half-open time range [From, To) a recalculation samples.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the window. A zero From or To
// leaves that side unbounded.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}
