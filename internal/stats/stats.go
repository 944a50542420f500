package stats

import (
	"errors"
	"math"

	"github.com/spcwatch/spcwatch/pkg/types"
)

// ErrInsufficientData is returned when a sample holds no measurements.
// A mean requires at least one point.
var ErrInsufficientData = errors.New("stats: insufficient data")

// Summary holds the statistics computed from one measurement sample.
type Summary struct {
	Mean  float64
	Sigma float64
	Count int
}

// Accumulator computes a running mean and variance in a single pass using
// Welford's recurrence. Naively summing squares cancels catastrophically on
// samples with large magnitude and small variance; the recurrence does not.
//
// The zero value is ready to use. Accumulator is not safe for concurrent use.
type Accumulator struct {
	n    int
	mean float64
	m2   float64 // sum of squared deviations from the running mean
}

// Add folds one value into the accumulator.
func (a *Accumulator) Add(v float64) {
	a.n++
	delta := v - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (v - a.mean)
}

// Count returns the number of values added.
func (a *Accumulator) Count() int { return a.n }

// Mean returns the arithmetic mean of the values added, or 0 before any Add.
func (a *Accumulator) Mean() float64 { return a.mean }

// SampleStdDev returns the sample standard deviation (n−1 divisor), the
// conventional SPC estimator. For fewer than two values it returns 0: a
// single observation seeds a zero-variance baseline rather than erroring,
// so callers can establish a baseline from one reading. This is a deliberate
// policy, not a population-vs-sample formula choice.
func (a *Accumulator) SampleStdDev() float64 {
	if a.n < 2 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.n-1))
}

// Compute derives mean, sample standard deviation and count from a
// measurement sample. It is a pure function of its input.
//
// An empty sample returns ErrInsufficientData. A single-point sample returns
// Sigma == 0 exactly (see Accumulator.SampleStdDev for the policy).
func Compute(sample []types.Measurement) (Summary, error) {
	if len(sample) == 0 {
		return Summary{}, ErrInsufficientData
	}
	var acc Accumulator
	for _, m := range sample {
		acc.Add(m.Value)
	}
	return Summary{
		Mean:  acc.Mean(),
		Sigma: acc.SampleStdDev(),
		Count: acc.Count(),
	}, nil
}
