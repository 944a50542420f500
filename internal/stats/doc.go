// Package stats computes baseline statistics from measurement samples.
//
// Compute(sample) returns the mean, sample standard deviation (n−1 divisor)
// and count for a sample, via a single-pass Welford accumulation that stays
// numerically stable for large-magnitude, small-variance samples.
//
// Edge-case policy: an empty sample is ErrInsufficientData; a single-point
// sample yields Sigma == 0 so a baseline can be seeded from one reading.
package stats
