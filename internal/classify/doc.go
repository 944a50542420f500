// Package classify evaluates measurement series against derived control
// limits, assigning each point a status (in control, warning zone, out of
// control) and its signed deviation in sigma units, and summarizing run
// statistics across a series.
package classify
