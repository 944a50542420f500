package classify

import (
	"encoding/json"
	"math"

	"github.com/spcwatch/spcwatch/pkg/types"
)

// Classify evaluates an ordered measurement series against one fixed set of
// control limits. The output has one point per input point, order preserved;
// an empty series yields an empty result. Inputs are not mutated.
//
// Status priority, first match wins: above UCL, below LCL, above the warning
// bound, below the warning bound, in control. Warning checks are skipped when
// the limits carry no warning band (WarningMultiplier == 0).
func Classify(series []types.Measurement, lim types.ControlLimits) []types.ClassifiedPoint {
	out := make([]types.ClassifiedPoint, 0, len(series))
	sigma := recoverSigma(lim)
	for _, m := range series {
		out = append(out, types.ClassifiedPoint{
			Measurement:     m,
			Status:          status(m.Value, lim),
			DeviationSigmas: deviation(m.Value, lim.Center, sigma),
		})
	}
	return out
}

// recoverSigma backs the baseline sigma out of the band width. The limits
// struct does not carry sigma itself; the band does.
func recoverSigma(lim types.ControlLimits) float64 {
	if lim.SigmaMultiplier == 0 {
		return 0
	}
	return (lim.UCL - lim.Center) / lim.SigmaMultiplier
}

// deviation is the signed distance from the center line in sigma units.
// Against a zero-variance baseline any deviation is infinitely significant:
// ±Inf keeps the sign and avoids NaN propagation downstream.
func deviation(value, center, sigma float64) float64 {
	if sigma == 0 {
		switch {
		case value == center:
			return 0
		case value > center:
			return math.Inf(1)
		default:
			return math.Inf(-1)
		}
	}
	return (value - center) / sigma
}

func status(value float64, lim types.ControlLimits) types.Status {
	switch {
	case value > lim.UCL:
		return types.StatusOutHigh
	case value < lim.LCL:
		return types.StatusOutLow
	case lim.WarningMultiplier > 0 && value > lim.WarningUpper:
		return types.StatusWarningHigh
	case lim.WarningMultiplier > 0 && value < lim.WarningLower:
		return types.StatusWarningLow
	default:
		return types.StatusInControl
	}
}

// Summary aggregates the classification results for one series.
type Summary struct {
	Total        int     `json:"total"`
	InControl    int     `json:"in_control"`
	WarningHigh  int     `json:"warning_high"`
	WarningLow   int     `json:"warning_low"`
	OutHigh      int     `json:"out_high"`
	OutLow       int     `json:"out_low"`
	MaxDeviation float64 `json:"max_deviation_sigmas"`

	// Longest consecutive run of points strictly above / below the center
	// line. Long one-sided runs signal process drift even when no single
	// point breaches a limit.
	LongestRunAbove int `json:"longest_run_above"`
	LongestRunBelow int `json:"longest_run_below"`
}

// MarshalJSON emits an infinite MaxDeviation as the string "+inf", the same
// treatment types.ClassifiedPoint gives its deviation: points classified
// against a zero-variance baseline carry ±Inf deviations, and encoding/json
// rejects IEEE infinities. MaxDeviation is an absolute value, so -Inf cannot
// occur.
func (s Summary) MarshalJSON() ([]byte, error) {
	out := struct {
		Total           int `json:"total"`
		InControl       int `json:"in_control"`
		WarningHigh     int `json:"warning_high"`
		WarningLow      int `json:"warning_low"`
		OutHigh         int `json:"out_high"`
		OutLow          int `json:"out_low"`
		MaxDeviation    any `json:"max_deviation_sigmas"`
		LongestRunAbove int `json:"longest_run_above"`
		LongestRunBelow int `json:"longest_run_below"`
	}{
		Total:           s.Total,
		InControl:       s.InControl,
		WarningHigh:     s.WarningHigh,
		WarningLow:      s.WarningLow,
		OutHigh:         s.OutHigh,
		OutLow:          s.OutLow,
		MaxDeviation:    s.MaxDeviation,
		LongestRunAbove: s.LongestRunAbove,
		LongestRunBelow: s.LongestRunBelow,
	}
	if math.IsInf(s.MaxDeviation, 1) {
		out.MaxDeviation = "+inf"
	}
	return json.Marshal(out)
}

// Summarize computes run statistics over a classified series.
func Summarize(points []types.ClassifiedPoint) Summary {
	var s Summary
	s.Total = len(points)

	runAbove, runBelow := 0, 0
	for _, p := range points {
		switch p.Status {
		case types.StatusInControl:
			s.InControl++
		case types.StatusWarningHigh:
			s.WarningHigh++
		case types.StatusWarningLow:
			s.WarningLow++
		case types.StatusOutHigh:
			s.OutHigh++
		case types.StatusOutLow:
			s.OutLow++
		}

		if d := math.Abs(p.DeviationSigmas); d > s.MaxDeviation {
			s.MaxDeviation = d
		}

		switch {
		case p.DeviationSigmas > 0:
			runAbove++
			runBelow = 0
		case p.DeviationSigmas < 0:
			runBelow++
			runAbove = 0
		default:
			runAbove, runBelow = 0, 0
		}
		if runAbove > s.LongestRunAbove {
			s.LongestRunAbove = runAbove
		}
		if runBelow > s.LongestRunBelow {
			s.LongestRunBelow = runBelow
		}
	}
	return s
}
