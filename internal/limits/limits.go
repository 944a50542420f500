package limits

import (
	"errors"
	"fmt"

	"github.com/spcwatch/spcwatch/pkg/types"
)

// ErrInvalidParameter is returned for multipliers that cannot form a valid
// control band.
var ErrInvalidParameter = errors.New("limits: invalid parameter")

// Default multipliers: the conventional 3-sigma control band with a 2-sigma
// warning band inside it.
const (
	DefaultSigmaMultiplier   = 3.0
	DefaultWarningMultiplier = 2.0
)

// Derive computes control limits from a committed baseline.
//
//	UCL = mean + sigmaMult·sigma
//	LCL = mean − sigmaMult·sigma
//
// warnMult places a symmetric warning band strictly inside the control band;
// warnMult == 0 disables the warning band and the warning bounds collapse
// onto UCL/LCL. sigmaMult must be positive and warnMult, when enabled, must
// be smaller than sigmaMult; anything else is ErrInvalidParameter.
//
// A zero-sigma baseline collapses every bound onto the mean. That is valid
// output, not an error: a perfectly stable process legitimately has zero
// variance over the sampled window, and any deviation from it is then out of
// control.
//
// Derive is deterministic — identical inputs produce bit-identical output.
func Derive(b types.Baseline, sigmaMult, warnMult float64) (types.ControlLimits, error) {
	if sigmaMult <= 0 {
		return types.ControlLimits{}, fmt.Errorf("%w: sigma multiplier %v must be > 0", ErrInvalidParameter, sigmaMult)
	}
	if warnMult < 0 {
		return types.ControlLimits{}, fmt.Errorf("%w: warning multiplier %v must not be negative", ErrInvalidParameter, warnMult)
	}
	if warnMult > 0 && warnMult >= sigmaMult {
		return types.ControlLimits{}, fmt.Errorf("%w: warning multiplier %v must sit inside sigma multiplier %v",
			ErrInvalidParameter, warnMult, sigmaMult)
	}

	lim := types.ControlLimits{
		Center:            b.Mean,
		UCL:               b.Mean + sigmaMult*b.Sigma,
		LCL:               b.Mean - sigmaMult*b.Sigma,
		SigmaMultiplier:   sigmaMult,
		WarningMultiplier: warnMult,
	}
	if warnMult > 0 {
		lim.WarningUpper = b.Mean + warnMult*b.Sigma
		lim.WarningLower = b.Mean - warnMult*b.Sigma
	} else {
		lim.WarningUpper = lim.UCL
		lim.WarningLower = lim.LCL
	}
	return lim, nil
}
