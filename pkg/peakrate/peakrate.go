// Package peakrate implements the device peak-rate estimator (spec §4.6):
// an exponentially smoothed, fixed-point sectors-per-second estimate,
// validated against a token-bucket ceiling before each sample is folded
// in, and used to classify the device's speed once enough samples exist.
package peakrate

import (
	"time"

	"github.com/cuemby/bfqsched/pkg/entity"
	"golang.org/x/time/rate"
)

// PeakRateSamples is the number of valid samples required before the
// estimator trusts peak_rate enough to classify device speed (spec §4.6).
const PeakRateSamples = 32

// Reference rates and weight-raise durations, one pair per (speed,
// rotational) class (spec §4.5 "auto-computed... using device speed
// class"). Values mirror the four reference classes original_source
// ships for rotational vs. non-rotational, slow vs. fast devices.
const (
	RefRateSlowRotational    = 1 << 16 // sectors/sec, shift-16 fixed point base unit
	RefRateFastRotational    = 8 << 16
	RefRateSlowNonRotational = 2 << 16
	RefRateFastNonRotational = 16 << 16
)

var (
	refTimeSlowRotational    = 2 * time.Second
	refTimeFastRotational    = 500 * time.Millisecond
	refTimeSlowNonRotational = time.Second
	refTimeFastNonRotational = 300 * time.Millisecond
)

// SpeedClass tags the device speed/rotational classification derived
// from the estimated peak rate once enough samples have been observed.
type SpeedClass int

const (
	ClassUnclassified SpeedClass = iota
	ClassSlowRotational
	ClassFastRotational
	ClassSlowNonRotational
	ClassFastNonRotational
)

// Estimator tracks a device's sustained service rate.
type Estimator struct {
	Rotational bool

	peakRate   uint64 // sectors/sec, shift-16 fixed point
	validCount int

	// limiter guards against a single abnormally large burst corrupting
	// the EWMA: a sample is only folded in if its instantaneous rate does
	// not wildly exceed the limiter's current token allowance, the same
	// token-bucket admission idea x/time/rate uses for request shaping,
	// applied here to a single scalar sample rather than to request flow.
	limiter *rate.Limiter
}

// New constructs an Estimator for a device of the given rotational class.
// ceiling bounds the instantaneous sectors/sec a single sample may report
// before it is treated as an outlier and discarded.
func New(rotational bool, ceiling float64) *Estimator {
	return &Estimator{
		Rotational: rotational,
		limiter:    rate.NewLimiter(rate.Limit(ceiling), int(ceiling)),
	}
}

// Sample folds one expiration-time observation into the estimate: sectors
// served over elapsed wall-clock time. Samples that the rate limiter
// rejects as implausibly fast are dropped without affecting peak_rate.
func (e *Estimator) Sample(sectors uint64, elapsed time.Duration) {
	if elapsed <= 0 || sectors == 0 {
		return
	}
	instRate := float64(sectors) / elapsed.Seconds()
	if instRate > float64(e.limiter.Burst()) || !e.limiter.AllowN(time.Now(), int(instRate)) {
		return
	}

	fp := uint64(instRate) << entity.VTimeShift
	if e.validCount == 0 {
		e.peakRate = fp
	} else {
		// Shift-3 EWMA: fast enough to track a changing device, slow
		// enough that one outlier sample can't swing the estimate.
		e.peakRate = e.peakRate - (e.peakRate >> 3) + (fp >> 3)
	}
	e.validCount++
}

// PeakRate returns the current shift-16 fixed-point sectors/sec estimate.
func (e *Estimator) PeakRate() uint64 {
	return e.peakRate
}

// Classified reports whether enough samples have accumulated to trust a
// speed classification.
func (e *Estimator) Classified() bool {
	return e.validCount >= PeakRateSamples
}

// SpeedClass classifies the device once Classified is true; returns
// ClassUnclassified beforehand.
func (e *Estimator) SpeedClass() SpeedClass {
	if !e.Classified() {
		return ClassUnclassified
	}
	if e.Rotational {
		if e.peakRate >= (RefRateSlowRotational+RefRateFastRotational)/2 {
			return ClassFastRotational
		}
		return ClassSlowRotational
	}
	if e.peakRate >= (RefRateSlowNonRotational+RefRateFastNonRotational)/2 {
		return ClassFastNonRotational
	}
	return ClassSlowNonRotational
}

// WRDuration computes wr_cur_max_time = (R_ref / peak_rate) * T_ref for
// the device's classified speed (spec §4.5). Returns the slow-rotational
// default if the device is not yet classified, matching the conservative
// (longest) reference duration until enough samples arrive.
func (e *Estimator) WRDuration() time.Duration {
	refRate, refTime := e.reference()
	if e.peakRate == 0 || !e.Classified() {
		return refTime
	}
	ratio := float64(refRate) / float64(e.peakRate)
	return time.Duration(ratio * float64(refTime))
}

func (e *Estimator) reference() (rate uint64, dur time.Duration) {
	switch e.SpeedClass() {
	case ClassFastRotational:
		return RefRateFastRotational, refTimeFastRotational
	case ClassSlowNonRotational:
		return RefRateSlowNonRotational, refTimeSlowNonRotational
	case ClassFastNonRotational:
		return RefRateFastNonRotational, refTimeFastNonRotational
	default:
		return RefRateSlowRotational, refTimeSlowRotational
	}
}
