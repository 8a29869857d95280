package baseline

import (
	"errors"
	"math"
)

var (
	// ErrNotInitialized is returned when a sample is evaluated before the first reference value is set.
	ErrNotInitialized = errors.New("baseline: reference value not initialized")
	// ErrDegenerateBaseline indicates the reference value collapsed to zero and no percentage can be derived.
	ErrDegenerateBaseline = errors.New("baseline: reference value is zero")
)

// Direction classifies the sign of a percentage move.
type Direction int

const (
	Unchanged Direction = iota
	Increase
	Decrease
)

func (d Direction) String() string {
	switch d {
	case Increase:
		return "increase"
	case Decrease:
		return "decrease"
	default:
		return "unchanged"
	}
}

// DeltaResult is the percentage move of a sample relative to the reference value.
type DeltaResult struct {
	Percent   float64
	Direction Direction
}

// Tracker holds the reference value new samples are compared against.
// It is not safe for concurrent use; the sampling loop is its only caller.
type Tracker struct {
	reference   float64
	initialized bool
}

// New returns an uninitialised tracker.
func New() *Tracker {
	return &Tracker{}
}

// Initialize sets the reference value from the startup sample.
func (t *Tracker) Initialize(sample float64) {
	t.reference = sample
	t.initialized = true
}

// Reference returns the current reference value and whether it has been set.
func (t *Tracker) Reference() (float64, bool) {
	return t.reference, t.initialized
}

// Evaluate computes the percentage change of sample against the reference value.
func (t *Tracker) Evaluate(sample float64) (DeltaResult, error) {
	if !t.initialized {
		return DeltaResult{}, ErrNotInitialized
	}
	if t.reference == 0 {
		return DeltaResult{}, ErrDegenerateBaseline
	}

	percent := (sample - t.reference) / t.reference * 100
	return DeltaResult{Percent: percent, Direction: classify(percent)}, nil
}

// MaybeRebase moves the reference to sample when the move is strictly larger than thresholdPct.
// An exact-threshold move leaves the reference unchanged.
func (t *Tracker) MaybeRebase(sample float64, result DeltaResult, thresholdPct float64) bool {
	if math.Abs(result.Percent) > thresholdPct {
		t.reference = sample
		return true
	}
	return false
}

// Reseed replaces a zero reference with a non-zero sample. It reports whether the reference changed.
func (t *Tracker) Reseed(sample float64) bool {
	if !t.initialized || t.reference != 0 || sample == 0 {
		return false
	}
	t.reference = sample
	return true
}

func classify(percent float64) Direction {
	switch {
	case percent > 0:
		return Increase
	case percent < 0:
		return Decrease
	default:
		return Unchanged
	}
}
