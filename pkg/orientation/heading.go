package orientation

import (
	"math"

	"fieldnav/pkg/geo"
)

// HeadingState is the accumulated compass heading.
// Target and Current are unbounded; they are only wrapped to [0, 360) by Display.
type HeadingState struct {
	Target  float64 `json:"target"`
	Current float64 `json:"current"`
}

// Absorb folds a raw reading into Target along the shortest arc and returns the applied delta,
// always within [-180, 180].
func (h *HeadingState) Absorb(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	delta := geo.NormalizeAngle(geo.Wrap360(raw) - geo.Wrap360(h.Target))
	h.Target += delta
	return delta
}

// Seed places both Target and Current on raw without animating.
func (h *HeadingState) Seed(raw float64) {
	raw = geo.Wrap360(raw)
	h.Target = raw
	h.Current = raw
}

// Step advances Current towards Target by gain k. Once the remaining error is below eps,
// Current snaps to Target and settled is true.
func (h *HeadingState) Step(k, eps float64) (settled bool) {
	return approach(&h.Current, h.Target, k, eps)
}

// Display returns Current wrapped to [0, 360).
func (h *HeadingState) Display() float64 {
	return geo.Wrap360(h.Current)
}

// Error returns the remaining angular distance between Target and Current.
func (h *HeadingState) Error() float64 {
	return math.Abs(h.Target - h.Current)
}

// Axis is a linear damped value used for pitch and roll.
type Axis struct {
	Target  float64 `json:"target"`
	Current float64 `json:"current"`
}

// Set replaces the target. Non-finite values are ignored.
func (a *Axis) Set(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	a.Target = v
}

// Step advances Current towards Target, see HeadingState.Step.
func (a *Axis) Step(k, eps float64) (settled bool) {
	return approach(&a.Current, a.Target, k, eps)
}

// Display returns Current clamped to ±90°.
func (a *Axis) Display() float64 {
	return math.Max(-90, math.Min(90, a.Current))
}

func approach(current *float64, target, k, eps float64) bool {
	diff := target - *current
	if math.Abs(diff) < eps {
		*current = target
		return true
	}
	*current += diff * k
	return false
}
