package anim

// Easing maps linear progress in [0,1] to eased progress. Implementations
// must return 0 at 0 and 1 at 1.
type Easing func(float64) float64

func Linear(t float64) float64 { return t }

// SmoothStep is the cubic Hermite ease-in-out curve.
func SmoothStep(t float64) float64 { return t * t * (3 - 2*t) }

func EaseOutQuad(t float64) float64 { return t * (2 - t) }

func EaseInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return -1 + (4-2*t)*t
}

// EasingByName resolves the names used in config and scripts.
func EasingByName(name string) (Easing, bool) {
	switch name {
	case "linear":
		return Linear, true
	case "smoothstep", "":
		return SmoothStep, true
	case "ease_out_quad":
		return EaseOutQuad, true
	case "ease_in_out_quad":
		return EaseInOutQuad, true
	}
	return nil, false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
