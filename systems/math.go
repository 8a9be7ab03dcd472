package systems

import "math"

// clamp01f64 clamps a float64 value to the [0, 1] range.
func clamp01f64(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampF64 clamps v between minVal and maxVal. NaN maps to minVal.
func ClampF64(v, minVal, maxVal float64) float64 {
	if v < minVal || math.IsNaN(v) {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// ClampInt8 rounds v and saturates it to the int8 range.
func ClampInt8(v float64) int8 {
	r := math.Round(v)
	if r > math.MaxInt8 {
		return math.MaxInt8
	}
	if r < math.MinInt8 || math.IsNaN(r) {
		return math.MinInt8
	}
	return int8(r)
}

// Lerp interpolates between a and b by t.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Relax moves v toward target by the exponential factor for rate over dt.
// Frame-rate independent: two steps of dt equal one step of 2*dt.
func Relax(v, target, rate, dt float64) float64 {
	if rate <= 0 {
		return v
	}
	k := 1 - math.Exp(-rate*dt)
	return v + (target-v)*k
}
