// Package dsp holds the per-sample building blocks of a voice: resampling,
// the amplitude envelope, the state-variable filter and pan laws.
package dsp

import "math"

// Hermite interpolates between y1 and y2 at fraction t in [0,1) using the
// 4-point, third-order Catmull-Rom form.
func Hermite(y0, y1, y2, y3, t float64) float64 {
	c0 := y1
	c1 := 0.5 * (y2 - y0)
	c2 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	c3 := 0.5*(y3-y0) + 1.5*(y1-y2)
	return ((c3*t+c2)*t+c1)*t + c0
}

// PlaybackRate returns the cursor increment per output sample for a note
// played from a sample recorded at rootKey.
func PlaybackRate(note, rootKey int, tuneCents, sourceRate, outputRate float64) float64 {
	if sourceRate <= 0 || outputRate <= 0 {
		return 0
	}
	semis := float64(note-rootKey) + tuneCents/100
	return math.Exp2(semis/12) * sourceRate / outputRate
}

// DBToLinear converts decibels to an amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// FastTanh is a rational tanh approximation, clamped to [-1,1] outside |x|>3.
func FastTanh(x float64) float64 {
	if x > 3 {
		return 1
	}
	if x < -3 {
		return -1
	}
	x2 := x * x
	return x * (27 + x2) / (27 + 9*x2)
}

const denormalThreshold = 1e-24

// FlushDenormal zeroes values small enough to fall into subnormal range
// after a few more multiplications.
func FlushDenormal(x float64) float64 {
	if x > -denormalThreshold && x < denormalThreshold {
		return 0
	}
	return x
}

// EqualPower returns constant-power left/right gains for pan in [-1,1].
func EqualPower(pan float64) (float64, float64) {
	pan = clamp(pan, -1, 1)
	angle := (pan + 1) * 0.5 * (math.Pi / 2)
	return math.Cos(angle), math.Sin(angle)
}

// Balance returns stereo balance gains for pan in [-1,1]. The centre keeps
// both channels at unity; moving right attenuates the left channel linearly.
func Balance(pan float64) (float64, float64) {
	pan = clamp(pan, -1, 1)
	return math.Min(1, 1-pan), math.Min(1, 1+pan)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
