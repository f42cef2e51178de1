package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ImpulseResponse runs a unit impulse through a fresh copy of f.
func ImpulseResponse(f SVF, n int) []float64 {
	out := make([]float64, n)
	var st SVFState
	for i := range out {
		x := 0.0
		if i == 0 {
			x = 1
		}
		out[i] = f.Process(&st, x)
	}
	return out
}

// Bin is one point of a magnitude response.
type Bin struct {
	Freq      float64 // cycles per sample, 0..0.5
	Magnitude float64
}

// MagnitudeResponse returns |FFT(ir)| for the non-negative frequency bins.
func MagnitudeResponse(ir []float64) []Bin {
	if len(ir) == 0 {
		return nil
	}
	fft := fourier.NewFFT(len(ir))
	coeffs := fft.Coefficients(nil, ir)
	bins := make([]Bin, len(coeffs))
	for i, c := range coeffs {
		bins[i] = Bin{Freq: fft.Freq(i), Magnitude: cmplx.Abs(c)}
	}
	return bins
}

// AnalyticResponse evaluates the ideal transfer function magnitude of f at
// freq cycles per sample. The trapezoidal SVF is the bilinear transform of
// the analog prototype, so s = j·tan(πfreq)/g.
func AnalyticResponse(f SVF, freq float64) float64 {
	s := complex(0, tanPi(freq)/f.g)
	den := s*s + complex(f.r, 0)*s + 1
	var num complex128
	switch f.mode {
	case HighPass:
		num = s * s
	case BandPass:
		num = s
	case LowPass:
		num = 1
	default:
		return 1
	}
	return cmplx.Abs(num / den)
}

func tanPi(freq float64) float64 {
	return math.Tan(math.Pi * freq)
}
