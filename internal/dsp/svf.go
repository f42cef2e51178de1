package dsp

import "math"

// FilterMode selects the SVF output tap.
type FilterMode int

const (
	FilterOff FilterMode = iota
	LowPass
	HighPass
	BandPass
)

func (m FilterMode) String() string {
	switch m {
	case LowPass:
		return "lowpass"
	case HighPass:
		return "highpass"
	case BandPass:
		return "bandpass"
	default:
		return "off"
	}
}

// SVF holds the coefficients of a zero-delay-feedback state-variable
// filter (trapezoidal integration). One SVF can drive many SVFState values.
type SVF struct {
	mode FilterMode
	g    float64
	r    float64 // damping, 1/Q
	h    float64
}

// SVFState is the per-channel integrator memory.
type SVFState struct {
	ic1, ic2 float64
}

// Reset clears the integrators.
func (s *SVFState) Reset() { *s = SVFState{} }

// NewSVF computes coefficients for cutoff Hz and quality factor q.
func NewSVF(mode FilterMode, cutoff, q, sampleRate float64) SVF {
	var f SVF
	f.Set(mode, cutoff, q, sampleRate)
	return f
}

// Set recomputes the coefficients. Cutoff is kept below Nyquist.
func (f *SVF) Set(mode FilterMode, cutoff, q, sampleRate float64) {
	f.mode = mode
	if sampleRate <= 0 {
		f.mode = FilterOff
		return
	}
	norm := clamp(cutoff/sampleRate, 1e-5, 0.49)
	f.g = math.Tan(math.Pi * norm)
	f.r = clamp(1/math.Max(q, 0.05), 0.02, 10)
	f.h = 1 / (1 + f.g*(f.g+f.r))
}

// Mode returns the selected tap.
func (f SVF) Mode() FilterMode { return f.mode }

// G returns the prewarped integrator gain.
func (f SVF) G() float64 { return f.g }

// Damping returns 1/Q as clamped by Set.
func (f SVF) Damping() float64 { return f.r }

// Process filters one sample through st.
func (f *SVF) Process(st *SVFState, x float64) float64 {
	if f.mode == FilterOff {
		return x
	}
	v1 := f.h * (st.ic1 + f.g*(x-st.ic2))
	v2 := st.ic2 + f.g*v1
	st.ic1 = FlushDenormal(2*v1 - st.ic1)
	st.ic2 = FlushDenormal(2*v2 - st.ic2)
	switch f.mode {
	case HighPass:
		return x - f.r*v1 - v2
	case BandPass:
		return v1
	default:
		return v2
	}
}
