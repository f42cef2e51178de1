package dsp

import "math"

// Waveform selects the shape of an LFO.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveTriangle
	WaveSquare
	WaveSaw
)

// LFO is a low-frequency oscillator shared by every voice of an engine.
// The output lies in [-depth, +depth].
type LFO struct {
	depth float64
	rate  float64 // Hz
	wave  Waveform
	phase float64 // [0, 1)
}

// Set configures the oscillator without resetting its phase.
func (l *LFO) Set(depth, rateHz float64, wave Waveform) {
	if wave < WaveSine || wave > WaveSaw {
		wave = WaveSine
	}
	l.depth, l.rate, l.wave = depth, rateHz, wave
}

// Active reports whether the LFO produces any modulation.
func (l *LFO) Active() bool { return l.depth != 0 && l.rate > 0 }

// Reset zeros the phase.
func (l *LFO) Reset() { l.phase = 0 }

// Value returns the output at the current phase.
func (l *LFO) Value() float64 {
	if !l.Active() {
		return 0
	}
	p := l.phase
	var v float64
	switch l.wave {
	case WaveTriangle:
		if p < 0.5 {
			v = 4*p - 1
		} else {
			v = 3 - 4*p
		}
	case WaveSquare:
		v = 1
		if p >= 0.5 {
			v = -1
		}
	case WaveSaw:
		v = 1 - 2*p
	default:
		v = math.Sin(2 * math.Pi * p)
	}
	return v * l.depth
}

// Advance moves the phase forward by n samples and returns the value at
// the start of that span.
func (l *LFO) Advance(n int, sampleRate float64) float64 {
	v := l.Value()
	if l.rate > 0 && sampleRate > 0 {
		l.phase += l.rate * float64(n) / sampleRate
		l.phase -= math.Floor(l.phase)
	}
	return v
}
