package effects

import (
	"math"
	"sync/atomic"
)

// Bands of the master equalizer.
const (
	BandLow = iota
	BandLowMid
	BandMid
	BandHighMid
	BandHigh
	NumBands
)

// EQ5Band is a five-band master equalizer split at 200 Hz, 800 Hz, 2.5 kHz
// and 8 kHz. Gains are float32 bit patterns so the control path can change
// them while the audio goroutine reads.
type EQ5Band struct {
	gains  [NumBands]atomic.Uint32
	alphas [NumBands - 1]float32
	lpL    [NumBands - 1]float32
	lpR    [NumBands - 1]float32
}

var crossovers = [NumBands - 1]float64{200, 800, 2500, 8000}

// Crossover returns the upper edge of band in Hz, or 0 for the top band.
func Crossover(band int) float64 {
	if band < 0 || band >= len(crossovers) {
		return 0
	}
	return crossovers[band]
}

// NewEQ5Band creates an equalizer with every band at unity.
func NewEQ5Band(sampleRate int) *EQ5Band {
	eq := &EQ5Band{}
	dt := 1.0 / float64(sampleRate)
	for i, freq := range crossovers {
		// Crossovers above Nyquist collapse to a pass-through split.
		rc := 1.0 / (2.0 * math.Pi * min(freq, 0.45*float64(sampleRate)))
		eq.alphas[i] = float32(dt / (rc + dt))
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float32bits(1))
	}
	return eq
}

// SetGain sets a linear band gain. 1 is unity.
func (eq *EQ5Band) SetGain(band int, gain float32) {
	if band >= 0 && band < NumBands {
		eq.gains[band].Store(math.Float32bits(max(gain, 0)))
	}
}

// SetGainDB sets a band gain in decibels.
func (eq *EQ5Band) SetGainDB(band int, db float64) {
	eq.SetGain(band, float32(math.Pow(10, db/20)))
}

// Gain returns the linear gain of band.
func (eq *EQ5Band) Gain(band int) float32 {
	if band >= 0 && band < NumBands {
		return math.Float32frombits(eq.gains[band].Load())
	}
	return 1
}

// Flat reports whether every band is at unity.
func (eq *EQ5Band) Flat() bool {
	for i := range eq.gains {
		if math.Float32frombits(eq.gains[i].Load()) != 1 {
			return false
		}
	}
	return true
}

func (eq *EQ5Band) Process(l, r float32) (float32, float32) {
	// Each one-pole lowpass peels off the band below its crossover; the
	// remainder is the top band. The bands sum back to the input.
	var outL, outR float32
	remL, remR := l, r
	for i := range eq.alphas {
		eq.lpL[i] += eq.alphas[i] * (remL - eq.lpL[i])
		eq.lpR[i] += eq.alphas[i] * (remR - eq.lpR[i])
		g := math.Float32frombits(eq.gains[i].Load())
		outL += eq.lpL[i] * g
		outR += eq.lpR[i] * g
		remL -= eq.lpL[i]
		remR -= eq.lpR[i]
	}
	g := math.Float32frombits(eq.gains[BandHigh].Load())
	return outL + remL*g, outR + remR*g
}

func (eq *EQ5Band) Reset() {
	clear(eq.lpL[:])
	clear(eq.lpR[:])
}
