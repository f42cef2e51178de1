package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHermitePassesThroughKnots(t *testing.T) {
	assert.InDelta(t, 0.3, Hermite(0.1, 0.3, 0.7, 0.2, 0), 1e-12)
	assert.InDelta(t, 0.7, Hermite(0.1, 0.3, 0.7, 0.2, 1), 1e-12)
	// A straight line is reproduced exactly.
	assert.InDelta(t, 1.5, Hermite(0, 1, 2, 3, 0.5), 1e-12)
}

func TestPlaybackRate(t *testing.T) {
	assert.InDelta(t, 1.0, PlaybackRate(60, 60, 0, 48000, 48000), 1e-12)
	assert.InDelta(t, 2.0, PlaybackRate(72, 60, 0, 48000, 48000), 1e-12)
	assert.InDelta(t, 0.5, PlaybackRate(60, 60, 0, 24000, 48000), 1e-12)
	assert.InDelta(t, math.Exp2(1.0/12), PlaybackRate(60, 60, 100, 44100, 44100), 1e-12)
	assert.Zero(t, PlaybackRate(60, 60, 0, 0, 48000))
}

func TestPanLaws(t *testing.T) {
	l, r := EqualPower(0)
	assert.InDelta(t, math.Sqrt2/2, l, 1e-12)
	assert.InDelta(t, math.Sqrt2/2, r, 1e-12)
	l, r = EqualPower(-1)
	assert.InDelta(t, 1, l, 1e-12)
	assert.InDelta(t, 0, r, 1e-12)

	l, r = Balance(0)
	assert.Equal(t, 1.0, l)
	assert.Equal(t, 1.0, r)
	l, r = Balance(0.5)
	assert.Equal(t, 0.5, l)
	assert.Equal(t, 1.0, r)
}

func TestFastTanhBounded(t *testing.T) {
	for x := -10.0; x <= 10; x += 0.01 {
		y := FastTanh(x)
		require.LessOrEqual(t, math.Abs(y), 1.0)
		require.InDelta(t, math.Tanh(x), y, 0.03)
	}
}

func TestADSRReachesSustainAfterAttackAndDecay(t *testing.T) {
	const sr = 1000.0
	env := NewADSR(sr, 0.010, 0.020, 0.5, 0.040)
	env.NoteOn()

	for i := 0; i < 10; i++ {
		env.Next()
	}
	assert.Equal(t, 1.0, env.Level())
	assert.Equal(t, StageDecay, env.Stage())

	for i := 0; i < 19; i++ {
		env.Next()
	}
	assert.Equal(t, StageDecay, env.Stage())
	assert.Greater(t, env.Level(), 0.5)

	env.Next()
	assert.Equal(t, StageSustain, env.Stage())
	assert.Equal(t, 0.5, env.Level())

	for i := 0; i < 100; i++ {
		require.Equal(t, 0.5, env.Next())
	}

	env.NoteOff()
	for i := 0; i < 39; i++ {
		env.Next()
	}
	assert.True(t, env.Active())
	env.Next()
	assert.False(t, env.Active())
	assert.Zero(t, env.Level())
}

func TestADSRRetriggerStartsFromRunningLevel(t *testing.T) {
	env := NewADSR(1000, 0.010, 0.010, 1, 0.010)
	env.NoteOn()
	for i := 0; i < 5; i++ {
		env.Next()
	}
	mid := env.Level()
	require.InDelta(t, 0.5, mid, 1e-12)

	env.NoteOn()
	first := env.Next()
	assert.Greater(t, first, mid)
	assert.Equal(t, StageAttack, env.Stage())
}

func TestADSRZeroTimes(t *testing.T) {
	env := NewADSR(48000, 0, 0, 0.25, 0)
	env.NoteOn()
	assert.Equal(t, 1.0, env.Next())
	assert.Equal(t, 0.25, env.Next())
	env.NoteOff()
	env.Next()
	assert.Equal(t, StageIdle, env.Stage())
}

func TestSVFImpulseBoundedAndDecaying(t *testing.T) {
	for _, mode := range []FilterMode{LowPass, HighPass, BandPass} {
		for _, q := range []float64{0.1, 0.707, 4} {
			f := NewSVF(mode, 2000, q, 48000)
			ir := ImpulseResponse(f, 12000)
			for i, y := range ir {
				require.False(t, math.IsNaN(y) || math.IsInf(y, 0), "%v q=%v sample %d", mode, q, i)
				require.Less(t, math.Abs(y), 10.0)
			}
			var head, tail float64
			for _, y := range ir[:1000] {
				head += math.Abs(y)
			}
			for _, y := range ir[len(ir)-1000:] {
				tail += math.Abs(y)
			}
			assert.Less(t, tail, head*1e-3, "%v q=%v", mode, q)
		}
	}
}

func TestSVFMatchesAnalyticResponse(t *testing.T) {
	for _, mode := range []FilterMode{LowPass, HighPass, BandPass} {
		f := NewSVF(mode, 3000, 0.707, 48000)
		bins := MagnitudeResponse(ImpulseResponse(f, 16384))
		require.NotEmpty(t, bins)
		for i, b := range bins {
			if i%64 != 0 || b.Freq > 0.45 {
				continue
			}
			want := AnalyticResponse(f, b.Freq)
			assert.InDelta(t, want, b.Magnitude, 1e-3, "%v at %.4f", mode, b.Freq)
		}
	}
}

func TestSVFOffBypasses(t *testing.T) {
	f := NewSVF(FilterOff, 1000, 1, 48000)
	var st SVFState
	assert.Equal(t, 0.42, f.Process(&st, 0.42))
}

func TestFlushDenormal(t *testing.T) {
	assert.Zero(t, FlushDenormal(1e-30))
	assert.Equal(t, 1e-3, FlushDenormal(1e-3))
}
