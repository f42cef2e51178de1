package dsp

import (
	"math"
	"testing"
)

func TestLFOTriangleShape(t *testing.T) {
	var l LFO
	l.Set(1, 1, WaveTriangle)
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = l.Advance(1, 100)
	}
	for _, c := range []struct {
		at   int
		want float64
	}{{0, -1}, {25, 0}, {50, 1}, {75, 0}} {
		if math.Abs(samples[c.at]-c.want) > 0.05 {
			t.Errorf("triangle[%d] = %f, want %f", c.at, samples[c.at], c.want)
		}
	}
}

func TestLFOSquareAndSaw(t *testing.T) {
	var l LFO
	l.Set(2, 1, WaveSquare)
	if v := l.Advance(50, 100); v != 2 {
		t.Fatalf("square first half = %f, want 2", v)
	}
	if v := l.Value(); v != -2 {
		t.Fatalf("square second half = %f, want -2", v)
	}

	l.Set(1, 1, WaveSaw)
	l.Reset()
	if v := l.Value(); v != 1 {
		t.Fatalf("saw at phase 0 = %f, want 1", v)
	}
}

func TestLFOSineWrapsPhase(t *testing.T) {
	var l LFO
	l.Set(0.5, 5, WaveSine)
	peak := 0.0
	for range 48000 {
		peak = math.Max(peak, math.Abs(l.Advance(1, 48000)))
	}
	if math.Abs(peak-0.5) > 1e-3 {
		t.Fatalf("sine peak = %f, want 0.5", peak)
	}
	if l.phase < 0 || l.phase >= 1 {
		t.Fatalf("phase %f escaped [0,1)", l.phase)
	}
}

func TestLFOInactive(t *testing.T) {
	var l LFO
	if l.Active() || l.Advance(100, 48000) != 0 {
		t.Fatal("zero LFO should be silent")
	}
	l.Set(1, 0, WaveSine)
	if l.Active() {
		t.Fatal("zero rate should be inactive")
	}
	l.Set(1, 1, Waveform(42))
	if l.wave != WaveSine {
		t.Fatalf("unknown waveform kept: %d", l.wave)
	}
}
