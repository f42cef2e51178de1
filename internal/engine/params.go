package engine

import "github.com/cbegin/samplo/internal/dsp"

// Params controls the sampler engine.
type Params struct {
	AttackSec    float64
	DecaySec     float64
	SustainLvl   float64
	ReleaseSec   float64
	Filter       dsp.FilterMode
	Cutoff       float64 // Hz
	Resonance    float64 // filter Q, 0.1..4
	MasterGain   float64
	Pan          float64 // -1..1
	TuneCents    float64 // -100..100
	MaxVoices    int     // 1..64
	VelocitySens float64 // 0..1

	// Vibrato is an engine-wide pitch LFO applied to every voice.
	VibratoCents float64 // depth, 0..100
	VibratoRate  float64 // Hz, 0..20
	VibratoWave  dsp.Waveform
}

// DefaultParams returns the defaults of a freshly loaded sampler.
func DefaultParams() Params {
	return Params{
		AttackSec:    0.005,
		DecaySec:     0.1,
		SustainLvl:   1.0,
		ReleaseSec:   0.2,
		Filter:       dsp.FilterOff,
		Cutoff:       8000,
		Resonance:    0.5,
		MasterGain:   0.8,
		Pan:          0,
		TuneCents:    0,
		MaxVoices:    32,
		VelocitySens: 0.7,
	}
}

// Clamped returns p with every field forced into its documented range.
func (p Params) Clamped() Params {
	p.AttackSec = clamp(p.AttackSec, 0, 5)
	p.DecaySec = clamp(p.DecaySec, 0, 5)
	p.SustainLvl = clamp(p.SustainLvl, 0, 1)
	p.ReleaseSec = clamp(p.ReleaseSec, 0, 10)
	if p.Filter < dsp.FilterOff || p.Filter > dsp.BandPass {
		p.Filter = dsp.FilterOff
	}
	p.Cutoff = clamp(p.Cutoff, 20, 20000)
	p.Resonance = clamp(p.Resonance, 0.1, 4)
	p.MasterGain = clamp(p.MasterGain, 0, 2)
	p.Pan = clamp(p.Pan, -1, 1)
	p.TuneCents = clamp(p.TuneCents, -100, 100)
	if p.MaxVoices < 1 {
		p.MaxVoices = 1
	}
	if p.MaxVoices > 64 {
		p.MaxVoices = 64
	}
	p.VelocitySens = clamp(p.VelocitySens, 0, 1)
	p.VibratoCents = clamp(p.VibratoCents, 0, 100)
	p.VibratoRate = clamp(p.VibratoRate, 0, 20)
	if p.VibratoWave < dsp.WaveSine || p.VibratoWave > dsp.WaveSaw {
		p.VibratoWave = dsp.WaveSine
	}
	return p
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
