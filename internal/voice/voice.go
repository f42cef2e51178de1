// Package voice renders sounding regions: one Voice per pool slot running
// the resample, loop, envelope, filter and pan chain sample by sample.
package voice

import (
	"github.com/cbegin/samplo/internal/dsp"
	"github.com/cbegin/samplo/internal/instrument"
)

// Settings are the instrument-wide defaults a voice starts from. Region
// overrides replace the envelope and filter values.
type Settings struct {
	SampleRate   float64
	Attack       float64 // seconds
	Decay        float64
	Sustain      float64 // level 0..1
	Release      float64
	Filter       dsp.FilterMode
	Cutoff       float64 // Hz
	Resonance    float64 // Q
	TuneCents    float64
	VelocitySens float64 // 0..1
}

// VelocityGain maps a MIDI velocity to amplitude: a linear curve whose
// floor rises as sensitivity falls.
func VelocityGain(velocity uint8, sens float64) float64 {
	sens = min(max(sens, 0), 1)
	return 1 - sens + sens*float64(velocity)/127
}

// Voice is one sounding instance of a region.
type Voice struct {
	active   bool
	seq      uint64
	noteID   int32
	note     uint8
	velocity uint8
	released bool

	region *instrument.Region
	sample *instrument.Sample
	frames int
	pos    float64
	rate   float64

	loopStart int
	loopEnd   int
	loopLen   float64
	wrapped   bool // cursor has wrapped at least once

	gain       float64
	panL, panR float64

	env    dsp.ADSR
	filter dsp.SVF
	fl, fr dsp.SVFState
}

func (v *Voice) Active() bool               { return v.active }
func (v *Voice) Seq() uint64                { return v.seq }
func (v *Voice) Note() uint8                { return v.note }
func (v *Voice) NoteID() int32              { return v.noteID }
func (v *Voice) Released() bool             { return v.released }
func (v *Voice) Region() *instrument.Region { return v.region }
func (v *Voice) Position() float64          { return v.pos }
func (v *Voice) Rate() float64              { return v.rate }
func (v *Voice) Stage() dsp.Stage           { return v.env.Stage() }
func (v *Voice) Level() float64             { return v.env.Level() }

func (v *Voice) start(r *instrument.Region, note, velocity uint8, seq uint64, noteID int32, s Settings) {
	smp := r.Data
	*v = Voice{
		active:   true,
		seq:      seq,
		noteID:   noteID,
		note:     note,
		velocity: velocity,
		region:   r,
		sample:   smp,
		frames:   r.Frames(),
		pos:      float64(r.Offset),
		rate: dsp.PlaybackRate(int(note), int(r.PitchKeycenter), r.Tune+s.TuneCents,
			float64(smp.Rate), s.SampleRate),
		gain: dsp.DBToLinear(r.Volume) * VelocityGain(velocity, s.VelocitySens),
	}
	if v.pos >= float64(v.frames) {
		v.pos = 0
	}
	if r.Looped() {
		v.loopStart, v.loopEnd = r.LoopStart, r.LoopEnd
		v.loopLen = float64(r.LoopEnd - r.LoopStart)
	}
	if smp.Channels == 2 {
		v.panL, v.panR = dsp.Balance(r.Pan)
	} else {
		v.panL, v.panR = dsp.EqualPower(r.Pan)
	}

	v.env = dsp.NewADSR(s.SampleRate,
		override(r.Attack, s.Attack),
		override(r.Decay, s.Decay),
		override(r.Sustain, s.Sustain),
		override(r.Release, s.Release))
	v.env.NoteOn()

	mode := s.Filter
	if r.Filter.OK {
		mode = dsp.FilterMode(r.Filter.V)
	}
	v.filter.Set(mode, override(r.Cutoff, s.Cutoff), override(r.Resonance, s.Resonance), s.SampleRate)
}

func override(o instrument.Optional, def float64) float64 {
	if o.OK {
		return o.V
	}
	return def
}

// release moves the voice into its release stage.
func (v *Voice) release() {
	if !v.active || v.released {
		return
	}
	v.released = true
	v.env.NoteOff()
}

func (v *Voice) stop() {
	v.active = false
	v.env.Finish()
}

// looping reports whether the cursor currently wraps.
func (v *Voice) looping() bool {
	if v.loopLen <= 0 {
		return false
	}
	return v.region.LoopMode == instrument.ContinuousLoop || !v.released
}

// index maps a frame index onto readable sample data, following the loop
// while it is active and clamping at the edges otherwise.
func (v *Voice) index(j int, wrap bool) int {
	if wrap && j >= v.loopEnd {
		j -= v.loopEnd - v.loopStart
	}
	if wrap && v.wrapped && j < v.loopStart {
		j += v.loopEnd - v.loopStart
	}
	if j < 0 {
		return 0
	}
	if j >= v.frames {
		return v.frames - 1
	}
	return j
}

// advance moves the cursor by one output sample, wrapping the loop.
// It reports false when a one-shot has run past its end.
func (v *Voice) advance(bend float64) bool {
	v.pos += v.rate * bend
	if v.looping() {
		for v.pos >= float64(v.loopEnd) {
			v.pos -= v.loopLen
			v.wrapped = true
		}
		return true
	}
	return v.pos < float64(v.frames)
}

// render adds up to len(l) samples into l and r. It returns false once the
// voice has finished.
func (v *Voice) render(l, r []float32, bend float64) bool {
	smp := v.sample
	stereo := smp.Channels == 2
	for n := range l {
		wrap := v.looping()
		i := int(v.pos)
		t := v.pos - float64(i)
		i0, i1 := v.index(i-1, wrap), v.index(i, wrap)
		i2, i3 := v.index(i+1, wrap), v.index(i+2, wrap)

		var xl, xr float64
		if stereo {
			d := smp.Data
			xl = dsp.Hermite(float64(d[2*i0]), float64(d[2*i1]), float64(d[2*i2]), float64(d[2*i3]), t)
			xr = dsp.Hermite(float64(d[2*i0+1]), float64(d[2*i1+1]), float64(d[2*i2+1]), float64(d[2*i3+1]), t)
		} else {
			d := smp.Data
			xl = dsp.Hermite(float64(d[i0]), float64(d[i1]), float64(d[i2]), float64(d[i3]), t)
			xr = xl
		}

		if !v.advance(bend) {
			v.env.NoteOff()
			v.env.Finish()
		}

		e := v.env.Next() * v.gain
		yl := v.filter.Process(&v.fl, xl*e)
		yr := yl
		if stereo {
			yr = v.filter.Process(&v.fr, xr*e)
		}
		l[n] += float32(yl * v.panL)
		r[n] += float32(yr * v.panR)

		if !v.env.Active() {
			v.active = false
			return false
		}
	}
	return true
}
