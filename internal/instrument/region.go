// Package instrument is the immutable, playable form of an instrument
// definition: its regions, bound sample data and round-robin cursors.
package instrument

import (
	"github.com/cbegin/samplo/internal/dsp"
	"github.com/cbegin/samplo/internal/opcode"
)

// LoopMode controls how a voice treats the loop region.
type LoopMode int

const (
	NoLoop LoopMode = iota
	// SustainLoop repeats while the key is held and plays through on release.
	SustainLoop
	// ContinuousLoop repeats until the envelope ends.
	ContinuousLoop
)

func (m LoopMode) String() string {
	switch m {
	case SustainLoop:
		return "loop_sustain"
	case ContinuousLoop:
		return "loop_continuous"
	default:
		return "no_loop"
	}
}

// Sample is decoded audio shared by every region that references it.
type Sample struct {
	Path     string
	Rate     int
	Channels int // 1 or 2
	Frames   int
	Data     []float32 // interleaved, Frames*Channels values in [-1,1]

	// Embedded loop in frames, LoopEnd == 0 when the file carries none.
	LoopStart int
	LoopEnd   int
}

// Frame returns the channel values of frame i, clamped to the sample edges.
func (s *Sample) Frame(i int) (float64, float64) {
	if s.Frames == 0 {
		return 0, 0
	}
	if i < 0 {
		i = 0
	} else if i >= s.Frames {
		i = s.Frames - 1
	}
	if s.Channels == 2 {
		return float64(s.Data[2*i]), float64(s.Data[2*i+1])
	}
	v := float64(s.Data[i])
	return v, v
}

// Optional is an override that may be absent.
type Optional struct {
	V  float64
	OK bool
}

// Some returns a present Optional.
func Some(v float64) Optional { return Optional{V: v, OK: true} }

// Region maps a note and velocity range to a sample and its playback settings.
type Region struct {
	Sample string
	Offset int
	End    int // last frame played, 0 plays to the end

	LoKey, HiKey   uint8
	PitchKeycenter uint8
	LoVel, HiVel   uint8

	LoopMode  LoopMode
	LoopStart int
	LoopEnd   int

	Tune   float64 // cents
	Volume float64 // dB
	Pan    float64 // -1..1

	Group       int
	SeqLength   int
	SeqPosition int // 1-based

	Attack, Decay, Sustain, Release Optional
	Cutoff, Resonance               Optional
	Filter                          Optional // dsp.FilterMode

	Data *Sample

	cursor         int // index into Instrument.cursors, -1 when none
	alwaysEligible bool
}

// DefaultRegion returns a full-range region for path.
func DefaultRegion(path string) Region {
	return Region{
		Sample:         path,
		HiKey:          127,
		HiVel:          127,
		PitchKeycenter: 60,
		SeqLength:      1,
		SeqPosition:    1,
		cursor:         -1,
	}
}

// FromOpcodes resolves a region from a merged opcode set.
func FromOpcodes(s opcode.Set) Region {
	r := DefaultRegion(s.Resolve(opcode.Sample).String())
	r.Offset = s.Resolve(opcode.Offset).Int()
	r.End = s.Resolve(opcode.End).Int()
	r.LoKey = uint8(s.Resolve(opcode.LoKey).Int())
	r.HiKey = uint8(s.Resolve(opcode.HiKey).Int())
	r.PitchKeycenter = uint8(s.Resolve(opcode.PitchKeycenter).Int())
	r.LoVel = uint8(s.Resolve(opcode.LoVel).Int())
	r.HiVel = uint8(s.Resolve(opcode.HiVel).Int())
	switch s.Resolve(opcode.LoopMode).Int() {
	case opcode.LoopSustain:
		r.LoopMode = SustainLoop
	case opcode.LoopContinuous:
		r.LoopMode = ContinuousLoop
	}
	r.LoopStart = s.Resolve(opcode.LoopStart).Int()
	r.LoopEnd = s.Resolve(opcode.LoopEnd).Int()
	r.Tune = s.Resolve(opcode.Tune).Float()
	r.Volume = s.Resolve(opcode.Volume).Float()
	r.Pan = s.Resolve(opcode.Pan).Float() / 100
	r.Group = s.Resolve(opcode.Group).Int()
	r.SeqLength = s.Resolve(opcode.SeqLength).Int()
	r.SeqPosition = s.Resolve(opcode.SeqPosition).Int()

	seconds := func(n opcode.Name) Optional {
		if v, ok := s.Get(n); ok {
			return Some(v.Float())
		}
		return Optional{}
	}
	r.Attack = seconds(opcode.AmpegAttack)
	r.Decay = seconds(opcode.AmpegDecay)
	r.Release = seconds(opcode.AmpegRelease)
	if v, ok := s.Get(opcode.AmpegSustain); ok {
		r.Sustain = Some(v.Float() / 100)
	}
	if v, ok := s.Get(opcode.Cutoff); ok && v.Float() > 0 {
		r.Cutoff = Some(v.Float())
		mode := dsp.LowPass
		if ft, ok := s.Get(opcode.FilType); ok {
			switch ft.Int() {
			case opcode.FilterHighPass:
				mode = dsp.HighPass
			case opcode.FilterBandPass:
				mode = dsp.BandPass
			}
		}
		r.Filter = Some(float64(mode))
	}
	if v, ok := s.Get(opcode.Resonance); ok {
		r.Resonance = Some(ResonanceToQ(v.Float()))
	}
	return r
}

// ResonanceToQ maps a resonance peak in dB onto a filter Q, where 0 dB is
// the Butterworth response.
func ResonanceToQ(db float64) float64 {
	return dsp.DBToLinear(db) / 1.4142135623730951
}

// Matches reports whether the region covers note and velocity.
func (r *Region) Matches(note, velocity uint8) bool {
	return r.LoKey <= note && note <= r.HiKey && r.LoVel <= velocity && velocity <= r.HiVel
}

// Frames returns the playable length, honoring End.
func (r *Region) Frames() int {
	if r.Data == nil {
		return 0
	}
	n := r.Data.Frames
	if r.End > 0 && r.End+1 < n {
		n = r.End + 1
	}
	return n
}

// Looped reports whether the region has a usable loop.
func (r *Region) Looped() bool {
	return r.LoopMode != NoLoop && r.LoopEnd > r.LoopStart
}

// RoundRobin reports whether the region participates in a cohort.
func (r *Region) RoundRobin() bool {
	return r.cursor >= 0 && !r.alwaysEligible
}
