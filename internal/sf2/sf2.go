// Package sf2 imports SoundFont 2 instruments as sampler regions with
// their sample data already bound.
package sf2

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/cbegin/samplo/internal/instrument"
)

// Format is the name used in parse errors.
const Format = "sf2"

// Result is one imported instrument.
type Result struct {
	Name    string
	Regions []instrument.Region
	// Instruments lists every instrument name in the bank.
	Instruments []string
}

// zone is the subset of a SoundFont instrument zone the sampler plays.
type zone struct {
	sampleName string
	rate       int
	start, end int // absolute indices into the bank's wave data, end exclusive
	loopStart  int
	loopEnd    int
	loopMode   instrument.LoopMode

	loKey, hiKey uint8
	loVel, hiVel uint8
	rootKey      int
	tuneCents    float64
	attenuation  float64 // dB
	pan          float64 // -50..50

	attack, decay, release float64 // seconds
	sustainDB              float64 // attenuation at sustain
}

// Import reads a SoundFont and converts the instrument whose name matches
// name (case-insensitive), or the first instrument when name is empty.
func Import(r io.Reader, name string) (*Result, error) {
	sf, err := meltysynth.NewSoundFont(r)
	if err != nil {
		return nil, &instrument.ParseError{Format: Format, Err: fmt.Errorf("%w: %v", instrument.ErrMalformed, err)}
	}
	if len(sf.Instruments) == 0 {
		return nil, &instrument.ParseError{Format: Format, Err: instrument.ErrEmpty}
	}
	res := &Result{}
	var chosen *meltysynth.Instrument
	for _, inst := range sf.Instruments {
		res.Instruments = append(res.Instruments, inst.Name)
		if chosen == nil && (name == "" || strings.EqualFold(inst.Name, name)) {
			chosen = inst
		}
	}
	if chosen == nil {
		return nil, &instrument.ParseError{Format: Format, Err: fmt.Errorf("%w: instrument %q not found", instrument.ErrEmpty, name)}
	}
	zones := make([]zone, 0, len(chosen.Regions))
	for _, reg := range chosen.Regions {
		zones = append(zones, zoneFrom(reg))
	}
	res.Name = chosen.Name
	res.Regions = regions(chosen.Name, zones, sf.WaveData)
	if len(res.Regions) == 0 {
		return nil, &instrument.ParseError{Format: Format, Err: instrument.ErrEmpty}
	}
	return res, nil
}

func zoneFrom(reg *meltysynth.InstrumentRegion) zone {
	z := zone{
		sampleName:  reg.Sample.Name,
		rate:        int(reg.Sample.SampleRate),
		start:       int(reg.GetSampleStart()),
		end:         int(reg.GetSampleEnd()),
		loopStart:   int(reg.GetSampleStartLoop()),
		loopEnd:     int(reg.GetSampleEndLoop()),
		loKey:       clampByte(int(reg.GetKeyRangeStart())),
		hiKey:       clampByte(int(reg.GetKeyRangeEnd())),
		loVel:       clampByte(int(reg.GetVelocityRangeStart())),
		hiVel:       clampByte(int(reg.GetVelocityRangeEnd())),
		rootKey:     int(reg.GetRootKey()),
		tuneCents:   float64(100*int(reg.GetCoarseTune()) + int(reg.GetFineTune())),
		attenuation: float64(reg.GetInitialAttenuation()),
		pan:         float64(reg.GetPan()),
		attack:      float64(reg.GetAttackVolumeEnvelope()),
		decay:       float64(reg.GetDecayVolumeEnvelope()),
		release:     float64(reg.GetReleaseVolumeEnvelope()),
		sustainDB:   float64(reg.GetSustainVolumeEnvelope()),
	}
	switch reg.GetSampleModes() {
	case meltysynth.Continuous:
		z.loopMode = instrument.ContinuousLoop
	case meltysynth.LoopUntilNoteOff:
		z.loopMode = instrument.SustainLoop
	}
	return z
}

// regions slices each zone's span out of wave and converts it. Zones that
// share a span share one Sample.
func regions(bank string, zones []zone, wave []int16) []instrument.Region {
	type span struct{ start, end int }
	samples := make(map[span]*instrument.Sample)
	out := make([]instrument.Region, 0, len(zones))
	for _, z := range zones {
		if z.start < 0 || z.end > len(wave) || z.end <= z.start {
			continue
		}
		key := span{z.start, z.end}
		s, ok := samples[key]
		if !ok {
			data := make([]float32, z.end-z.start)
			for i, v := range wave[z.start:z.end] {
				data[i] = float32(v) / 32768
			}
			s = &instrument.Sample{
				Path:     fmt.Sprintf("%s#%s", bank, z.sampleName),
				Rate:     z.rate,
				Channels: 1,
				Frames:   len(data),
				Data:     data,
			}
			samples[key] = s
		}

		r := instrument.DefaultRegion(s.Path)
		r.Data = s
		r.LoKey, r.HiKey = z.loKey, z.hiKey
		r.LoVel, r.HiVel = z.loVel, z.hiVel
		r.PitchKeycenter = clampByte(z.rootKey)
		r.Tune = z.tuneCents
		r.Volume = -z.attenuation
		r.Pan = math.Max(-1, math.Min(1, z.pan/50))
		if z.loopMode != instrument.NoLoop {
			ls, le := z.loopStart-z.start, z.loopEnd-z.start
			if ls >= 0 && le > ls && le <= s.Frames {
				r.LoopMode = z.loopMode
				r.LoopStart, r.LoopEnd = ls, le
			}
		}
		r.Attack = instrument.Some(z.attack)
		r.Decay = instrument.Some(z.decay)
		r.Release = instrument.Some(z.release)
		r.Sustain = instrument.Some(math.Pow(10, -z.sustainDB/20))
		out = append(out, r)
	}
	return out
}

func clampByte(v int) uint8 {
	return uint8(min(max(v, 0), 127))
}
