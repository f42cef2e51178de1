// Package opcode describes the instrument parameters recognized by the
// sampler, their value types, and their defaults.
package opcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the value type of an opcode.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindEnum
	KindPath
	KindNote // integer 0-127 or a note name such as c4 or f#3
)

// Name identifies a recognized opcode.
type Name int

const (
	Sample Name = iota
	Offset
	End
	LoKey
	HiKey
	PitchKeycenter
	LoVel
	HiVel
	LoopMode
	LoopStart
	LoopEnd
	Tune
	Volume
	Pan
	SeqLength
	SeqPosition
	Group
	DefaultPath
	AmpegAttack
	AmpegDecay
	AmpegSustain
	AmpegRelease
	Cutoff
	Resonance
	FilType

	numNames
)

// Key is not a Name of its own: it expands into LoKey, HiKey and PitchKeycenter.
const keyAlias = "key"

var (
	ErrUnknown   = errors.New("opcode: unknown opcode")
	ErrMalformed = errors.New("opcode: malformed value")
)

// Spec documents one opcode.
type Spec struct {
	Name     string
	Kind     Kind
	Default  Value
	Min, Max float64 // numeric clamp range; Min == Max disables clamping
	Enum     []string
}

var specs = [numNames]Spec{
	Sample:         {Name: "sample", Kind: KindPath, Default: Path("")},
	Offset:         {Name: "offset", Kind: KindInt, Default: Int(0), Min: 0, Max: 1 << 31},
	End:            {Name: "end", Kind: KindInt, Default: Int(0), Min: 0, Max: 1 << 31},
	LoKey:          {Name: "lokey", Kind: KindNote, Default: Int(0), Min: 0, Max: 127},
	HiKey:          {Name: "hikey", Kind: KindNote, Default: Int(127), Min: 0, Max: 127},
	PitchKeycenter: {Name: "pitch_keycenter", Kind: KindNote, Default: Int(60), Min: 0, Max: 127},
	LoVel:          {Name: "lovel", Kind: KindInt, Default: Int(0), Min: 0, Max: 127},
	HiVel:          {Name: "hivel", Kind: KindInt, Default: Int(127), Min: 0, Max: 127},
	LoopMode: {Name: "loop_mode", Kind: KindEnum, Default: Enum(LoopNone),
		Enum: []string{"no_loop", "loop_sustain", "loop_continuous"}},
	LoopStart:    {Name: "loop_start", Kind: KindInt, Default: Int(0), Min: 0, Max: 1 << 31},
	LoopEnd:      {Name: "loop_end", Kind: KindInt, Default: Int(0), Min: 0, Max: 1 << 31},
	Tune:         {Name: "tune", Kind: KindFloat, Default: Float(0), Min: -9600, Max: 9600},
	Volume:       {Name: "volume", Kind: KindFloat, Default: Float(0), Min: -144, Max: 48},
	Pan:          {Name: "pan", Kind: KindFloat, Default: Float(0), Min: -100, Max: 100},
	SeqLength:    {Name: "seq_length", Kind: KindInt, Default: Int(1), Min: 1, Max: 100},
	SeqPosition:  {Name: "seq_position", Kind: KindInt, Default: Int(1), Min: 1, Max: 100},
	Group:        {Name: "group", Kind: KindInt, Default: Int(0)},
	DefaultPath:  {Name: "default_path", Kind: KindPath, Default: Path("")},
	AmpegAttack:  {Name: "ampeg_attack", Kind: KindFloat, Default: Float(0), Min: 0, Max: 100},
	AmpegDecay:   {Name: "ampeg_decay", Kind: KindFloat, Default: Float(0), Min: 0, Max: 100},
	AmpegSustain: {Name: "ampeg_sustain", Kind: KindFloat, Default: Float(100), Min: 0, Max: 100},
	AmpegRelease: {Name: "ampeg_release", Kind: KindFloat, Default: Float(0), Min: 0, Max: 100},
	Cutoff:       {Name: "cutoff", Kind: KindFloat, Default: Float(0), Min: 0, Max: 24000},
	Resonance:    {Name: "resonance", Kind: KindFloat, Default: Float(0), Min: 0, Max: 40},
	FilType: {Name: "fil_type", Kind: KindEnum, Default: Enum(FilterLowPass),
		Enum: []string{"lpf_2p", "hpf_2p", "bpf_2p"}},
}

// Loop mode enum indices.
const (
	LoopNone = iota
	LoopSustain
	LoopContinuous
)

// Filter type enum indices.
const (
	FilterLowPass = iota
	FilterHighPass
	FilterBandPass
)

// Aliases accepted for enum values, mapped onto the canonical index.
var enumAliases = map[Name]map[string]int{
	LoopMode: {
		"one_shot":     LoopNone,
		"sustain_loop": LoopSustain,
		"continuous":   LoopContinuous,
	},
	FilType: {
		"lpf_1p": FilterLowPass,
		"lpf_4p": FilterLowPass,
		"lpf_6p": FilterLowPass,
		"hpf_1p": FilterHighPass,
		"hpf_4p": FilterHighPass,
		"hpf_6p": FilterHighPass,
		"bpf_1p": FilterBandPass,
		"bpf_4p": FilterBandPass,
		"bpf_6p": FilterBandPass,
	},
}

var byName = func() map[string]Name {
	m := make(map[string]Name, numNames)
	for n := Name(0); n < numNames; n++ {
		m[specs[n].Name] = n
	}
	return m
}()

// Lookup resolves an opcode name. The match is case-insensitive.
func Lookup(name string) (Name, bool) {
	n, ok := byName[strings.ToLower(name)]
	return n, ok
}

// SpecOf returns the documentation for n.
func SpecOf(n Name) Spec {
	if n < 0 || n >= numNames {
		return Spec{}
	}
	return specs[n]
}

func (n Name) String() string {
	if n < 0 || n >= numNames {
		return "opcode(" + strconv.Itoa(int(n)) + ")"
	}
	return specs[n].Name
}

// Value is a typed opcode scalar.
type Value struct {
	kind Kind
	i    int
	f    float64
	s    string
}

func Int(v int) Value       { return Value{kind: KindInt, i: v, f: float64(v)} }
func Float(v float64) Value { return Value{kind: KindFloat, i: int(v), f: v} }
func Enum(index int) Value  { return Value{kind: KindEnum, i: index, f: float64(index)} }
func Path(s string) Value   { return Value{kind: KindPath, s: s} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) Int() int       { return v.i }
func (v Value) Float() float64 { return v.f }

func (v Value) String() string {
	switch v.kind {
	case KindPath:
		return v.s
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return strconv.Itoa(v.i)
	}
}

// Parse converts raw text into a typed value for n. Numeric values are
// clamped to the opcode's documented range.
func Parse(n Name, raw string) (Value, error) {
	if n < 0 || n >= numNames {
		return Value{}, ErrUnknown
	}
	sp := specs[n]
	raw = strings.TrimSpace(raw)
	switch sp.Kind {
	case KindPath:
		if raw == "" {
			return Value{}, fmt.Errorf("%w: %s is empty", ErrMalformed, sp.Name)
		}
		return Path(raw), nil
	case KindEnum:
		lower := strings.ToLower(raw)
		for i, name := range sp.Enum {
			if lower == name {
				return Enum(i), nil
			}
		}
		if idx, ok := enumAliases[n][lower]; ok {
			return Enum(idx), nil
		}
		return Value{}, fmt.Errorf("%w: %s=%q", ErrMalformed, sp.Name, raw)
	case KindNote:
		note, ok := ParseNote(raw)
		if !ok {
			return Value{}, fmt.Errorf("%w: %s=%q", ErrMalformed, sp.Name, raw)
		}
		return Int(note), nil
	case KindInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			// Some instruments write integers as floats.
			f, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil {
				return Value{}, fmt.Errorf("%w: %s=%q", ErrMalformed, sp.Name, raw)
			}
			v = int(f)
		}
		return Int(int(sp.clamp(float64(v)))), nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s=%q", ErrMalformed, sp.Name, raw)
		}
		return Float(sp.clamp(f)), nil
	}
	return Value{}, ErrUnknown
}

func (s Spec) clamp(v float64) float64 {
	if s.Min == s.Max {
		return v
	}
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// ParseNote accepts a MIDI note number or a note name with an optional
// sharp (#, s) or flat (b) and an octave, where c4 is 60.
func ParseNote(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return min(max(n, 0), 127), true
	}
	base, ok := noteOffsets[s[0]]
	if !ok {
		return 0, false
	}
	rest := s[1:]
	if len(rest) > 1 || (len(rest) == 1 && rest[0] != '-' && (rest[0] < '0' || rest[0] > '9')) {
		switch rest[0] {
		case '#', 's':
			base++
			rest = rest[1:]
		case 'b':
			base--
			rest = rest[1:]
		}
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	midi := (octave+1)*12 + base
	if midi < 0 || midi > 127 {
		return 0, false
	}
	return midi, true
}
