// Package engine turns note events into stereo audio from the currently
// installed instrument. The render path never allocates, locks or logs.
package engine

import (
	"math"
	"sync/atomic"

	"github.com/tphakala/simd/f32"

	"github.com/cbegin/samplo/internal/dsp"
	"github.com/cbegin/samplo/internal/instrument"
	"github.com/cbegin/samplo/internal/voice"
)

// DefaultMaxBlock is the largest span rendered in one pass of the voice pool.
const DefaultMaxBlock = 256

// vibratoSpan is the control period of the vibrato LFO in frames.
const vibratoSpan = 32

// Kind is the type of an Event.
type Kind int

const (
	NoteOn Kind = iota
	NoteOff
	AllNotesOff // release every voice
	AllSoundOff // stop every voice immediately
)

// Event is a note event positioned within a block.
type Event struct {
	Kind     Kind
	Offset   int // frame within the block
	Note     uint8
	Velocity uint8
	// Seq orders note-ons for voice stealing. Zero assigns the next number.
	Seq    uint64
	NoteID int32 // host note id, -1 when unused
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxBlock sets the internal render span.
func WithMaxBlock(frames int) Option {
	return func(e *Engine) {
		if frames > 0 {
			e.maxBlock = frames
		}
	}
}

// WithInstrument installs inst before the first block.
func WithInstrument(inst *instrument.Instrument) Option {
	return func(e *Engine) {
		e.inst.Store(inst)
	}
}

// Engine is a polyphonic sample player. Swap, SetParams and the read-only
// accessors are safe from any goroutine; NoteOn, NoteOff, Apply, Render and
// Process belong to the single render goroutine.
type Engine struct {
	sampleRate float64
	maxBlock   int

	inst   atomic.Pointer[instrument.Instrument]
	params atomic.Pointer[Params]

	// Render-path state, refreshed at block boundaries.
	cur        *instrument.Instrument
	curParams  *Params
	settings   voice.Settings
	gainL      float32
	gainR      float32
	pool       *voice.Pool
	seq        uint64
	nextID     int32
	selected   [instrument.MaxLayers]*instrument.Region
	mixL, mixR []float32
	vibrato    dsp.LFO

	active atomic.Int32
	rms    atomic.Uint64
}

// New creates an engine rendering at sampleRate.
func New(sampleRate int, params Params, opts ...Option) *Engine {
	e := &Engine{
		sampleRate: float64(sampleRate),
		maxBlock:   DefaultMaxBlock,
	}
	for _, opt := range opts {
		opt(e)
	}
	p := params.Clamped()
	e.params.Store(&p)
	e.pool = voice.NewPool(p.MaxVoices)
	e.mixL = make([]float32, e.maxBlock)
	e.mixR = make([]float32, e.maxBlock)
	e.beginBlock()
	return e
}

// SampleRate returns the output rate.
func (e *Engine) SampleRate() int { return int(e.sampleRate) }

// Swap installs inst. Voices already sounding finish on the regions they
// started with; new notes use inst from the next block on.
func (e *Engine) Swap(inst *instrument.Instrument) *instrument.Instrument {
	return e.inst.Swap(inst)
}

// Instrument returns the installed instrument.
func (e *Engine) Instrument() *instrument.Instrument { return e.inst.Load() }

// SetParams replaces the parameters from the next block on.
func (e *Engine) SetParams(p Params) {
	p = p.Clamped()
	e.params.Store(&p)
}

// Params returns the current parameters.
func (e *Engine) Params() Params { return *e.params.Load() }

// ActiveVoiceCount returns the number of sounding voices at the end of the
// last block.
func (e *Engine) ActiveVoiceCount() int { return int(e.active.Load()) }

// Level returns the RMS of the last rendered block, after master gain.
func (e *Engine) Level() float64 { return math.Float64frombits(e.rms.Load()) }

// Terminated lists voices that ended during the last block. Render goroutine only.
func (e *Engine) Terminated() []voice.Terminated { return e.pool.Terminated() }

// Pool exposes the voice pool. Render goroutine only.
func (e *Engine) Pool() *voice.Pool { return e.pool }

func (e *Engine) beginBlock() {
	e.cur = e.inst.Load()
	p := e.params.Load()
	if p == e.curParams {
		return
	}
	e.curParams = p
	e.settings = voice.Settings{
		SampleRate:   e.sampleRate,
		Attack:       p.AttackSec,
		Decay:        p.DecaySec,
		Sustain:      p.SustainLvl,
		Release:      p.ReleaseSec,
		Filter:       p.Filter,
		Cutoff:       p.Cutoff,
		Resonance:    p.Resonance,
		TuneCents:    p.TuneCents,
		VelocitySens: p.VelocitySens,
	}
	l, r := dsp.EqualPower(p.Pan)
	e.gainL = float32(p.MasterGain * l)
	e.gainR = float32(p.MasterGain * r)
	e.vibrato.Set(p.VibratoCents, p.VibratoRate, p.VibratoWave)
	if p.MaxVoices != e.pool.Limit() {
		e.pool.SetLimit(p.MaxVoices)
	}
}

// NoteOn starts every region of the current instrument that matches note
// and velocity. It returns the number of voices started.
func (e *Engine) NoteOn(note, velocity uint8, seq uint64, noteID int32) int {
	if seq == 0 {
		seq = e.seq + 1
	}
	if seq > e.seq {
		e.seq = seq
	}
	if e.cur == nil {
		return 0
	}
	n := e.cur.SelectInto(note, velocity, e.selected[:])
	started := 0
	for _, r := range e.selected[:n] {
		if e.pool.Trigger(r, note, velocity, seq, noteID, e.settings) >= 0 {
			started++
		}
	}
	return started
}

// NoteOff releases every voice playing note.
func (e *Engine) NoteOff(note uint8) {
	e.pool.Release(note)
}

// NextNoteID returns a fresh host note id for callers that have none.
func (e *Engine) NextNoteID() int32 {
	e.nextID++
	return e.nextID
}

// Apply handles one event immediately.
func (e *Engine) Apply(ev Event) {
	switch ev.Kind {
	case NoteOn:
		e.NoteOn(ev.Note, ev.Velocity, ev.Seq, ev.NoteID)
	case NoteOff:
		e.NoteOff(ev.Note)
	case AllNotesOff:
		e.pool.ReleaseAll()
	case AllSoundOff:
		e.pool.Kill()
	}
}

// Render fills dst (interleaved stereo) with no new events.
func (e *Engine) Render(dst []float32) {
	e.Process(dst, nil)
}

// Process renders len(dst)/2 frames into dst, applying each event in order
// at its frame offset. Offsets past the block apply at its end.
func (e *Engine) Process(dst []float32, events []Event) {
	frames := len(dst) / 2
	e.beginBlock()
	e.pool.ClearTerminated()

	var energy float64
	pos, ei := 0, 0
	for pos < frames {
		for ei < len(events) && events[ei].Offset <= pos {
			e.Apply(events[ei])
			ei++
		}
		end := frames
		if ei < len(events) && events[ei].Offset < end {
			end = events[ei].Offset
		}
		energy += e.renderSpan(dst[2*pos : 2*end])
		pos = end
	}
	for ; ei < len(events); ei++ {
		e.Apply(events[ei])
	}

	if frames > 0 {
		e.rms.Store(math.Float64bits(math.Sqrt(energy / float64(2*frames))))
	}
	e.active.Store(int32(e.pool.ActiveCount()))
}

// renderSpan renders interleaved frames into out and returns their energy.
func (e *Engine) renderSpan(out []float32) float64 {
	var energy float64
	for len(out) > 0 {
		n := min(len(out)/2, e.maxBlock)
		bend := 1.0
		if e.vibrato.Active() {
			n = min(n, vibratoSpan)
			bend = math.Exp2(e.vibrato.Advance(n, e.sampleRate) / 1200)
		}
		l, r := e.mixL[:n], e.mixR[:n]
		clear(l)
		clear(r)
		e.pool.Render(l, r, bend)
		f32.Scale(l, l, e.gainL)
		f32.Scale(r, r, e.gainR)
		f32.Interleave2(out[:2*n], l, r)
		energy += float64(f32.DotProductUnsafe(l, l)) + float64(f32.DotProductUnsafe(r, r))
		out = out[2*n:]
	}
	return energy
}
