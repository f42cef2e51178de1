// Package samplo is a polyphonic sample player. A Player loads SFZ, JSON
// or SoundFont instruments, plays them live from note calls or raw MIDI,
// and streams a sequence of timed events to the audio device.
package samplo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"

	intaudio "github.com/cbegin/samplo/internal/audio"
	intfx "github.com/cbegin/samplo/internal/effects"
	"github.com/cbegin/samplo/internal/engine"
	"github.com/cbegin/samplo/internal/instrument"
	"github.com/cbegin/samplo/internal/library"
	"github.com/cbegin/samplo/internal/loader"
	"github.com/cbegin/samplo/internal/logger"
	"github.com/cbegin/samplo/internal/midifile"
	"github.com/cbegin/samplo/internal/sequence"
)

type (
	Instrument = instrument.Instrument
	Params     = engine.Params
	Event      = engine.Event
	TimedEvent = sequence.TimedEvent
)

// DefaultParams returns the engine defaults.
func DefaultParams() Params { return engine.DefaultParams() }

// ErrQueueFull reports a control event dropped because the audio
// goroutine has not drained the queue.
var ErrQueueFull = errors.New("samplo: event queue full")

// PlaybackEvent is delivered through Watch.
type PlaybackEvent struct {
	Kind       int
	Instrument string // EventInstrumentLoaded, EventLoadFailed
	Err        error  // EventLoadFailed
	Note       uint8  // EventVoiceEnded
	NoteID     int32  // EventVoiceEnded
}

const (
	EventLoopCompleted int = iota
	EventPlaybackEnded
	EventInstrumentLoaded
	EventLoadFailed
	EventVoiceEnded
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	params     Params
	log        *slog.Logger
	queue      int
	sampleTap  func([]float32)
	bufferSize time.Duration
	stopAtEnd  bool
	softClip   bool
	limiter    bool
	limitDB    float32
	channel    int
	loader     *loader.Loader
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		params:   engine.DefaultParams(),
		queue:    256,
		softClip: true,
		channel:  -1,
	}
}

// WithParams sets the initial engine parameters.
func WithParams(p Params) PlayerOption {
	return func(cfg *playerConfig) { cfg.params = p }
}

// WithLogger sets the control-path logger.
func WithLogger(log *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) { cfg.log = log }
}

// WithEventQueue sets the capacity of the control event queue.
func WithEventQueue(n int) PlayerOption {
	return func(cfg *playerConfig) {
		if n > 0 {
			cfg.queue = n
		}
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio goroutine; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) { cfg.sampleTap = tap }
}

// WithBufferSize sets the device buffer, trading latency for robustness.
func WithBufferSize(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) { cfg.bufferSize = d }
}

// WithStopAtEnd ends the device stream once a non-looping sequence and its
// release tail have finished.
func WithStopAtEnd(enabled bool) PlayerOption {
	return func(cfg *playerConfig) { cfg.stopAtEnd = enabled }
}

// WithSoftClip enables the output saturator. It is on by default.
func WithSoftClip(enabled bool) PlayerOption {
	return func(cfg *playerConfig) { cfg.softClip = enabled }
}

// WithLimiter adds a master limiter starting at thresholdDB.
func WithLimiter(thresholdDB float32) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.limiter = true
		cfg.limitDB = thresholdDB
	}
}

// WithMIDIChannel restricts HandleMIDI to one channel (0-15).
func WithMIDIChannel(ch int) PlayerOption {
	return func(cfg *playerConfig) { cfg.channel = ch }
}

// WithLoader replaces the instrument loader.
func WithLoader(l *loader.Loader) PlayerOption {
	return func(cfg *playerConfig) { cfg.loader = l }
}

type Player struct {
	mu         sync.Mutex
	sampleRate int
	log        *slog.Logger
	loader     *loader.Loader
	engine     *engine.Engine
	src        *source
	output     *intaudio.Output
	bufferSize time.Duration
	library    *library.Library
	selected   int
	channel    int
	masterEQ   *intfx.EQ5Band
	done       chan struct{}
	eventCh    chan PlaybackEvent
	eventChMu  sync.Mutex
}

// source is the audio-goroutine side of the Player. Control events arrive
// through ctrl and are applied at the start of the next block.
type source struct {
	p         *Player
	engine    *engine.Engine
	ctrl      chan engine.Event
	pending   []engine.Event
	merged    []engine.Event
	seq       atomic.Pointer[sequence.Sequencer]
	seqDone   atomic.Bool
	stopAtEnd bool
	effects   *intfx.Master
	sampleTap func([]float32)
}

func (s *source) Process(dst []float32) {
	s.pending = s.pending[:0]
drain:
	for len(s.pending) < cap(s.pending) {
		select {
		case ev := <-s.ctrl:
			s.pending = append(s.pending, ev)
		default:
			break drain
		}
	}
	if seq := s.seq.Load(); seq != nil && !seq.Finished() {
		seq.Process(dst)
	} else {
		s.render(dst, nil)
	}
	for _, t := range s.engine.Terminated() {
		s.p.sendEvent(PlaybackEvent{Kind: EventVoiceEnded, Note: t.Note, NoteID: t.NoteID})
	}
	s.effects.Process(dst)
	if s.sampleTap != nil {
		s.sampleTap(dst)
	}
}

// render feeds queued control events ahead of the block's own events.
func (s *source) render(dst []float32, events []engine.Event) {
	if len(s.pending) == 0 {
		s.engine.Process(dst, events)
		return
	}
	s.merged = append(s.merged[:0], s.pending...)
	s.merged = append(s.merged, events...)
	s.pending = s.pending[:0]
	s.engine.Process(dst, s.merged)
}

func (s *source) Finished() bool {
	return s.stopAtEnd && s.seqDone.Load()
}

// feed lets the sequencer drive the engine through the control queue merge.
type feed struct{ s *source }

func (f feed) Process(dst []float32, events []engine.Event) { f.s.render(dst, events) }
func (f feed) ActiveVoiceCount() int                        { return f.s.engine.ActiveVoiceCount() }

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Get()
	}
	if cfg.loader == nil {
		cfg.loader = loader.New(loader.WithLogger(cfg.log))
	}
	eng := engine.New(sampleRate, cfg.params)
	p := &Player{
		sampleRate: sampleRate,
		log:        cfg.log,
		loader:     cfg.loader,
		engine:     eng,
		bufferSize: cfg.bufferSize,
		channel:    cfg.channel,
	}
	master := intfx.NewMaster(sampleRate, intfx.MasterConfig{
		EQ:       true,
		Limiter:  cfg.limiter,
		LimitDB:  cfg.limitDB,
		SoftClip: cfg.softClip,
	})
	p.masterEQ = master.EQ
	p.src = &source{
		p:         p,
		engine:    eng,
		ctrl:      make(chan engine.Event, cfg.queue),
		pending:   make([]engine.Event, 0, cfg.queue),
		merged:    make([]engine.Event, 0, cfg.queue+256),
		stopAtEnd: cfg.stopAtEnd,
		effects:   master,
		sampleTap: cfg.sampleTap,
	}
	return p, nil
}

// SampleRate returns the output rate.
func (p *Player) SampleRate() int { return p.sampleRate }

// Engine exposes the underlying engine.
func (p *Player) Engine() *engine.Engine { return p.engine }

// Process renders the next block without a device. Use it to host the
// player from another audio callback, or in tests. It must not run
// concurrently with a started device stream.
func (p *Player) Process(dst []float32) { p.src.Process(dst) }

// SetInstrument installs inst from the next block on. Voices already
// sounding finish with their old samples.
func (p *Player) SetInstrument(inst *Instrument) {
	old := p.engine.Swap(inst)
	if old != nil && inst != nil {
		p.log.Debug("instrument swapped", "from", old.Name, "to", inst.Name)
	}
}

// Instrument returns the current instrument, nil when none is loaded.
func (p *Player) Instrument() *Instrument { return p.engine.Instrument() }

// LoadInstrument loads the definition at path and swaps it in. On failure
// the current instrument stays active.
func (p *Player) LoadInstrument(ctx context.Context, path string) error {
	res, err := p.loader.Load(ctx, path)
	if err != nil {
		p.log.Error("instrument load failed", "path", path, "error", err)
		p.sendEvent(PlaybackEvent{Kind: EventLoadFailed, Instrument: path, Err: err})
		return err
	}
	p.SetInstrument(res.Instrument)
	p.sendEvent(PlaybackEvent{Kind: EventInstrumentLoaded, Instrument: res.Instrument.Name})
	return nil
}

// LoadLibrary scans dirs for instrument files and returns how many were found.
func (p *Player) LoadLibrary(dirs ...string) (int, error) {
	lib, err := library.Scan(p.log, dirs...)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.library = lib
	p.selected = 0
	p.mu.Unlock()
	return lib.Len(), nil
}

// Library returns the scanned library, nil before LoadLibrary.
func (p *Player) Library() *library.Library {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.library
}

// SelectInstrument loads the library entry at index, clamped into range.
// An empty or missing library falls back to the built-in test sine.
func (p *Player) SelectInstrument(ctx context.Context, index int) error {
	p.mu.Lock()
	lib := p.library
	p.mu.Unlock()
	if lib == nil {
		p.log.Warn("no instrument library, using test instrument")
		p.SetInstrument(loader.TestInstrument(p.sampleRate))
		return library.ErrEmpty
	}
	index = lib.Clamp(index)
	if err := p.LoadInstrument(ctx, lib.At(index).Path); err != nil {
		return err
	}
	p.mu.Lock()
	p.selected = index
	p.mu.Unlock()
	return nil
}

// Selected returns the library index of the last selected instrument.
func (p *Player) Selected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// Send queues an event for the next block without blocking.
func (p *Player) Send(ev Event) error {
	ev.Offset = 0
	select {
	case p.src.ctrl <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Player) NoteOn(note, velocity uint8) error {
	return p.Send(Event{Kind: engine.NoteOn, Note: note, Velocity: velocity, NoteID: -1})
}

func (p *Player) NoteOff(note uint8) error {
	return p.Send(Event{Kind: engine.NoteOff, Note: note, NoteID: -1})
}

// AllNotesOff releases every voice.
func (p *Player) AllNotesOff() error {
	return p.Send(Event{Kind: engine.AllNotesOff, NoteID: -1})
}

// HandleMIDI queues a raw MIDI channel message. Messages other than notes
// and the all-notes-off and all-sound-off controllers are ignored.
func (p *Player) HandleMIDI(msg []byte) error {
	ev, ok := midifile.Translate(midi.Message(msg), midifile.Options{Channel: p.channel})
	if !ok {
		return nil
	}
	return p.Send(ev)
}

// Start opens the device stream. Live notes play as soon as it runs.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startLocked()
}

func (p *Player) startLocked() error {
	if p.output != nil {
		return nil
	}
	out, err := intaudio.NewOutput(p.sampleRate, p.src, p.bufferSize)
	if err != nil {
		return err
	}
	p.output = out
	p.output.Play()
	p.log.Info("audio output started", "sample_rate", p.sampleRate)
	return nil
}

// PlaySequence replaces the current sequence and starts the device stream
// if needed. A looping sequence restarts after its release tail and never
// ends on its own.
func (p *Player) PlaySequence(events []TimedEvent, loop bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setSequenceLocked(events, loop)
	return p.startLocked()
}

// SetSequence replaces the current sequence without touching the device
// stream, for hosts that drive Process themselves.
func (p *Player) SetSequence(events []TimedEvent, loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setSequenceLocked(events, loop)
}

func (p *Player) setSequenceLocked(events []TimedEvent, loop bool) {
	// Signal any existing Wait() that the previous playback was replaced
	if p.done != nil {
		close(p.done)
	}
	p.done = make(chan struct{})

	p.src.seqDone.Store(false)
	seq := sequence.New(events, feed{p.src}, p.sampleRate, sequence.Options{
		Loop: loop,
		OnEvent: func(kind sequence.EventKind) {
			switch kind {
			case sequence.EventLoopCompleted:
				p.sendEvent(PlaybackEvent{Kind: EventLoopCompleted})
			case sequence.EventPlaybackEnded:
				p.src.seqDone.Store(true)
				p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
				p.signalDone()
			}
		},
	})
	p.src.seq.Store(seq)
	p.log.Info("sequence started", "events", len(events), "loop", loop)
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

func (p *Player) signalDone() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.output != nil {
		p.output.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.output != nil {
		p.output.Play()
	}
}

// Stop closes the device stream and ends any sequence.
func (p *Player) Stop() error {
	p.mu.Lock()
	var err error
	if p.output != nil {
		err = p.output.Close()
		p.output = nil
	}
	hadSeq := p.src.seq.Swap(nil) != nil
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if hadSeq {
		p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	}
	if done != nil {
		close(done)
	}
	return err
}

// Wait blocks until the current sequence ends. For a looping sequence,
// Wait blocks until Stop (use Watch for loop counting instead).
// Wait returns immediately if no sequence is active.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events:
//   - EventLoopCompleted: a looping sequence restarted
//   - EventPlaybackEnded: a sequence finished or was stopped
//   - EventInstrumentLoaded / EventLoadFailed: result of LoadInstrument
//   - EventVoiceEnded: a voice finished, was stolen or was killed
//
// The channel is buffered (cap 8); receive in a goroutine. Events that do
// not fit are dropped. Only the most recent Watch() channel receives events.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// SetParams replaces the engine parameters from the next block on.
func (p *Player) SetParams(params Params) { p.engine.SetParams(params) }

func (p *Player) Params() Params { return p.engine.Params() }

// SetEQBand sets the gain for a master EQ band (0-4). 1.0 = unity.
// Band frequencies: 0=<200Hz, 1=200-800Hz, 2=800-2.5kHz, 3=2.5-8kHz, 4=>8kHz.
// This takes effect immediately on the audio goroutine (lock-free).
func (p *Player) SetEQBand(band int, gain float32) {
	p.masterEQ.SetGain(band, gain)
}

// EQBand returns the current gain for a master EQ band (0-4).
func (p *Player) EQBand(band int) float32 {
	return p.masterEQ.Gain(band)
}

// ActiveVoices returns the number of sounding voices after the last block.
func (p *Player) ActiveVoices() int { return p.engine.ActiveVoiceCount() }

// Level returns the RMS level of the last block before the output stage.
func (p *Player) Level() float64 { return p.engine.Level() }

// PlaybackPosition returns the current output position of the audio driver,
// i.e. what the listener actually hears right now. Returns 0 if not playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	out := p.output
	p.mu.Unlock()
	if out == nil {
		return 0
	}
	return int64(out.Position().Seconds() * float64(p.sampleRate))
}
