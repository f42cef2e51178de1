// Package midifile converts Standard MIDI Files into frame-timed note
// events for the sequencer.
package midifile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/samplo/internal/engine"
	"github.com/cbegin/samplo/internal/sequence"
)

// ErrTimeFormat reports an SMPTE-timed file, which is not supported.
var ErrTimeFormat = errors.New("midifile: only metric time format is supported")

const (
	defaultMicrosPerBeat = 500000 // 120 BPM
	ccAllSoundOff        = 120
	ccAllNotesOff        = 123
)

// TempoEvent is a tempo change at a tick.
type TempoEvent struct {
	Tick          int64
	MicrosPerBeat int
}

// Options filters and shifts imported notes.
type Options struct {
	// Channel keeps only one MIDI channel (0-15). Negative keeps all.
	Channel int
	// Transpose shifts every note by semitones.
	Transpose int
}

// DefaultOptions keeps every channel untransposed.
func DefaultOptions() Options {
	return Options{Channel: -1}
}

// Load reads the file at path.
func Load(path string, sampleRate int, opts Options) ([]sequence.TimedEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, sampleRate, opts)
}

// Read parses an SMF stream.
func Read(r io.Reader, sampleRate int, opts Options) ([]sequence.TimedEvent, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("midifile: %w", err)
	}
	return Convert(s, sampleRate, opts)
}

type tickedMessage struct {
	tick int64
	msg  smf.Message
}

// Convert flattens every track of s into events ordered by frame.
func Convert(s *smf.SMF, sampleRate int, opts Options) ([]sequence.TimedEvent, error) {
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, ErrTimeFormat
	}
	ppq := int(mt.Resolution())
	if ppq <= 0 {
		return nil, ErrTimeFormat
	}

	var all []tickedMessage
	for _, tr := range s.Tracks {
		var tick int64
		for _, ev := range tr {
			tick += int64(ev.Delta)
			all = append(all, tickedMessage{tick: tick, msg: ev.Message})
		}
	}
	slices.SortStableFunc(all, func(a, b tickedMessage) int {
		switch {
		case a.tick < b.tick:
			return -1
		case a.tick > b.tick:
			return 1
		}
		return 0
	})

	tempo := tempoMap(all)
	conv := newClock(ppq, sampleRate, tempo)
	var out []sequence.TimedEvent
	for _, tm := range all {
		ev, ok := Translate(midi.Message(tm.msg), opts)
		if !ok {
			continue
		}
		out = append(out, sequence.TimedEvent{Frame: conv.frame(tm.tick), Event: ev})
	}
	return out, nil
}

// tempoMap extracts tempo changes in tick order. The map always starts
// with an entry at tick 0.
func tempoMap(msgs []tickedMessage) []TempoEvent {
	tempo := []TempoEvent{{Tick: 0, MicrosPerBeat: defaultMicrosPerBeat}}
	for _, tm := range msgs {
		var bpm float64
		if !tm.msg.GetMetaTempo(&bpm) || bpm <= 0 {
			continue
		}
		te := TempoEvent{Tick: tm.tick, MicrosPerBeat: int(60000000/bpm + 0.5)}
		if last := &tempo[len(tempo)-1]; last.Tick == te.Tick {
			last.MicrosPerBeat = te.MicrosPerBeat
			continue
		}
		tempo = append(tempo, te)
	}
	return tempo
}

// Translate maps a channel message onto an engine event. Note-ons with
// zero velocity end the note; controllers 120 and 123 silence or release
// every voice. Anything else reports false.
func Translate(msg midi.Message, opts Options) (engine.Event, bool) {
	var ch, key, vel uint8
	ev := engine.Event{NoteID: -1}
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		ev.Kind = engine.NoteOn
		ev.Velocity = vel
	case msg.GetNoteEnd(&ch, &key):
		ev.Kind = engine.NoteOff
	case msg.GetControlChange(&ch, &key, &vel):
		switch key {
		case ccAllNotesOff:
			ev.Kind = engine.AllNotesOff
		case ccAllSoundOff:
			ev.Kind = engine.AllSoundOff
		default:
			return ev, false
		}
		key = 0
	default:
		return ev, false
	}
	if opts.Channel >= 0 && int(ch) != opts.Channel {
		return ev, false
	}
	if ev.Kind == engine.NoteOn || ev.Kind == engine.NoteOff {
		n := int(key) + opts.Transpose
		if n < 0 || n > 127 {
			return ev, false
		}
		key = uint8(n)
	}
	ev.Note = key
	return ev, true
}

// clock converts ticks to frames across tempo changes.
type clock struct {
	ppq        int
	sampleRate int
	tempo      []TempoEvent
	frameAt    []float64 // frame position of each tempo change
}

func newClock(ppq, sampleRate int, tempo []TempoEvent) *clock {
	c := &clock{ppq: ppq, sampleRate: sampleRate, tempo: tempo, frameAt: make([]float64, len(tempo))}
	for i := 1; i < len(tempo); i++ {
		ticks := tempo[i].Tick - tempo[i-1].Tick
		c.frameAt[i] = c.frameAt[i-1] + float64(ticks)*c.framesPerTick(tempo[i-1].MicrosPerBeat)
	}
	return c
}

func (c *clock) framesPerTick(microsPerBeat int) float64 {
	return float64(c.sampleRate) * float64(microsPerBeat) / float64(c.ppq) / 1e6
}

func (c *clock) frame(tick int64) int64 {
	i := len(c.tempo) - 1
	for i > 0 && c.tempo[i].Tick > tick {
		i--
	}
	f := c.frameAt[i] + float64(tick-c.tempo[i].Tick)*c.framesPerTick(c.tempo[i].MicrosPerBeat)
	return int64(f + 0.5)
}
