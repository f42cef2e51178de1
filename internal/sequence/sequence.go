// Package sequence plays a list of timed note events through an engine,
// splitting them into the block-relative offsets the engine expects.
package sequence

import (
	"slices"

	"github.com/cbegin/samplo/internal/engine"
)

// Renderer is the part of the engine a Sequencer drives.
type Renderer interface {
	Process(dst []float32, events []engine.Event)
	ActiveVoiceCount() int
}

// TimedEvent is an engine event at an absolute frame.
type TimedEvent struct {
	Frame int64
	engine.Event
}

// EventKind identifies sequencer lifecycle events.
type EventKind int

const (
	EventLoopCompleted EventKind = iota
	EventPlaybackEnded
)

type Options struct {
	Loop              bool
	OnEvent           func(EventKind)
	ReleaseTailFrames int // frames rendered after the last voice ends (0 = half a second)
}

type Sequencer struct {
	events     []TimedEvent
	renderer   Renderer
	sampleRate int

	loop    bool
	onEvent func(EventKind)

	pos     int64
	next    int
	tail    int
	tailCur int
	ended   bool
	scratch []engine.Event
}

// New copies events, ordering them by frame. Events sharing a frame keep
// their relative order.
func New(events []TimedEvent, r Renderer, sampleRate int, opts Options) *Sequencer {
	tail := opts.ReleaseTailFrames
	if tail <= 0 {
		tail = sampleRate / 2
	}
	evs := slices.Clone(events)
	slices.SortStableFunc(evs, func(a, b TimedEvent) int {
		switch {
		case a.Frame < b.Frame:
			return -1
		case a.Frame > b.Frame:
			return 1
		}
		return 0
	})
	return &Sequencer{
		events:     evs,
		renderer:   r,
		sampleRate: sampleRate,
		loop:       opts.Loop,
		onEvent:    opts.OnEvent,
		tail:       tail,
		tailCur:    tail,
		scratch:    make([]engine.Event, 0, len(evs)),
	}
}

// Process renders len(dst)/2 interleaved stereo frames, delivering every
// event that falls inside the block at its exact frame.
func (s *Sequencer) Process(dst []float32) {
	frames := len(dst) / 2
	end := s.pos + int64(frames)
	s.scratch = s.scratch[:0]
	for s.next < len(s.events) && s.events[s.next].Frame < end {
		ev := s.events[s.next].Event
		ev.Offset = int(max(s.events[s.next].Frame-s.pos, 0))
		s.scratch = append(s.scratch, ev)
		s.next++
	}
	s.renderer.Process(dst, s.scratch)
	s.pos = end

	if s.ended || s.next < len(s.events) || s.renderer.ActiveVoiceCount() > 0 {
		return
	}
	s.tailCur -= frames
	if s.tailCur > 0 {
		return
	}
	if s.loop {
		s.Reset()
		s.fire(EventLoopCompleted)
		return
	}
	s.ended = true
	s.fire(EventPlaybackEnded)
}

func (s *Sequencer) fire(kind EventKind) {
	if s.onEvent != nil {
		s.onEvent(kind)
	}
}

// Reset rewinds to the first event.
func (s *Sequencer) Reset() {
	s.pos = 0
	s.next = 0
	s.tailCur = s.tail
	s.ended = false
}

// Finished reports whether every event was delivered and the release tail
// has elapsed. A looping sequencer never finishes.
func (s *Sequencer) Finished() bool { return s.ended }

// Position returns the number of frames rendered since the last reset.
func (s *Sequencer) Position() int64 { return s.pos }

// Length returns the frame of the last event.
func (s *Sequencer) Length() int64 {
	if len(s.events) == 0 {
		return 0
	}
	return s.events[len(s.events)-1].Frame
}

// Events returns the ordered events.
func (s *Sequencer) Events() []TimedEvent { return s.events }
