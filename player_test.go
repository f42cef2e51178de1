package samplo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cbegin/samplo/internal/engine"
	"github.com/cbegin/samplo/internal/library"
	"github.com/cbegin/samplo/internal/loader"
	"github.com/cbegin/samplo/internal/logger"
)

const testRate = 8000

func newTestPlayer(t *testing.T, opts ...PlayerOption) *Player {
	t.Helper()
	opts = append([]PlayerOption{WithLogger(logger.Discard())}, opts...)
	pl, err := NewPlayer(testRate, opts...)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	pl.SetInstrument(loader.TestInstrument(testRate))
	return pl
}

func energy(buf []float32) float64 {
	var e float64
	for _, v := range buf {
		e += float64(v) * float64(v)
	}
	return e
}

func TestNewPlayerRejectsBadRate(t *testing.T) {
	if _, err := NewPlayer(0); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}

func TestPlayerLiveNoteLifecycle(t *testing.T) {
	pl := newTestPlayer(t)
	events := pl.Watch()
	buf := make([]float32, 512)

	pl.Process(buf)
	if energy(buf) != 0 {
		t.Fatalf("expected silence before any note")
	}
	if err := pl.NoteOn(69, 127); err != nil {
		t.Fatalf("note on: %v", err)
	}
	pl.Process(buf)
	if energy(buf) == 0 {
		t.Fatalf("expected audio after note on")
	}
	if pl.ActiveVoices() != 1 {
		t.Fatalf("expected 1 active voice, got %d", pl.ActiveVoices())
	}
	if pl.Level() <= 0 {
		t.Fatalf("expected a positive level")
	}

	if err := pl.NoteOff(69); err != nil {
		t.Fatalf("note off: %v", err)
	}
	for i := 0; i < 20; i++ {
		pl.Process(buf)
	}
	if pl.ActiveVoices() != 0 {
		t.Fatalf("voice should be free after release, got %d", pl.ActiveVoices())
	}
	select {
	case ev := <-events:
		if ev.Kind != EventVoiceEnded || ev.Note != 69 {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatalf("expected a voice-ended event")
	}
}

func TestPlayerQueueFull(t *testing.T) {
	pl := newTestPlayer(t, WithEventQueue(2))
	_ = pl.NoteOn(60, 100)
	_ = pl.NoteOn(61, 100)
	if err := pl.NoteOn(62, 100); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	pl.Process(make([]float32, 64))
	if pl.ActiveVoices() != 2 {
		t.Fatalf("expected 2 voices, got %d", pl.ActiveVoices())
	}
	if err := pl.NoteOn(62, 100); err != nil {
		t.Fatalf("queue should accept after drain: %v", err)
	}
}

func TestPlayerHandleMIDI(t *testing.T) {
	pl := newTestPlayer(t)
	buf := make([]float32, 64)
	if err := pl.HandleMIDI([]byte{0x90, 60, 100}); err != nil {
		t.Fatalf("handle midi: %v", err)
	}
	if err := pl.HandleMIDI([]byte{0xF0, 0x7E, 0xF7}); err != nil {
		t.Fatalf("ignored message should not fail: %v", err)
	}
	pl.Process(buf)
	if pl.ActiveVoices() != 1 {
		t.Fatalf("expected a voice from MIDI note on")
	}
	_ = pl.HandleMIDI([]byte{0xB0, 120, 0})
	pl.Process(buf)
	if pl.ActiveVoices() != 0 {
		t.Fatalf("all sound off should kill voices")
	}

	filtered := newTestPlayer(t, WithMIDIChannel(1))
	_ = filtered.HandleMIDI([]byte{0x90, 60, 100})
	filtered.Process(buf)
	if filtered.ActiveVoices() != 0 {
		t.Fatalf("channel filter should ignore channel 0")
	}
}

func TestPlayerSequenceEnds(t *testing.T) {
	pl := newTestPlayer(t)
	events := pl.Watch()
	pl.SetSequence([]TimedEvent{
		{Frame: 0, Event: Event{Kind: engine.NoteOn, Note: 69, Velocity: 100, NoteID: -1}},
		{Frame: 800, Event: Event{Kind: engine.NoteOff, Note: 69, NoteID: -1}},
	}, false)

	buf := make([]float32, 512)
	ended := false
	for i := 0; i < 200 && !ended; i++ {
		pl.Process(buf)
		for drained := false; !drained; {
			select {
			case ev := <-events:
				ended = ended || ev.Kind == EventPlaybackEnded
			default:
				drained = true
			}
		}
	}
	if !ended {
		t.Fatalf("sequence never ended")
	}
	pl.Wait()
	if !pl.src.seq.Load().Finished() {
		t.Fatalf("sequencer should be finished")
	}
}

func TestPlayerLoadFailureKeepsInstrument(t *testing.T) {
	pl := newTestPlayer(t)
	events := pl.Watch()
	before := pl.Instrument()
	err := pl.LoadInstrument(context.Background(), filepath.Join(t.TempDir(), "missing.sfz"))
	if err == nil {
		t.Fatalf("expected load error")
	}
	if pl.Instrument() != before {
		t.Fatalf("failed load must keep the previous instrument")
	}
	ev := <-events
	if ev.Kind != EventLoadFailed || ev.Err == nil {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestPlayerSelectWithoutLibrary(t *testing.T) {
	pl, err := NewPlayer(testRate, WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if err := pl.SelectInstrument(context.Background(), 3); !errors.Is(err, library.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if inst := pl.Instrument(); inst == nil || inst.Name != "Test Sine" {
		t.Fatalf("expected test instrument fallback")
	}
}

func TestPlayerLibrarySelection(t *testing.T) {
	dir := t.TempDir()
	tone := make([]float32, 2*testRate/10)
	for i := range tone {
		tone[i] = 0.5
	}
	f, err := os.Create(filepath.Join(dir, "tone.wav"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteWAV(f, tone, testRate, 16); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	f.Close()
	for _, name := range []string{"a.json", "b.json"} {
		body := `{"name":"` + name + `","regions":[{"sample":"tone.wav","root":60}]}`
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	pl := newTestPlayer(t)
	n, err := pl.LoadLibrary(dir)
	if err != nil || n != 2 {
		t.Fatalf("library: n=%d err=%v", n, err)
	}
	if err := pl.SelectInstrument(context.Background(), 7); err != nil {
		t.Fatalf("select: %v", err)
	}
	if pl.Selected() != 1 || pl.Instrument().Name != "b.json" {
		t.Fatalf("expected clamped selection of b.json, got %d %q", pl.Selected(), pl.Instrument().Name)
	}
	_ = pl.NoteOn(60, 127)
	buf := make([]float32, 256)
	pl.Process(buf)
	if energy(buf) == 0 {
		t.Fatalf("expected audio from loaded instrument")
	}
}

func TestPlayerParamsAndEQ(t *testing.T) {
	pl := newTestPlayer(t)
	p := DefaultParams()
	p.MasterGain = 0.25
	pl.SetParams(p)
	if pl.Params().MasterGain != 0.25 {
		t.Fatalf("params not stored")
	}
	pl.SetEQBand(2, 0.5)
	if got := pl.EQBand(2); got != 0.5 {
		t.Fatalf("eq band = %v, want 0.5", got)
	}
	if pl.PlaybackPosition() != 0 {
		t.Fatalf("position without output should be 0")
	}
}

func TestPlayerSampleTap(t *testing.T) {
	var tapped int
	pl := newTestPlayer(t, WithSampleTap(func(buf []float32) { tapped += len(buf) }))
	pl.Process(make([]float32, 128))
	if tapped != 128 {
		t.Fatalf("tap saw %d samples", tapped)
	}
}
