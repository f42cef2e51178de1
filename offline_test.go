package samplo

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cbegin/samplo/internal/decode"
	"github.com/cbegin/samplo/internal/engine"
	"github.com/cbegin/samplo/internal/loader"
)

func phrase() []TimedEvent {
	on := func(frame int64, n uint8) TimedEvent {
		return TimedEvent{Frame: frame, Event: Event{Kind: engine.NoteOn, Note: n, Velocity: 100, NoteID: -1}}
	}
	off := func(frame int64, n uint8) TimedEvent {
		return TimedEvent{Frame: frame, Event: Event{Kind: engine.NoteOff, Note: n, NoteID: -1}}
	}
	return []TimedEvent{on(0, 60), on(1000, 64), off(2000, 60), on(2000, 67), off(4000, 64), off(4000, 67)}
}

func TestRenderEventsDeterministic(t *testing.T) {
	opts := DefaultRenderOptions(testRate)
	a := RenderEvents(loader.TestInstrument(testRate), phrase(), testRate, opts)
	b := RenderEvents(loader.TestInstrument(testRate), phrase(), testRate, opts)
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
	if energy(a) == 0 {
		t.Fatalf("expected audio")
	}
	for i, v := range a {
		if math.Abs(float64(v)) > 1 {
			t.Fatalf("sample %d exceeds full scale: %v", i, v)
		}
	}
}

func TestRenderEventsLength(t *testing.T) {
	opts := DefaultRenderOptions(testRate)
	out := RenderEvents(loader.TestInstrument(testRate), phrase(), testRate, opts)
	frames := len(out) / 2
	// Last note-off at 4000, 200 ms release, 250 ms tail counted from the
	// block in which the last voice ended.
	silent := 4000 + testRate/5
	minFrames := silent + opts.TailFrames - opts.BlockSize
	maxFrames := silent + opts.TailFrames + 2*opts.BlockSize
	if frames < minFrames || frames > maxFrames {
		t.Fatalf("rendered %d frames, want %d..%d", frames, minFrames, maxFrames)
	}
	tail := out[len(out)-2*100:]
	if energy(tail) != 0 {
		t.Fatalf("tail should be silent")
	}
}

func TestRenderEventsHonoursMaxFrames(t *testing.T) {
	opts := DefaultRenderOptions(testRate)
	opts.MaxFrames = 3000
	held := []TimedEvent{{Frame: 0, Event: Event{Kind: engine.NoteOn, Note: 69, Velocity: 100, NoteID: -1}}}
	out := RenderEvents(loader.TestInstrument(testRate), held, testRate, opts)
	if len(out) != 2*3000 {
		t.Fatalf("expected 3000 frames, got %d", len(out)/2)
	}
}

func TestEncodeWAVFloat32LEHeader(t *testing.T) {
	wav := EncodeWAVFloat32LE([]float32{0.5, -0.5}, 44100, 2)
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad header")
	}
	if binary.LittleEndian.Uint16(wav[20:]) != 3 || binary.LittleEndian.Uint32(wav[24:]) != 44100 {
		t.Fatalf("bad format chunk")
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(wav[48:])); got != -0.5 {
		t.Fatalf("second sample = %v", got)
	}
}

func TestWriteWAVRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, 2, -2}
	for _, depth := range []int{16, 24} {
		path := filepath.Join(t.TempDir(), "out.wav")
		f, err := os.Create(path)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := WriteWAV(f, samples, 22050, depth); err != nil {
			t.Fatalf("write %d-bit: %v", depth, err)
		}
		f.Close()

		s, err := decode.FileDecoder{}.Decode(path)
		if err != nil {
			t.Fatalf("decode %d-bit: %v", depth, err)
		}
		if s.Channels != 2 || s.Frames != 3 || s.Rate != 22050 {
			t.Fatalf("%d-bit: unexpected shape %+v", depth, s)
		}
		if math.Abs(float64(s.Data[1])-0.5) > 1e-3 {
			t.Fatalf("%d-bit: sample 1 = %v", depth, s.Data[1])
		}
		if math.Abs(float64(s.Data[4])-1) > 1e-3 {
			t.Fatalf("%d-bit: out of range sample should clamp, got %v", depth, s.Data[4])
		}
	}

	path := filepath.Join(t.TempDir(), "float.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteWAV(f, samples, 22050, 32); err != nil {
		t.Fatalf("write float: %v", err)
	}
	f.Close()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if binary.LittleEndian.Uint16(raw[20:]) != 3 || len(raw) != 44+4*len(samples) {
		t.Fatalf("expected IEEE float data, got format %d and %d bytes", binary.LittleEndian.Uint16(raw[20:]), len(raw))
	}

	if err := WriteWAV(nil, samples, 22050, 12); err == nil {
		t.Fatalf("expected unsupported depth error")
	}
}
