package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/samplo/internal/instrument"
	"github.com/cbegin/samplo/internal/logger"
)

// writeWAV writes a 16-bit mono file holding a constant value.
func writeWAV(t *testing.T, path string, frames, value int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	data := make([]int, frames)
	for i := range data {
		data[i] = value
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func quiet() *Loader {
	return New(WithLogger(logger.Discard()))
}

const roundRobinPiano = `
<group> seq_length=3 lokey=60 hikey=60 pitch_keycenter=60
<region> sample=piano_c4_rr1.wav seq_position=1
<region> sample=piano_c4_rr2.wav seq_position=2
<region> sample=piano_c4_rr3.wav seq_position=3
`

func TestLoadSFZRoundRobin(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"piano_c4_rr1.wav", "piano_c4_rr2.wav", "piano_c4_rr3.wav"} {
		writeWAV(t, filepath.Join(dir, name), 64, (i+1)*1000)
	}
	path := filepath.Join(dir, "piano.sfz")
	writeFile(t, path, roundRobinPiano)

	res, err := quiet().Load(context.Background(), path)
	require.NoError(t, err)
	require.Empty(t, res.Dropped)
	inst := res.Instrument
	assert.Equal(t, "piano", inst.Name)
	require.Equal(t, 3, inst.Len())

	for round := 0; round < 2; round++ {
		for i := 1; i <= 3; i++ {
			sel := inst.Select(60, 100)
			require.Len(t, sel, 1)
			require.NotNil(t, sel[0].Data)
			assert.Equal(t, filepath.Join(dir, fmt.Sprintf("piano_c4_rr%d.wav", i)), sel[0].Sample)
			assert.InDelta(t, float64(i*1000)/32768, sel[0].Data.Data[0], 1e-6)
		}
	}
	assert.Empty(t, inst.Select(61, 100))
}

func TestLoadDropsRegionsWithMissingSamples(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "ok.wav"), 32, 100)
	path := filepath.Join(dir, "partial.sfz")
	writeFile(t, path, "<region> sample=missing.wav key=40\n<region> sample=ok.wav key=41\n")

	res, err := quiet().Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, res.Instrument.Len())
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, 0, res.Dropped[0].Index)
	assert.True(t, errors.Is(res.Dropped[0], instrument.ErrMissingSample))
}

func TestLoadAllRegionsDropped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.sfz")
	writeFile(t, path, "<region> sample=nope.wav\n")

	res, err := quiet().Load(context.Background(), path)
	assert.True(t, errors.Is(err, ErrNoRegions))
	require.NotNil(t, res)
	assert.Len(t, res.Dropped, 1)
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "c.wav"), 100, 500)
	path := filepath.Join(dir, "keys.json")
	writeFile(t, path, `{"name":"Keys","regions":[{"sample":"c.wav","root":60,"lo_note":55,"hi_note":65,"loop_enabled":true,"loop_start":10,"loop_end":90}]}`)

	res, err := quiet().Load(context.Background(), path)
	require.NoError(t, err)
	inst := res.Instrument
	assert.Equal(t, "Keys", inst.Name)
	r := inst.Region(0)
	assert.Equal(t, instrument.SustainLoop, r.LoopMode)
	assert.Equal(t, 10, r.LoopStart)
	assert.Equal(t, 90, r.LoopEnd)
	assert.Len(t, inst.Select(55, 1), 1)
}

func TestLoadUnknownFormat(t *testing.T) {
	_, err := quiet().Load(context.Background(), "inst.xml")
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestLoadParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.sfz")
	// The unterminated header is skipped with a warning, leaving no regions.
	writeFile(t, path, "<region sample=a.wav\n")
	_, err := quiet().Load(context.Background(), path)
	var pe *instrument.ParseError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, instrument.ErrEmpty)
}

type countingDecoder struct {
	mu    sync.Mutex
	calls map[string]int
}

func (d *countingDecoder) Decode(path string) (*instrument.Sample, error) {
	d.mu.Lock()
	d.calls[path]++
	d.mu.Unlock()
	return &instrument.Sample{Path: path, Rate: 44100, Channels: 1, Frames: 4, Data: make([]float32, 4)}, nil
}

func TestBuildDecodesEachSampleOnce(t *testing.T) {
	dec := &countingDecoder{calls: map[string]int{}}
	l := New(WithDecoder(dec), WithLogger(logger.Discard()), WithConcurrency(2))
	src := "<region> sample=a.wav lovel=0 hivel=63\n<region> sample=a.wav lovel=64 hivel=127\n<region> sample=b.wav key=10\n"
	def, err := Parse([]byte(src), FormatSFZ, ParseOptions{Name: "layers"})
	require.NoError(t, err)

	res, err := l.Build(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Instrument.Len())
	assert.Equal(t, map[string]int{"a.wav": 1, "b.wav": 1}, dec.calls)
	assert.Same(t, res.Instrument.Region(0).Data, res.Instrument.Region(1).Data)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	def := &Definition{Name: "x", Regions: []instrument.Region{instrument.DefaultRegion("a.wav")}}
	_, err := quiet().Build(ctx, def)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFormatOf(t *testing.T) {
	cases := map[string]Format{"a.sfz": FormatSFZ, "B.SFZ": FormatSFZ, "c.json": FormatJSON, "d.sf2": FormatSF2}
	for path, want := range cases {
		got, err := FormatOf(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	assert.False(t, IsInstrumentFile("readme.txt"))
	assert.Equal(t, "sfz", FormatSFZ.String())
}

func TestTestInstrument(t *testing.T) {
	inst := TestInstrument(48000)
	assert.Equal(t, "Test Sine", inst.Name)
	require.Equal(t, 1, inst.Len())
	r := inst.Region(0)
	assert.Equal(t, uint8(69), r.PitchKeycenter)
	assert.Equal(t, uint8(0), r.LoKey)
	assert.Equal(t, uint8(127), r.HiKey)
	assert.Equal(t, instrument.SustainLoop, r.LoopMode)
	assert.Equal(t, 4800, r.LoopStart)
	assert.Equal(t, 43200, r.LoopEnd)
	require.Equal(t, 48000, r.Data.Frames)

	var peak float32
	for _, v := range r.Data.Data {
		peak = max(peak, v, -v)
	}
	assert.InDelta(t, 0.8, peak, 1e-3)
	assert.Len(t, inst.Select(21, 127), 1)
}
