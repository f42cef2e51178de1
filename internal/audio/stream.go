// Package audio streams rendered blocks to the system audio device.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// BlockSource renders interleaved stereo float32 frames on demand.
type BlockSource interface {
	Process(dst []float32)
}

// FinishingSource is a BlockSource that can signal when playback has ended.
// When Finished returns true, the stream returns io.EOF after the block.
type FinishingSource interface {
	BlockSource
	Finished() bool
}

// StreamReader adapts a BlockSource to the little-endian float32 byte
// stream the device expects. Partial frames in a read are left unfilled.
type StreamReader struct {
	mu     sync.Mutex
	source BlockSource
	buf    []float32
	closed bool
}

func NewStreamReader(source BlockSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i, v := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	n := frames * 8
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Output is a playing device stream.
type Output struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	deviceOnce sync.Once
	device     *ebitaudio.Context
	deviceRate int
)

// The device context is process-wide and fixed to the first sample rate.
func sharedContext(sampleRate int) (*ebitaudio.Context, error) {
	deviceOnce.Do(func() {
		deviceRate = sampleRate
		device = ebitaudio.NewContext(sampleRate)
	})
	if deviceRate != sampleRate {
		return nil, fmt.Errorf("audio: context already running at %d Hz (requested %d Hz)", deviceRate, sampleRate)
	}
	return device, nil
}

// NewOutput opens a device stream pulling from source. bufferSize sets the
// device latency; zero keeps the platform default.
func NewOutput(sampleRate int, source BlockSource, bufferSize time.Duration) (*Output, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	if bufferSize > 0 {
		pl.SetBufferSize(bufferSize)
	}
	return &Output{player: pl, reader: reader}, nil
}

func (o *Output) Play()           { o.player.Play() }
func (o *Output) Pause()          { o.player.Pause() }
func (o *Output) IsPlaying() bool { return o.player.IsPlaying() }

// Position returns what the listener has actually heard.
func (o *Output) Position() time.Duration { return o.player.Position() }

func (o *Output) Close() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return err
	}
	return o.reader.Close()
}
