package samplo

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	intfx "github.com/cbegin/samplo/internal/effects"
	"github.com/cbegin/samplo/internal/engine"
	"github.com/cbegin/samplo/internal/sequence"
)

// RenderOptions configures offline rendering.
type RenderOptions struct {
	Params Params
	// TailFrames is rendered after the last voice falls silent.
	TailFrames int
	// MaxFrames bounds the render when notes are never released. Zero
	// allows the last event plus one minute.
	MaxFrames int64
	BlockSize int
	SoftClip  bool
}

// DefaultRenderOptions renders with engine defaults, a quarter second of
// tail and soft clipping.
func DefaultRenderOptions(sampleRate int) RenderOptions {
	return RenderOptions{
		Params:     engine.DefaultParams(),
		TailFrames: sampleRate / 4,
		BlockSize:  512,
		SoftClip:   true,
	}
}

// RenderEvents plays events through inst and returns interleaved stereo
// samples. The result is deterministic for identical input.
func RenderEvents(inst *Instrument, events []TimedEvent, sampleRate int, opts RenderOptions) []float32 {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 512
	}
	eng := engine.New(sampleRate, opts.Params, engine.WithInstrument(inst))
	seq := sequence.New(events, eng, sampleRate, sequence.Options{ReleaseTailFrames: max(opts.TailFrames, 1)})
	limit := opts.MaxFrames
	if limit <= 0 {
		limit = seq.Length() + int64(sampleRate)*60
	}
	fx := intfx.NewMaster(sampleRate, intfx.MasterConfig{SoftClip: opts.SoftClip})

	var out []float32
	block := make([]float32, opts.BlockSize*2)
	for !seq.Finished() && seq.Position() < limit {
		n := min(int64(opts.BlockSize), limit-seq.Position())
		buf := block[:n*2]
		seq.Process(buf)
		fx.Process(buf)
		out = append(out, buf...)
	}
	return out
}

// EncodeWAVFloat32LE returns a complete IEEE-float WAV file for interleaved samples.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}

// WriteWAV writes interleaved stereo samples as a WAV file. bitDepth 16 and
// 24 produce integer PCM through the go-audio encoder; 32 writes IEEE float.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate, bitDepth int) error {
	switch bitDepth {
	case 32:
		_, err := w.Write(EncodeWAVFloat32LE(samples, sampleRate, 2))
		return err
	case 16, 24:
	default:
		return fmt.Errorf("samplo: unsupported bit depth %d", bitDepth)
	}
	scale := float64(int(1)<<(bitDepth-1) - 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(v * scale))
	}
	enc := wav.NewEncoder(w, sampleRate, bitDepth, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
