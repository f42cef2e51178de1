// Package decode turns audio files into sample data for the sampler.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"

	"github.com/cbegin/samplo/internal/instrument"
)

var (
	// ErrUnsupported reports a container or encoding this package cannot read.
	ErrUnsupported = errors.New("decode: unsupported audio format")
	// ErrInvalid reports a file that claims a known format but does not parse.
	ErrInvalid = errors.New("decode: invalid audio file")
)

// Decoder loads a sample by path.
type Decoder interface {
	Decode(path string) (*instrument.Sample, error)
}

// FileDecoder reads samples from the local file system, choosing the
// codec by file extension.
type FileDecoder struct{}

// Decode implements Decoder.
func (FileDecoder) Decode(path string) (*instrument.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Bytes(path, data)
}

// Bytes decodes data using the codec implied by the extension of name.
func Bytes(name string, data []byte) (*instrument.Sample, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return WAV(name, data)
	case ".ogg", ".oga":
		return Ogg(name, bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))
	}
}

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// WAV decodes PCM (8, 16, 24 or 32 bit) and 32-bit float WAV data. The
// first loop of a smpl chunk becomes the sample's embedded loop.
func WAV(name string, data []byte) (*instrument.Sample, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, name)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	channels := int(dec.NumChans)
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %s has %d channels", ErrUnsupported, name, channels)
	}

	var convert func(int) float32
	switch {
	case dec.WavAudioFormat == wavFormatFloat && dec.BitDepth == 32:
		convert = func(v int) float32 { return math.Float32frombits(uint32(v)) }
	case dec.WavAudioFormat == wavFormatPCM && dec.BitDepth == 8:
		convert = func(v int) float32 { return float32(v-128) / 128 }
	case dec.WavAudioFormat == wavFormatPCM && (dec.BitDepth == 16 || dec.BitDepth == 24 || dec.BitDepth == 32):
		scale := 1 / float32(uint64(1)<<(dec.BitDepth-1))
		convert = func(v int) float32 { return float32(v) * scale }
	default:
		return nil, fmt.Errorf("%w: %s: format %d, %d bit", ErrUnsupported, name, dec.WavAudioFormat, dec.BitDepth)
	}

	frames := len(buf.Data) / channels
	out := make([]float32, frames*channels)
	for i := range out {
		out[i] = convert(buf.Data[i])
	}
	s := &instrument.Sample{
		Path:     name,
		Rate:     int(dec.SampleRate),
		Channels: channels,
		Frames:   frames,
		Data:     out,
	}
	s.LoopStart, s.LoopEnd = wavLoop(data, frames)
	return s, nil
}

// wavLoop reads the first smpl loop. smpl end points are inclusive.
func wavLoop(data []byte, frames int) (int, int) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadMetadata()
	if dec.Err() != nil || dec.Metadata == nil || dec.Metadata.SamplerInfo == nil {
		return 0, 0
	}
	for _, l := range dec.Metadata.SamplerInfo.Loops {
		if l == nil {
			continue
		}
		start, end := int(l.Start), int(l.End)+1
		if start >= 0 && end > start && end <= frames {
			return start, end
		}
	}
	return 0, 0
}

// Ogg decodes Ogg Vorbis at its native rate into stereo frames.
func Ogg(name string, r io.Reader) (*instrument.Sample, error) {
	stream, err := vorbis.DecodeWithoutResampling(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	raw, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	// 16-bit little endian, two channels.
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		out[i] = float32(v) / 32768
	}
	return &instrument.Sample{
		Path:     name,
		Rate:     stream.SampleRate(),
		Channels: 2,
		Frames:   n / 2,
		Data:     out[:n/2*2],
	}, nil
}
