package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcm16WAV builds a 16-bit PCM WAV, optionally with a smpl chunk holding one
// loop [start, end] (inclusive end, as stored on disk).
func pcm16WAV(rate, channels int, samples []int16, loop []uint32) []byte {
	var data bytes.Buffer
	for _, s := range samples {
		_ = binary.Write(&data, binary.LittleEndian, s)
	}

	var body bytes.Buffer
	body.WriteString("WAVE")
	body.WriteString("fmt ")
	_ = binary.Write(&body, binary.LittleEndian, uint32(16))
	_ = binary.Write(&body, binary.LittleEndian, uint16(1))
	_ = binary.Write(&body, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&body, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&body, binary.LittleEndian, uint32(rate*channels*2))
	_ = binary.Write(&body, binary.LittleEndian, uint16(channels*2))
	_ = binary.Write(&body, binary.LittleEndian, uint16(16))
	body.WriteString("data")
	_ = binary.Write(&body, binary.LittleEndian, uint32(data.Len()))
	body.Write(data.Bytes())
	if loop != nil {
		body.WriteString("smpl")
		_ = binary.Write(&body, binary.LittleEndian, uint32(36+24))
		header := []uint32{0, 0, uint32(1e9 / rate), 60, 0, 0, 0, 1, 0}
		for _, v := range header {
			_ = binary.Write(&body, binary.LittleEndian, v)
		}
		for _, v := range []uint32{0, 0, loop[0], loop[1], 0, 0} {
			_ = binary.Write(&body, binary.LittleEndian, v)
		}
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestWAVMono16(t *testing.T) {
	s, err := WAV("a.wav", pcm16WAV(44100, 1, []int16{0, 16384, -16384, 32767}, nil))
	require.NoError(t, err)
	assert.Equal(t, 44100, s.Rate)
	assert.Equal(t, 1, s.Channels)
	assert.Equal(t, 4, s.Frames)
	assert.InDelta(t, 0.5, s.Data[1], 1e-6)
	assert.InDelta(t, -0.5, s.Data[2], 1e-6)
	assert.Zero(t, s.LoopEnd)
}

func TestWAVStereoWithLoop(t *testing.T) {
	samples := make([]int16, 2*1000)
	s, err := WAV("loop.wav", pcm16WAV(48000, 2, samples, []uint32{100, 899}))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Channels)
	assert.Equal(t, 1000, s.Frames)
	assert.Equal(t, 100, s.LoopStart)
	assert.Equal(t, 900, s.LoopEnd)
}

func TestWAVLoopPastEndIgnored(t *testing.T) {
	s, err := WAV("loop.wav", pcm16WAV(48000, 1, make([]int16, 10), []uint32{2, 50}))
	require.NoError(t, err)
	assert.Zero(t, s.LoopStart)
	assert.Zero(t, s.LoopEnd)
}

func TestWAVRoundTripThroughEncoder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enc.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 22050, 24, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 22050},
		Data:           []int{0, 1 << 22, -(1 << 22)},
		SourceBitDepth: 24,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	s, err := FileDecoder{}.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 22050, s.Rate)
	require.Equal(t, 3, s.Frames)
	assert.InDelta(t, 0.5, s.Data[1], 1e-6)
	assert.InDelta(t, -0.5, s.Data[2], 1e-6)
}

func TestBytesErrors(t *testing.T) {
	_, err := Bytes("x.flac", []byte("fLaC"))
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = Bytes("x.wav", []byte("not a wav file at all"))
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = Bytes("x.ogg", []byte("OggS garbage"))
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = FileDecoder{}.Decode(filepath.Join(t.TempDir(), "missing.wav"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
