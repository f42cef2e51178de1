package loader

import (
	"math"

	"github.com/cbegin/samplo/internal/instrument"
)

// TestInstrument returns a one-second 440 Hz sine mapped across the whole
// keyboard, rooted at A4 and looped between 0.1 s and 0.9 s. It is the
// fallback when no instrument library is available.
func TestInstrument(sampleRate int) *instrument.Instrument {
	frames := sampleRate
	data := make([]float32, frames)
	for i := range data {
		t := float64(i) / float64(sampleRate)
		data[i] = float32(0.8 * math.Sin(2*math.Pi*440*t))
	}
	r := instrument.DefaultRegion("<generated>")
	r.Data = &instrument.Sample{
		Path:     "<generated>",
		Rate:     sampleRate,
		Channels: 1,
		Frames:   frames,
		Data:     data,
	}
	r.PitchKeycenter = 69
	r.LoopMode = instrument.SustainLoop
	r.LoopStart = int(float64(sampleRate) * 0.1)
	r.LoopEnd = int(float64(sampleRate) * 0.9)
	inst, _ := instrument.New("Test Sine", []instrument.Region{r})
	return inst
}
