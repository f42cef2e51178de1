package effects

import (
	"math"
	"sync/atomic"

	"github.com/cbegin/samplo/internal/dsp"
)

// Saturator soft-clips the master output with a rational tanh so that
// dense chords never exceed full scale.
type Saturator struct {
	drive atomic.Uint32 // float32 bits
}

// NewSaturator returns a saturator with the given input drive. A drive of
// 1 leaves quiet material nearly untouched.
func NewSaturator(drive float32) *Saturator {
	s := &Saturator{}
	s.SetDrive(drive)
	return s
}

func (s *Saturator) SetDrive(drive float32) {
	if drive <= 0 {
		drive = 1
	}
	s.drive.Store(math.Float32bits(drive))
}

func (s *Saturator) Drive() float32 { return math.Float32frombits(s.drive.Load()) }

func (s *Saturator) Process(l, r float32) (float32, float32) {
	d := float64(s.Drive())
	return float32(dsp.FastTanh(float64(l) * d)), float32(dsp.FastTanh(float64(r) * d))
}

func (s *Saturator) Reset() {}
