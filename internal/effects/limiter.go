package effects

import "math"

// Limiter is a stereo-linked peak compressor for the master bus. Both
// channels share one envelope so the stereo image does not shift.
type Limiter struct {
	threshold float32
	ratio     float32
	attack    float32 // one-pole coefficient
	release   float32 // one-pole coefficient
	env       float32
}

// NewLimiter creates a limiter. thresholdDB is the level above which gain
// reduction starts; ratio is the compression ratio above it (for example 10
// for 10:1).
func NewLimiter(sampleRate int, thresholdDB, ratio, attackMs, releaseMs float32) *Limiter {
	return &Limiter{
		threshold: float32(math.Pow(10, float64(thresholdDB)/20)),
		ratio:     max(ratio, 1),
		attack:    coefficient(attackMs, sampleRate),
		release:   coefficient(releaseMs, sampleRate),
	}
}

func coefficient(ms float32, sampleRate int) float32 {
	if ms <= 0 {
		return 1
	}
	return float32(1 - math.Exp(-1/(float64(ms)*float64(sampleRate)/1000)))
}

func (c *Limiter) Process(l, r float32) (float32, float32) {
	peak := max(abs32(l), abs32(r))
	if peak > c.env {
		c.env += c.attack * (peak - c.env)
	} else {
		c.env += c.release * (peak - c.env)
	}
	g := c.gain()
	return l * g, r * g
}

// GainReduction returns the current gain applied, 1 when idle.
func (c *Limiter) GainReduction() float32 { return c.gain() }

func (c *Limiter) gain() float32 {
	if c.env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	over := c.env / c.threshold
	return float32(math.Pow(float64(over), float64(1/c.ratio-1)))
}

func (c *Limiter) Reset() { c.env = 0 }

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
