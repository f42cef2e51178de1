// Package effects holds the master output stage applied after the engine
// mixdown: equalization, limiting and soft clipping.
package effects

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain runs effects in order over interleaved stereo blocks.
type Chain struct {
	stages []Effector
}

func NewChain(stages ...Effector) *Chain {
	return &Chain{stages: stages}
}

// Process filters buf in place. A trailing odd sample is left untouched.
func (c *Chain) Process(buf []float32) {
	if len(c.stages) == 0 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		l, r := buf[i], buf[i+1]
		for _, e := range c.stages {
			l, r = e.Process(l, r)
		}
		buf[i], buf[i+1] = l, r
	}
}

func (c *Chain) Reset() {
	for _, e := range c.stages {
		e.Reset()
	}
}

func (c *Chain) Len() int { return len(c.stages) }

// MasterConfig selects the optional stages of the master bus.
type MasterConfig struct {
	EQ       bool
	Limiter  bool
	LimitDB  float32 // limiter threshold in dBFS
	SoftClip bool
}

// Master is the output stage shared by live and offline rendering:
// five-band EQ, then limiter, then saturator. EQ is nil when disabled.
type Master struct {
	*Chain
	EQ *EQ5Band
}

// NewMaster builds the master bus for sampleRate.
func NewMaster(sampleRate int, cfg MasterConfig) *Master {
	m := &Master{Chain: NewChain()}
	if cfg.EQ {
		m.EQ = NewEQ5Band(sampleRate)
		m.stages = append(m.stages, m.EQ)
	}
	if cfg.Limiter {
		m.stages = append(m.stages, NewLimiter(sampleRate, cfg.LimitDB, 10, 1, 100))
	}
	if cfg.SoftClip {
		m.stages = append(m.stages, NewSaturator(1))
	}
	return m
}
