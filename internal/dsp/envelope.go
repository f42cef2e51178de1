package dsp

import "math"

// Stage is an ADSR envelope phase.
type Stage int

const (
	StageIdle Stage = iota
	StageAttack
	StageDecay
	StageSustain
	StageRelease
)

func (s Stage) String() string {
	switch s {
	case StageAttack:
		return "attack"
	case StageDecay:
		return "decay"
	case StageSustain:
		return "sustain"
	case StageRelease:
		return "release"
	default:
		return "idle"
	}
}

// ADSR is a linear attack/decay/sustain/release amplitude envelope with
// segment lengths counted in samples.
type ADSR struct {
	attack  int
	decay   int
	release int
	sustain float64

	stage   Stage
	level   float64
	from    float64
	elapsed int
}

// NewADSR builds an idle envelope. Times are seconds, sustain is a level in [0,1].
func NewADSR(sampleRate, attack, decay, sustain, release float64) ADSR {
	return ADSR{
		attack:  secondsToSamples(attack, sampleRate),
		decay:   secondsToSamples(decay, sampleRate),
		release: secondsToSamples(release, sampleRate),
		sustain: clamp(sustain, 0, 1),
	}
}

func secondsToSamples(sec, sampleRate float64) int {
	if sec <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(sec * sampleRate))
}

// NoteOn (re)starts the attack from the current level.
func (e *ADSR) NoteOn() {
	e.from = e.level
	e.elapsed = 0
	e.stage = StageAttack
}

// NoteOff starts the release from the current level.
func (e *ADSR) NoteOff() {
	if e.stage == StageIdle || e.stage == StageRelease {
		return
	}
	e.from = e.level
	e.elapsed = 0
	e.stage = StageRelease
}

// Finish forces the envelope to Idle.
func (e *ADSR) Finish() {
	e.stage = StageIdle
	e.level = 0
	e.elapsed = 0
}

func (e *ADSR) Stage() Stage     { return e.stage }
func (e *ADSR) Level() float64   { return e.level }
func (e *ADSR) Active() bool     { return e.stage != StageIdle }
func (e *ADSR) Sustain() float64 { return e.sustain }

// Next advances one sample and returns the new level.
func (e *ADSR) Next() float64 {
	switch e.stage {
	case StageAttack:
		e.elapsed++
		if e.elapsed >= e.attack {
			e.level = 1
			e.enter(StageDecay)
			break
		}
		e.level = e.from + (1-e.from)*float64(e.elapsed)/float64(e.attack)
	case StageDecay:
		e.elapsed++
		if e.elapsed >= e.decay {
			e.level = e.sustain
			e.enter(StageSustain)
			break
		}
		e.level = 1 + (e.sustain-1)*float64(e.elapsed)/float64(e.decay)
	case StageSustain:
		e.level = e.sustain
	case StageRelease:
		e.elapsed++
		if e.elapsed >= e.release {
			e.Finish()
			break
		}
		e.level = e.from * (1 - float64(e.elapsed)/float64(e.release))
	default:
		e.level = 0
	}
	return e.level
}

func (e *ADSR) enter(s Stage) {
	e.stage = s
	e.from = e.level
	e.elapsed = 0
}
