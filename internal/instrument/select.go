package instrument

import "sync/atomic"

// MaxLayers bounds the regions a single note-on can start.
const MaxLayers = 64

// SelectInto writes the regions eligible for note and velocity into dst in
// file order and returns how many were written. Each call is one note-on:
// a cohort advances its cursor exactly once when at least one of its
// regions matches note and velocity. Other cohorts keep their position.
// It does not allocate.
func (inst *Instrument) SelectInto(note, velocity uint8, dst []*Region) int {
	if inst == nil {
		return 0
	}
	serial := atomic.AddUint64(&inst.serial, 1)
	n := 0
	for i := range inst.regions {
		r := &inst.regions[i]
		if !r.Matches(note, velocity) {
			continue
		}
		if r.cursor >= 0 {
			pos := inst.visit(r.cursor, serial)
			if !r.alwaysEligible && r.SeqPosition-1 != pos {
				continue
			}
		}
		if n < len(dst) {
			dst[n] = r
			n++
		}
	}
	return n
}

// visit returns the cursor position for this note-on, advancing the
// cohort the first time it is seen with serial.
func (inst *Instrument) visit(c int, serial uint64) int {
	co := &inst.cursors[c]
	if co.seen == serial {
		return (co.pos + co.length - 1) % co.length
	}
	co.seen = serial
	pos := co.pos
	co.pos = (co.pos + 1) % co.length
	return pos
}

// Select is SelectInto with a freshly allocated result.
func (inst *Instrument) Select(note, velocity uint8) []*Region {
	var buf [MaxLayers]*Region
	n := inst.SelectInto(note, velocity, buf[:])
	out := make([]*Region, n)
	copy(out, buf[:n])
	return out
}
