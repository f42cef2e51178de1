package voice

import "github.com/cbegin/samplo/internal/instrument"

// Capacity is the fixed number of voice slots.
const Capacity = 64

// Reason says why a voice ended.
type Reason int

const (
	Finished Reason = iota // envelope or one-shot sample ran out
	Stolen                 // slot reclaimed for a newer note
	Killed                 // all-notes-off or polyphony reduction
)

// Terminated reports a voice that stopped sounding.
type Terminated struct {
	Slot   int
	NoteID int32
	Note   uint8
	Reason Reason
}

const maxTerminated = 4 * Capacity

// Pool owns the voice slots. It is driven from a single goroutine.
type Pool struct {
	voices [Capacity]Voice
	limit  int

	terminated [maxTerminated]Terminated
	nterm      int
}

// NewPool returns a pool allowing limit simultaneous voices.
func NewPool(limit int) *Pool {
	p := &Pool{}
	p.SetLimit(limit)
	return p
}

// Limit returns the polyphony limit.
func (p *Pool) Limit() int { return p.limit }

// SetLimit changes the polyphony limit, clamped to 1..Capacity. Voices in
// slots above the new limit stop immediately.
func (p *Pool) SetLimit(n int) {
	n = min(max(n, 1), Capacity)
	for i := n; i < p.limit; i++ {
		if p.voices[i].active {
			p.end(i, Killed)
		}
	}
	p.limit = n
}

// Trigger starts region on a free slot, or steals the slot holding the
// oldest voice when all are busy. It returns the slot index, or -1 when the
// region has no playable data.
func (p *Pool) Trigger(r *instrument.Region, note, velocity uint8, seq uint64, noteID int32, s Settings) int {
	if r == nil || r.Data == nil || r.Frames() == 0 {
		return -1
	}
	slot := -1
	oldest := 0
	for i := 0; i < p.limit; i++ {
		v := &p.voices[i]
		if !v.active {
			slot = i
			break
		}
		if v.seq < p.voices[oldest].seq {
			oldest = i
		}
	}
	if slot < 0 {
		slot = oldest
		p.end(slot, Stolen)
	}
	p.voices[slot].start(r, note, velocity, seq, noteID, s)
	return slot
}

// Release moves every held voice playing note into its release stage.
func (p *Pool) Release(note uint8) {
	for i := 0; i < p.limit; i++ {
		v := &p.voices[i]
		if v.active && v.note == note {
			v.release()
		}
	}
}

// ReleaseID releases the voices started with noteID.
func (p *Pool) ReleaseID(noteID int32) {
	for i := 0; i < p.limit; i++ {
		v := &p.voices[i]
		if v.active && v.noteID == noteID {
			v.release()
		}
	}
}

// ReleaseAll releases every voice.
func (p *Pool) ReleaseAll() {
	for i := 0; i < p.limit; i++ {
		p.voices[i].release()
	}
}

// Kill stops every voice immediately.
func (p *Pool) Kill() {
	for i := range p.voices {
		if p.voices[i].active {
			p.end(i, Killed)
		}
	}
}

// Render adds every active voice into l and r, which must have equal length.
// bend scales every playback rate for the span; 1 leaves pitch unchanged.
func (p *Pool) Render(l, r []float32, bend float64) {
	for i := 0; i < p.limit; i++ {
		v := &p.voices[i]
		if !v.active {
			continue
		}
		if !v.render(l, r, bend) {
			p.record(i, Finished)
		}
	}
}

// ActiveCount returns the number of sounding voices.
func (p *Pool) ActiveCount() int {
	n := 0
	for i := range p.voices {
		if p.voices[i].active {
			n++
		}
	}
	return n
}

// Voice returns slot i for inspection.
func (p *Pool) Voice(i int) *Voice { return &p.voices[i] }

// Terminated returns the voices that ended since the last ClearTerminated.
// The slice aliases pool storage.
func (p *Pool) Terminated() []Terminated { return p.terminated[:p.nterm] }

// ClearTerminated empties the termination list.
func (p *Pool) ClearTerminated() { p.nterm = 0 }

func (p *Pool) end(i int, why Reason) {
	p.voices[i].stop()
	p.record(i, why)
}

func (p *Pool) record(i int, why Reason) {
	if p.nterm == maxTerminated {
		return
	}
	v := &p.voices[i]
	p.terminated[p.nterm] = Terminated{Slot: i, NoteID: v.noteID, Note: v.note, Reason: why}
	p.nterm++
}
