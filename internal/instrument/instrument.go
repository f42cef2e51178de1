package instrument

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Instrument is an immutable set of regions. Only the round-robin cursors
// change after construction, and only from the render path.
type Instrument struct {
	ID   uuid.UUID
	Name string

	regions []Region
	cursors []cohort
	serial  uint64 // note-on counter that stamps cursor visits
}

type cohort struct {
	key    int
	length int
	pos    int
	seen   uint64 // serial of the last note-on that advanced pos
}

// New validates regions and builds an instrument. Invalid regions are
// dropped and reported; the remaining regions keep their file order.
func New(name string, regions []Region) (*Instrument, []*RegionError) {
	inst := &Instrument{
		ID:      uuid.New(),
		Name:    name,
		regions: make([]Region, 0, len(regions)),
	}
	var errs []*RegionError
	for i, r := range regions {
		if err := normalize(&r); err != nil {
			errs = append(errs, &RegionError{Index: i, Sample: r.Sample, Err: err})
			continue
		}
		inst.regions = append(inst.regions, r)
	}
	inst.buildCohorts()
	return inst, errs
}

func normalize(r *Region) error {
	if r.Sample == "" && r.Data == nil {
		return ErrMissingSample
	}
	if r.LoKey > r.HiKey {
		r.LoKey, r.HiKey = r.HiKey, r.LoKey
	}
	if r.LoVel > r.HiVel {
		r.LoVel, r.HiVel = r.HiVel, r.LoVel
	}
	if r.SeqLength < 1 {
		r.SeqLength = 1
	}
	if r.SeqPosition < 1 {
		r.SeqPosition = 1
	}
	if r.Offset < 0 || (r.Data != nil && r.Offset >= r.Data.Frames) {
		r.Offset = 0
	}
	if r.LoopMode == NoLoop {
		return nil
	}
	if r.LoopStart == 0 && r.LoopEnd == 0 {
		// No explicit bounds: use the embedded loop or the whole sample.
		if r.Data != nil {
			if r.Data.LoopEnd > r.Data.LoopStart {
				r.LoopStart, r.LoopEnd = r.Data.LoopStart, r.Data.LoopEnd
			} else {
				r.LoopStart, r.LoopEnd = 0, r.Frames()
			}
		}
		return nil
	}
	if r.LoopEnd <= r.LoopStart {
		return fmt.Errorf("%w: end %d <= start %d", ErrInvalidLoop, r.LoopEnd, r.LoopStart)
	}
	if r.Data != nil && r.LoopEnd > r.Data.Frames {
		return fmt.Errorf("%w: end %d past %d frames", ErrInvalidLoop, r.LoopEnd, r.Data.Frames)
	}
	return nil
}

// buildCohorts assigns a cursor to every region with SeqLength > 1. A region
// whose position is out of range, or collides with an earlier region of the
// same cohort covering overlapping keys and velocities, is always eligible.
func (inst *Instrument) buildCohorts() {
	index := make(map[int]int)
	for i := range inst.regions {
		r := &inst.regions[i]
		r.cursor = -1
		if r.SeqLength <= 1 {
			continue
		}
		c, ok := index[r.Group]
		if !ok {
			c = len(inst.cursors)
			index[r.Group] = c
			inst.cursors = append(inst.cursors, cohort{key: r.Group})
		}
		inst.cursors[c].length = max(inst.cursors[c].length, r.SeqLength)
		r.cursor = c
	}
	for i := range inst.regions {
		r := &inst.regions[i]
		if r.cursor < 0 {
			continue
		}
		if r.SeqPosition > inst.cursors[r.cursor].length {
			r.alwaysEligible = true
			continue
		}
		for j := 0; j < i; j++ {
			o := &inst.regions[j]
			if o.cursor == r.cursor && !o.alwaysEligible && o.SeqPosition == r.SeqPosition && overlaps(o, r) {
				r.alwaysEligible = true
				break
			}
		}
	}
}

func overlaps(a, b *Region) bool {
	return a.LoKey <= b.HiKey && b.LoKey <= a.HiKey && a.LoVel <= b.HiVel && b.LoVel <= a.HiVel
}

// Len returns the number of regions.
func (inst *Instrument) Len() int { return len(inst.regions) }

// Region returns region i.
func (inst *Instrument) Region(i int) *Region { return &inst.regions[i] }

// Regions returns the regions in file order. Callers must not modify them.
func (inst *Instrument) Regions() []Region { return inst.regions }

// Samples returns the distinct sample paths referenced by the regions, in
// first-use order.
func (inst *Instrument) Samples() []string {
	seen := make(map[string]struct{}, len(inst.regions))
	var out []string
	for i := range inst.regions {
		p := inst.regions[i].Sample
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Cohorts returns the number of round-robin cursors.
func (inst *Instrument) Cohorts() int { return len(inst.cursors) }

// ResetRoundRobin rewinds every cursor.
func (inst *Instrument) ResetRoundRobin() {
	for i := range inst.cursors {
		inst.cursors[i].pos = 0
		inst.cursors[i].seen = 0
	}
	atomic.StoreUint64(&inst.serial, 0)
}
