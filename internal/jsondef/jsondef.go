// Package jsondef parses the flat JSON instrument format. It has no
// inheritance: every missing field takes a fixed default.
package jsondef

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cbegin/samplo/internal/instrument"
)

// Format is the name used in parse errors.
const Format = "json"

// Definition is the top-level document.
type Definition struct {
	Name    string      `json:"name"`
	Regions []RegionDef `json:"regions"`
}

// RegionDef is one region entry. Pointer fields distinguish "absent" from zero.
type RegionDef struct {
	Sample      string   `json:"sample"`
	Root        *int     `json:"root,omitempty"`
	LoNote      *int     `json:"lo_note,omitempty"`
	HiNote      *int     `json:"hi_note,omitempty"`
	LoVel       *int     `json:"lo_vel,omitempty"`
	HiVel       *int     `json:"hi_vel,omitempty"`
	LoopStart   int      `json:"loop_start,omitempty"`
	LoopEnd     int      `json:"loop_end,omitempty"`
	LoopEnabled bool     `json:"loop_enabled,omitempty"`
	RRGroup     int      `json:"rr_group,omitempty"`
	RRSeq       int      `json:"rr_seq,omitempty"` // 0-based
	TuneCents   float64  `json:"tune_cents,omitempty"`
	VolumeDB    float64  `json:"volume_db,omitempty"`
	Pan         float64  `json:"pan,omitempty"`
	Attack      *float64 `json:"attack,omitempty"`
	Decay       *float64 `json:"decay,omitempty"`
	Sustain     *float64 `json:"sustain,omitempty"`
	Release     *float64 `json:"release,omitempty"`
}

// Parse decodes src. Relative sample paths are joined onto dir.
func Parse(src []byte, dir string) (string, []instrument.Region, error) {
	if len(bytes.TrimSpace(src)) == 0 {
		return "", nil, &instrument.ParseError{Format: Format, Err: instrument.ErrEmpty}
	}
	var def Definition
	if err := json.Unmarshal(src, &def); err != nil {
		pe := &instrument.ParseError{Format: Format, Err: fmt.Errorf("%w: %v", instrument.ErrMalformed, err)}
		var se *json.SyntaxError
		if errors.As(err, &se) {
			pe.Line = lineAt(src, se.Offset)
		}
		return "", nil, pe
	}
	if len(def.Regions) == 0 {
		return def.Name, nil, &instrument.ParseError{Format: Format, Err: instrument.ErrEmpty}
	}
	return def.Name, Regions(def, dir), nil
}

// Regions converts a decoded definition into regions in document order.
func Regions(def Definition, dir string) []instrument.Region {
	cohortLen := make(map[int]int)
	for _, rd := range def.Regions {
		cohortLen[rd.RRGroup] = max(cohortLen[rd.RRGroup], rd.RRSeq+1)
	}
	out := make([]instrument.Region, 0, len(def.Regions))
	for _, rd := range def.Regions {
		r := instrument.DefaultRegion(samplePath(dir, rd.Sample))
		r.PitchKeycenter = note(rd.Root, 60)
		r.LoKey = note(rd.LoNote, 0)
		r.HiKey = note(rd.HiNote, 127)
		r.LoVel = note(rd.LoVel, 0)
		r.HiVel = note(rd.HiVel, 127)
		if rd.LoopEnabled {
			r.LoopMode = instrument.SustainLoop
			r.LoopStart, r.LoopEnd = rd.LoopStart, rd.LoopEnd
		}
		r.Tune = rd.TuneCents
		r.Volume = rd.VolumeDB
		r.Pan = min(max(rd.Pan, -1), 1)
		r.Group = rd.RRGroup
		r.SeqLength = cohortLen[rd.RRGroup]
		r.SeqPosition = rd.RRSeq + 1
		r.Attack = optional(rd.Attack)
		r.Decay = optional(rd.Decay)
		r.Sustain = optional(rd.Sustain)
		r.Release = optional(rd.Release)
		out = append(out, r)
	}
	return out
}

func note(v *int, def uint8) uint8 {
	if v == nil {
		return def
	}
	return uint8(min(max(*v, 0), 127))
}

func optional(v *float64) instrument.Optional {
	if v == nil {
		return instrument.Optional{}
	}
	return instrument.Some(*v)
}

func samplePath(dir, sample string) string {
	if sample == "" {
		return ""
	}
	p := filepath.FromSlash(sample)
	if dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func lineAt(src []byte, offset int64) int {
	if offset > int64(len(src)) {
		offset = int64(len(src))
	}
	return bytes.Count(src[:offset], []byte("\n")) + 1
}
