package opcode

import (
	"fmt"
	"strings"
)

// Set is an immutable snapshot of explicitly assigned opcodes. Unset
// opcodes resolve to their documented default. The zero Set is empty.
type Set struct {
	has  uint32
	vals [numNames]Value
}

// Apply assigns raw to the opcode called name and returns the new Set.
// On a malformed value the returned Set is unchanged and the error wraps
// ErrMalformed; an unrecognized name wraps ErrUnknown.
func (s Set) Apply(name, raw string) (Set, error) {
	if strings.EqualFold(name, keyAlias) {
		v, err := Parse(LoKey, raw)
		if err != nil {
			return s, fmt.Errorf("%w: key=%q", ErrMalformed, raw)
		}
		s = s.With(LoKey, v).With(HiKey, v).With(PitchKeycenter, v)
		return s, nil
	}
	n, ok := Lookup(name)
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	v, err := Parse(n, raw)
	if err != nil {
		return s, err
	}
	return s.With(n, v), nil
}

// With returns a copy of s with n set to v.
func (s Set) With(n Name, v Value) Set {
	if n < 0 || n >= numNames {
		return s
	}
	s.vals[n] = v
	s.has |= 1 << uint(n)
	return s
}

// Has reports whether n was explicitly assigned.
func (s Set) Has(n Name) bool {
	if n < 0 || n >= numNames {
		return false
	}
	return s.has&(1<<uint(n)) != 0
}

// Get returns the explicitly assigned value for n.
func (s Set) Get(n Name) (Value, bool) {
	if !s.Has(n) {
		return Value{}, false
	}
	return s.vals[n], true
}

// Resolve returns the assigned value for n or its default.
func (s Set) Resolve(n Name) Value {
	if v, ok := s.Get(n); ok {
		return v
	}
	return SpecOf(n).Default
}

// Merge layers child over s: child's explicit values win.
func (s Set) Merge(child Set) Set {
	for n := Name(0); n < numNames; n++ {
		if child.Has(n) {
			s = s.With(n, child.vals[n])
		}
	}
	return s
}

// Len returns the number of explicitly assigned opcodes.
func (s Set) Len() int {
	c := 0
	for h := s.has; h != 0; h &= h - 1 {
		c++
	}
	return c
}
