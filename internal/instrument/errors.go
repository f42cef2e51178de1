package instrument

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty reports a definition that is blank or defines no regions.
	ErrEmpty = errors.New("instrument: no regions defined")
	// ErrMalformed reports a structurally invalid definition.
	ErrMalformed = errors.New("instrument: malformed definition")
	// ErrInvalidLoop reports loop bounds with end <= start or past the sample.
	ErrInvalidLoop = errors.New("instrument: invalid loop bounds")
	// ErrMissingSample reports a region without sample data.
	ErrMissingSample = errors.New("instrument: missing sample")
)

// ParseError is returned by the definition parsers.
type ParseError struct {
	Format string
	Line   int // 1-based, 0 when unknown
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %v", e.Format, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RegionError describes a region dropped while building an instrument.
type RegionError struct {
	Index  int
	Sample string
	Err    error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("region %d (%s): %v", e.Index, e.Sample, e.Err)
}

func (e *RegionError) Unwrap() error { return e.Err }
