// Package sfz parses the SFZ text format: headers that open sections and
// name=value opcodes that inherit from control through global, master and
// group down to each region.
package sfz

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/cbegin/samplo/internal/instrument"
	"github.com/cbegin/samplo/internal/opcode"
)

// Format is the name used in parse errors.
const Format = "sfz"

// Options configures Parse.
type Options struct {
	// FS resolves #include directives. Paths are relative to its root.
	FS fs.FS
	// Dir is prepended to every sample path.
	Dir string
	// File names the source in warnings.
	File string
}

// Warning is a recoverable problem found while parsing.
type Warning struct {
	File string
	Line int
	Msg  string
}

func (w Warning) String() string {
	if w.File != "" {
		return fmt.Sprintf("%s:%d: %s", w.File, w.Line, w.Msg)
	}
	return fmt.Sprintf("line %d: %s", w.Line, w.Msg)
}

// Result holds the parsed regions in file order.
type Result struct {
	Regions  []instrument.Region
	Warnings []Warning
}

type section int

const (
	sectionNone section = iota
	sectionControl
	sectionGlobal
	sectionMaster
	sectionGroup
	sectionRegion
	sectionIgnored
)

type parser struct {
	opts Options

	section     section
	defaultPath string
	global      opcode.Set
	master      opcode.Set
	group       opcode.Set
	region      opcode.Set
	groupIndex  int

	regions  []instrument.Region
	warnings []Warning
}

// Parse reads an SFZ document.
func Parse(src []byte, opts Options) (*Result, error) {
	if strings.TrimSpace(string(src)) == "" {
		return nil, &instrument.ParseError{Format: Format, Err: instrument.ErrEmpty}
	}
	pp := &preprocessor{fsys: opts.FS}
	pp.run(opts.File, src, 0)

	p := &parser{opts: opts, warnings: pp.warnings}
	for _, ln := range pp.lines {
		if err := p.line(ln); err != nil {
			return nil, err
		}
	}
	p.flush()
	if len(p.regions) == 0 {
		return nil, &instrument.ParseError{Format: Format, Err: instrument.ErrEmpty}
	}
	return &Result{Regions: p.regions, Warnings: p.warnings}, nil
}

func (p *parser) line(ln line) error {
	s := ln.text
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return nil
		}
		if s[0] == '<' {
			end := strings.IndexByte(s, '>')
			if end < 0 {
				p.warn(ln, "unterminated header %q; rest of line ignored", s)
				return nil
			}
			p.header(strings.ToLower(strings.TrimSpace(s[1:end])))
			s = s[end+1:]
			continue
		}
		seg := s
		if next := strings.IndexByte(s, '<'); next >= 0 {
			seg, s = s[:next], s[next:]
		} else {
			s = ""
		}
		for _, kv := range splitOpcodes(seg) {
			p.opcode(ln, kv.name, kv.value)
		}
	}
}

func (p *parser) header(name string) {
	p.flush()
	switch name {
	case "control":
		p.section = sectionControl
	case "global":
		p.section = sectionGlobal
		p.global, p.master, p.group = opcode.Set{}, opcode.Set{}, opcode.Set{}
	case "master":
		p.section = sectionMaster
		p.master, p.group = opcode.Set{}, opcode.Set{}
	case "group":
		p.section = sectionGroup
		p.group = opcode.Set{}
		p.groupIndex++
	case "region":
		p.section = sectionRegion
		p.region = opcode.Set{}
	default:
		// <curve>, <effect>, <midi> and vendor headers carry nothing we play.
		p.section = sectionIgnored
	}
}

func (p *parser) opcode(ln line, name, value string) {
	switch p.section {
	case sectionIgnored:
		return
	case sectionNone:
		p.warn(ln, "opcode %s outside of any header", name)
		return
	case sectionControl:
		if strings.EqualFold(name, opcode.DefaultPath.String()) {
			p.defaultPath = strings.ReplaceAll(value, "\\", "/")
			return
		}
		if _, ok := opcode.Lookup(name); !ok {
			p.warn(ln, "unsupported control opcode %s", name)
		}
		return
	}

	target := p.current()
	next, err := target.Apply(name, value)
	switch {
	case errors.Is(err, opcode.ErrUnknown):
		p.warn(ln, "unsupported opcode %s", name)
	case err != nil:
		p.warn(ln, "%v; keeping inherited value", err)
	default:
		*target = next
	}
}

func (p *parser) current() *opcode.Set {
	switch p.section {
	case sectionGlobal:
		return &p.global
	case sectionMaster:
		return &p.master
	case sectionGroup:
		return &p.group
	default:
		return &p.region
	}
}

// flush emits the pending region, if any.
func (p *parser) flush() {
	if p.section != sectionRegion {
		return
	}
	merged := p.global.Merge(p.master).Merge(p.group).Merge(p.region)
	r := instrument.FromOpcodes(merged)
	if r.Sample != "" {
		r.Sample = p.samplePath(r.Sample)
	}
	switch {
	case merged.Has(opcode.Group):
	case p.groupIndex > 0:
		r.Group = -p.groupIndex
	}
	p.regions = append(p.regions, r)
	p.section = sectionNone
}

func (p *parser) samplePath(sample string) string {
	rel := strings.ReplaceAll(p.defaultPath+sample, "\\", "/")
	if p.opts.Dir == "" || path.IsAbs(rel) {
		return filepath.FromSlash(rel)
	}
	return filepath.Join(p.opts.Dir, filepath.FromSlash(rel))
}

func (p *parser) warn(ln line, format string, args ...any) {
	p.warnings = append(p.warnings, Warning{File: ln.file, Line: ln.num, Msg: fmt.Sprintf(format, args...)})
}

type keyValue struct {
	name  string
	value string
}

// splitOpcodes splits "a=1 sample=my file.wav b=2" into pairs. A value runs
// until the next name= token, so it may contain spaces.
func splitOpcodes(s string) []keyValue {
	var out []keyValue
	for {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			return out
		}
		name := strings.TrimSpace(s[:eq])
		if i := strings.LastIndexAny(name, " \t"); i >= 0 {
			name = name[i+1:]
		}
		rest := s[eq+1:]
		next := nextOpcodeStart(rest)
		if name != "" {
			out = append(out, keyValue{name: name, value: strings.TrimSpace(rest[:next])})
		}
		s = rest[next:]
	}
}

// nextOpcodeStart returns the offset of the next name= token in s, or len(s).
func nextOpcodeStart(s string) int {
	from := 0
	for {
		eq := strings.IndexByte(s[from:], '=')
		if eq < 0 {
			return len(s)
		}
		eq += from
		i := eq
		for i > 0 && isNameByte(s[i-1]) {
			i--
		}
		if i < eq && (i == 0 || s[i-1] == ' ' || s[i-1] == '\t') {
			return i
		}
		from = eq + 1
	}
}

func isNameByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
