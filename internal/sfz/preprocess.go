package sfz

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// maxIncludeDepth bounds #include nesting.
const maxIncludeDepth = 10

type line struct {
	file string
	num  int
	text string
}

type preprocessor struct {
	fsys     fs.FS
	defines  map[string]string
	keys     []string // define names, longest first
	lines    []line
	warnings []Warning
}

// decodeText returns src as UTF-8. Files that are not valid UTF-8 are read
// as Windows-1252, the encoding most legacy instruments were saved in.
func decodeText(src []byte) string {
	if utf8.Valid(src) {
		return string(src)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(src)
	if err != nil {
		return string(src)
	}
	return string(out)
}

// stripComments removes block and line comments, keeping line breaks so
// line numbers survive.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			var body string
			if end < 0 {
				body = s[i:]
				i = len(s)
			} else {
				body = s[i : i+2+end+2]
				i += 2 + end + 2
			}
			b.WriteString(strings.Repeat("\n", strings.Count(body, "\n")))
		case strings.HasPrefix(s[i:], "//"):
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				i = len(s)
			} else {
				i += nl
			}
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

func (p *preprocessor) run(file string, src []byte, depth int) {
	text := stripComments(strings.ReplaceAll(decodeText(src), "\r\n", "\n"))
	for i, raw := range strings.Split(text, "\n") {
		num := i + 1
		trimmed := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(trimmed, "#define"):
			p.define(file, num, strings.TrimSpace(trimmed[len("#define"):]))
		case strings.HasPrefix(trimmed, "#include"):
			p.include(file, num, strings.TrimSpace(trimmed[len("#include"):]), depth)
		default:
			p.lines = append(p.lines, line{file: file, num: num, text: p.substitute(raw)})
		}
	}
}

func (p *preprocessor) define(file string, num int, rest string) {
	name, value, _ := strings.Cut(rest, " ")
	if !strings.HasPrefix(name, "$") || len(name) < 2 {
		p.warn(file, num, "malformed #define %q", rest)
		return
	}
	if p.defines == nil {
		p.defines = make(map[string]string)
	}
	if _, ok := p.defines[name]; !ok {
		p.keys = append(p.keys, name)
		sort.SliceStable(p.keys, func(i, j int) bool { return len(p.keys[i]) > len(p.keys[j]) })
	}
	p.defines[name] = strings.TrimSpace(p.substitute(value))
}

func (p *preprocessor) substitute(s string) string {
	if len(p.keys) == 0 || !strings.Contains(s, "$") {
		return s
	}
	for _, k := range p.keys {
		s = strings.ReplaceAll(s, k, p.defines[k])
	}
	return s
}

func (p *preprocessor) include(file string, num int, rest string, depth int) {
	name := strings.Trim(p.substitute(rest), "\"' \t")
	if name == "" {
		p.warn(file, num, "empty #include")
		return
	}
	if depth >= maxIncludeDepth {
		p.warn(file, num, "#include %q nested deeper than %d", name, maxIncludeDepth)
		return
	}
	if p.fsys == nil {
		p.warn(file, num, "#include %q: no file system", name)
		return
	}
	target := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	data, err := fs.ReadFile(p.fsys, target)
	if err != nil {
		p.warn(file, num, "#include %q: %v", name, err)
		return
	}
	p.run(target, data, depth+1)
}

func (p *preprocessor) warn(file string, num int, format string, args ...any) {
	p.warnings = append(p.warnings, Warning{File: file, Line: num, Msg: fmt.Sprintf(format, args...)})
}
