// Package library finds instrument definitions on disk.
package library

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cbegin/samplo/internal/loader"
)

// ErrEmpty reports a library with no instrument files.
var ErrEmpty = errors.New("library: no instruments found")

// Entry is one instrument file.
type Entry struct {
	Name   string
	Path   string
	Format loader.Format
}

// Library is a sorted list of instrument files.
type Library struct {
	entries []Entry
}

// Scan lists instrument files directly inside each dir and inside its
// immediate subdirectories. Unreadable directories are logged and skipped.
func Scan(log *slog.Logger, dirs ...string) (*Library, error) {
	if log == nil {
		log = slog.Default()
	}
	var paths []string
	for _, dir := range dirs {
		found, err := scanDir(os.DirFS(dir), 1)
		if err != nil {
			log.Warn("instrument directory unreadable", "dir", dir, "error", err)
			continue
		}
		for _, p := range found {
			paths = append(paths, filepath.Join(dir, filepath.FromSlash(p)))
		}
	}
	slices.Sort(paths)
	paths = slices.Compact(paths)
	if len(paths) == 0 {
		return nil, ErrEmpty
	}
	lib := &Library{entries: make([]Entry, 0, len(paths))}
	for _, p := range paths {
		format, _ := loader.FormatOf(p)
		base := filepath.Base(p)
		lib.entries = append(lib.entries, Entry{
			Name:   strings.TrimSuffix(base, filepath.Ext(base)),
			Path:   p,
			Format: format,
		})
	}
	log.Info("instrument library scanned", "dirs", dirs, "instruments", len(lib.entries))
	return lib, nil
}

// scanDir returns slash-separated paths relative to the root of fsys.
func scanDir(fsys fs.FS, depth int) ([]string, error) {
	var out []string
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			name := e.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			p := name
			if dir != "." {
				p = dir + "/" + name
			}
			if e.IsDir() {
				if depth > 0 {
					// A bad subdirectory does not spoil the rest.
					_ = walk(p, depth-1)
				}
				continue
			}
			if loader.IsInstrumentFile(name) {
				out = append(out, p)
			}
		}
		return nil
	}
	if err := walk(".", depth); err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of instruments.
func (l *Library) Len() int { return len(l.entries) }

// Entries returns the instruments in sorted order.
func (l *Library) Entries() []Entry { return l.entries }

// At returns the entry at index, clamped into range.
func (l *Library) At(index int) Entry {
	return l.entries[l.Clamp(index)]
}

// Clamp maps any index onto a valid position.
func (l *Library) Clamp(index int) int {
	return min(max(index, 0), len(l.entries)-1)
}

// Find returns the index of the first entry whose name matches,
// case-insensitively, or -1.
func (l *Library) Find(name string) int {
	for i, e := range l.entries {
		if strings.EqualFold(e.Name, name) || e.Path == name {
			return i
		}
	}
	return -1
}
