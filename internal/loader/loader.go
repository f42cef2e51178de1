// Package loader reads instrument definitions from disk, decodes the
// samples they reference and builds playable instruments.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cbegin/samplo/internal/decode"
	"github.com/cbegin/samplo/internal/instrument"
	"github.com/cbegin/samplo/internal/jsondef"
	"github.com/cbegin/samplo/internal/logger"
	"github.com/cbegin/samplo/internal/sf2"
	"github.com/cbegin/samplo/internal/sfz"
)

var (
	ErrUnknownFormat = errors.New("loader: unknown instrument format")
	// ErrNoRegions reports an instrument whose every region was dropped.
	ErrNoRegions = errors.New("loader: no playable regions")
)

// Format is an instrument definition format.
type Format int

const (
	FormatSFZ Format = iota
	FormatJSON
	FormatSF2
)

func (f Format) String() string {
	switch f {
	case FormatSFZ:
		return sfz.Format
	case FormatJSON:
		return jsondef.Format
	case FormatSF2:
		return sf2.Format
	default:
		return "unknown"
	}
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sfz":
		return FormatSFZ, nil
	case ".json":
		return FormatJSON, nil
	case ".sf2":
		return FormatSF2, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// IsInstrumentFile reports whether path has a loadable extension.
func IsInstrumentFile(path string) bool {
	_, err := FormatOf(path)
	return err == nil
}

// ParseOptions configures Parse.
type ParseOptions struct {
	// FS resolves SFZ #include directives.
	FS fs.FS
	// Dir is prepended to relative sample paths.
	Dir string
	// File names the source in warnings.
	File string
	// Name labels the instrument when the definition carries none.
	Name string
	// Instrument selects a SoundFont instrument by name.
	Instrument string
}

// Definition is a parsed instrument whose samples may not be loaded yet.
type Definition struct {
	Name     string
	Format   Format
	Regions  []instrument.Region
	Warnings []string
}

// Parse converts src without touching sample data.
func Parse(src []byte, format Format, opts ParseOptions) (*Definition, error) {
	def := &Definition{Name: opts.Name, Format: format}
	switch format {
	case FormatSFZ:
		res, err := sfz.Parse(src, sfz.Options{FS: opts.FS, Dir: opts.Dir, File: opts.File})
		if err != nil {
			return nil, err
		}
		def.Regions = res.Regions
		for _, w := range res.Warnings {
			def.Warnings = append(def.Warnings, w.String())
		}
	case FormatJSON:
		name, regions, err := jsondef.Parse(src, opts.Dir)
		if err != nil {
			return nil, err
		}
		if name != "" {
			def.Name = name
		}
		def.Regions = regions
	case FormatSF2:
		res, err := sf2.Import(bytes.NewReader(src), opts.Instrument)
		if err != nil {
			return nil, err
		}
		if res.Name != "" {
			def.Name = res.Name
		}
		def.Regions = res.Regions
	default:
		return nil, ErrUnknownFormat
	}
	return def, nil
}

// Result is a built instrument plus what was dropped on the way.
type Result struct {
	Instrument *instrument.Instrument
	Dropped    []*instrument.RegionError
	Warnings   []string
}

// Option configures a Loader.
type Option func(*Loader)

// WithDecoder replaces the sample decoder.
func WithDecoder(d decode.Decoder) Option {
	return func(l *Loader) { l.decoder = d }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// WithConcurrency bounds the number of samples decoded at once.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// Loader builds instruments from files.
type Loader struct {
	decoder     decode.Decoder
	log         *slog.Logger
	concurrency int
}

// New returns a Loader reading samples from the local file system.
func New(opts ...Option) *Loader {
	l := &Loader{
		decoder:     decode.FileDecoder{},
		log:         logger.Get(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load parses the definition at path and builds it.
func (l *Loader) Load(ctx context.Context, path string) (*Result, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	def, err := Parse(src, format, ParseOptions{FS: os.DirFS(dir), Dir: dir, File: filepath.Base(path), Name: name})
	if err != nil {
		l.log.Error("instrument parse failed", "path", path, "error", err)
		return nil, err
	}
	return l.Build(ctx, def)
}

// Build decodes every referenced sample concurrently, binds the data to
// the regions and constructs the instrument. Regions whose sample fails to
// decode are dropped and reported in Result.Dropped.
func (l *Loader) Build(ctx context.Context, def *Definition) (*Result, error) {
	start := time.Now()
	samples, err := l.decodeAll(ctx, def.Regions)
	if err != nil {
		return nil, err
	}

	res := &Result{Warnings: def.Warnings}
	bound := make([]instrument.Region, 0, len(def.Regions))
	origin := make([]int, 0, len(def.Regions))
	for i, r := range def.Regions {
		if r.Data == nil && r.Sample != "" {
			d := samples[r.Sample]
			if d.err != nil {
				res.Dropped = append(res.Dropped, &instrument.RegionError{
					Index:  i,
					Sample: r.Sample,
					Err:    fmt.Errorf("%w: %v", instrument.ErrMissingSample, d.err),
				})
				continue
			}
			r.Data = d.sample
		}
		bound = append(bound, r)
		origin = append(origin, i)
	}

	inst, errs := instrument.New(def.Name, bound)
	for _, e := range errs {
		e.Index = origin[e.Index]
		res.Dropped = append(res.Dropped, e)
	}
	for _, w := range def.Warnings {
		l.log.Warn("instrument definition", "name", def.Name, "warning", w)
	}
	for _, d := range res.Dropped {
		l.log.Warn("region dropped", "name", def.Name, "index", d.Index, "sample", d.Sample, "error", d.Err)
	}
	if inst.Len() == 0 {
		return res, fmt.Errorf("%w: %s (%d dropped)", ErrNoRegions, def.Name, len(res.Dropped))
	}
	res.Instrument = inst
	l.log.Info("instrument loaded",
		"name", inst.Name,
		"id", inst.ID,
		"format", def.Format,
		"regions", inst.Len(),
		"samples", len(samples),
		"dropped", len(res.Dropped),
		"elapsed", time.Since(start))
	return res, nil
}

type decoded struct {
	sample *instrument.Sample
	err    error
}

func (l *Loader) decodeAll(ctx context.Context, regions []instrument.Region) (map[string]decoded, error) {
	var paths []string
	seen := make(map[string]struct{})
	for i := range regions {
		p := regions[i].Sample
		if regions[i].Data != nil || p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}

	var mu sync.Mutex
	out := make(map[string]decoded, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := l.decoder.Decode(p)
			mu.Lock()
			out[p] = decoded{sample: s, err: err}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
