package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"

	"github.com/cbegin/samplo"
	"github.com/cbegin/samplo/internal/dsp"
	"github.com/cbegin/samplo/internal/engine"
	"github.com/cbegin/samplo/internal/instrument"
	"github.com/cbegin/samplo/internal/library"
	"github.com/cbegin/samplo/internal/loader"
	"github.com/cbegin/samplo/internal/logger"
	"github.com/cbegin/samplo/internal/midifile"
	"github.com/cbegin/samplo/internal/sequence"
)

func main() {
	cfg, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logger.Init(cfg.logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfg, os.Stdout, logger.Get()); err != nil {
		logger.Get().Error("samplo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config, stdout io.Writer, log *slog.Logger) error {
	params := engineParams(cfg)
	if cfg.response {
		return printFilterResponse(stdout, params, cfg.sampleRate)
	}

	var lib *library.Library
	if cfg.instruments != "" {
		var err error
		lib, err = library.Scan(log, cfg.instruments)
		if err != nil && !errors.Is(err, library.ErrEmpty) {
			return err
		}
	}
	if cfg.list {
		if lib == nil {
			return library.ErrEmpty
		}
		for i, e := range lib.Entries() {
			fmt.Fprintf(stdout, "%3d  %-24s %-5s %s\n", i, e.Name, e.Format, e.Path)
		}
		return nil
	}

	inst, err := resolveInstrument(ctx, cfg, lib, loader.New(loader.WithLogger(log)), log)
	if err != nil {
		return err
	}
	events, err := resolveEvents(cfg)
	if err != nil {
		return err
	}

	if cfg.out != "" {
		return renderToFile(cfg, inst, events, params, log)
	}
	return playLive(ctx, cfg, inst, events, params, log, stdout)
}

func engineParams(cfg *config) engine.Params {
	p := engine.DefaultParams()
	p.MasterGain = cfg.gain
	p.MaxVoices = cfg.voices
	p.Filter = cfg.filter
	p.Cutoff = cfg.cutoff
	p.Resonance = cfg.resonance
	p.VibratoCents = cfg.vibrato
	p.VibratoRate = cfg.vibratoRate
	return p.Clamped()
}

// resolveInstrument picks, in order: an explicit file, a library entry by
// name or index, and finally the built-in test sine.
func resolveInstrument(ctx context.Context, cfg *config, lib *library.Library, ld *loader.Loader, log *slog.Logger) (*instrument.Instrument, error) {
	path := cfg.instrument
	if path != "" && lib != nil {
		if i := lib.Find(path); i >= 0 {
			path = lib.At(i).Path
		}
	}
	if path == "" && lib != nil {
		path = lib.At(cfg.index).Path
	}
	if path == "" {
		log.Warn("no instrument given, using test instrument")
		return loader.TestInstrument(cfg.sampleRate), nil
	}
	res, err := ld.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return res.Instrument, nil
}

func resolveEvents(cfg *config) ([]sequence.TimedEvent, error) {
	if cfg.midiPath == "" {
		return demoArpeggio(cfg.sampleRate), nil
	}
	return midifile.Load(cfg.midiPath, cfg.sampleRate, midifile.Options{
		Channel:   cfg.channel,
		Transpose: cfg.transpose,
	})
}

// demoArpeggio plays an A minor arpeggio up and down, then the chord.
func demoArpeggio(sampleRate int) []sequence.TimedEvent {
	notes := []uint8{57, 60, 64, 69, 72, 69, 64, 60}
	step := int64(sampleRate / 6)
	var out []sequence.TimedEvent
	add := func(frame int64, kind engine.Kind, note, vel uint8) {
		out = append(out, sequence.TimedEvent{Frame: frame, Event: engine.Event{Kind: kind, Note: note, Velocity: vel, NoteID: -1}})
	}
	for i, n := range notes {
		at := int64(i) * step
		add(at, engine.NoteOn, n, uint8(70+5*(i%4)))
		add(at+step*3/4, engine.NoteOff, n, 0)
	}
	chord := int64(len(notes)) * step
	for _, n := range []uint8{57, 64, 69, 72} {
		add(chord, engine.NoteOn, n, 90)
		add(chord+int64(sampleRate), engine.NoteOff, n, 0)
	}
	return out
}

func renderToFile(cfg *config, inst *instrument.Instrument, events []sequence.TimedEvent, params engine.Params, log *slog.Logger) error {
	opts := samplo.DefaultRenderOptions(cfg.sampleRate)
	opts.Params = params
	samples := samplo.RenderEvents(inst, events, cfg.sampleRate, opts)
	f, err := os.Create(cfg.out)
	if err != nil {
		return err
	}
	if err := samplo.WriteWAV(f, samples, cfg.sampleRate, cfg.bitDepth); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info("rendered",
		"path", cfg.out,
		"instrument", inst.Name,
		"frames", len(samples)/2,
		"seconds", float64(len(samples)/2)/float64(cfg.sampleRate))
	return nil
}

func playLive(ctx context.Context, cfg *config, inst *instrument.Instrument, events []sequence.TimedEvent, params engine.Params, log *slog.Logger, stdout io.Writer) error {
	pl, err := samplo.NewPlayer(cfg.sampleRate,
		samplo.WithParams(params),
		samplo.WithLogger(log),
		samplo.WithStopAtEnd(!cfg.loop))
	if err != nil {
		return err
	}
	pl.SetInstrument(inst)
	ch := pl.Watch()
	if err := pl.PlaySequence(events, cfg.loop); err != nil {
		return err
	}
	defer pl.Stop()

	// Watch drops events when full, so the end is also observed through Wait.
	ended := make(chan struct{})
	go func() {
		pl.Wait()
		close(ended)
	}()

	loopCount := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			fmt.Fprintln(stdout, "playback completed")
			return nil
		case event := <-ch:
			switch event.Kind {
			case samplo.EventPlaybackEnded:
				fmt.Fprintln(stdout, "playback completed")
				return nil
			case samplo.EventLoopCompleted:
				loopCount++
				fmt.Fprintf(stdout, "loop %d completed\n", loopCount)
				if cfg.loop && cfg.loops > 0 && loopCount >= cfg.loops {
					return nil
				}
			}
		}
	}
}

// printFilterResponse prints the measured and ideal magnitude of the voice
// filter at octave-spaced frequencies.
func printFilterResponse(w io.Writer, p engine.Params, sampleRate int) error {
	mode := p.Filter
	if mode == dsp.FilterOff {
		mode = dsp.LowPass
	}
	f := dsp.NewSVF(mode, p.Cutoff, p.Resonance, float64(sampleRate))
	bins := dsp.MagnitudeResponse(dsp.ImpulseResponse(f, 8192))
	fmt.Fprintf(w, "%s cutoff=%.0fHz q=%.2f sr=%d\n", mode, p.Cutoff, p.Resonance, sampleRate)
	fmt.Fprintf(w, "%10s %10s %10s\n", "Hz", "measured", "ideal")
	for hz := 31.25; hz < float64(sampleRate)/2; hz *= 2 {
		norm := hz / float64(sampleRate)
		b := bins[int(math.Round(norm*float64(len(bins)-1)*2))]
		fmt.Fprintf(w, "%10.1f %9.2fdB %9.2fdB\n", hz, db(b.Magnitude), db(dsp.AnalyticResponse(f, b.Freq)))
	}
	return nil
}

func db(v float64) float64 {
	return 20 * math.Log10(math.Max(v, 1e-12))
}
