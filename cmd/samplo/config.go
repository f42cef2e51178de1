package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cbegin/samplo/internal/dsp"
	"github.com/cbegin/samplo/internal/logger"
)

// envInstruments names the instrument directory when -instruments is unset.
const envInstruments = "SAMPLO_INSTRUMENTS"

type config struct {
	instruments string
	instrument  string
	index       int
	midiPath    string
	out         string
	sampleRate  int
	bitDepth    int
	gain        float64
	voices      int
	filter      dsp.FilterMode
	cutoff      float64
	resonance   float64
	vibrato     float64
	vibratoRate float64
	channel     int
	transpose   int
	loop        bool
	loops       int
	logLevel    string
	list        bool
	response    bool
}

func parseArgs(args []string, stderr io.Writer) (*config, error) {
	fs := flag.NewFlagSet("samplo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg := &config{}
	var filter string
	fs.StringVar(&cfg.instruments, "instruments", "", "instrument directory (default $"+envInstruments+")")
	fs.StringVar(&cfg.instrument, "instrument", "", "instrument file, or a library entry name")
	fs.IntVar(&cfg.index, "index", 0, "library entry to play when -instrument is unset (clamped)")
	fs.StringVar(&cfg.midiPath, "midi", "", "Standard MIDI File to play (default: a demo arpeggio)")
	fs.StringVar(&cfg.out, "out", "", "render offline to this WAV file instead of the audio device")
	fs.IntVar(&cfg.sampleRate, "sample-rate", 48000, "output sample rate")
	fs.IntVar(&cfg.bitDepth, "bit-depth", 24, "WAV bit depth for -out: 16, 24 or 32 (float)")
	fs.Float64Var(&cfg.gain, "gain", 0.8, "master gain 0..1")
	fs.IntVar(&cfg.voices, "voices", 32, "polyphony limit 1..64")
	fs.StringVar(&filter, "filter", "off", "voice filter: off|lp|hp|bp")
	fs.Float64Var(&cfg.cutoff, "cutoff", 8000, "filter cutoff in Hz")
	fs.Float64Var(&cfg.resonance, "resonance", 0.5, "filter Q 0.1..4")
	fs.Float64Var(&cfg.vibrato, "vibrato", 0, "vibrato depth in cents 0..100")
	fs.Float64Var(&cfg.vibratoRate, "vibrato-rate", 5.5, "vibrato rate in Hz")
	fs.IntVar(&cfg.channel, "channel", -1, "MIDI channel 0-15 to play from -midi (-1 = all)")
	fs.IntVar(&cfg.transpose, "transpose", 0, "transpose -midi notes by semitones")
	fs.BoolVar(&cfg.loop, "loop", false, "loop playback; use with -loops to count then stop")
	fs.IntVar(&cfg.loops, "loops", 3, "when -loop, stop after N loops (0 = loop forever)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.list, "list", false, "list the instrument library and exit")
	fs.BoolVar(&cfg.response, "filter-response", false, "print the voice filter magnitude response and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 && cfg.instrument == "" {
		cfg.instrument = fs.Arg(0)
	}
	if cfg.instruments == "" {
		cfg.instruments = os.Getenv(envInstruments)
	}

	mode, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}
	cfg.filter = mode
	if _, err := logger.ParseLevel(cfg.logLevel); err != nil {
		return nil, err
	}
	if cfg.sampleRate < 8000 || cfg.sampleRate > 192000 {
		return nil, fmt.Errorf("invalid -sample-rate %d (expected 8000..192000)", cfg.sampleRate)
	}
	switch cfg.bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("invalid -bit-depth %d (expected 16|24|32)", cfg.bitDepth)
	}
	if cfg.channel < -1 || cfg.channel > 15 {
		return nil, fmt.Errorf("invalid -channel %d (expected -1..15)", cfg.channel)
	}
	return cfg, nil
}

func parseFilter(name string) (dsp.FilterMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "off", "none":
		return dsp.FilterOff, nil
	case "lp", "lowpass":
		return dsp.LowPass, nil
	case "hp", "highpass":
		return dsp.HighPass, nil
	case "bp", "bandpass":
		return dsp.BandPass, nil
	default:
		return dsp.FilterOff, fmt.Errorf("invalid -filter %q (expected off|lp|hp|bp)", name)
	}
}
