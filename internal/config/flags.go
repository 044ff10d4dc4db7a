package config

import (
	"time"

	cli "github.com/spf13/pflag"
)

// Flags holds command-line overrides. Only flags the user actually set
// are copied onto a loaded Config, so YAML and env values survive.
type Flags struct {
	fs    *cli.FlagSet
	v     Config
	apply map[string]func(dst *Config)
}

func RegisterFlags(fs *cli.FlagSet) *Flags {
	f := &Flags{fs: fs, v: Default(), apply: map[string]func(*Config){}}

	f.duration("max-duration", "Hard ceiling for one utterance", &f.v.Recorder.MaxDuration, func(c *Config) *time.Duration { return &c.Recorder.MaxDuration })
	f.duration("silence", "Silence that ends an utterance", &f.v.Recorder.SilenceDuration, func(c *Config) *time.Duration { return &c.Recorder.SilenceDuration })
	f.float("threshold", "Volume threshold in (0,1]", &f.v.Recorder.VolumeThreshold, func(c *Config) *float64 { return &c.Recorder.VolumeThreshold })
	f.boolean("wake", "Enable the wake-phrase monitor", &f.v.Wake.Enabled, func(c *Config) *bool { return &c.Wake.Enabled })
	f.str("wake-pattern", "Wake phrase regular expression", &f.v.Wake.Pattern, func(c *Config) *string { return &c.Wake.Pattern })
	f.str("wake-model", "Whisper model for wake listening", &f.v.Wake.ModelPath, func(c *Config) *string { return &c.Wake.ModelPath })
	f.str("transcriber", "Transcriber: openai or whisper", &f.v.Speech.Transcriber, func(c *Config) *string { return &c.Speech.Transcriber })
	f.str("voice", "Speech synthesis voice", &f.v.Speech.Voice, func(c *Config) *string { return &c.Speech.Voice })
	f.integer("history", "Chat history cap", &f.v.Chat.HistoryCap, func(c *Config) *int { return &c.Chat.HistoryCap })
	f.boolean("duck", "Duck other audio while speaking", &f.v.Playback.Duck, func(c *Config) *bool { return &c.Playback.Duck })
	f.str("dash", "Display hub listen address", &f.v.Display.Addr, func(c *Config) *string { return &c.Display.Addr })
	f.strP("proxy", "p", "SOCKS5 proxy address", &f.v.Network.Proxy, func(c *Config) *string { return &c.Network.Proxy })
	f.duration("timeout", "Timeout for remote calls", &f.v.Network.Timeout, func(c *Config) *time.Duration { return &c.Network.Timeout })
	f.str("socket", "Control socket path", &f.v.Socket, func(c *Config) *string { return &c.Socket })

	return f
}

// Apply copies every flag that was set on the command line onto dst.
func (f *Flags) Apply(dst *Config) {
	f.fs.Visit(func(fl *cli.Flag) {
		if fn, ok := f.apply[fl.Name]; ok {
			fn(dst)
		}
	})
}

func (f *Flags) duration(name, usage string, p *time.Duration, field func(*Config) *time.Duration) {
	f.fs.DurationVar(p, name, *p, usage)
	f.apply[name] = func(c *Config) { *field(c) = *p }
}

func (f *Flags) float(name, usage string, p *float64, field func(*Config) *float64) {
	f.fs.Float64Var(p, name, *p, usage)
	f.apply[name] = func(c *Config) { *field(c) = *p }
}

func (f *Flags) integer(name, usage string, p *int, field func(*Config) *int) {
	f.fs.IntVar(p, name, *p, usage)
	f.apply[name] = func(c *Config) { *field(c) = *p }
}

func (f *Flags) boolean(name, usage string, p *bool, field func(*Config) *bool) {
	f.fs.BoolVar(p, name, *p, usage)
	f.apply[name] = func(c *Config) { *field(c) = *p }
}

func (f *Flags) str(name, usage string, p *string, field func(*Config) *string) {
	f.strP(name, "", usage, p, field)
}

func (f *Flags) strP(name, short, usage string, p *string, field func(*Config) *string) {
	f.fs.StringVarP(p, name, short, *p, usage)
	f.apply[name] = func(c *Config) { *field(c) = *p }
}
