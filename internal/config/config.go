package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultPersona = `You are KITT, the Knight Industries Two Thousand, an advanced AI riding along with the driver.
You are loyal, witty but precise.
You speak casually, with mild slang, light sarcasm and friendly banter.
You are also factual.
Keep a natural spoken rhythm, never robotic, and keep answers short enough to say out loud.`

type Recorder struct {
	MaxDuration     time.Duration `yaml:"max_duration"`
	SilenceDuration time.Duration `yaml:"silence_duration"`
	VolumeThreshold float64       `yaml:"volume_threshold"`
	SampleRate      int           `yaml:"sample_rate"`
	FrameSize       int           `yaml:"frame_size"`
	Chime           bool          `yaml:"chime"`
}

type Wake struct {
	Enabled bool `yaml:"enabled"`
	// Pattern is matched case-insensitively against the running segment text.
	Pattern string `yaml:"pattern"`
	// Prompt biases the ambient recognizer toward the wake phrase.
	Prompt       string        `yaml:"prompt"`
	ModelPath    string        `yaml:"model_path"`
	Language     string        `yaml:"language"`
	Hop          time.Duration `yaml:"hop"`
	MaxSegment   time.Duration `yaml:"max_segment"`
	RestartDelay time.Duration `yaml:"restart_delay"`
}

type Chat struct {
	Model      string `yaml:"model"`
	Persona    string `yaml:"persona"`
	HistoryCap int    `yaml:"history_cap"`
}

type Speech struct {
	// Transcriber is "openai" or "whisper".
	Transcriber        string `yaml:"transcriber"`
	TranscriptionModel string `yaml:"transcription_model"`
	WhisperModel       string `yaml:"whisper_model"`
	SynthesisModel     string `yaml:"synthesis_model"`
	Voice              string `yaml:"voice"`
}

type Directions struct {
	BaseURL  string `yaml:"base_url"`
	MaxSteps int    `yaml:"max_steps"`
}

// Phrases are the fixed sentences KITT speaks outside of chat replies.
// Templates use fmt verbs in the documented order.
type Phrases struct {
	Online         string `yaml:"online"`
	Listening      string `yaml:"listening"`
	DidNotCatch    string `yaml:"did_not_catch"`
	Failure        string `yaml:"failure"`
	PlotCourse     string `yaml:"plot_course"` // origin, destination
	NoDirections   string `yaml:"no_directions"`
	RouteFound     string `yaml:"route_found"`
	Step           string `yaml:"step"` // instruction, distance
	ContinuePrompt string `yaml:"continue_prompt"`
}

type Playback struct {
	LevelInterval time.Duration `yaml:"level_interval"`
	DecayInterval time.Duration `yaml:"decay_interval"`
	Duck          bool          `yaml:"duck"`
	DuckFactor    float64       `yaml:"duck_factor"`
	DuckFade      time.Duration `yaml:"duck_fade"`
}

type Display struct {
	Addr            string `yaml:"addr"`
	TranscriptLines int    `yaml:"transcript_lines"`
}

type Network struct {
	Proxy   string        `yaml:"proxy"`
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	Recorder   Recorder   `yaml:"recorder"`
	Wake       Wake       `yaml:"wake"`
	Chat       Chat       `yaml:"chat"`
	Speech     Speech     `yaml:"speech"`
	Directions Directions `yaml:"directions"`
	Phrases    Phrases    `yaml:"phrases"`
	Playback   Playback   `yaml:"playback"`
	Display    Display    `yaml:"display"`
	Network    Network    `yaml:"network"`
	Socket     string     `yaml:"socket"`

	OpenAIKey string `yaml:"-"`
	MapsKey   string `yaml:"-"`
}

func Default() Config {
	return Config{
		Recorder: Recorder{
			MaxDuration:     7 * time.Second,
			SilenceDuration: 1200 * time.Millisecond,
			VolumeThreshold: 0.02,
			SampleRate:      16000,
			FrameSize:       320, // 20ms
			Chime:           true,
		},
		Wake: Wake{
			Enabled:      true,
			Pattern:      `\bhey kitt\b|\bhey kit\b|\byo kitt\b`,
			Prompt:       "Hey KITT.",
			ModelPath:    "third_party/whisper.cpp/models/ggml-base.en.bin",
			Language:     "en",
			Hop:          1500 * time.Millisecond,
			MaxSegment:   6 * time.Second,
			RestartDelay: 250 * time.Millisecond,
		},
		Chat: Chat{
			Model:      "gpt-4o-mini",
			Persona:    defaultPersona,
			HistoryCap: 40,
		},
		Speech: Speech{
			Transcriber:        "openai",
			TranscriptionModel: "gpt-4o-mini-transcribe",
			WhisperModel:       "third_party/whisper.cpp/models/ggml-medium.bin",
			SynthesisModel:     "gpt-4o-mini-tts",
			Voice:              "alloy",
		},
		Directions: Directions{
			BaseURL:  "https://maps.googleapis.com/maps/api/directions/json",
			MaxSteps: 3,
		},
		Phrases: Phrases{
			Online:         "Online and waiting for your wake phrase.",
			Listening:      "I'm listening…",
			DidNotCatch:    "I didn't catch that.",
			Failure:        "Something went wrong capturing that.",
			PlotCourse:     "Plotting a course from %s to %s.",
			NoDirections:   "I couldn't retrieve directions.",
			RouteFound:     "I have the route. Here's the first few steps.",
			Step:           "%s. Then %s.",
			ContinuePrompt: "Say 'Hey KITT, continue' when you're ready for the next steps.",
		},
		Playback: Playback{
			LevelInterval: 100 * time.Millisecond,
			DecayInterval: 300 * time.Millisecond,
			Duck:          false,
			DuckFactor:    0.3,
			DuckFade:      250 * time.Millisecond,
		},
		Display: Display{
			Addr:            "127.0.0.1:8093",
			TranscriptLines: 10,
		},
		Network: Network{
			Timeout: 30 * time.Second,
		},
		Socket: "/tmp/kitt.sock",
	}
}

// Load reads an optional YAML file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv copies credentials and KITT_* overrides from getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	c.OpenAIKey = getenv("OPENAI_API_KEY")
	c.MapsKey = getenv("GOOGLE_MAPS_KEY")

	str := map[string]*string{
		"KITT_WAKE_PATTERN":  &c.Wake.Pattern,
		"KITT_WAKE_MODEL":    &c.Wake.ModelPath,
		"KITT_PERSONA":       &c.Chat.Persona,
		"KITT_CHAT_MODEL":    &c.Chat.Model,
		"KITT_TRANSCRIBER":   &c.Speech.Transcriber,
		"KITT_WHISPER_MODEL": &c.Speech.WhisperModel,
		"KITT_VOICE":         &c.Speech.Voice,
		"KITT_PROXY":         &c.Network.Proxy,
		"KITT_DASH_ADDR":     &c.Display.Addr,
		"KITT_SOCKET":        &c.Socket,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("KITT_VOLUME_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("KITT_VOLUME_THRESHOLD: %w", err)
		}
		c.Recorder.VolumeThreshold = f
	}
	if v := getenv("KITT_HISTORY_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KITT_HISTORY_CAP: %w", err)
		}
		c.Chat.HistoryCap = n
	}

	return nil
}

// minInterval keeps tickers and restart loops from spinning.
const minInterval = 10 * time.Millisecond

func (c *Config) Validate() error {
	var errs []error

	r := c.Recorder
	if r.VolumeThreshold <= 0 || r.VolumeThreshold > 1 {
		errs = append(errs, fmt.Errorf("recorder.volume_threshold %v out of (0,1]", r.VolumeThreshold))
	}
	if r.MaxDuration < time.Second || r.MaxDuration > time.Minute {
		errs = append(errs, fmt.Errorf("recorder.max_duration %v out of [1s,60s]", r.MaxDuration))
	}
	if r.SilenceDuration < 100*time.Millisecond || r.SilenceDuration >= r.MaxDuration {
		errs = append(errs, fmt.Errorf("recorder.silence_duration %v out of [100ms,max_duration)", r.SilenceDuration))
	}
	if r.SampleRate <= 0 || r.FrameSize <= 0 {
		errs = append(errs, errors.New("recorder.sample_rate and recorder.frame_size must be positive"))
	}

	if _, err := regexp.Compile("(?i)" + c.Wake.Pattern); err != nil || c.Wake.Pattern == "" {
		errs = append(errs, fmt.Errorf("wake.pattern %q does not compile", c.Wake.Pattern))
	}

	for name, d := range map[string]time.Duration{
		"wake.hop":                c.Wake.Hop,
		"wake.max_segment":        c.Wake.MaxSegment,
		"wake.restart_delay":      c.Wake.RestartDelay,
		"playback.level_interval": c.Playback.LevelInterval,
		"playback.decay_interval": c.Playback.DecayInterval,
	} {
		if d < minInterval {
			errs = append(errs, fmt.Errorf("%s %v below %v", name, d, minInterval))
		}
	}

	if c.Chat.HistoryCap < 2 || c.Chat.HistoryCap > 1000 {
		errs = append(errs, fmt.Errorf("chat.history_cap %d out of [2,1000]", c.Chat.HistoryCap))
	}
	if c.Display.TranscriptLines < 1 || c.Display.TranscriptLines > 100 {
		errs = append(errs, fmt.Errorf("display.transcript_lines %d out of [1,100]", c.Display.TranscriptLines))
	}
	if c.Network.Timeout < time.Second || c.Network.Timeout > 5*time.Minute {
		errs = append(errs, fmt.Errorf("network.timeout %v out of [1s,5m]", c.Network.Timeout))
	}
	if c.Directions.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("directions.max_steps %d must be >= 1", c.Directions.MaxSteps))
	}

	switch c.Speech.Transcriber {
	case "openai", "whisper":
	default:
		errs = append(errs, fmt.Errorf("speech.transcriber %q must be openai or whisper", c.Speech.Transcriber))
	}

	return errors.Join(errs...)
}

// WakeRegexp compiles the wake pattern case-insensitively.
func (c *Config) WakeRegexp() (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + c.Wake.Pattern)
}
