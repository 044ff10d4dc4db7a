package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"kitt/internal/audio"
	"kitt/internal/config"
	"kitt/internal/dash"
	"kitt/internal/gateway"
	"kitt/internal/ipc"
	"kitt/internal/notify"
	"kitt/internal/playback"
	"kitt/internal/proxy"
	"kitt/internal/turn"
	"kitt/internal/wake"
	"kitt/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

const speakerRate = 44100

func main() {
	cfgFile := cli.StringP("config", "c", "", "YAML config file")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	flags := config.RegisterFlags(cli.CommandLine)
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if err := godotenv.Load(*envFile); err != nil {
		log.Debug("No env file", "path", *envFile)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Error("Bad environment", "err", err)
		os.Exit(1)
	}
	flags.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}
	if cfg.OpenAIKey == "" {
		log.Error("OPENAI_API_KEY not set")
		os.Exit(1)
	}
	if cfg.MapsKey == "" {
		log.Warn("GOOGLE_MAPS_KEY not set, directions will fail")
	}

	log.Debug("Loaded config")

	httpClient, err := proxy.NewHTTPClient(cfg.Network.Proxy, cfg.Network.Timeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Network.Proxy, "err", err)
		os.Exit(1)
	}

	chatClient := openai.NewClient(
		option.WithAPIKey(cfg.OpenAIKey),
		option.WithHTTPClient(httpClient),
	)
	audioCfg := goopenai.DefaultConfig(cfg.OpenAIKey)
	audioCfg.HTTPClient = httpClient
	audioClient := goopenai.NewClientWithConfig(audioCfg)

	mic := audio.NewPortAudio()
	if err := mic.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer mic.Close()

	log.Debug("Loaded audio")

	var recognizer wake.Recognizer
	wakeSTT, err := stt.NewTranscriber(cfg.Wake.ModelPath)
	if err != nil {
		log.Warn("Wake model not loaded", "path", cfg.Wake.ModelPath, "err", err)
	} else {
		defer wakeSTT.Close()
		recognizer = &wake.WhisperRecognizer{
			Capture:    mic,
			STT:        wakeSTT,
			SampleRate: cfg.Recorder.SampleRate,
			FrameSize:  cfg.Recorder.FrameSize,
			Threshold:  cfg.Recorder.VolumeThreshold,
			Hop:        cfg.Wake.Hop,
			MaxSegment: cfg.Wake.MaxSegment,
			Language:   cfg.Wake.Language,
			Prompt:     cfg.Wake.Prompt,
		}
	}

	var transcriber turn.Transcriber = gateway.NewOpenAITranscriber(audioClient, cfg.Speech.TranscriptionModel)
	if cfg.Speech.Transcriber == "whisper" {
		local := wakeSTT
		if local == nil || cfg.Speech.WhisperModel != cfg.Wake.ModelPath {
			if local, err = stt.NewTranscriber(cfg.Speech.WhisperModel); err != nil {
				log.Error("Failed to init whisper", "err", err)
				os.Exit(1)
			}
			defer local.Close()
		}
		transcriber = gateway.NewWhisperTranscriber(local, cfg.Wake.Language)
	}

	log.Debug("Loaded speech recognition")

	hub := dash.NewHub(cfg.Display.TranscriptLines)

	var seqOpts []playback.Option
	if cfg.Playback.Duck {
		seqOpts = append(seqOpts, playback.WithDucker(
			audio.NewDucker([]string{"kitt-daemon"}, cfg.Playback.DuckFactor, cfg.Playback.DuckFade),
		))
	}
	seq := playback.NewSequencer(playback.NewSpeakerPlayer(speakerRate), seqOpts...)
	meter := playback.NewMeter(cfg.Playback.LevelInterval, cfg.Playback.DecayInterval, seq.Speaking, func(l playback.Levels) {
		hub.Levels(l)
	})

	settings := turn.Settings{
		Record: audio.Options{
			MaxDuration:     cfg.Recorder.MaxDuration,
			SilenceDuration: cfg.Recorder.SilenceDuration,
			VolumeThreshold: cfg.Recorder.VolumeThreshold,
		},
		Phrases:  cfg.Phrases,
		Timeout:  cfg.Network.Timeout,
		MaxSteps: cfg.Directions.MaxSteps,
	}
	if cfg.Recorder.Chime {
		if settings.Chime, err = notify.Chime(speakerRate); err != nil {
			log.Warn("No chime", "err", err)
		}
	}

	pattern, err := cfg.WakeRegexp()
	if err != nil {
		log.Error("Bad wake pattern", "err", err)
		os.Exit(1)
	}

	var ctl *turn.Controller
	monitor := wake.NewMonitor(recognizer, pattern, func() { ctl.Notify() }, cfg.Wake.RestartDelay)

	ctl = turn.NewController(turn.Deps{
		Recorder:    audio.NewRecorder(mic, cfg.Recorder.SampleRate, cfg.Recorder.FrameSize),
		Transcriber: transcriber,
		Chat:        gateway.NewChatSession(chatClient, cfg.Chat.Model, cfg.Chat.Persona, gateway.NewHistory(cfg.Chat.HistoryCap)),
		Synthesizer: gateway.NewOpenAISynthesizer(audioClient, cfg.Speech.SynthesisModel, cfg.Speech.Voice),
		Directions:  gateway.NewMapsDirections(httpClient, cfg.Directions.BaseURL, cfg.MapsKey),
		Player:      seq,
		Monitor:     monitor,
	}, settings,
		turn.WithTranscript(turn.NewTranscript(cfg.Display.TranscriptLines, hub.Line)),
		turn.WithStateHook(func(s turn.State, id string) { hub.State(s.String(), id) }),
		turn.WithWakeArmed(cfg.Wake.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.Run(ctx) })
	g.Go(func() error { meter.Run(ctx); return nil })
	g.Go(func() error { return hub.Serve(ctx, cfg.Display.Addr) })
	g.Go(func() error {
		return ipc.Serve(ctx, cfg.Socket, func(ctx context.Context, msg ipc.ControlMessage) ipc.Reply {
			return control(ctx, ctl, monitor, msg)
		})
	})

	log.Info("Boot up - successful")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Bye")
}

func control(ctx context.Context, ctl *turn.Controller, monitor *wake.Monitor, msg ipc.ControlMessage) ipc.Reply {
	status := func(ok bool, message string) ipc.Reply {
		return ipc.Reply{OK: ok, Message: message, State: ctl.State().String(), Wake: monitor.Enabled()}
	}

	switch msg.Cmd {
	case ipc.CmdTrigger:
		if !ctl.Trigger(ctx) {
			return status(false, "busy")
		}
		return status(true, "listening")
	case ipc.CmdWake:
		switch msg.Arg {
		case "on", "off":
			if !ctl.SetWake(ctx, msg.Arg == "on") {
				return status(false, "busy")
			}
			return ipc.Reply{OK: true, State: ctl.State().String(), Wake: msg.Arg == "on"}
		}
		return status(false, "wake takes on or off")
	case ipc.CmdStatus:
		return status(true, "")
	case ipc.CmdAsk:
		u, err := audio.UtteranceFromFile(msg.Arg)
		if err != nil {
			return status(false, err.Error())
		}
		if !ctl.Ask(ctx, u) {
			return status(false, "busy")
		}
		return status(true, "asked")
	default:
		log.Warn("Unknown command", "cmd", msg.Cmd)
		return status(false, "unknown command "+msg.Cmd)
	}
}
