package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emmett/ears/internal/app"
	"github.com/emmett/ears/internal/audio"
	"github.com/emmett/ears/internal/config"
	"github.com/emmett/ears/internal/logging"
	"github.com/emmett/ears/internal/models"
	"github.com/emmett/ears/internal/output"
	"github.com/emmett/ears/internal/stt"
	"github.com/emmett/ears/internal/stt/vosk"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

type options struct {
	configFile   string
	modelPath    string
	inputFile    string
	realtime     bool
	bufferFrames int
	logLevel     string
	logFormat    string
	listDevices  bool
	showVersion  bool
}

func newFlagSet(opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("ears", flag.ExitOnError)
	fs.StringVar(&opts.configFile, "config", "", "Path to configuration file (default: ~/.earsrc or /etc/ears/config.yaml)")
	fs.StringVar(&opts.modelPath, "model", models.DefaultModelDir, "Path to the speech model directory")
	fs.StringVar(&opts.inputFile, "input", "", "Replay a 16 kHz mono 16-bit WAV file instead of the microphone")
	fs.BoolVar(&opts.realtime, "realtime", false, "Pace -input replay at microphone speed")
	fs.IntVar(&opts.bufferFrames, "buffer-frames", config.DefaultBufferFrames, "Frames queued between capture and decoding before the oldest are dropped")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.logFormat, "log-format", "text", "Log format on stderr: text, json")
	fs.BoolVar(&opts.listDevices, "list-devices", false, "List all available audio input devices")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	return fs
}

func main() {
	opts := &options{}
	fs := newFlagSet(opts)
	_ = fs.Parse(os.Args[1:])

	if opts.showVersion {
		fmt.Printf("ears v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(fs, opts)
	if err != nil {
		output.DefaultConsole().Error(fmt.Sprintf("Invalid configuration: %v", err))
		os.Exit(1)
	}

	if opts.listDevices {
		if err := app.NewDeviceManager().ListDevices(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(run(cfg))
}

// loadConfig merges the config file, EARS_* environment and flags. A config
// that cannot be read fails instead of silently falling back to defaults.
func loadConfig(fs *flag.FlagSet, opts *options) (*config.Config, error) {
	cfg, err := config.LoadWithFallback(opts.configFile)
	if err != nil {
		return nil, err
	}
	applyConfigDefaults(fs, opts, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyConfigDefaults fills every flag the user did not set from cfg,
// then copies the merged values back so cfg is the single source
func applyConfigDefaults(fs *flag.FlagSet, opts *options, cfg *config.Config) {
	flagsSet := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		flagsSet[f.Name] = true
	})

	if !flagsSet["model"] && cfg.Model.Path != "" {
		opts.modelPath = cfg.Model.Path
	}
	if !flagsSet["input"] && cfg.Input.File != "" {
		opts.inputFile = cfg.Input.File
	}
	if !flagsSet["realtime"] {
		opts.realtime = cfg.Input.Realtime
	}
	if !flagsSet["buffer-frames"] && cfg.Buffer.Frames > 0 {
		opts.bufferFrames = cfg.Buffer.Frames
	}
	if !flagsSet["log-level"] && cfg.Log.Level != "" {
		opts.logLevel = cfg.Log.Level
	}
	if !flagsSet["log-format"] && cfg.Log.Format != "" {
		opts.logFormat = cfg.Log.Format
	}

	cfg.Model.Path = opts.modelPath
	cfg.Input.File = opts.inputFile
	cfg.Input.Realtime = opts.realtime
	cfg.Buffer.Frames = opts.bufferFrames
	cfg.Log.Level = opts.logLevel
	cfg.Log.Format = opts.logFormat
}

func run(cfg *config.Config) int {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		output.DefaultConsole().Error(fmt.Sprintf("Invalid configuration: %v", err))
		return 1
	}
	log = log.With(slog.String("version", Version))

	console := output.NewConsole(output.ConsoleConfig{
		Writer: os.Stdout,
		Log:    logging.Component(log, "output"),
	})

	modelPath, err := models.Resolve(cfg.Model.Path)
	if err != nil {
		console.Error(fmt.Sprintf("Error resolving model path %s: %v", cfg.Model.Path, err))
		return 1
	}

	runner := app.NewRunner(
		app.RunnerConfig{ModelPath: modelPath, BufferFrames: cfg.Buffer.Frames},
		loadVoskModel,
		capturerFactory(cfg, logging.Component(log, "audio")),
		console,
		logging.Component(log, "pipeline"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.ExitCode(runner.Run(ctx))
}

func loadVoskModel(path string) (app.Model, error) {
	model, err := vosk.Load(stt.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return model, nil
}

func capturerFactory(cfg *config.Config, log *slog.Logger) app.CapturerFactory {
	return func() (audio.Capturer, string, error) {
		if cfg.Input.File != "" {
			log.Info("replaying input file",
				slog.String("path", cfg.Input.File),
				slog.Bool("realtime", cfg.Input.Realtime))
			return audio.NewFileCapturer(cfg.Input.File, cfg.Input.Realtime), cfg.Input.File, nil
		}

		capturer, err := audio.NewCapturer(audio.DefaultConfig())
		if err != nil {
			return nil, "", err
		}
		return capturer, app.NewDeviceManager().DefaultDeviceName(), nil
	}
}
