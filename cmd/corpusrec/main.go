package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emmett/corpusrec/internal/audio"
	"github.com/emmett/corpusrec/internal/config"
	"github.com/emmett/corpusrec/internal/input"
	"github.com/emmett/corpusrec/internal/output"
	"github.com/emmett/corpusrec/internal/project"
	"github.com/emmett/corpusrec/internal/recorder"
	"github.com/emmett/corpusrec/internal/server/mcp"
	"github.com/emmett/corpusrec/internal/vad"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

var (
	configFile     = flag.String("config", "", "Path to configuration file (default: ~/.corpusrecrc or /etc/corpusrec/config.yaml)")
	mode           = flag.String("mode", "cli", "Run mode: cli or mcp")
	projectFile    = flag.String("project", "", "Path to an existing project JSON file to record")
	importFile     = flag.String("import", "", "Sentence list (txt/csv/tsv) to import into a new project")
	projectName    = flag.String("name", "", "Name for the new project created by -import")
	projectDir     = flag.String("dir", "", "Project parent directory (default from config, relative to home)")
	audioDevice    = flag.String("device", "", "Audio input device name (use -list-devices to see available devices)")
	listDevices    = flag.Bool("list-devices", false, "List all available audio input devices")
	recordFile     = flag.String("record", "", "Record a single WAV file without segmentation until interrupted")
	modelPath      = flag.String("model", "", "Path to a Silero VAD model file (empty: energy-based voice detection)")
	energyThresh   = flag.Float64("energy-threshold", 0.01, "Energy voice threshold when no VAD model is used")
	silenceDur     = flag.Int("silence-duration", 0, "Trailing silence in ms that ends a sentence (default from config)")
	silencePad     = flag.Int("silence-padding", 0, "Silence in ms kept around the trimmed utterance (default from config)")
	silenceThresh  = flag.Float64("silence-threshold", 0, "Reserved silence threshold parameter")
	onlyUnrecorded = flag.Bool("only-unrecorded", false, "Skip sentences that already have audio")
	outputFormat   = flag.String("format", "console", "Progress output format: console or json")
	noHotkeys      = flag.Bool("no-hotkeys", false, "Disable global pause/resume and stop hotkeys")
	verbose        = flag.Bool("verbose", false, "Enable debug logging")
	showVersion    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("corpusrec v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadWithFallback(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config: %v\n", err)
		cfg = config.DefaultConfig()
	}
	applyConfigDefaults(cfg)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *listDevices {
		if err := printDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var runErr error
	switch *mode {
	case "mcp":
		runErr = runMCP(cfg, log)
	case "cli":
		runErr = runCLI(cfg, log)
	default:
		runErr = fmt.Errorf("unknown mode: %s", *mode)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

// applyConfigDefaults fills in flag values from the config file for flags
// the user did not set explicitly.
func applyConfigDefaults(cfg *config.Config) {
	flagsSet := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		flagsSet[f.Name] = true
	})

	if !flagsSet["device"] && cfg.Audio.Device != "" {
		*audioDevice = cfg.Audio.Device
	}
	if !flagsSet["model"] && cfg.VAD.ModelPath != "" {
		*modelPath = cfg.VAD.ModelPath
	}
	if !flagsSet["energy-threshold"] && cfg.VAD.EnergyThreshold > 0 {
		*energyThresh = cfg.VAD.EnergyThreshold
	}
	if !flagsSet["dir"] && cfg.Project.Directory != "" {
		*projectDir = cfg.Project.Directory
	}
	if !flagsSet["silence-duration"] {
		*silenceDur = cfg.Recording.SilenceDurationMs
	}
	if !flagsSet["silence-padding"] {
		*silencePad = cfg.Recording.SilencePaddingMs
	}
	if !flagsSet["silence-threshold"] {
		*silenceThresh = cfg.Recording.SilenceThreshold
	}
}

func printDevices() error {
	devices, err := audio.ListDevices()
	if err != nil {
		return err
	}
	fmt.Printf("Capture devices (%d):\n", len(devices))
	for _, dev := range devices {
		fmt.Printf("  %s\n", dev.String())
	}
	return nil
}

func runMCP(cfg *config.Config, log *slog.Logger) error {
	server, err := mcp.NewServer(mcp.Config{
		ServerName:       "corpusrec",
		ServerVersion:    Version,
		Device:           *audioDevice,
		PreferredRates:   cfg.Audio.PreferredRates,
		ModelPath:        *modelPath,
		VADRate:          cfg.VAD.SampleRate,
		EnergyThreshold:  *energyThresh,
		ProjectDirectory: *projectDir,
		SilenceDuration:  time.Duration(*silenceDur) * time.Millisecond,
		SilencePadding:   time.Duration(*silencePad) * time.Millisecond,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	defer server.Stop()
	return server.Start()
}

func runCLI(cfg *config.Config, log *slog.Logger) error {
	if *recordFile != "" {
		return runManualRecord(cfg, log)
	}

	proj, err := openProject()
	if err != nil {
		return err
	}

	sentences := proj.Sentences
	if *onlyUnrecorded {
		pending := make([]project.Sentence, 0, len(sentences))
		for _, sent := range sentences {
			if !sent.Recorded {
				pending = append(pending, sent)
			}
		}
		sentences = pending
	}
	if len(sentences) == 0 {
		return fmt.Errorf("project has no sentences to record")
	}

	var notifier recorder.Notifier
	switch *outputFormat {
	case "json":
		notifier = output.NewJSONNotifier(os.Stdout)
	case "console":
		notifier = output.DefaultConsoleNotifier()
	default:
		return fmt.Errorf("unknown output format: %s", *outputFormat)
	}

	opener := &audio.MalgoOpener{
		DeviceName:     *audioDevice,
		PreferredRates: cfg.Audio.PreferredRates,
	}

	controller, err := recorder.NewController(recorder.ControllerConfig{
		Opener:        opener,
		NewClassifier: newClassifierFactory(),
		Notifier:      notifier,
		Logger:        log,
		VADRate:       cfg.VAD.SampleRate,
	})
	if err != nil {
		return err
	}

	err = controller.Start(recorder.Params{
		Sentences:        sentences,
		ProjectDirectory: proj.Dir(),
		SilenceThreshold: *silenceThresh,
		SilenceDuration:  time.Duration(*silenceDur) * time.Millisecond,
		SilencePadding:   time.Duration(*silencePad) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	if !*noHotkeys {
		hotkeys := input.NewHotkeyManager(controller, func(err error) {
			log.Warn("hotkey rejected", "err", err)
		})
		if err := hotkeys.Start(context.Background(), cfg.Hotkeys.PauseResume, cfg.Hotkeys.Stop); err != nil {
			log.Warn("hotkeys unavailable", "err", err)
		} else {
			defer hotkeys.Stop()
			fmt.Printf("Hotkeys: %s pause/resume, %s stop\n", cfg.Hotkeys.PauseResume, cfg.Hotkeys.Stop)
		}
	}

	// Ctrl-C stops the run; the loop finishes the teardown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("interrupt received, stopping")
		if err := controller.Stop(); err != nil {
			log.Debug("stop ignored", "err", err)
		}
	}()

	controller.Wait()
	signal.Stop(sigCh)

	mergeRecorded(proj, controller.Sentences())
	if err := proj.Save(); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}

	return nil
}

// runManualRecord records the microphone to a single file at the device
// rate, with no voice detection, until the process is interrupted.
func runManualRecord(cfg *config.Config, log *slog.Logger) error {
	opener := &audio.MalgoOpener{
		DeviceName:     *audioDevice,
		PreferredRates: cfg.Audio.PreferredRates,
	}
	acfg, err := opener.Negotiate()
	if err != nil {
		return err
	}
	source, err := opener.Open(acfg)
	if err != nil {
		return err
	}

	session, err := recorder.NewManualSession(recorder.ManualConfig{
		Path:       *recordFile,
		Source:     source,
		SampleRate: acfg.SampleRate,
		Channels:   uint16(acfg.Channels),
		Logger:     log,
	})
	if err != nil {
		return err
	}
	if err := session.Start(context.Background()); err != nil {
		return err
	}
	fmt.Printf("Recording to %s at %d Hz, press Ctrl-C to stop\n", session.Path(), acfg.SampleRate)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	signal.Stop(sigCh)

	if err := session.Close(true); err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", session.Path())
	return nil
}

// openProject resolves the -project / -import flags into a project to
// record.
func openProject() (*project.Project, error) {
	switch {
	case *importFile != "":
		if *projectName == "" {
			return nil, fmt.Errorf("-import requires -name for the new project")
		}
		sentences, err := project.ImportSentences(*importFile)
		if err != nil {
			return nil, fmt.Errorf("failed to import sentences: %w", err)
		}
		parentDir, err := project.ResolveDir(*projectDir)
		if err != nil {
			return nil, err
		}
		proj, err := project.New(parentDir, *projectName)
		if err != nil {
			return nil, fmt.Errorf("failed to create project: %w", err)
		}
		proj.Sentences = sentences
		if err := proj.Save(); err != nil {
			return nil, fmt.Errorf("failed to save project: %w", err)
		}
		fmt.Printf("Created project %s with %d sentences\n", proj.Path, len(sentences))
		return proj, nil

	case *projectFile != "":
		proj, err := project.Open(*projectFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open project: %w", err)
		}
		return proj, nil

	default:
		return nil, fmt.Errorf("either -project or -import is required")
	}
}

func newClassifierFactory() recorder.ClassifierFactory {
	return func(sampleRate int) (vad.Classifier, error) {
		if *modelPath != "" {
			return vad.NewSilero(vad.SileroConfig{
				ModelPath:  *modelPath,
				SampleRate: sampleRate,
			})
		}
		return vad.NewEnergy(*energyThresh), nil
	}
}

func mergeRecorded(proj *project.Project, sentences []project.Sentence) {
	recorded := make(map[int]string)
	for _, sent := range sentences {
		if sent.Recorded {
			recorded[sent.ID] = sent.AudioFilePath
		}
	}
	for i := range proj.Sentences {
		if path, ok := recorded[proj.Sentences[i].ID]; ok {
			proj.Sentences[i].Recorded = true
			proj.Sentences[i].AudioFilePath = path
		}
	}
}
