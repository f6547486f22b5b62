package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/emmett/corpusrec/internal/audio"
	"github.com/emmett/corpusrec/internal/project"
	"github.com/emmett/corpusrec/internal/recorder"
	"github.com/emmett/corpusrec/internal/vad"
)

type Config struct {
	ServerName    string
	ServerVersion string

	Device         string
	PreferredRates []uint32

	ModelPath       string
	VADRate         int
	EnergyThreshold float64

	ProjectDirectory string
	SilenceDuration  time.Duration
	SilencePadding   time.Duration

	Logger *slog.Logger
}

type Server struct {
	config     Config
	log        *slog.Logger
	mcpServer  *sdk.Server
	controller *recorder.Controller
	opener     *audio.MalgoOpener
	events     *eventLog

	mu     sync.Mutex
	proj   *project.Project
	manual *recorder.ManualSession
}

func NewServer(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		config: cfg,
		log:    log,
		events: newEventLog(),
	}

	s.opener = &audio.MalgoOpener{
		DeviceName:     cfg.Device,
		PreferredRates: cfg.PreferredRates,
	}

	controller, err := recorder.NewController(recorder.ControllerConfig{
		Opener:        s.opener,
		NewClassifier: s.newClassifier,
		Notifier:      s.events,
		Logger:        log,
		VADRate:       cfg.VADRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recording controller: %w", err)
	}
	s.controller = controller

	// Create MCP server
	s.mcpServer = sdk.NewServer(&sdk.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, nil)

	// Register tools
	s.registerTools()

	return s, nil
}

func (s *Server) Start() error {
	return s.mcpServer.Run(context.Background(), &sdk.StdioTransport{})
}

func (s *Server) Stop() error {
	// A stop while idle is not an error during shutdown.
	if err := s.controller.Stop(); err == nil {
		s.controller.Wait()
	}

	s.mu.Lock()
	manual := s.manual
	s.manual = nil
	s.mu.Unlock()
	if manual != nil {
		// Nobody is left to ask for the file: discard it.
		if err := manual.Close(false); err != nil {
			s.log.Error("failed to abort manual recording", "err", err)
		}
	}
	return nil
}

// newClassifier builds the voice classifier for a run: Silero when a model
// path is configured, the energy classifier otherwise.
func (s *Server) newClassifier(sampleRate int) (vad.Classifier, error) {
	if s.config.ModelPath != "" {
		return vad.NewSilero(vad.SileroConfig{
			ModelPath:  s.config.ModelPath,
			SampleRate: sampleRate,
		})
	}
	return vad.NewEnergy(s.config.EnergyThreshold), nil
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "start_auto_record",
		Description: "Start auto-recording the sentences of a project, one WAV file per sentence",
	}, s.handleStartAutoRecord)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "pause_recording",
		Description: "Pause the current recording run",
	}, s.handlePauseRecording)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "resume_recording",
		Description: "Resume a paused recording run",
	}, s.handleResumeRecording)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "stop_auto_record",
		Description: "Stop the current auto-recording run",
	}, s.handleStopAutoRecord)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "start_recording",
		Description: "Record the microphone to a single WAV file without segmentation",
	}, s.handleStartRecording)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "stop_recording",
		Description: "Stop the manual recording and finalize its WAV file",
	}, s.handleStopRecording)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "recording_status",
		Description: "Report the recorder state and recent recording events",
	}, s.handleRecordingStatus)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "import_sentences",
		Description: "Create a project from a txt/csv/tsv sentence list",
	}, s.handleImportSentences)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "list_devices",
		Description: "List available audio capture devices",
	}, s.handleListDevices)
}
