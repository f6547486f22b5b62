package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/emmett/corpusrec/internal/audio"
	"github.com/emmett/corpusrec/internal/project"
	"github.com/emmett/corpusrec/internal/recorder"
)

type StartAutoRecordArgs struct {
	ProjectPath       string  `json:"project_path" jsonschema:"required,description=Path to the project JSON file"`
	OnlyUnrecorded    bool    `json:"only_unrecorded,omitempty" jsonschema:"description=Skip sentences that already have audio"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty" jsonschema:"description=Trailing silence that ends a sentence (default from server config)"`
	SilencePaddingMs  int     `json:"silence_padding_ms,omitempty" jsonschema:"description=Silence kept around the trimmed utterance (default from server config)"`
	SilenceThreshold  float64 `json:"silence_threshold,omitempty" jsonschema:"description=Reserved silence threshold parameter"`
}

type NoArgs struct{}

type ImportSentencesArgs struct {
	SourcePath  string `json:"source_path" jsonschema:"required,description=Path to a txt/csv/tsv sentence list"`
	ProjectName string `json:"project_name" jsonschema:"required,description=Name for the new project"`
	ParentDir   string `json:"parent_dir,omitempty" jsonschema:"description=Directory to create the project in (default from server config)"`
}

func (s *Server) handleStartAutoRecord(ctx context.Context, req *sdk.CallToolRequest, args StartAutoRecordArgs) (*sdk.CallToolResult, any, error) {
	proj, err := project.Open(args.ProjectPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open project: %w", err)
	}

	sentences := proj.Sentences
	if args.OnlyUnrecorded {
		pending := make([]project.Sentence, 0, len(sentences))
		for _, sent := range sentences {
			if !sent.Recorded {
				pending = append(pending, sent)
			}
		}
		sentences = pending
	}
	if len(sentences) == 0 {
		return nil, nil, fmt.Errorf("project has no sentences to record")
	}

	silenceDuration := s.config.SilenceDuration
	if args.SilenceDurationMs > 0 {
		silenceDuration = time.Duration(args.SilenceDurationMs) * time.Millisecond
	}
	silencePadding := s.config.SilencePadding
	if args.SilencePaddingMs > 0 {
		silencePadding = time.Duration(args.SilencePaddingMs) * time.Millisecond
	}

	s.events.Reset()

	err = s.controller.Start(recorder.Params{
		Sentences:        sentences,
		ProjectDirectory: proj.Dir(),
		SilenceThreshold: args.SilenceThreshold,
		SilenceDuration:  silenceDuration,
		SilencePadding:   silencePadding,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start recording: %w", err)
	}

	s.mu.Lock()
	s.proj = proj
	s.mu.Unlock()

	// Persist recorded flags once the run finishes, however it ends.
	go func() {
		s.controller.Wait()
		if err := s.saveProgress(); err != nil {
			s.log.Error("failed to save project", "err", err)
		}
	}()

	return &sdk.CallToolResult{
		Content: []sdk.Content{
			&sdk.TextContent{Text: fmt.Sprintf("Recording started: %d sentences into %s", len(sentences), proj.Dir())},
		},
	}, nil, nil
}

// saveProgress merges the run's recorded flags back into the project file.
func (s *Server) saveProgress() error {
	s.mu.Lock()
	proj := s.proj
	s.mu.Unlock()
	if proj == nil {
		return nil
	}

	recorded := make(map[int]string)
	for _, sent := range s.controller.Sentences() {
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
	return proj.Save()
}

func (s *Server) handlePauseRecording(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	if err := s.controller.Pause(); err != nil {
		return nil, nil, err
	}
	return textResult("Recording paused"), nil, nil
}

func (s *Server) handleResumeRecording(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	if err := s.controller.Resume(); err != nil {
		return nil, nil, err
	}
	return textResult("Recording resumed"), nil, nil
}

func (s *Server) handleStopAutoRecord(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	if err := s.controller.Stop(); err != nil {
		return nil, nil, err
	}
	s.controller.Wait()
	return textResult("Recording stopped"), nil, nil
}

type StartRecordingArgs struct {
	Filename string `json:"filename" jsonschema:"required,description=Path of the WAV file to create"`
}

func (s *Server) handleStartRecording(ctx context.Context, req *sdk.CallToolRequest, args StartRecordingArgs) (*sdk.CallToolResult, any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manual != nil {
		return nil, nil, fmt.Errorf("recording is already in progress")
	}

	acfg, err := s.opener.Negotiate()
	if err != nil {
		return nil, nil, err
	}
	source, err := s.opener.Open(acfg)
	if err != nil {
		return nil, nil, err
	}

	session, err := recorder.NewManualSession(recorder.ManualConfig{
		Path:       args.Filename,
		Source:     source,
		SampleRate: acfg.SampleRate,
		Channels:   uint16(acfg.Channels),
		Logger:     s.log,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := session.Start(context.Background()); err != nil {
		return nil, nil, err
	}
	s.manual = session

	return textResult(fmt.Sprintf("Recording to %s at %d Hz", session.Path(), acfg.SampleRate)), nil, nil
}

func (s *Server) handleStopRecording(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	s.mu.Lock()
	session := s.manual
	s.manual = nil
	s.mu.Unlock()
	if session == nil {
		return nil, nil, fmt.Errorf("no recording in progress")
	}

	if err := session.Close(true); err != nil {
		return nil, nil, err
	}
	return textResult("Recording saved to " + session.Path()), nil, nil
}

func (s *Server) handleRecordingStatus(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	events, saved := s.events.Snapshot()

	content := []sdk.Content{
		&sdk.TextContent{Text: fmt.Sprintf("State: %s, sentences saved this run: %d", s.controller.State(), saved)},
	}
	for _, ev := range events {
		line := fmt.Sprintf("[%s] %s", ev.Timestamp.Format("15:04:05"), ev.Type)
		if ev.Sentence != 0 {
			line += fmt.Sprintf(" sentence=%d", ev.Sentence)
		}
		if ev.AudioPath != "" {
			line += " " + ev.AudioPath
		}
		if ev.Message != "" {
			line += " " + ev.Message
		}
		content = append(content, &sdk.TextContent{Text: line})
	}

	return &sdk.CallToolResult{Content: content}, nil, nil
}

func (s *Server) handleImportSentences(ctx context.Context, req *sdk.CallToolRequest, args ImportSentencesArgs) (*sdk.CallToolResult, any, error) {
	sentences, err := project.ImportSentences(args.SourcePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to import sentences: %w", err)
	}

	parentDir := args.ParentDir
	if parentDir == "" {
		parentDir, err = project.ResolveDir(s.config.ProjectDirectory)
		if err != nil {
			return nil, nil, err
		}
	}

	proj, err := project.New(parentDir, args.ProjectName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create project: %w", err)
	}
	proj.Sentences = sentences
	if err := proj.Save(); err != nil {
		return nil, nil, fmt.Errorf("failed to save project: %w", err)
	}

	return textResult(fmt.Sprintf("Imported %d sentences into %s", len(sentences), proj.Path)), nil, nil
}

func (s *Server) handleListDevices(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	devices, err := audio.ListDevices()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list devices: %w", err)
	}

	content := []sdk.Content{
		&sdk.TextContent{Text: fmt.Sprintf("Capture devices (%d):", len(devices))},
	}
	for _, dev := range devices {
		content = append(content, &sdk.TextContent{Text: "- " + dev.String()})
	}

	return &sdk.CallToolResult{Content: content}, nil, nil
}

func textResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
	}
}
