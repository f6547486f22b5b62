package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/emmett/corpusrec/internal/audio"
	"github.com/emmett/corpusrec/internal/project"
)

// SentenceSession owns everything live for one sentence: the capture
// stream, the output writer, and the segmentation buffer. Close releases
// them together on every exit path; an aborted session leaves no file on
// disk.
type SentenceSession struct {
	sentence  project.Sentence
	source    audio.Capturer
	writer    *audio.WavWriter
	segmenter *Segmenter
	resampler *audio.Resampler
	log       *slog.Logger

	pumpDone chan struct{}
	pumpErr  error
	pumpMu   sync.Mutex

	started bool
	closed  bool
}

// SessionConfig carries everything a sentence session needs. The
// constructor fails fast when a required field is absent.
type SessionConfig struct {
	Sentence project.Sentence

	// ProjectDir is the resolved directory recordings are written to.
	ProjectDir string

	// Source delivers capture chunks; the session takes ownership and
	// stops it on Close.
	Source audio.Capturer

	// Segmenter is the per-sentence state machine fed by the pipeline.
	Segmenter *Segmenter

	// Resampler converts device-rate chunks to the pipeline rate. Nil when
	// the device rate already matches.
	Resampler *audio.Resampler

	// SampleRate and Channels describe the samples reaching the writer
	// (post-resampling).
	SampleRate uint32
	Channels   uint16

	Logger *slog.Logger
}

// NewSentenceSession creates the output file for the sentence. The capture
// stream is not started until Start.
func NewSentenceSession(cfg SessionConfig) (*SentenceSession, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("session: source is required")
	}
	if cfg.Segmenter == nil {
		return nil, fmt.Errorf("session: segmenter is required")
	}
	if cfg.ProjectDir == "" {
		return nil, fmt.Errorf("session: project directory is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	path := filepath.Join(cfg.ProjectDir, sentenceFileName(cfg.Sentence.Text))
	writer, err := audio.NewWavWriter(path, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}

	return &SentenceSession{
		sentence:  cfg.Sentence,
		source:    cfg.Source,
		writer:    writer,
		segmenter: cfg.Segmenter,
		resampler: cfg.Resampler,
		log:       log,
		pumpDone:  make(chan struct{}),
	}, nil
}

// Path returns the output file path.
func (s *SentenceSession) Path() string { return s.writer.Path() }

// Segmenter returns the session's segmentation engine.
func (s *SentenceSession) Segmenter() *Segmenter { return s.segmenter }

// Start opens the capture stream and begins pumping chunks through the
// resampler and segmenter.
func (s *SentenceSession) Start(ctx context.Context) error {
	if err := s.source.Start(ctx); err != nil {
		return err
	}
	s.started = true

	go s.pump()
	return nil
}

// pump drains the capture channels until the source is stopped. It runs on
// its own goroutine so the hardware callback stays non-blocking.
func (s *SentenceSession) pump() {
	defer close(s.pumpDone)

	chunks := s.source.Chunks()
	errs := s.source.Errors()
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			samples := chunk.Samples
			if s.resampler != nil {
				resampled, err := s.resampler.Process(samples)
				if err != nil {
					s.setPumpErr(err)
					continue
				}
				samples = resampled
			}
			if err := s.segmenter.Process(samples); err != nil {
				s.setPumpErr(err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.Debug("capture diagnostic", "sentence", s.sentence.ID, "err", err)
		}
	}
}

func (s *SentenceSession) setPumpErr(err error) {
	s.pumpMu.Lock()
	if s.pumpErr == nil {
		s.pumpErr = err
	}
	s.pumpMu.Unlock()
}

// Err returns the first pipeline error observed by the pump, if any.
func (s *SentenceSession) Err() error {
	s.pumpMu.Lock()
	defer s.pumpMu.Unlock()
	return s.pumpErr
}

// Close tears the session down. The capture stream is stopped first, so no
// callback is in flight afterwards; then the pump is drained, and only then
// is the file finalized (commit) or deleted (abort). Cleanup failures are
// logged without masking the caller's triggering condition.
func (s *SentenceSession) Close(commit bool) error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.source.Stop(); err != nil {
		s.log.Error("failed to stop capture stream", "sentence", s.sentence.ID, "err", err)
	}
	if s.started {
		<-s.pumpDone
	}

	if !commit {
		if err := s.writer.Remove(); err != nil {
			s.log.Error("failed to remove partial recording", "sentence", s.sentence.ID, "err", err)
		}
		return nil
	}

	trimmed := s.segmenter.Finalize()
	if len(trimmed) == 0 {
		// Nothing voiced: no valid utterance to keep.
		if err := s.writer.Remove(); err != nil {
			s.log.Error("failed to remove empty recording", "sentence", s.sentence.ID, "err", err)
		}
		return fmt.Errorf("sentence %d: no voice in recording buffer", s.sentence.ID)
	}

	if err := s.writer.WriteSamples(trimmed); err != nil {
		if rmErr := s.writer.Remove(); rmErr != nil {
			s.log.Error("failed to remove broken recording", "sentence", s.sentence.ID, "err", rmErr)
		}
		return err
	}
	if err := s.writer.Close(); err != nil {
		return err
	}
	return nil
}

// sentenceFileName builds the output filename for a sentence: trimmed text
// with spaces replaced by underscores, plus the .wav extension.
func sentenceFileName(text string) string {
	return strings.ReplaceAll(strings.TrimSpace(text), " ", "_") + ".wav"
}
