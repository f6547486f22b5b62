package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/emmett/corpusrec/internal/audio"
)

// ManualSession records raw microphone input to a single WAV file until
// stopped. No voice detection, resampling or trimming is applied: samples
// are written at the device rate exactly as captured.
type ManualSession struct {
	source audio.Capturer
	writer *audio.WavWriter
	log    *slog.Logger

	pumpDone chan struct{}
	pumpErr  error
	pumpMu   sync.Mutex

	started bool
	closed  bool
}

// ManualConfig carries everything a manual recording needs.
type ManualConfig struct {
	// Path is the output WAV file. Relative paths stay relative to the
	// working directory.
	Path string

	// Source delivers capture chunks; the session takes ownership and
	// stops it on Close.
	Source audio.Capturer

	// SampleRate and Channels describe the device samples reaching the
	// writer.
	SampleRate uint32
	Channels   uint16

	Logger *slog.Logger
}

// NewManualSession creates the output file. The capture stream is not
// started until Start.
func NewManualSession(cfg ManualConfig) (*ManualSession, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("manual session: source is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("manual session: output path is required")
	}
	if strings.Contains(cfg.Path, "..") {
		return nil, fmt.Errorf("manual session: output path %q must not contain \"..\"", cfg.Path)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	writer, err := audio.NewWavWriter(cfg.Path, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}

	return &ManualSession{
		source:   cfg.Source,
		writer:   writer,
		log:      log,
		pumpDone: make(chan struct{}),
	}, nil
}

// Path returns the output file path.
func (m *ManualSession) Path() string { return m.writer.Path() }

// Start opens the capture stream and begins writing chunks to the file.
func (m *ManualSession) Start(ctx context.Context) error {
	if err := m.source.Start(ctx); err != nil {
		return err
	}
	m.started = true

	go m.pump()
	return nil
}

// pump drains the capture channels until the source is stopped, appending
// every chunk to the output file. It runs on its own goroutine so the
// hardware callback stays non-blocking.
func (m *ManualSession) pump() {
	defer close(m.pumpDone)

	chunks := m.source.Chunks()
	errs := m.source.Errors()
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if err := m.writer.WriteSamples(chunk.Samples); err != nil {
				m.setPumpErr(err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.log.Debug("capture diagnostic", "path", m.writer.Path(), "err", err)
		}
	}
}

func (m *ManualSession) setPumpErr(err error) {
	m.pumpMu.Lock()
	if m.pumpErr == nil {
		m.pumpErr = err
	}
	m.pumpMu.Unlock()
}

// Err returns the first write error observed by the pump, if any.
func (m *ManualSession) Err() error {
	m.pumpMu.Lock()
	defer m.pumpMu.Unlock()
	return m.pumpErr
}

// Close stops the capture stream, drains the pump, and then finalizes the
// file header (commit) or deletes the file (abort).
func (m *ManualSession) Close(commit bool) error {
	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.source.Stop(); err != nil {
		m.log.Error("failed to stop capture stream", "path", m.writer.Path(), "err", err)
	}
	if m.started {
		<-m.pumpDone
	}

	if !commit {
		if err := m.writer.Remove(); err != nil {
			m.log.Error("failed to remove recording", "path", m.writer.Path(), "err", err)
		}
		return nil
	}

	if err := m.Err(); err != nil {
		if rmErr := m.writer.Remove(); rmErr != nil {
			m.log.Error("failed to remove broken recording", "path", m.writer.Path(), "err", rmErr)
		}
		return err
	}
	return m.writer.Close()
}
