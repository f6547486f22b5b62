package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emmett/corpusrec/internal/audio"
	"github.com/emmett/corpusrec/internal/project"
	"github.com/emmett/corpusrec/internal/vad"
)

// DefaultPollInterval bounds how stale a pause/stop request can go
// unnoticed by the waiting loops.
const DefaultPollInterval = 100 * time.Millisecond

// DefaultVADRate is the sample rate the voice classifier runs at; capture
// at any other rate is resampled down to it.
const DefaultVADRate = 16000

// ClassifierFactory builds the voice classifier for a run, at the pipeline
// sample rate. Called once per Start; the classifier is reset between
// sentences and closed when the run ends.
type ClassifierFactory func(sampleRate int) (vad.Classifier, error)

// Params are the per-run recording parameters supplied by the caller.
type Params struct {
	Sentences        []project.Sentence
	ProjectDirectory string

	// SilenceThreshold is accepted for interface compatibility but not
	// consumed by the probability classifier.
	SilenceThreshold float64

	SilenceDuration time.Duration
	SilencePadding  time.Duration
}

// ControllerConfig wires a Controller. Opener, NewClassifier and Notifier
// are required.
type ControllerConfig struct {
	Opener        audio.Opener
	NewClassifier ClassifierFactory
	Notifier      Notifier
	Logger        *slog.Logger

	// VADRate overrides DefaultVADRate (tests use it to avoid resampling).
	VADRate int

	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration

	// GracePeriod overrides the segmenter's default voice grace period.
	GracePeriod time.Duration
}

// Controller drives the auto-record run: the Idle/Recording/Paused state
// machine, the per-sentence loop, and the outward notifications. State is
// the single source of truth; the waiting loops re-check it at least every
// poll interval.
type Controller struct {
	opener        audio.Opener
	newClassifier ClassifierFactory
	notifier      Notifier
	log           *slog.Logger
	vadRate       int
	poll          time.Duration
	grace         time.Duration

	mu        sync.Mutex
	state     State
	sentences []project.Sentence
	runDone   chan struct{}
}

// NewController validates the configuration and returns an idle controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Opener == nil {
		return nil, fmt.Errorf("controller: opener is required")
	}
	if cfg.NewClassifier == nil {
		return nil, fmt.Errorf("controller: classifier factory is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("controller: notifier is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	vadRate := cfg.VADRate
	if vadRate == 0 {
		vadRate = DefaultVADRate
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	return &Controller{
		opener:        cfg.Opener,
		newClassifier: cfg.NewClassifier,
		notifier:      cfg.Notifier,
		log:           log,
		vadRate:       vadRate,
		poll:          poll,
		grace:         cfg.GracePeriod,
		state:         StateIdle,
	}, nil
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins an auto-record run. The audio configuration is resolved
// before any state changes, so a failed Start leaves the controller Idle
// and no stream open.
func (c *Controller) Start(params Params) error {
	if len(params.Sentences) == 0 {
		return fmt.Errorf("start: no sentences to record")
	}
	if params.ProjectDirectory == "" {
		return fmt.Errorf("start: project directory is required")
	}
	if params.SilenceDuration <= 0 {
		return fmt.Errorf("start: silence duration is required")
	}

	cfg, err := c.opener.Negotiate()
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	classifier, err := c.newClassifier(c.pipelineRate(cfg))
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if err := c.transition("start", StateRecording, StateIdle); err != nil {
		classifier.Close()
		return err
	}

	c.mu.Lock()
	c.sentences = make([]project.Sentence, len(params.Sentences))
	copy(c.sentences, params.Sentences)
	c.runDone = make(chan struct{})
	runDone := c.runDone
	c.mu.Unlock()

	go c.run(cfg, params, classifier, runDone)
	return nil
}

// Pause suspends the run after the current wait iteration.
func (c *Controller) Pause() error {
	return c.transition("pause", StatePaused, StateRecording)
}

// Resume continues a paused run; the interrupted sentence restarts from
// scratch.
func (c *Controller) Resume() error {
	return c.transition("resume", StateRecording, StatePaused)
}

// Stop ends the run from Recording or Paused.
func (c *Controller) Stop() error {
	return c.transition("stop", StateIdle, StateRecording, StatePaused)
}

// Wait blocks until the current run's loop has exited. It returns
// immediately when no run was started.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.runDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Sentences returns a snapshot of the run's sentence list with recorded
// flags and file paths updated so far.
func (c *Controller) Sentences() []project.Sentence {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]project.Sentence, len(c.sentences))
	copy(out, c.sentences)
	return out
}

// transition moves to a new state when the current state is one of from;
// otherwise the state is left unchanged and an InvalidTransitionError names
// the rejected operation.
func (c *Controller) transition(op string, to State, from ...State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range from {
		if c.state == f {
			c.state = to
			return nil
		}
	}
	return &InvalidTransitionError{Op: op, State: c.state}
}

// pipelineRate is the rate samples have after the (optional) resampling
// stage: the VAD rate when the device rate differs, the device rate
// otherwise.
func (c *Controller) pipelineRate(cfg audio.Config) int {
	if int(cfg.SampleRate) != c.vadRate {
		return c.vadRate
	}
	return int(cfg.SampleRate)
}

// run is the per-sentence loop. It exits on stop, on the last sentence, or
// on a hard error; in every case the controller returns to Idle and the
// completion notification fires.
func (c *Controller) run(cfg audio.Config, params Params, classifier vad.Classifier, done chan struct{}) {
	defer func() {
		if err := classifier.Close(); err != nil {
			c.log.Error("failed to close classifier", "err", err)
		}
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.notifier.Complete(true)
		close(done)
	}()

	total := len(params.Sentences)
	for idx := 0; idx < total; {
		if c.State() == StateIdle {
			return
		}

		sentence := params.Sentences[idx]
		c.notifier.SentenceStarted(sentence.ID)

		path, err := c.recordSentence(cfg, params, sentence, classifier)
		switch {
		case err == nil:
			c.markRecorded(idx, path)
			c.notifier.SentenceFinished(sentence.ID, path)
			c.log.Info("sentence recorded", "id", sentence.ID, "path", path, "progress", fmt.Sprintf("%d/%d", idx+1, total))
			idx++
		case errors.Is(err, ErrRecordingPaused):
			c.log.Info("recording paused", "id", sentence.ID)
			if !c.waitWhilePaused() {
				return
			}
			// Resumed: retry the same sentence from scratch.
		case errors.Is(err, ErrRecordingStopped):
			return
		default:
			c.log.Error("failed to record sentence", "id", sentence.ID, "err", err)
			c.notifier.Diagnostic(err.Error())
			return
		}
	}
}

// recordSentence runs the capture pipeline for one sentence and returns
// the finalized file path. The session is torn down on every exit path;
// only a fully successful wait sequence commits the file.
func (c *Controller) recordSentence(cfg audio.Config, params Params, sentence project.Sentence, classifier vad.Classifier) (path string, err error) {
	dir, err := project.ResolveDir(params.ProjectDirectory)
	if err != nil {
		return "", err
	}

	pipelineRate := c.pipelineRate(cfg)

	var resampler *audio.Resampler
	if int(cfg.SampleRate) != pipelineRate {
		resampler, err = audio.NewResampler(cfg.SampleRate, uint32(pipelineRate))
		if err != nil {
			return "", err
		}
	}

	segmenter, err := NewSegmenter(SegmenterConfig{
		Classifier:      classifier,
		SampleRate:      pipelineRate,
		SilenceDuration: params.SilenceDuration,
		SilencePadding:  params.SilencePadding,
		GracePeriod:     c.grace,
	})
	if err != nil {
		return "", err
	}

	source, err := c.opener.Open(cfg)
	if err != nil {
		return "", err
	}

	session, err := NewSentenceSession(SessionConfig{
		Sentence:   sentence,
		ProjectDir: dir,
		Source:     source,
		Segmenter:  segmenter,
		Resampler:  resampler,
		SampleRate: uint32(pipelineRate),
		Channels:   uint16(cfg.Channels),
		Logger:     c.log,
	})
	if err != nil {
		return "", err
	}

	commit := false
	defer func() {
		cerr := session.Close(commit)
		if err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := session.Start(context.Background()); err != nil {
		return "", err
	}

	c.log.Debug("recording sentence", "id", sentence.ID, "text", sentence.Text)

	if err := c.waitForVoice(session); err != nil {
		return "", err
	}
	if err := c.waitForSilence(session); err != nil {
		return "", err
	}
	if perr := session.Err(); perr != nil {
		return "", perr
	}

	commit = true
	return session.Path(), nil
}

// waitForVoice blocks until the utterance start signal, re-checking the
// controller state every poll interval.
func (c *Controller) waitForVoice(session *SentenceSession) error {
	for {
		if err := c.checkState(); err != nil {
			return err
		}
		if err := session.Err(); err != nil {
			return err
		}
		select {
		case <-session.Segmenter().VoiceDetected():
			return nil
		case <-time.After(c.poll):
		}
	}
}

// waitForSilence blocks until the segmenter has observed enough trailing
// silence, re-checking the controller state every poll interval.
func (c *Controller) waitForSilence(session *SentenceSession) error {
	for {
		if err := c.checkState(); err != nil {
			return err
		}
		if err := session.Err(); err != nil {
			return err
		}
		select {
		case <-session.Segmenter().Finished():
			return nil
		case <-time.After(c.poll):
		}
	}
}

// checkState translates the shared state into the control-flow signals the
// per-sentence pipeline unwinds on.
func (c *Controller) checkState() error {
	switch c.State() {
	case StatePaused:
		return ErrRecordingPaused
	case StateIdle:
		return ErrRecordingStopped
	default:
		return nil
	}
}

// waitWhilePaused polls until the run is resumed (true) or stopped (false).
func (c *Controller) waitWhilePaused() bool {
	for {
		switch c.State() {
		case StateRecording:
			return true
		case StateIdle:
			return false
		default:
			time.Sleep(c.poll)
		}
	}
}

func (c *Controller) markRecorded(idx int, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < len(c.sentences) {
		c.sentences[idx].Recorded = true
		c.sentences[idx].AudioFilePath = path
	}
}
