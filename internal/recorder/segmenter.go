package recorder

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/emmett/corpusrec/internal/vad"
)

// DefaultGracePeriod is how long voice must persist before an utterance is
// considered started. Shorter bursts (door slams, clicks) are ignored.
const DefaultGracePeriod = 200 * time.Millisecond

// Frame is one classified chunk of the utterance buffer. Immutable once
// classified.
type Frame struct {
	Samples []int16
	Voice   bool
}

type segPhase int

const (
	phaseWaitingForVoice segPhase = iota
	phaseSpeaking
	phaseDone
)

// SegmenterConfig configures one sentence's segmentation run. All fields
// except GracePeriod are required.
type SegmenterConfig struct {
	// Classifier scores frames; its state is owned by the segmenter for
	// the duration of one sentence.
	Classifier vad.Classifier

	// SampleRate is the pipeline rate of the samples fed to Process (the
	// VAD rate when resampling is active, the device rate otherwise).
	SampleRate int

	// SilenceDuration is how long silence must persist after speech before
	// the utterance is finished.
	SilenceDuration time.Duration

	// SilencePadding bounds the silence kept on each side of the trimmed
	// utterance.
	SilencePadding time.Duration

	// GracePeriod overrides DefaultGracePeriod when > 0.
	GracePeriod time.Duration
}

// Segmenter runs the per-sentence utterance state machine:
//
//	WaitingForVoice -> Speaking -> Done
//
// Process is called from the capture pipeline goroutine; the controller
// polls IsSpeaking/LastActiveTime and waits on VoiceDetected/Finished from
// its own goroutine. Grace and silence persistence are measured in stream
// time (frames x frame duration), which cannot drift or double-count across
// chunk boundaries.
type Segmenter struct {
	classifier    vad.Classifier
	chunkSize     int
	chunkDur      time.Duration
	grace         time.Duration
	silenceDur    time.Duration
	paddingFrames int

	pending []int16 // sub-frame residue carried between Process calls

	mu         sync.Mutex
	phase      segPhase
	frames     []Frame
	speaking   bool
	lastActive time.Time
	burst      time.Duration // voice persistence while waiting
	silent     time.Duration // silence persistence while speaking

	voiceCh chan struct{}
	doneCh  chan struct{}

	now func() time.Time
}

// NewSegmenter validates the configuration and prepares a segmenter for one
// sentence. The classifier is reset so no state leaks from a previous
// sentence.
func NewSegmenter(cfg SegmenterConfig) (*Segmenter, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("segmenter: classifier is required")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("segmenter: sample rate is required")
	}
	if cfg.SilenceDuration <= 0 {
		return nil, fmt.Errorf("segmenter: silence duration is required")
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	chunkSize := vad.ChunkSize(cfg.SampleRate)
	paddingSamples := int(math.Round(cfg.SilencePadding.Seconds() * float64(cfg.SampleRate)))

	cfg.Classifier.Reset()

	return &Segmenter{
		classifier:    cfg.Classifier,
		chunkSize:     chunkSize,
		chunkDur:      time.Duration(chunkSize) * time.Second / time.Duration(cfg.SampleRate),
		grace:         grace,
		silenceDur:    cfg.SilenceDuration,
		paddingFrames: paddingSamples / chunkSize,
		voiceCh:       make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
		now:           time.Now,
	}, nil
}

// ChunkSize returns the classifier frame size in samples.
func (s *Segmenter) ChunkSize() int { return s.chunkSize }

// Process classifies and buffers one capture callback's worth of samples.
// Callback sizes rarely line up with the classifier frame size, so samples
// left over after the last full frame are carried into the next call rather
// than dropped. Only the residue still pending when the sentence is
// finalized is discarded. After the utterance is done further input is
// ignored.
func (s *Segmenter) Process(samples []int16) error {
	s.pending = append(s.pending, samples...)

	off := 0
	defer func() {
		s.pending = s.pending[:copy(s.pending, s.pending[off:])]
	}()

	for ; off+s.chunkSize <= len(s.pending); off += s.chunkSize {
		frame := make([]int16, s.chunkSize)
		copy(frame, s.pending[off:off+s.chunkSize])
		p, err := s.classifier.Classify(frame)
		if err != nil {
			return fmt.Errorf("classify frame: %w", err)
		}
		s.observe(frame, p >= vad.VoiceProbability)
	}
	return nil
}

func (s *Segmenter) observe(samples []int16, voice bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == phaseDone {
		return
	}

	s.frames = append(s.frames, Frame{Samples: samples, Voice: voice})

	if voice {
		s.lastActive = s.now()
		switch s.phase {
		case phaseWaitingForVoice:
			s.burst += s.chunkDur
			if s.burst >= s.grace {
				s.phase = phaseSpeaking
				s.speaking = true
				select {
				case s.voiceCh <- struct{}{}:
				default:
				}
			}
		case phaseSpeaking:
			s.silent = 0
		}
		return
	}

	switch s.phase {
	case phaseWaitingForVoice:
		s.burst = 0
	case phaseSpeaking:
		s.silent += s.chunkDur
		if s.silent >= s.silenceDur {
			s.phase = phaseDone
			s.speaking = false
			close(s.doneCh)
		}
	}
}

// VoiceDetected signals once when voice has persisted past the grace
// period. The send never blocks the pipeline; the level is re-derivable
// from IsSpeaking, so a dropped signal is safe.
func (s *Segmenter) VoiceDetected() <-chan struct{} { return s.voiceCh }

// Finished is closed when silence has persisted past the configured
// duration after speech.
func (s *Segmenter) Finished() <-chan struct{} { return s.doneCh }

// IsSpeaking reports whether the utterance is between its detected start
// and end.
func (s *Segmenter) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// LastActiveTime returns the wall-clock time of the most recent voice
// frame. Zero until voice has been observed.
func (s *Segmenter) LastActiveTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Finalize stops the segmenter and returns the trimmed utterance: the span
// from the first to the last voice-tagged frame, extended by up to
// paddingFrames of surrounding silence on each side. Returns nil when the
// buffer holds no voice at all.
func (s *Segmenter) Finalize() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = phaseDone

	firstVoice, lastVoice := -1, -1
	for i, f := range s.frames {
		if f.Voice {
			if firstVoice == -1 {
				firstVoice = i
			}
			lastVoice = i
		}
	}
	if firstVoice == -1 {
		return nil
	}

	lo := firstVoice - s.paddingFrames
	if lo < 0 {
		lo = 0
	}
	hi := lastVoice + s.paddingFrames
	if hi > len(s.frames)-1 {
		hi = len(s.frames) - 1
	}

	out := make([]int16, 0, (hi-lo+1)*s.chunkSize)
	for _, f := range s.frames[lo : hi+1] {
		out = append(out, f.Samples...)
	}
	return out
}
