package vad

import (
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"
)

// Silero classifies frames with the Silero VAD ONNX model. The detector's
// streaming API reports speech start/end boundaries; inside a speech span
// frames score 1.0, outside 0.0, which downstream thresholding treats the
// same as raw probabilities.
type Silero struct {
	detector *speech.Detector
	inSpeech bool
}

// SileroConfig configures the model-backed classifier.
type SileroConfig struct {
	// ModelPath is the path to silero_vad.onnx.
	ModelPath string

	// SampleRate must be 8000 or 16000; the model supports nothing else.
	SampleRate int

	// Threshold is the model's internal speech probability threshold.
	// Zero selects 0.5.
	Threshold float32
}

// NewSilero loads the model and prepares a streaming detector.
func NewSilero(cfg SileroConfig) (*Silero, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("silero model path is required")
	}
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		return nil, fmt.Errorf("silero supports 8000 or 16000 Hz, got %d", cfg.SampleRate)
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = VoiceProbability
	}

	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  cfg.ModelPath,
		SampleRate: cfg.SampleRate,
		Threshold:  threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create silero detector: %w", err)
	}

	return &Silero{detector: detector}, nil
}

// Classify feeds one frame to the streaming detector and returns the
// current speech level.
func (s *Silero) Classify(frame []int16) (float32, error) {
	samples := make([]float32, len(frame))
	for i, v := range frame {
		samples[i] = float32(v) / 32768.0
	}

	event, err := s.detector.DetectStreamFrame(samples)
	if err != nil {
		return 0, fmt.Errorf("silero detect: %w", err)
	}
	if event != nil {
		if event.IsStart {
			s.inSpeech = true
		}
		if event.IsEnd {
			s.inSpeech = false
		}
	}

	if s.inSpeech {
		return 1.0, nil
	}
	return 0.0, nil
}

// Reset clears detector state between sentences.
func (s *Silero) Reset() {
	s.inSpeech = false
	s.detector.Reset()
}

// Close releases the ONNX session.
func (s *Silero) Close() error {
	return s.detector.Destroy()
}
