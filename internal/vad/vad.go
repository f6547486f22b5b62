// Package vad provides per-frame voice activity classification for the
// segmentation pipeline. Frames are fixed-size int16 chunks sized by
// ChunkSize for the pipeline's sample rate; a frame counts as voice when
// its classified probability is at least VoiceProbability.
package vad

import "math"

// VoiceProbability is the decision threshold: a frame classifies as voice
// iff its probability is >= this value.
const VoiceProbability = 0.5

// Classifier scores fixed-size frames with a voice probability in [0, 1].
// Classifier state (internal smoothing) persists across frames of one
// sentence; Reset is called between sentences.
type Classifier interface {
	// Classify scores one frame of exactly ChunkSize(rate) samples.
	Classify(frame []int16) (float32, error)

	// Reset clears internal state between sentences.
	Reset()

	// Close releases classifier resources.
	Close() error
}

// ChunkSize returns the classifier frame size in samples for a sample rate:
// round(rate/31.25) rounded up to the next multiple of 256 (~32 ms frames).
// This matches the frame sizes the Silero model expects (512 at 16 kHz,
// 256 at 8 kHz).
func ChunkSize(sampleRate int) int {
	n := int(math.Round(float64(sampleRate) / 31.25))
	return (n + 255) / 256 * 256
}

// Energy is an RMS-energy classifier. It returns hard probabilities (1.0
// when frame energy exceeds the threshold, else 0.0) and is used when no
// ONNX model is configured.
type Energy struct {
	// Threshold is the RMS level (0..1 scale) above which a frame counts
	// as voice. Typical values: 0.001 to 0.1, lower = more sensitive.
	Threshold float64
}

// DefaultEnergyThreshold is a moderate sensitivity on normalized RMS.
const DefaultEnergyThreshold = 0.01

// NewEnergy creates an energy classifier; threshold <= 0 selects the
// default.
func NewEnergy(threshold float64) *Energy {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return &Energy{Threshold: threshold}
}

// Classify scores a frame by normalized RMS energy.
func (e *Energy) Classify(frame []int16) (float32, error) {
	if rms(frame) > e.Threshold {
		return 1.0, nil
	}
	return 0.0, nil
}

// Reset is a no-op: the energy classifier keeps no state across frames.
func (e *Energy) Reset() {}

// Close is a no-op.
func (e *Energy) Close() error { return nil }

// rms computes root-mean-square energy normalized to [0, 1].
func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}
