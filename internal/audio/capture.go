package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Capture setup failures. Stream runtime failures are wrapped in
// StreamError instead.
var (
	// ErrNoInputDevice indicates that no capture device exists (or the
	// requested device name matched nothing).
	ErrNoInputDevice = errors.New("no input device available")

	// ErrNoSupportedConfig indicates that the device accepted none of the
	// preferred sample rates.
	ErrNoSupportedConfig = errors.New("no supported audio configuration found")
)

// StreamError wraps a hardware stream failure with the operation that
// triggered it ("build", "start", "stop").
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("audio stream %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Format is the sample format delivered by the capture device.
type Format int

const (
	// FormatS16 is interleaved signed 16-bit little-endian PCM.
	FormatS16 Format = iota
	// FormatF32 is interleaved 32-bit float PCM in [-1, 1].
	FormatF32
)

func (f Format) String() string {
	switch f {
	case FormatS16:
		return "s16"
	case FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// DefaultPreferredRates is the rate preference list used during
// negotiation, highest quality first.
var DefaultPreferredRates = []uint32{48000, 44100, 32000, 16000, 8000}

// Config is a negotiated capture configuration. It is resolved once per
// recording run and immutable afterwards.
type Config struct {
	// DeviceName is the requested device ("" = system default).
	DeviceName string

	// SampleRate is the negotiated device rate in Hz.
	SampleRate uint32

	// Channels is the channel count. The recorder captures mono.
	Channels uint32

	// SampleFormat is the wire format delivered by the device.
	SampleFormat Format

	// PeriodFrames is the device buffer size in frames per callback.
	PeriodFrames uint32

	// ChunkBufferSize is the capacity of the chunk channel. Larger values
	// tolerate a slower consumer at the cost of memory.
	ChunkBufferSize int
}

// DefaultConfig returns the capture configuration used before negotiation
// fills in the device rate.
func DefaultConfig() Config {
	return Config{
		Channels:        1,
		SampleFormat:    FormatS16,
		PeriodFrames:    480,
		ChunkBufferSize: 64,
	}
}

// Chunk is one capture callback's worth of interleaved samples, already
// converted to int16.
type Chunk struct {
	Samples []int16
	Frames  uint32
	Time    time.Time
}

// Capturer is a push-style sample source. Implementations deliver chunks on
// a dedicated hardware callback; the callback must never block, so chunks
// are dropped (and reported on Errors) when the consumer falls behind.
type Capturer interface {
	// Start begins capture. The capturer stops when ctx is cancelled or
	// Stop is called.
	Start(ctx context.Context) error

	// Stop stops capture and releases the device. After Stop returns no
	// further callback runs, which makes it safe to finalize or delete the
	// output file.
	Stop() error

	// Chunks returns the channel receiving captured audio.
	Chunks() <-chan Chunk

	// Errors returns the channel receiving capture diagnostics.
	Errors() <-chan error

	// IsRunning reports whether capture is active.
	IsRunning() bool
}

// Opener resolves a capture configuration and opens sources for it. The
// malgo implementation talks to hardware; tests substitute a fake.
type Opener interface {
	// Negotiate resolves the device and picks the first preferred rate it
	// accepts. Fails with ErrNoInputDevice or ErrNoSupportedConfig.
	Negotiate() (Config, error)

	// Open creates a capturer for a negotiated configuration.
	Open(cfg Config) (Capturer, error)
}

// decodeS16 converts little-endian signed 16-bit PCM bytes to samples.
// A trailing odd byte is ignored.
func decodeS16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// decodeF32 converts little-endian 32-bit float PCM bytes to int16 samples,
// clipping to the int16 range.
func decodeF32(data []byte) []int16 {
	samples := make([]int16, len(data)/4)
	for i := range samples {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		f := math.Float32frombits(bits)
		switch {
		case f >= 1.0:
			samples[i] = 32767
		case f <= -1.0:
			samples[i] = -32768
		default:
			samples[i] = int16(f * 32767.0)
		}
	}
	return samples
}

// DecodeSamples converts raw device bytes in the given format to int16.
func DecodeSamples(format Format, data []byte) []int16 {
	if format == FormatF32 {
		return decodeF32(data)
	}
	return decodeS16(data)
}
