package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// MalgoCapturer implements the Capturer interface using malgo (miniaudio).
type MalgoCapturer struct {
	config       Config
	device       *malgo.Device
	malgoContext *malgo.AllocatedContext
	chunks       chan Chunk
	errs         chan error
	running      bool
	mu           sync.RWMutex
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewMalgoCapturer creates a malgo-based capturer for a negotiated config.
func NewMalgoCapturer(config Config) (*MalgoCapturer, error) {
	if config.SampleRate == 0 {
		return nil, fmt.Errorf("capture config has no sample rate (negotiate first)")
	}
	bufSize := config.ChunkBufferSize
	if bufSize <= 0 {
		bufSize = DefaultConfig().ChunkBufferSize
	}
	return &MalgoCapturer{
		config:   config,
		chunks:   make(chan Chunk, bufSize),
		errs:     make(chan error, 10),
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins audio capture.
func (m *MalgoCapturer) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("capturer is already running")
	}
	m.running = true
	m.mu.Unlock()

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		m.setStopped()
		return &StreamError{Op: "build", Err: fmt.Errorf("init context: %w", err)}
	}
	m.malgoContext = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Channels = m.config.Channels
	deviceConfig.SampleRate = m.config.SampleRate
	deviceConfig.PeriodSizeInFrames = m.config.PeriodFrames
	switch m.config.SampleFormat {
	case FormatF32:
		deviceConfig.Capture.Format = malgo.FormatF32
	default:
		deviceConfig.Capture.Format = malgo.FormatS16
	}

	if m.config.DeviceName != "" {
		id, err := findCaptureDeviceID(malgoCtx, m.config.DeviceName)
		if err != nil {
			m.teardownContext()
			m.setStopped()
			return err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	format := m.config.SampleFormat
	callbacks := malgo.DeviceCallbacks{
		// Invoked on the realtime audio thread: convert, copy and hand off
		// without blocking. Overflow drops the chunk.
		Data: func(pOutputSamples, pInputSamples []byte, framecount uint32) {
			chunk := Chunk{
				Samples: DecodeSamples(format, pInputSamples),
				Frames:  framecount,
				Time:    time.Now(),
			}
			select {
			case m.chunks <- chunk:
			default:
				select {
				case m.errs <- fmt.Errorf("chunk buffer overflow, dropping %d frames", framecount):
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		m.teardownContext()
		m.setStopped()
		return &StreamError{Op: "build", Err: err}
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		m.teardownContext()
		m.setStopped()
		return &StreamError{Op: "start", Err: err}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// Cancellation runs the shared teardown directly. Stop would
		// deadlock here: it waits on this goroutine.
		select {
		case <-ctx.Done():
			_ = m.shutdown()
		case <-m.stopChan:
		}
	}()

	return nil
}

// Stop stops capture. It blocks until the device is fully uninitialized, so
// no callback is in flight when it returns. Safe to call after the Start
// context has already torn the capturer down.
func (m *MalgoCapturer) Stop() error {
	err := m.shutdown()
	m.wg.Wait()
	return err
}

// shutdown runs the teardown exactly once, whether triggered by Stop or by
// Start's context. The chunk and error channels always end up closed, so a
// draining consumer terminates regardless of which path won.
func (m *MalgoCapturer) shutdown() error {
	var stopErr error
	m.stopOnce.Do(func() {
		close(m.stopChan)

		m.mu.Lock()
		m.running = false
		device := m.device
		m.device = nil
		m.mu.Unlock()

		if device != nil {
			if err := device.Stop(); err != nil {
				stopErr = &StreamError{Op: "stop", Err: err}
			}
			device.Uninit()
		}
		m.teardownContext()

		close(m.chunks)
		close(m.errs)
	})
	return stopErr
}

// Chunks returns the channel receiving captured audio.
func (m *MalgoCapturer) Chunks() <-chan Chunk { return m.chunks }

// Errors returns the channel receiving capture diagnostics.
func (m *MalgoCapturer) Errors() <-chan error { return m.errs }

// IsRunning reports whether capture is active.
func (m *MalgoCapturer) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *MalgoCapturer) setStopped() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *MalgoCapturer) teardownContext() {
	if m.malgoContext != nil {
		_ = m.malgoContext.Uninit()
		m.malgoContext.Free()
		m.malgoContext = nil
	}
}

// MalgoOpener negotiates against real hardware and opens MalgoCapturers.
type MalgoOpener struct {
	// DeviceName restricts negotiation to a named device ("" = default).
	DeviceName string

	// PreferredRates overrides DefaultPreferredRates when non-empty.
	PreferredRates []uint32
}

// Negotiate resolves the capture device and picks the first preferred rate
// the device accepts, probing with a short-lived device initialization.
func (o *MalgoOpener) Negotiate() (Config, error) {
	rates := o.PreferredRates
	if len(rates) == 0 {
		rates = DefaultPreferredRates
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return Config{}, &StreamError{Op: "build", Err: fmt.Errorf("init context: %w", err)}
	}
	defer func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}()

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return Config{}, fmt.Errorf("enumerate devices: %w", err)
	}
	if len(infos) == 0 {
		return Config{}, ErrNoInputDevice
	}

	var deviceID *malgo.DeviceID
	if o.DeviceName != "" {
		id, err := findCaptureDeviceID(malgoCtx, o.DeviceName)
		if err != nil {
			return Config{}, err
		}
		deviceID = id
	}

	cfg := DefaultConfig()
	cfg.DeviceName = o.DeviceName

	for _, rate := range rates {
		deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
		deviceConfig.Capture.Format = malgo.FormatS16
		deviceConfig.Capture.Channels = cfg.Channels
		deviceConfig.SampleRate = rate
		deviceConfig.PeriodSizeInFrames = cfg.PeriodFrames
		if deviceID != nil {
			deviceConfig.Capture.DeviceID = deviceID.Pointer()
		}

		probe, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{})
		if err != nil {
			continue
		}
		probe.Uninit()

		cfg.SampleRate = rate
		return cfg, nil
	}

	return Config{}, ErrNoSupportedConfig
}

// Open creates a capturer for a negotiated configuration.
func (o *MalgoOpener) Open(cfg Config) (Capturer, error) {
	return NewMalgoCapturer(cfg)
}

// findCaptureDeviceID locates a capture device by case-insensitive
// substring match on its name.
func findCaptureDeviceID(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceID, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	needle := strings.ToLower(name)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), needle) {
			id := infos[i].ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("%w: no capture device matching %q", ErrNoInputDevice, name)
}
