package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 16000, cfg.VAD.SampleRate)
	assert.Equal(t, 0.01, cfg.VAD.EnergyThreshold)
	assert.Equal(t, 1000, cfg.Recording.SilenceDurationMs)
	assert.Equal(t, 200, cfg.Recording.SilencePaddingMs)
	assert.Equal(t, "corpusrec", cfg.Project.Directory)
	assert.Equal(t, "f9", cfg.Hotkeys.PauseResume)
	assert.Equal(t, "f10", cfg.Hotkeys.Stop)
}

func TestDurationAccessors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Second, cfg.SilenceDuration())
	assert.Equal(t, 200*time.Millisecond, cfg.SilencePadding())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
audio:
  device: "USB Microphone"
  preferred_rates: [48000, 16000]
vad:
  model_path: /models/silero.onnx
  sample_rate: 8000
recording:
  silence_duration_ms: 750
project:
  directory: /data/corpus
hotkeys:
  pause_resume: ctrl+p
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "USB Microphone", cfg.Audio.Device)
	assert.Equal(t, []uint32{48000, 16000}, cfg.Audio.PreferredRates)
	assert.Equal(t, "/models/silero.onnx", cfg.VAD.ModelPath)
	assert.Equal(t, 8000, cfg.VAD.SampleRate)
	assert.Equal(t, 750, cfg.Recording.SilenceDurationMs)
	assert.Equal(t, "/data/corpus", cfg.Project.Directory)
	assert.Equal(t, "ctrl+p", cfg.Hotkeys.PauseResume)

	// Unset keys keep their defaults.
	assert.Equal(t, 200, cfg.Recording.SilencePaddingMs)
	assert.Equal(t, "f10", cfg.Hotkeys.Stop)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadWithFallback_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vad:\n  sample_rate: 8000\n"), 0o644))

	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.VAD.SampleRate)
}

func TestLoadWithFallback_UserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".corpusrecrc"), []byte("audio:\n  device: rc-device\n"), 0o644))

	cfg, err := LoadWithFallback("")
	require.NoError(t, err)
	assert.Equal(t, "rc-device", cfg.Audio.Device)
}

func TestLoadWithFallback_NoConfigUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadWithFallback("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audio.Device = "pulse"
	cfg.Audio.PreferredRates = []uint32{48000, 16000}
	cfg.VAD.ModelPath = "/opt/silero.onnx"
	cfg.Recording.SilenceDurationMs = 1500

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
