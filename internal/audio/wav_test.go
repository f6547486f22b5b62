package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWavWriter_WriteAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")

	w, err := NewWavWriter(path, 16000, 1)
	require.NoError(t, err)

	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i - 800)
	}
	require.NoError(t, w.WriteSamples(samples))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 44+len(samples)*2)

	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, "fmt ", string(data[12:16]))
	assert.Equal(t, "data", string(data[36:40]))

	assert.Equal(t, uint32(36+len(samples)*2), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[20:22]), "PCM format tag")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24]), "channels")
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(data[28:32]), "byte rate")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(data[34:36]), "bits per sample")
	assert.Equal(t, uint32(len(samples)*2), binary.LittleEndian.Uint32(data[40:44]))

	// First sample round-trips.
	assert.Equal(t, int16(-800), int16(binary.LittleEndian.Uint16(data[44:46])))
}

func TestWavWriter_CloseEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")

	w, err := NewWavWriter(path, 48000, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 44)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[40:44]))
}

func TestWavWriter_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.wav")

	w, err := NewWavWriter(path, 16000, 1)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples([]int16{1, 2, 3}))
	require.NoError(t, w.Remove())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWavWriter_WriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.wav")

	w, err := NewWavWriter(path, 16000, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Error(t, w.WriteSamples([]int16{1}))
	assert.NoError(t, w.Close(), "second close is a no-op")
}

func TestNewWavWriter_InvalidFormat(t *testing.T) {
	dir := t.TempDir()

	_, err := NewWavWriter(filepath.Join(dir, "a.wav"), 0, 1)
	assert.Error(t, err)

	_, err = NewWavWriter(filepath.Join(dir, "b.wav"), 16000, 0)
	assert.Error(t, err)
}
