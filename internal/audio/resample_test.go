package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResampler_RejectsEqualRates(t *testing.T) {
	_, err := NewResampler(16000, 16000)
	assert.Error(t, err)
}

func TestResampler_Ratio(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	require.NoError(t, err)
	assert.Equal(t, 3.0, r.Ratio())
}

func TestResampler_EmptyInput(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	require.NoError(t, err)

	out, err := r.Process(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestResampler_Downsample(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	require.NoError(t, err)

	// Feed a second of audio in device-sized chunks; filter latency moves
	// samples between calls, but the total converges on n/ratio.
	var total int
	chunk := make([]int16, 480)
	for i := 0; i < 100; i++ {
		out, err := r.Process(chunk)
		require.NoError(t, err)
		total += len(out)
	}

	assert.InDelta(t, 16000, total, 200, "one second at 48 kHz resamples to about one second at 16 kHz")
}
