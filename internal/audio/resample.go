package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts captured audio from the device rate to the rate the
// voice classifier requires. It is stateful: filter history carries across
// Process calls so no samples are lost or duplicated at chunk boundaries.
type Resampler struct {
	inputRate  uint32
	outputRate uint32
	conv       resampling.Resampler
}

// NewResampler creates a mono int16 resampler between the two rates. Both
// rates equal is rejected; callers skip resampling in that case.
func NewResampler(inputRate, outputRate uint32) (*Resampler, error) {
	if inputRate == outputRate {
		return nil, fmt.Errorf("resampler rates are equal (%d Hz)", inputRate)
	}

	conv, err := resampling.New(&resampling.Config{
		InputRate:  float64(inputRate),
		OutputRate: float64(outputRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		conv:       conv,
	}, nil
}

// Ratio returns inputRate/outputRate.
func (r *Resampler) Ratio() float64 {
	return float64(r.inputRate) / float64(r.outputRate)
}

// Process converts one chunk of samples. The output length varies per call
// (roughly len(samples)/Ratio()) as the converter drains its filter state.
func (r *Resampler) Process(samples []int16) ([]int16, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s) / 32768.0
	}

	output, err := r.conv.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	out := make([]int16, len(output))
	for i, f := range output {
		switch {
		case f >= 1.0:
			out[i] = 32767
		case f <= -1.0:
			out[i] = -32768
		default:
			out[i] = int16(f * 32767.0)
		}
	}
	return out, nil
}
