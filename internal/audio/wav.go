package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const wavHeaderSize = 44

// WavWriter writes 16-bit little-endian PCM to a RIFF/WAVE file. The header
// is written with placeholder sizes on creation and patched on Close, so a
// file is only valid once Close has returned.
type WavWriter struct {
	path       string
	file       *os.File
	sampleRate uint32
	channels   uint16
	dataBytes  uint32
	closed     bool
}

// NewWavWriter creates the output file and writes the provisional header.
func NewWavWriter(path string, sampleRate uint32, channels uint16) (*WavWriter, error) {
	if sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("invalid wav format: rate=%d channels=%d", sampleRate, channels)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}

	w := &WavWriter{
		path:       path,
		file:       file,
		sampleRate: sampleRate,
		channels:   channels,
	}
	if err := w.writeHeader(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// Path returns the file path being written.
func (w *WavWriter) Path() string { return w.path }

// WriteSamples appends samples to the data chunk.
func (w *WavWriter) WriteSamples(samples []int16) error {
	if w.closed {
		return fmt.Errorf("wav writer is closed")
	}
	if len(samples) == 0 {
		return nil
	}

	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	n, err := w.file.Write(buf)
	w.dataBytes += uint32(n)
	if err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return nil
}

// Close patches the header sizes and closes the file, finalizing it.
func (w *WavWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize wav header: %w", err)
	}
	if err := w.writeHeader(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close wav file: %w", err)
	}
	return nil
}

// Remove closes the writer and deletes the file. Used when a recording is
// aborted so no partial WAV is left on disk.
func (w *WavWriter) Remove() error {
	if !w.closed {
		w.closed = true
		w.file.Close()
	}
	if err := os.Remove(w.path); err != nil {
		return fmt.Errorf("failed to remove wav file: %w", err)
	}
	return nil
}

func (w *WavWriter) writeHeader() error {
	byteRate := w.sampleRate * uint32(w.channels) * 2
	blockAlign := w.channels * 2

	var buf [wavHeaderSize]byte
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+w.dataBytes)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], w.channels)
	binary.LittleEndian.PutUint32(buf[24:28], w.sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], byteRate)
	binary.LittleEndian.PutUint16(buf[32:34], blockAlign)
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], w.dataBytes)

	if _, err := w.file.Write(buf[:]); err != nil {
		return fmt.Errorf("failed to write wav header: %w", err)
	}
	return nil
}
