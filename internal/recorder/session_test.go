package recorder

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/corpusrec/internal/audio"
	"github.com/emmett/corpusrec/internal/project"
)

// fakeCapturer replays a scripted chunk sequence. When loop is set the
// script repeats until Stop; otherwise the capturer idles after the script
// with the channels held open, like real hardware between callbacks.
type fakeCapturer struct {
	script   [][]int16
	loop     bool
	startErr error

	chunks   chan audio.Chunk
	errs     chan error
	stop     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

func newFakeCapturer(script [][]int16, loop bool) *fakeCapturer {
	return &fakeCapturer{
		script: script,
		loop:   loop,
		chunks: make(chan audio.Chunk, 16),
		errs:   make(chan error, 4),
		stop:   make(chan struct{}),
	}
}

func (f *fakeCapturer) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running.Store(true)
	go func() {
		defer close(f.chunks)
		defer close(f.errs)
		for {
			for _, samples := range f.script {
				select {
				case f.chunks <- audio.Chunk{Samples: samples, Frames: uint32(len(samples)), Time: time.Now()}:
				case <-f.stop:
					return
				case <-ctx.Done():
					return
				}
			}
			if !f.loop {
				break
			}
		}
		<-f.stop
	}()
	return nil
}

func (f *fakeCapturer) Stop() error {
	f.stopOnce.Do(func() { close(f.stop) })
	f.running.Store(false)
	return nil
}

func (f *fakeCapturer) Chunks() <-chan audio.Chunk { return f.chunks }
func (f *fakeCapturer) Errors() <-chan error       { return f.errs }
func (f *fakeCapturer) IsRunning() bool            { return f.running.Load() }

func repeatFrames(frame []int16, count int) [][]int16 {
	out := make([][]int16, count)
	for i := range out {
		out[i] = frame
	}
	return out
}

// sessionSegmenter builds a segmenter with short windows: 64 ms grace
// (2 frames), 160 ms silence (5 frames), 32 ms padding (1 frame).
func sessionSegmenter(t *testing.T) *Segmenter {
	t.Helper()
	return newTestSegmenter(t, SegmenterConfig{
		GracePeriod:     64 * time.Millisecond,
		SilenceDuration: 160 * time.Millisecond,
		SilencePadding:  32 * time.Millisecond,
	})
}

func waitFinished(t *testing.T, seg *Segmenter) {
	t.Helper()
	select {
	case <-seg.Finished():
	case <-time.After(2 * time.Second):
		t.Fatal("segmenter did not finish in time")
	}
}

func TestSentenceSession_CommitWritesTrimmedWav(t *testing.T) {
	dir := t.TempDir()
	seg := sessionSegmenter(t)
	chunk := seg.ChunkSize()

	script := append(repeatFrames(silenceFrame(chunk), 2),
		append(repeatFrames(voiceFrame(chunk), 3),
			repeatFrames(silenceFrame(chunk), 6)...)...)
	source := newFakeCapturer(script, false)

	session, err := NewSentenceSession(SessionConfig{
		Sentence:   project.Sentence{ID: 1, Text: "Hello world"},
		ProjectDir: dir,
		Source:     source,
		Segmenter:  seg,
		SampleRate: testRate,
		Channels:   1,
	})
	require.NoError(t, err)
	require.NoError(t, session.Start(context.Background()))

	waitFinished(t, seg)
	require.NoError(t, session.Close(true))

	assert.Equal(t, filepath.Join(dir, "Hello_world.wav"), session.Path())
	info, err := os.Stat(session.Path())
	require.NoError(t, err)

	// Voice spans frames 2..4; one padding frame each side keeps 1..5.
	assert.EqualValues(t, 44+5*chunk*2, info.Size())
	assert.False(t, source.IsRunning(), "stream stopped before finalize")
}

func TestSentenceSession_DeviceSizedChunks(t *testing.T) {
	dir := t.TempDir()
	seg := sessionSegmenter(t)
	chunk := seg.ChunkSize()

	// Callbacks deliver 480-sample chunks, misaligned with the 512-sample
	// classifier frame. 4800 samples of silence, 9600 of voice, 9600 of
	// silence: voice spans frames 9..28 of the reassembled stream.
	script := append(repeatFrames(silenceFrame(480), 10),
		append(repeatFrames(voiceFrame(480), 20),
			repeatFrames(silenceFrame(480), 20)...)...)
	source := newFakeCapturer(script, false)

	session, err := NewSentenceSession(SessionConfig{
		Sentence:   project.Sentence{ID: 5, Text: "small chunks"},
		ProjectDir: dir,
		Source:     source,
		Segmenter:  seg,
		SampleRate: testRate,
		Channels:   1,
	})
	require.NoError(t, err)
	require.NoError(t, session.Start(context.Background()))

	waitFinished(t, seg)
	require.NoError(t, session.Close(true))

	// One padding frame each side keeps frames 8..29.
	info, err := os.Stat(session.Path())
	require.NoError(t, err)
	assert.EqualValues(t, 44+22*chunk*2, info.Size())
}

func TestSentenceSession_StartFailureTeardown(t *testing.T) {
	dir := t.TempDir()
	seg := sessionSegmenter(t)
	source := newFakeCapturer(nil, false)
	source.startErr = assert.AnError

	session, err := NewSentenceSession(SessionConfig{
		Sentence:   project.Sentence{ID: 6, Text: "dead device"},
		ProjectDir: dir,
		Source:     source,
		Segmenter:  seg,
		SampleRate: testRate,
		Channels:   1,
	})
	require.NoError(t, err)
	require.ErrorIs(t, session.Start(context.Background()), assert.AnError)

	// Close must not wait for a pump that never started.
	require.NoError(t, session.Close(false))
	_, err = os.Stat(session.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestSentenceSession_AbortRemovesFile(t *testing.T) {
	dir := t.TempDir()
	seg := sessionSegmenter(t)

	source := newFakeCapturer(repeatFrames(silenceFrame(seg.ChunkSize()), 4), true)

	session, err := NewSentenceSession(SessionConfig{
		Sentence:   project.Sentence{ID: 2, Text: "abandoned take"},
		ProjectDir: dir,
		Source:     source,
		Segmenter:  seg,
		SampleRate: testRate,
		Channels:   1,
	})
	require.NoError(t, err)
	require.NoError(t, session.Start(context.Background()))

	require.NoError(t, session.Close(false))

	_, err = os.Stat(session.Path())
	assert.True(t, os.IsNotExist(err), "aborted session leaves no file")
	assert.False(t, source.IsRunning())
	assert.NoError(t, session.Close(false), "second close is a no-op")
}

func TestSentenceSession_NoVoiceIsAnError(t *testing.T) {
	dir := t.TempDir()
	seg := sessionSegmenter(t)

	source := newFakeCapturer(repeatFrames(silenceFrame(seg.ChunkSize()), 8), false)

	session, err := NewSentenceSession(SessionConfig{
		Sentence:   project.Sentence{ID: 3, Text: "nothing said"},
		ProjectDir: dir,
		Source:     source,
		Segmenter:  seg,
		SampleRate: testRate,
		Channels:   1,
	})
	require.NoError(t, err)
	require.NoError(t, session.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)

	err = session.Close(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no voice")

	_, err = os.Stat(session.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestNewSentenceSession_Validation(t *testing.T) {
	seg := sessionSegmenter(t)
	source := newFakeCapturer(nil, false)

	_, err := NewSentenceSession(SessionConfig{ProjectDir: t.TempDir(), Segmenter: seg, SampleRate: testRate, Channels: 1})
	assert.Error(t, err, "missing source")

	_, err = NewSentenceSession(SessionConfig{ProjectDir: t.TempDir(), Source: source, SampleRate: testRate, Channels: 1})
	assert.Error(t, err, "missing segmenter")

	_, err = NewSentenceSession(SessionConfig{Source: source, Segmenter: seg, SampleRate: testRate, Channels: 1})
	assert.Error(t, err, "missing project dir")
}

func TestSentenceFileName(t *testing.T) {
	assert.Equal(t, "Hello_world.wav", sentenceFileName("Hello world"))
	assert.Equal(t, "one_two_three.wav", sentenceFileName("  one two three "))
}
