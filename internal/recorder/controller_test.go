package recorder

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/corpusrec/internal/audio"
	"github.com/emmett/corpusrec/internal/project"
	"github.com/emmett/corpusrec/internal/vad"
)

// fakeOpener hands out a fresh fakeCapturer per sentence, all replaying the
// same script.
type fakeOpener struct {
	cfg    audio.Config
	script [][]int16
	loop   bool

	mu     sync.Mutex
	opened []*fakeCapturer
}

func newFakeOpener(script [][]int16, loop bool) *fakeOpener {
	return &fakeOpener{
		cfg: audio.Config{
			SampleRate:      testRate,
			Channels:        1,
			SampleFormat:    audio.FormatS16,
			ChunkBufferSize: 16,
		},
		script: script,
		loop:   loop,
	}
}

func (f *fakeOpener) Negotiate() (audio.Config, error) {
	return f.cfg, nil
}

func (f *fakeOpener) Open(cfg audio.Config) (audio.Capturer, error) {
	c := newFakeCapturer(f.script, f.loop)
	f.mu.Lock()
	f.opened = append(f.opened, c)
	f.mu.Unlock()
	return c, nil
}

// recordedEvents collects notifications for assertions.
type recordedEvents struct {
	mu        sync.Mutex
	started   []int
	finished  []int
	paths     []string
	completes []bool
	diags     []string
}

func (r *recordedEvents) SentenceStarted(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *recordedEvents) SentenceFinished(id int, audioPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, id)
	r.paths = append(r.paths, audioPath)
}

func (r *recordedEvents) Complete(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, ok)
}

func (r *recordedEvents) Diagnostic(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags = append(r.diags, msg)
}

func energyFactory(rate int) (vad.Classifier, error) {
	return vad.NewEnergy(0.01), nil
}

func newTestController(t *testing.T, opener audio.Opener, events Notifier) *Controller {
	t.Helper()
	ctrl, err := NewController(ControllerConfig{
		Opener:        opener,
		NewClassifier: energyFactory,
		Notifier:      events,
		VADRate:       testRate,
		PollInterval:  5 * time.Millisecond,
	})
	require.NoError(t, err)
	return ctrl
}

func TestNewController_Validation(t *testing.T) {
	opener := newFakeOpener(nil, false)

	_, err := NewController(ControllerConfig{NewClassifier: energyFactory, Notifier: NopNotifier{}})
	assert.Error(t, err, "missing opener")

	_, err = NewController(ControllerConfig{Opener: opener, Notifier: NopNotifier{}})
	assert.Error(t, err, "missing classifier factory")

	_, err = NewController(ControllerConfig{Opener: opener, NewClassifier: energyFactory})
	assert.Error(t, err, "missing notifier")
}

func TestController_TransitionsFromIdle(t *testing.T) {
	ctrl := newTestController(t, newFakeOpener(nil, false), NopNotifier{})
	require.Equal(t, StateIdle, ctrl.State())

	var itErr *InvalidTransitionError

	err := ctrl.Pause()
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, "pause", itErr.Op)
	assert.Equal(t, StateIdle, itErr.State)

	err = ctrl.Resume()
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, "resume", itErr.Op)

	err = ctrl.Stop()
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, "stop", itErr.Op)

	assert.Equal(t, StateIdle, ctrl.State(), "state unchanged by rejected calls")
}

func TestController_StartValidation(t *testing.T) {
	ctrl := newTestController(t, newFakeOpener(nil, false), NopNotifier{})

	err := ctrl.Start(Params{ProjectDirectory: t.TempDir(), SilenceDuration: time.Second})
	assert.Error(t, err, "no sentences")

	err = ctrl.Start(Params{Sentences: []project.Sentence{{ID: 1, Text: "a"}}, SilenceDuration: time.Second})
	assert.Error(t, err, "no project directory")

	err = ctrl.Start(Params{Sentences: []project.Sentence{{ID: 1, Text: "a"}}, ProjectDirectory: t.TempDir()})
	assert.Error(t, err, "no silence duration")

	assert.Equal(t, StateIdle, ctrl.State(), "failed start leaves the controller idle")
}

func TestController_RecordsAllSentences(t *testing.T) {
	dir := t.TempDir()
	chunk := vad.ChunkSize(testRate)

	// Per sentence: 16 frames of silence, 32 frames of voice, then
	// silence until the utterance ends.
	script := append(repeatFrames(silenceFrame(chunk), 16),
		append(repeatFrames(voiceFrame(chunk), 32),
			repeatFrames(silenceFrame(chunk), 30)...)...)
	opener := newFakeOpener(script, false)
	events := &recordedEvents{}

	ctrl := newTestController(t, opener, events)
	err := ctrl.Start(Params{
		Sentences: []project.Sentence{
			{ID: 1, Text: "Hello world"},
			{ID: 2, Text: "Second sentence"},
		},
		ProjectDirectory: dir,
		SilenceDuration:  800 * time.Millisecond,
		SilencePadding:   200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, StateRecording, ctrl.State())

	ctrl.Wait()
	assert.Equal(t, StateIdle, ctrl.State())

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []int{1, 2}, events.started)
	assert.Equal(t, []int{1, 2}, events.finished)
	assert.Equal(t, []bool{true}, events.completes)
	assert.Empty(t, events.diags)

	sentences := ctrl.Sentences()
	require.Len(t, sentences, 2)
	for i, sent := range sentences {
		assert.True(t, sent.Recorded, "sentence %d", sent.ID)
		assert.Equal(t, events.paths[i], sent.AudioFilePath)

		info, err := os.Stat(sent.AudioFilePath)
		require.NoError(t, err)

		// Voice spans frames 16..47; 200 ms padding is 6 frames, so
		// frames 10..53 survive the trim: 44 frames of audio.
		assert.EqualValues(t, 44+44*chunk*2, info.Size())
	}

	// Every per-sentence stream was torn down.
	for _, c := range opener.opened {
		assert.False(t, c.IsRunning())
	}
}

func TestController_StopAbortsCurrentSentence(t *testing.T) {
	dir := t.TempDir()
	chunk := vad.ChunkSize(testRate)

	// Endless silence: without a stop the sentence would never finish.
	opener := newFakeOpener(repeatFrames(silenceFrame(chunk), 4), true)
	events := &recordedEvents{}

	ctrl := newTestController(t, opener, events)
	err := ctrl.Start(Params{
		Sentences:        []project.Sentence{{ID: 1, Text: "never spoken"}},
		ProjectDirectory: dir,
		SilenceDuration:  200 * time.Millisecond,
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, ctrl.Stop())
	ctrl.Wait()

	assert.Equal(t, StateIdle, ctrl.State())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "aborted sentence leaves no file")

	sentences := ctrl.Sentences()
	require.Len(t, sentences, 1)
	assert.False(t, sentences[0].Recorded)
}

func TestController_PauseAndResume(t *testing.T) {
	dir := t.TempDir()
	chunk := vad.ChunkSize(testRate)

	opener := newFakeOpener(repeatFrames(silenceFrame(chunk), 4), true)
	ctrl := newTestController(t, opener, &recordedEvents{})

	err := ctrl.Start(Params{
		Sentences:        []project.Sentence{{ID: 1, Text: "on hold"}},
		ProjectDirectory: dir,
		SilenceDuration:  200 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, ctrl.Pause())
	assert.Equal(t, StatePaused, ctrl.State())
	assert.Error(t, ctrl.Pause(), "already paused")

	require.NoError(t, ctrl.Resume())
	assert.Equal(t, StateRecording, ctrl.State())
	assert.Error(t, ctrl.Resume(), "already recording")

	require.NoError(t, ctrl.Stop())
	ctrl.Wait()
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestController_StopWhilePaused(t *testing.T) {
	dir := t.TempDir()
	chunk := vad.ChunkSize(testRate)

	opener := newFakeOpener(repeatFrames(silenceFrame(chunk), 4), true)
	ctrl := newTestController(t, opener, &recordedEvents{})

	err := ctrl.Start(Params{
		Sentences:        []project.Sentence{{ID: 1, Text: "cut short"}},
		ProjectDirectory: dir,
		SilenceDuration:  200 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, ctrl.Pause())
	require.NoError(t, ctrl.Stop())
	ctrl.Wait()

	assert.Equal(t, StateIdle, ctrl.State())
}
