package mcp

import (
	"sync"
	"time"
)

// maxEvents bounds the status buffer; older events are discarded.
const maxEvents = 50

// RecordEvent is a single entry in the recording event buffer.
type RecordEvent struct {
	Type      string    `json:"type"`
	Sentence  int       `json:"sentence,omitempty"`
	AudioPath string    `json:"audio_path,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// eventLog collects recording notifications so recording_status can report
// progress between tool calls.
type eventLog struct {
	mu     sync.Mutex
	events []RecordEvent
	saved  int
}

func newEventLog() *eventLog {
	return &eventLog{}
}

func (e *eventLog) add(ev RecordEvent) {
	ev.Timestamp = time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	if len(e.events) > maxEvents {
		e.events = e.events[len(e.events)-maxEvents:]
	}
}

func (e *eventLog) SentenceStarted(id int) {
	e.add(RecordEvent{Type: "sentence_started", Sentence: id})
}

func (e *eventLog) SentenceFinished(id int, audioPath string) {
	e.mu.Lock()
	e.saved++
	e.mu.Unlock()
	e.add(RecordEvent{Type: "sentence_finished", Sentence: id, AudioPath: audioPath})
}

func (e *eventLog) Complete(ok bool) {
	msg := "run complete"
	if !ok {
		msg = "run ended with errors"
	}
	e.add(RecordEvent{Type: "complete", Message: msg})
}

func (e *eventLog) Diagnostic(msg string) {
	e.add(RecordEvent{Type: "diagnostic", Message: msg})
}

// Snapshot returns the buffered events and the count of sentences saved
// since Reset.
func (e *eventLog) Snapshot() ([]RecordEvent, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RecordEvent, len(e.events))
	copy(out, e.events)
	return out, e.saved
}

// Reset clears the buffer at the start of a new run.
func (e *eventLog) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = e.events[:0]
	e.saved = 0
}
