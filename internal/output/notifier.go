package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Event is a single recording progress event.
type Event struct {
	Type      string    `json:"type"`
	Sentence  int       `json:"sentence,omitempty"`
	AudioPath string    `json:"audio_path,omitempty"`
	Message   string    `json:"message,omitempty"`
	OK        *bool     `json:"ok,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventSentenceStarted  = "sentence_started"
	EventSentenceFinished = "sentence_finished"
	EventComplete         = "complete"
	EventDiagnostic       = "diagnostic"
)

// ConsoleNotifier prints recording progress to a terminal.
type ConsoleNotifier struct {
	mu            sync.Mutex
	writer        io.Writer
	showTimestamp bool
}

// ConsoleConfig configures console notification behavior
type ConsoleConfig struct {
	// ShowTimestamp prefixes each line with a timestamp
	ShowTimestamp bool

	// Writer is the output destination (default: os.Stdout)
	Writer io.Writer
}

// NewConsoleNotifier creates a new console notifier
func NewConsoleNotifier(config ConsoleConfig) *ConsoleNotifier {
	writer := config.Writer
	if writer == nil {
		writer = os.Stdout
	}

	return &ConsoleNotifier{
		writer:        writer,
		showTimestamp: config.ShowTimestamp,
	}
}

// DefaultConsoleNotifier creates a console notifier with default settings
func DefaultConsoleNotifier() *ConsoleNotifier {
	return NewConsoleNotifier(ConsoleConfig{
		ShowTimestamp: true,
		Writer:        os.Stdout,
	})
}

func (c *ConsoleNotifier) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.showTimestamp {
		fmt.Fprintf(c.writer, "[%s] ", time.Now().Format("15:04:05"))
	}
	fmt.Fprintf(c.writer, format+"\n", args...)
}

// SentenceStarted announces that recording has moved on to a sentence.
func (c *ConsoleNotifier) SentenceStarted(id int) {
	c.printf("recording sentence %d, speak now", id)
}

// SentenceFinished announces the saved audio file for a sentence.
func (c *ConsoleNotifier) SentenceFinished(id int, audioPath string) {
	c.printf("sentence %d saved to %s", id, audioPath)
}

// Complete announces the end of the run.
func (c *ConsoleNotifier) Complete(ok bool) {
	if ok {
		c.printf("recording complete")
	} else {
		c.printf("recording ended with errors")
	}
}

// Diagnostic reports a non-fatal pipeline problem.
func (c *ConsoleNotifier) Diagnostic(msg string) {
	c.printf("warning: %s", msg)
}

// JSONNotifier emits recording progress as a stream of JSON events,
// one object per line.
type JSONNotifier struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewJSONNotifier creates a new JSON notifier writing to w
func NewJSONNotifier(w io.Writer) *JSONNotifier {
	return &JSONNotifier{encoder: json.NewEncoder(w)}
}

func (j *JSONNotifier) emit(ev Event) {
	ev.Timestamp = time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()
	// Encoding progress events never fails for the writers we use;
	// a broken pipe just drops the event.
	_ = j.encoder.Encode(ev)
}

func (j *JSONNotifier) SentenceStarted(id int) {
	j.emit(Event{Type: EventSentenceStarted, Sentence: id})
}

func (j *JSONNotifier) SentenceFinished(id int, audioPath string) {
	j.emit(Event{Type: EventSentenceFinished, Sentence: id, AudioPath: audioPath})
}

func (j *JSONNotifier) Complete(ok bool) {
	j.emit(Event{Type: EventComplete, OK: &ok})
}

func (j *JSONNotifier) Diagnostic(msg string) {
	j.emit(Event{Type: EventDiagnostic, Message: msg})
}
