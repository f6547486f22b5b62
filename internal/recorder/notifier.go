package recorder

// Notifier receives the recorder's outward-facing notifications. The UI
// layer (console, MCP, ...) implements it; implementations must not block,
// they are called from the controller's run loop.
type Notifier interface {
	// SentenceStarted fires when recording for a sentence begins (also on
	// each retry after a pause).
	SentenceStarted(id int)

	// SentenceFinished fires when a sentence's WAV file has been
	// finalized.
	SentenceFinished(id int, audioPath string)

	// Complete fires once when the auto-record run ends.
	Complete(ok bool)

	// Diagnostic carries stream or pipeline error reports.
	Diagnostic(msg string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) SentenceStarted(int)          {}
func (NopNotifier) SentenceFinished(int, string) {}
func (NopNotifier) Complete(bool)                {}
func (NopNotifier) Diagnostic(string)            {}
