package core

import "fmt"

// Status notes shown on a call record while a phase is in flight. The note
// is transient: each relevant event overwrites it, and phase completion
// clears it to empty.
const (
	StatusAwaitingInput = "awaiting input"
	StatusRinging       = "ringing"
	StatusRecording     = "recording"
	StatusTranscribing  = "transcribing"
	StatusGenerating    = "generating"
	StatusSpeaking      = "speaking"
	StatusCompleted     = "completed"
)

// DialingNote shows the digits accumulated so far.
func DialingNote(digits string) string {
	return "dialing " + digits
}

// AnsweredNote names the answer cue that fired, if any.
func AnsweredNote(signal string) string {
	if signal == "" {
		return "answered"
	}
	return "answered (" + signal + ")"
}

// RecordedNote shows the captured recording duration.
func RecordedNote(durationSec float64) string {
	return fmt.Sprintf("recorded %.1fs", durationSec)
}
