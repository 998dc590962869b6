package core

import "time"

// EventType identifies a call lifecycle event kind as sent on the wire.
type EventType string

const (
	EventTypeCallStart             EventType = "call-start"
	EventTypeDigitDialed           EventType = "digit-dialed"
	EventTypeRingback              EventType = "ringback"
	EventTypeAnswered              EventType = "answered"
	EventTypeGreetingPlayed        EventType = "greeting-played"
	EventTypeRecordingStarted      EventType = "recording-started"
	EventTypeRecordingFinished     EventType = "recording-finished"
	EventTypeTranscriptionStarted  EventType = "transcription-started"
	EventTypeTranscriptionFinished EventType = "transcription-finished"
	EventTypeFillerStarted         EventType = "filler-started"
	EventTypeFillerStopped         EventType = "filler-stopped"
	EventTypeGenerationStarted     EventType = "generation-started"
	EventTypeGenerationFinished    EventType = "generation-finished"
	EventTypeSynthesisStarted      EventType = "synthesis-started"
	EventTypeSynthesisFinished     EventType = "synthesis-finished"
	EventTypeCallEnd               EventType = "call-end"
)

// Meta carries the fields every event shares: the optional correlation id
// and the time the event was produced. Early-lifecycle events arrive before
// the server has assigned an id, so CallID may be empty.
type Meta struct {
	CallID string
	At     time.Time
}

// EventMeta implements part of the Event interface for any struct that
// embeds Meta.
func (m Meta) EventMeta() Meta { return m }

// Event represents any event pushed by the call pipeline.
type Event interface {
	EventType() EventType
	EventMeta() Meta
}

// CallStartEvent opens a call with the persona the caller dialed.
type CallStartEvent struct {
	Meta
	Persona string
}

func (e CallStartEvent) EventType() EventType { return EventTypeCallStart }

// DigitDialedEvent reports one pulse-dialed digit.
type DigitDialedEvent struct {
	Meta
	Digit string
}

func (e DigitDialedEvent) EventType() EventType { return EventTypeDigitDialed }

// RingbackEvent signals the ringback tone is playing.
type RingbackEvent struct {
	Meta
}

func (e RingbackEvent) EventType() EventType { return EventTypeRingback }

// AnsweredEvent signals the call was picked up. Signal names which answer
// cue fired on the phone side (e.g. the click sample).
type AnsweredEvent struct {
	Meta
	Signal string
}

func (e AnsweredEvent) EventType() EventType { return EventTypeAnswered }

// GreetingPlayedEvent carries the persona's spoken greeting line.
type GreetingPlayedEvent struct {
	Meta
	Text string
}

func (e GreetingPlayedEvent) EventType() EventType { return EventTypeGreetingPlayed }

// RecordingStartedEvent signals the caller's question is being recorded.
type RecordingStartedEvent struct {
	Meta
}

func (e RecordingStartedEvent) EventType() EventType { return EventTypeRecordingStarted }

// RecordingFinishedEvent reports how much audio was captured.
type RecordingFinishedEvent struct {
	Meta
	DurationSec float64
}

func (e RecordingFinishedEvent) EventType() EventType { return EventTypeRecordingFinished }

// TranscriptionStartedEvent signals speech-to-text began.
type TranscriptionStartedEvent struct {
	Meta
}

func (e TranscriptionStartedEvent) EventType() EventType { return EventTypeTranscriptionStarted }

// TranscriptionFinishedEvent carries the recognized speech and how long
// transcription took.
type TranscriptionFinishedEvent struct {
	Meta
	Transcript string
	ElapsedMs  int64
}

func (e TranscriptionFinishedEvent) EventType() EventType { return EventTypeTranscriptionFinished }

// FillerStartedEvent carries a "thinking" filler line played while the
// reply is being generated.
type FillerStartedEvent struct {
	Meta
	Text string
}

func (e FillerStartedEvent) EventType() EventType { return EventTypeFillerStarted }

// FillerStoppedEvent signals the filler audio stopped.
type FillerStoppedEvent struct {
	Meta
}

func (e FillerStoppedEvent) EventType() EventType { return EventTypeFillerStopped }

// GenerationStartedEvent signals the language model began producing a reply.
type GenerationStartedEvent struct {
	Meta
}

func (e GenerationStartedEvent) EventType() EventType { return EventTypeGenerationStarted }

// GenerationFinishedEvent carries the generated reply. UsedPrimary is false
// when the fallback path produced the text.
type GenerationFinishedEvent struct {
	Meta
	Reply       string
	UsedPrimary bool
	ElapsedMs   int64
}

func (e GenerationFinishedEvent) EventType() EventType { return EventTypeGenerationFinished }

// SynthesisStartedEvent signals text-to-speech began.
type SynthesisStartedEvent struct {
	Meta
}

func (e SynthesisStartedEvent) EventType() EventType { return EventTypeSynthesisStarted }

// SynthesisFinishedEvent reports how long speech synthesis took.
type SynthesisFinishedEvent struct {
	Meta
	ElapsedMs int64
}

func (e SynthesisFinishedEvent) EventType() EventType { return EventTypeSynthesisFinished }

// CallEndEvent closes a call with its total duration and completion reason.
type CallEndEvent struct {
	Meta
	TotalMs int64
	Reason  string
}

func (e CallEndEvent) EventType() EventType { return EventTypeCallEnd }

// UnknownEvent wraps an event kind outside the closed set. It is passed
// through for display verbatim and never touches a call record.
type UnknownEvent struct {
	Meta
	Kind string
	Text string
	Data map[string]any
}

func (e UnknownEvent) EventType() EventType { return EventType(e.Kind) }
