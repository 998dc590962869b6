package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/timephone/console/core"
)

// Envelope is the raw frame the ai-server's event bus pushes over SSE.
// Kind-specific payload fields live in Data; Text is a free-form display
// line some kinds use instead.
type Envelope struct {
	ID     string          `json:"id"`
	TS     string          `json:"ts"`
	Type   string          `json:"type"`
	Text   string          `json:"text"`
	CallID string          `json:"call_id"`
	Data   json.RawMessage `json:"data"`
}

// DecodeError reports an event frame that could not be parsed at all.
type DecodeError struct {
	Message string
	Details string
}

func (e DecodeError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Decode parses one event frame into a typed event.
//
// A recognized kind whose data payload is malformed decodes to that kind
// with an empty payload; an unrecognized kind decodes to an UnknownEvent.
// Only an unparseable envelope is an error, and the caller skips the frame
// rather than failing the stream.
func Decode(raw []byte) (core.Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, DecodeError{Message: "malformed event frame", Details: err.Error()}
	}
	if env.Type == "" {
		return nil, DecodeError{Message: "event frame has no type"}
	}

	meta := core.Meta{CallID: env.CallID, At: parseTS(env.TS)}
	data := decodeData(env.Data)

	switch core.EventType(env.Type) {
	case core.EventTypeCallStart:
		return core.CallStartEvent{Meta: meta, Persona: str(data, "persona")}, nil

	case core.EventTypeDigitDialed:
		return core.DigitDialedEvent{Meta: meta, Digit: str(data, "digit")}, nil

	case core.EventTypeRingback:
		return core.RingbackEvent{Meta: meta}, nil

	case core.EventTypeAnswered:
		return core.AnsweredEvent{Meta: meta, Signal: str(data, "signal")}, nil

	case core.EventTypeGreetingPlayed:
		return core.GreetingPlayedEvent{Meta: meta, Text: textOf(data, env)}, nil

	case core.EventTypeRecordingStarted:
		return core.RecordingStartedEvent{Meta: meta}, nil

	case core.EventTypeRecordingFinished:
		return core.RecordingFinishedEvent{Meta: meta, DurationSec: flt(data, "durationSec")}, nil

	case core.EventTypeTranscriptionStarted:
		return core.TranscriptionStartedEvent{Meta: meta}, nil

	case core.EventTypeTranscriptionFinished:
		return core.TranscriptionFinishedEvent{
			Meta:       meta,
			Transcript: str(data, "transcript"),
			ElapsedMs:  num(data, "elapsedMs"),
		}, nil

	case core.EventTypeFillerStarted:
		return core.FillerStartedEvent{Meta: meta, Text: textOf(data, env)}, nil

	case core.EventTypeFillerStopped:
		return core.FillerStoppedEvent{Meta: meta}, nil

	case core.EventTypeGenerationStarted:
		return core.GenerationStartedEvent{Meta: meta}, nil

	case core.EventTypeGenerationFinished:
		return core.GenerationFinishedEvent{
			Meta:        meta,
			Reply:       str(data, "reply"),
			UsedPrimary: boolOr(data, "usedPrimary", true),
			ElapsedMs:   num(data, "elapsedMs"),
		}, nil

	case core.EventTypeSynthesisStarted:
		return core.SynthesisStartedEvent{Meta: meta}, nil

	case core.EventTypeSynthesisFinished:
		return core.SynthesisFinishedEvent{Meta: meta, ElapsedMs: num(data, "elapsedMs")}, nil

	case core.EventTypeCallEnd:
		return core.CallEndEvent{
			Meta:    meta,
			TotalMs: num(data, "totalMs"),
			Reason:  str(data, "reason"),
		}, nil

	default:
		return core.UnknownEvent{Meta: meta, Kind: env.Type, Text: env.Text, Data: data}, nil
	}
}

// decodeData unpacks the kind-specific payload. Anything that is not a
// JSON object is treated as an empty payload.
func decodeData(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}

func parseTS(ts string) time.Time {
	if ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

func str(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

// textOf prefers the payload's text field, falling back to the envelope's
// free-form line, which is where the server puts greeting and filler text.
func textOf(data map[string]any, env Envelope) string {
	if v := str(data, "text"); v != "" {
		return v
	}
	return env.Text
}

func flt(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func num(data map[string]any, key string) int64 {
	return int64(flt(data, key))
}

func boolOr(data map[string]any, key string, fallback bool) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return fallback
}
