package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/timephone/console/core"
	"github.com/timephone/console/metrics"
)

// Update is what one ingested event yields for display: a refreshed record
// snapshot, a raw pass-through event, or nothing at all.
type Update struct {
	Snapshot *core.Snapshot
	Raw      core.Event
}

// Empty reports whether the event produced nothing to display.
func (u Update) Empty() bool {
	return u.Snapshot == nil && u.Raw == nil
}

// Aggregator folds the pipeline's event stream into per-call records.
// Events are applied strictly one at a time: each event is fully applied
// before the next is considered, so record mutation needs no internal
// coordination. The mutex only fences the read-only snapshot API, which
// the HTTP layer calls from other goroutines.
type Aggregator struct {
	mu    sync.Mutex
	store *Store
	log   zerolog.Logger
}

// NewAggregator creates an aggregator over an empty record store.
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		store: NewStore(),
		log:   log.With().Str("component", "aggregator").Logger(),
	}
}

// Ingest applies one event and reports what should be displayed. Events
// with an unrecognized kind pass through untouched; no event, however
// malformed or late, fails the stream.
func (a *Aggregator) Ingest(ev core.Event) Update {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e := ev.(type) {
	case core.CallStartEvent:
		rec := a.resolve(e.Meta)
		if rec.Closed {
			return a.late(rec, ev)
		}
		a.store.Promote(rec, e.CallID)
		if e.Persona != "" {
			rec.Persona = e.Persona
		}
		rec.StatusNote = core.StatusAwaitingInput
		return a.changed(rec, e.Meta)

	case core.DigitDialedEvent:
		rec := a.resolve(e.Meta)
		if rec.Closed {
			return a.late(rec, ev)
		}
		rec.DialedDigits += e.Digit
		rec.StatusNote = core.DialingNote(rec.DialedDigits)
		return a.changed(rec, e.Meta)

	case core.RingbackEvent:
		return a.note(e.Meta, ev, core.StatusRinging)

	case core.AnsweredEvent:
		return a.note(e.Meta, ev, core.AnsweredNote(e.Signal))

	case core.GreetingPlayedEvent:
		rec := a.resolve(e.Meta)
		if rec.Closed {
			return a.late(rec, ev)
		}
		rec.ReplyLines = append(rec.ReplyLines, core.ReplyLine{Text: e.Text})
		rec.StatusNote = ""
		return a.changed(rec, e.Meta)

	case core.RecordingStartedEvent:
		return a.note(e.Meta, ev, core.StatusRecording)

	case core.RecordingFinishedEvent:
		return a.note(e.Meta, ev, core.RecordedNote(e.DurationSec))

	case core.TranscriptionStartedEvent:
		return a.note(e.Meta, ev, core.StatusTranscribing)

	case core.TranscriptionFinishedEvent:
		rec := a.resolve(e.Meta)
		if rec.Closed {
			return a.late(rec, ev)
		}
		rec.Transcript = e.Transcript
		rec.Timings.STTMs = millis(e.ElapsedMs)
		rec.StatusNote = ""
		observePhase("stt", e.ElapsedMs)
		return a.changed(rec, e.Meta)

	case core.FillerStartedEvent:
		rec := a.resolve(e.Meta)
		if rec.Closed {
			return a.late(rec, ev)
		}
		rec.ReplyLines = append(rec.ReplyLines, core.ReplyLine{Text: e.Text})
		rec.StatusNote = core.StatusGenerating
		return a.changed(rec, e.Meta)

	case core.FillerStoppedEvent:
		return a.note(e.Meta, ev, "")

	case core.GenerationStartedEvent:
		return a.note(e.Meta, ev, core.StatusGenerating)

	case core.GenerationFinishedEvent:
		rec := a.resolve(e.Meta)
		if rec.Closed {
			return a.late(rec, ev)
		}
		rec.ReplyLines = append(rec.ReplyLines, core.ReplyLine{
			Text:      e.Reply,
			ElapsedMs: e.ElapsedMs,
			Fallback:  !e.UsedPrimary,
		})
		rec.Timings.LLMMs = millis(e.ElapsedMs)
		rec.StatusNote = ""
		observePhase("llm", e.ElapsedMs)
		return a.changed(rec, e.Meta)

	case core.SynthesisStartedEvent:
		return a.note(e.Meta, ev, core.StatusSpeaking)

	case core.SynthesisFinishedEvent:
		rec := a.resolve(e.Meta)
		if rec.Closed {
			return a.late(rec, ev)
		}
		rec.Timings.TTSMs = millis(e.ElapsedMs)
		rec.StatusNote = ""
		observePhase("tts", e.ElapsedMs)
		return a.changed(rec, e.Meta)

	case core.CallEndEvent:
		return a.end(e)

	default:
		metrics.EventsUnknown.Inc()
		a.log.Debug().
			Str("kind", string(ev.EventType())).
			Msg("passing through unrecognized event")
		return Update{Raw: ev}
	}
}

// Snapshot returns the current state of the record stored under id, used
// e.g. on reconnect to redraw a call.
func (a *Aggregator) Snapshot(id string) (core.Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.store.Get(id)
	if !ok {
		return core.Snapshot{}, false
	}
	return rec.Snapshot(), true
}

// Snapshots returns every known record in creation order.
func (a *Aggregator) Snapshots() []core.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	records := a.store.All()
	out := make([]core.Snapshot, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Snapshot())
	}
	return out
}

// resolve looks up or creates the record an event is bound to and keeps
// the call gauges in step with record creation.
func (a *Aggregator) resolve(meta core.Meta) *core.CallRecord {
	rec, created := a.store.Resolve(meta)
	if created {
		metrics.CallsTotal.Inc()
		metrics.CallsActive.Inc()
		a.log.Info().Str("call_id", rec.ID).Msg("call record opened")
	}
	return rec
}

// note is the common shape of events that only move the status indicator.
func (a *Aggregator) note(meta core.Meta, ev core.Event, status string) Update {
	rec := a.resolve(meta)
	if rec.Closed {
		return a.late(rec, ev)
	}
	rec.StatusNote = status
	return a.changed(rec, meta)
}

// end applies a call-end event. A call-end with no identifier and no
// active record is a no-op: there is nothing to close, and duplicates or
// stragglers must not open a fresh record just to seal it.
func (a *Aggregator) end(e core.CallEndEvent) Update {
	var rec *core.CallRecord
	if e.CallID != "" {
		rec, _ = a.store.Get(e.CallID)
		if rec == nil {
			if act := a.store.Active(); act != nil && IsPlaceholder(act.ID) && !act.Closed {
				a.store.Promote(act, e.CallID)
				rec = act
			}
		}
	} else {
		rec = a.store.Active()
	}
	if rec == nil {
		a.log.Debug().Str("call_id", e.CallID).Msg("call-end with no record to close")
		return Update{}
	}
	if rec.Closed {
		return a.late(rec, e)
	}

	rec.Timings.TotalMs = millis(e.TotalMs)
	if e.Reason != "" {
		rec.StatusNote = e.Reason
	} else {
		rec.StatusNote = core.StatusCompleted
	}
	a.store.Close(rec)
	metrics.CallsActive.Dec()
	observePhase("total", e.TotalMs)
	a.log.Info().
		Str("call_id", rec.ID).
		Str("reason", rec.StatusNote).
		Msg("call record closed")
	return a.changed(rec, e.Meta)
}

// late handles an event bound to an already-closed record: the mutation is
// dropped, the unchanged snapshot is re-emitted for display.
func (a *Aggregator) late(rec *core.CallRecord, ev core.Event) Update {
	a.log.Debug().
		Str("call_id", rec.ID).
		Str("kind", string(ev.EventType())).
		Msg("dropping mutation against closed record")
	snap := rec.Snapshot()
	return Update{Snapshot: &snap}
}

func (a *Aggregator) changed(rec *core.CallRecord, meta core.Meta) Update {
	if !meta.At.IsZero() {
		rec.UpdatedAt = meta.At
	}
	snap := rec.Snapshot()
	return Update{Snapshot: &snap}
}

func millis(ms int64) *int64 {
	if ms < 0 {
		ms = 0
	}
	return &ms
}

func observePhase(phase string, ms int64) {
	if ms > 0 {
		metrics.PhaseDuration.WithLabelValues(phase).Observe(float64(ms) / 1000.0)
	}
}
