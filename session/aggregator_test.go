package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timephone/console/core"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(zerolog.Nop())
}

func at() core.Meta {
	return core.Meta{At: time.Now()}
}

func withID(id string) core.Meta {
	return core.Meta{CallID: id, At: time.Now()}
}

func TestDigitsAccumulateInDeliveryOrder(t *testing.T) {
	agg := newTestAggregator()

	agg.Ingest(core.CallStartEvent{Meta: at(), Persona: "einstein"})
	agg.Ingest(core.DigitDialedEvent{Meta: at(), Digit: "2"})
	agg.Ingest(core.DigitDialedEvent{Meta: at(), Digit: "1"})
	update := agg.Ingest(core.DigitDialedEvent{Meta: at(), Digit: "3"})

	require.NotNil(t, update.Snapshot)
	assert.Equal(t, "213", update.Snapshot.DialedDigits)
	assert.Equal(t, "dialing 213", update.Snapshot.StatusNote)
}

func TestReplyLinesAccumulateInDeliveryOrder(t *testing.T) {
	agg := newTestAggregator()

	agg.Ingest(core.GreetingPlayedEvent{Meta: at(), Text: "Hello, Einstein speaking."})
	agg.Ingest(core.FillerStartedEvent{Meta: at(), Text: "Hmm, let me think."})
	update := agg.Ingest(core.GenerationFinishedEvent{
		Meta:        at(),
		Reply:       "Time is relative.",
		UsedPrimary: true,
		ElapsedMs:   850,
	})

	require.NotNil(t, update.Snapshot)
	lines := update.Snapshot.ReplyLines
	require.Len(t, lines, 3)
	assert.Equal(t, "Hello, Einstein speaking.", lines[0].Text)
	assert.Equal(t, "Hmm, let me think.", lines[1].Text)
	assert.Equal(t, "Time is relative.", lines[2].Text)
	assert.Equal(t, int64(850), lines[2].ElapsedMs)
	assert.False(t, lines[2].Fallback)
	require.NotNil(t, update.Snapshot.Timings.LLMMs)
	assert.Equal(t, int64(850), *update.Snapshot.Timings.LLMMs)
	assert.Empty(t, update.Snapshot.StatusNote)
}

func TestFallbackReplyFlagged(t *testing.T) {
	agg := newTestAggregator()

	update := agg.Ingest(core.GenerationFinishedEvent{
		Meta:        at(),
		Reply:       "click",
		UsedPrimary: false,
	})

	require.NotNil(t, update.Snapshot)
	require.Len(t, update.Snapshot.ReplyLines, 1)
	assert.True(t, update.Snapshot.ReplyLines[0].Fallback)
}

func TestClosedRecordRejectsMutations(t *testing.T) {
	agg := newTestAggregator()

	agg.Ingest(core.CallStartEvent{Meta: withID("abc123"), Persona: "lincoln"})
	agg.Ingest(core.DigitDialedEvent{Meta: withID("abc123"), Digit: "1"})
	end := agg.Ingest(core.CallEndEvent{Meta: withID("abc123"), TotalMs: 5000, Reason: "hangup"})

	require.NotNil(t, end.Snapshot)
	assert.True(t, end.Snapshot.Closed)
	assert.Equal(t, "hangup", end.Snapshot.StatusNote)

	late := agg.Ingest(core.DigitDialedEvent{Meta: withID("abc123"), Digit: "8"})
	require.NotNil(t, late.Snapshot)
	assert.Equal(t, "1", late.Snapshot.DialedDigits)
	assert.True(t, late.Snapshot.Closed)
}

// The §8-style end-to-end scenario: anonymous early events, a real id
// observed mid-call, then a close under the real id.
func TestAnonymousCallPromotedThenClosed(t *testing.T) {
	agg := newTestAggregator()

	agg.Ingest(core.CallStartEvent{Meta: at(), Persona: "Sam"})
	agg.Ingest(core.TranscriptionFinishedEvent{Meta: at(), Transcript: "hello", ElapsedMs: 120})
	promoted := agg.Ingest(core.GenerationStartedEvent{Meta: withID("abc123")})

	require.NotNil(t, promoted.Snapshot)
	assert.Equal(t, "abc123", promoted.Snapshot.ID)

	final := agg.Ingest(core.CallEndEvent{Meta: withID("abc123"), TotalMs: 900, Reason: "done"})

	require.NotNil(t, final.Snapshot)
	snap := final.Snapshot
	assert.Equal(t, "abc123", snap.ID)
	assert.Equal(t, "Sam", snap.Persona)
	assert.Equal(t, "hello", snap.Transcript)
	require.NotNil(t, snap.Timings.STTMs)
	assert.Equal(t, int64(120), *snap.Timings.STTMs)
	require.NotNil(t, snap.Timings.TotalMs)
	assert.Equal(t, int64(900), *snap.Timings.TotalMs)
	assert.True(t, snap.Closed)

	got, ok := agg.Snapshot("abc123")
	require.True(t, ok)
	assert.Equal(t, *snap, got)
}

func TestUnknownKindPassesThroughWithoutRecord(t *testing.T) {
	agg := newTestAggregator()

	update := agg.Ingest(core.UnknownEvent{Kind: "ping", Text: "keepalive"})

	assert.Nil(t, update.Snapshot)
	require.NotNil(t, update.Raw)
	assert.Equal(t, core.EventType("ping"), update.Raw.EventType())
	assert.Empty(t, agg.Snapshots())
}

func TestCallEndWithNoActiveRecordIsNoop(t *testing.T) {
	agg := newTestAggregator()

	update := agg.Ingest(core.CallEndEvent{Meta: at(), TotalMs: 100})

	assert.True(t, update.Empty())
	assert.Empty(t, agg.Snapshots())
}

func TestDuplicateCallEndIsDropped(t *testing.T) {
	agg := newTestAggregator()

	agg.Ingest(core.CallStartEvent{Meta: withID("abc123")})
	agg.Ingest(core.CallEndEvent{Meta: withID("abc123"), TotalMs: 700, Reason: "done"})
	dup := agg.Ingest(core.CallEndEvent{Meta: withID("abc123"), TotalMs: 9999, Reason: "again"})

	require.NotNil(t, dup.Snapshot)
	assert.Equal(t, "done", dup.Snapshot.StatusNote)
	assert.Equal(t, int64(700), *dup.Snapshot.Timings.TotalMs)
}

func TestCallEndPromotesOpenPlaceholder(t *testing.T) {
	agg := newTestAggregator()

	agg.Ingest(core.CallStartEvent{Meta: at(), Persona: "newton"})
	update := agg.Ingest(core.CallEndEvent{Meta: withID("xyz789"), TotalMs: 1200})

	require.NotNil(t, update.Snapshot)
	assert.Equal(t, "xyz789", update.Snapshot.ID)
	assert.Equal(t, "newton", update.Snapshot.Persona)
	assert.True(t, update.Snapshot.Closed)
	assert.Equal(t, core.StatusCompleted, update.Snapshot.StatusNote)
}

func TestStatusNoteTransitions(t *testing.T) {
	tests := []struct {
		name  string
		event core.Event
		want  string
	}{
		{"ringback", core.RingbackEvent{Meta: at()}, core.StatusRinging},
		{"answered", core.AnsweredEvent{Meta: at(), Signal: "click"}, "answered (click)"},
		{"recording started", core.RecordingStartedEvent{Meta: at()}, core.StatusRecording},
		{"recording finished", core.RecordingFinishedEvent{Meta: at(), DurationSec: 4.5}, "recorded 4.5s"},
		{"transcription started", core.TranscriptionStartedEvent{Meta: at()}, core.StatusTranscribing},
		{"generation started", core.GenerationStartedEvent{Meta: at()}, core.StatusGenerating},
		{"synthesis started", core.SynthesisStartedEvent{Meta: at()}, core.StatusSpeaking},
		{"filler stopped", core.FillerStoppedEvent{Meta: at()}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator()
			update := agg.Ingest(tt.event)
			require.NotNil(t, update.Snapshot)
			assert.Equal(t, tt.want, update.Snapshot.StatusNote)
		})
	}
}

func TestSynthesisFinishedSetsTimingAndClearsNote(t *testing.T) {
	agg := newTestAggregator()

	agg.Ingest(core.SynthesisStartedEvent{Meta: at()})
	update := agg.Ingest(core.SynthesisFinishedEvent{Meta: at(), ElapsedMs: 430})

	require.NotNil(t, update.Snapshot)
	require.NotNil(t, update.Snapshot.Timings.TTSMs)
	assert.Equal(t, int64(430), *update.Snapshot.Timings.TTSMs)
	assert.Empty(t, update.Snapshot.StatusNote)
}

func TestSecondCallStartsFreshRecordAfterClose(t *testing.T) {
	agg := newTestAggregator()

	agg.Ingest(core.CallStartEvent{Meta: at(), Persona: "einstein"})
	agg.Ingest(core.CallEndEvent{Meta: at(), TotalMs: 300})
	second := agg.Ingest(core.CallStartEvent{Meta: at(), Persona: "lincoln"})

	require.NotNil(t, second.Snapshot)
	assert.Equal(t, "lincoln", second.Snapshot.Persona)
	assert.False(t, second.Snapshot.Closed)
	assert.Len(t, agg.Snapshots(), 2)
}

func TestSnapshotUnknownID(t *testing.T) {
	agg := newTestAggregator()
	_, ok := agg.Snapshot("nope")
	assert.False(t, ok)
}
