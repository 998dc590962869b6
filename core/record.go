package core

import "time"

// PersonaUnknown is the display name used until a call-start names one.
const PersonaUnknown = "unknown"

// ReplyLine is one line of spoken output on a call: the greeting, a
// "thinking" filler, or the generated reply. Lines only ever accumulate.
type ReplyLine struct {
	Text      string `json:"text"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// Timings holds per-phase elapsed times in milliseconds. A nil field means
// the phase has not been measured yet.
type Timings struct {
	STTMs   *int64 `json:"stt_ms,omitempty"`
	LLMMs   *int64 `json:"llm_ms,omitempty"`
	TTSMs   *int64 `json:"tts_ms,omitempty"`
	TotalMs *int64 `json:"total_ms,omitempty"`
}

func cloneMs(v *int64) *int64 {
	if v == nil {
		return nil
	}
	ms := *v
	return &ms
}

// Clone returns an independent copy of the timings.
func (t Timings) Clone() Timings {
	return Timings{
		STTMs:   cloneMs(t.STTMs),
		LLMMs:   cloneMs(t.LLMMs),
		TTSMs:   cloneMs(t.TTSMs),
		TotalMs: cloneMs(t.TotalMs),
	}
}

// CallRecord is the mutable aggregate state for one call. Records start
// under a locally generated placeholder id and are rekeyed once the
// server-assigned id is observed. A closed record accepts no further
// mutation.
type CallRecord struct {
	ID           string
	Persona      string
	DialedDigits string
	Transcript   string
	ReplyLines   []ReplyLine
	Timings      Timings
	StatusNote   string
	Closed       bool
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// NewCallRecord creates an open record with default field values.
func NewCallRecord(id string, at time.Time) *CallRecord {
	return &CallRecord{
		ID:        id,
		Persona:   PersonaUnknown,
		StartedAt: at,
		UpdatedAt: at,
	}
}

// Snapshot is a read-only projection of a call record's current field
// values, suitable for rendering. It shares no memory with the record.
type Snapshot struct {
	ID           string      `json:"id"`
	Persona      string      `json:"persona"`
	DialedDigits string      `json:"dialed_digits,omitempty"`
	Transcript   string      `json:"transcript,omitempty"`
	ReplyLines   []ReplyLine `json:"reply_lines,omitempty"`
	Timings      Timings     `json:"timings"`
	StatusNote   string      `json:"status_note,omitempty"`
	Closed       bool        `json:"closed"`
	StartedAt    time.Time   `json:"started_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Snapshot returns a deep copy of the record's current state.
func (r *CallRecord) Snapshot() Snapshot {
	var lines []ReplyLine
	if len(r.ReplyLines) > 0 {
		lines = make([]ReplyLine, len(r.ReplyLines))
		copy(lines, r.ReplyLines)
	}
	return Snapshot{
		ID:           r.ID,
		Persona:      r.Persona,
		DialedDigits: r.DialedDigits,
		Transcript:   r.Transcript,
		ReplyLines:   lines,
		Timings:      r.Timings.Clone(),
		StatusNote:   r.StatusNote,
		Closed:       r.Closed,
		StartedAt:    r.StartedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
