package session

import (
	"strings"

	"github.com/google/uuid"

	"github.com/timephone/console/core"
)

// placeholderPrefix marks ids generated locally before the server has
// assigned a real one.
const placeholderPrefix = "pending-"

// IsPlaceholder reports whether id was generated locally rather than
// assigned by the server.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}

// Store owns the mapping from call id to record. It resolves identifier
// ambiguity (placeholder vs. real id) and enforces that at most one record
// is "active", i.e. eligible to receive identifier-less events.
//
// The store is not safe for concurrent use; callers serialize access by
// applying one event at a time.
type Store struct {
	records map[string]*core.CallRecord
	order   []string
	active  string
}

// NewStore creates an empty store with no active record.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*core.CallRecord),
	}
}

// Resolve returns the record the event is bound to, creating one when
// needed, and reports whether a record was created.
//
// A present call id returns the existing record under that id. A real id
// with no record of its own adopts the open placeholder record, if any, so
// fields gathered before the id arrived survive. An absent id returns the
// active record, or starts a fresh one under a placeholder id.
func (s *Store) Resolve(meta core.Meta) (*core.CallRecord, bool) {
	if meta.CallID != "" {
		if rec, ok := s.records[meta.CallID]; ok {
			return rec, false
		}
		if act := s.Active(); act != nil && IsPlaceholder(act.ID) && !act.Closed {
			s.Promote(act, meta.CallID)
			return act, false
		}
		rec := core.NewCallRecord(meta.CallID, meta.At)
		s.insert(rec)
		if s.active == "" {
			s.active = rec.ID
		}
		return rec, true
	}

	if act := s.Active(); act != nil {
		return act, false
	}

	rec := core.NewCallRecord(placeholderPrefix+uuid.NewString(), meta.At)
	s.insert(rec)
	s.active = rec.ID
	return rec, true
}

func (s *Store) insert(rec *core.CallRecord) {
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
}

// Promote rekeys a placeholder record to its server-assigned id,
// preserving every accumulated field and the active pointer. Only the
// first promotion takes effect; later attempts, promotions of closed
// records, and ids already in use are silent no-ops.
func (s *Store) Promote(rec *core.CallRecord, realID string) {
	if realID == "" || realID == rec.ID || rec.Closed || !IsPlaceholder(rec.ID) {
		return
	}
	if _, taken := s.records[realID]; taken {
		return
	}

	delete(s.records, rec.ID)
	for i, id := range s.order {
		if id == rec.ID {
			s.order[i] = realID
			break
		}
	}
	if s.active == rec.ID {
		s.active = realID
	}
	rec.ID = realID
	s.records[realID] = rec
}

// Close seals rec. If it holds the active slot, the slot is cleared so the
// next identifier-less event starts a fresh record rather than reusing the
// closed one.
func (s *Store) Close(rec *core.CallRecord) {
	rec.Closed = true
	if s.active == rec.ID {
		s.active = ""
	}
}

// Active returns the record currently accepting identifier-less events, or
// nil when none is open.
func (s *Store) Active() *core.CallRecord {
	if s.active == "" {
		return nil
	}
	return s.records[s.active]
}

// Get returns the record stored under id. Closed records are returned
// unchanged; late-arriving lookups never fail.
func (s *Store) Get(id string) (*core.CallRecord, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// All returns every record in creation order. Closed records are retained
// for display.
func (s *Store) All() []*core.CallRecord {
	out := make([]*core.CallRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Len returns the number of records held, open or closed.
func (s *Store) Len() int {
	return len(s.records)
}
