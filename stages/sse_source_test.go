package stages

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timephone/console/core"
)

func sseFrame(id, payload string) string {
	return fmt.Sprintf("id: %s\nevent: message\ndata: %s\n\n", id, payload)
}

func TestEventSourceDeliversDecodedEvents(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprint(w, sseFrame("1", `{"type":"call-start","call_id":"abc123","data":{"persona":"einstein"}}`))
		fmt.Fprint(w, sseFrame("2", `{"type":"digit-dialed","data":{"digit":"3"}}`))
		fmt.Fprint(w, sseFrame("3", `not json at all`))
		fmt.Fprint(w, sseFrame("4", `{"type":"call-end","call_id":"abc123","data":{"totalMs":900}}`))
		flusher.Flush()
		// Hold the stream open until the client goes away.
		<-r.Context().Done()
	}))
	defer s.Close()

	source := NewEventSource(EventSourceConfig{
		URL:    s.URL,
		Logger: zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	output := make(chan core.Event, 16)
	go func() { _ = source.Run(ctx, output) }()

	var got []core.Event
	deadline := time.After(3 * time.Second)
	// connect notice + 3 decodable frames; the garbage frame is skipped.
	for len(got) < 4 {
		select {
		case ev := <-output:
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out with %d events", len(got))
		}
	}

	notice, ok := got[0].(core.UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "client", notice.Kind)

	start, ok := got[1].(core.CallStartEvent)
	require.True(t, ok)
	assert.Equal(t, "einstein", start.Persona)

	_, ok = got[2].(core.DigitDialedEvent)
	require.True(t, ok)

	end, ok := got[3].(core.CallEndEvent)
	require.True(t, ok)
	assert.Equal(t, int64(900), end.TotalMs)
}

func TestEventSourceReconnectsWithLastEventID(t *testing.T) {
	connects := make(chan string, 4)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connects <- r.Header.Get("Last-Event-ID")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseFrame("42", `{"type":"ringback"}`))
		w.(http.Flusher).Flush()
		// Returning closes the stream and forces a reconnect.
	}))
	defer s.Close()

	source := NewEventSource(EventSourceConfig{
		URL:            s.URL,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		Logger:         zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	output := make(chan core.Event, 64)
	go func() { _ = source.Run(ctx, output) }()

	first := <-connects
	assert.Empty(t, first)

	select {
	case second := <-connects:
		assert.Equal(t, "42", second)
	case <-time.After(3 * time.Second):
		t.Fatal("source never reconnected")
	}
}

func TestEventSourceStopsOnCancel(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer s.Close()

	source := NewEventSource(EventSourceConfig{URL: s.URL, Logger: zerolog.Nop()})
	ctx, cancel := context.WithCancel(context.Background())

	output := make(chan core.Event, 16)
	done := make(chan error, 1)
	go func() { done <- source.Run(ctx, output) }()

	// Drain the connect notice, then cancel.
	<-output
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("source did not stop on cancel")
	}
}
