package stages

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/timephone/console/core"
	"github.com/timephone/console/metrics"
	"github.com/timephone/console/protocol"
)

// EventSourceConfig holds SSE source configuration.
type EventSourceConfig struct {
	// URL is the ai-server's /events endpoint.
	URL string
	// HTTPClient must have no overall timeout; the stream is long-lived.
	HTTPClient *http.Client
	// InitialBackoff and MaxBackoff bound the reconnect delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         zerolog.Logger
}

// EventSource consumes the server's SSE event feed and emits decoded
// events in send order. The connection is persistent: on loss it
// reconnects with capped exponential backoff, resuming from the last seen
// event id. Frames that fail to parse are logged and skipped; a bad frame
// never stops the stream.
type EventSource struct {
	config    EventSourceConfig
	log       zerolog.Logger
	lastID    string
	connected bool
}

// NewEventSource creates a new SSE source stage.
func NewEventSource(config EventSourceConfig) *EventSource {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	return &EventSource{
		config: config,
		log:    config.Logger.With().Str("component", "sse_source").Logger(),
	}
}

// Name returns the stage name.
func (s *EventSource) Name() string {
	return "sse_source"
}

// Run streams events into output until ctx is cancelled. It never returns
// a stream error: disconnects are retried, and the only terminal condition
// is cancellation.
func (s *EventSource) Run(ctx context.Context, output chan<- core.Event) error {
	backoff := s.config.InitialBackoff

	for {
		s.connected = false
		err := s.consume(ctx, output)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.connected {
			backoff = s.config.InitialBackoff
		}

		s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("event stream disconnected")
		metrics.StreamReconnects.Inc()
		s.notify(ctx, output, "event stream disconnected, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.config.MaxBackoff {
			backoff = s.config.MaxBackoff
		}
	}
}

// consume holds one connection open and forwards its frames. Returns when
// the connection drops or ctx is cancelled.
func (s *EventSource) consume(ctx context.Context, output chan<- core.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.lastID != "" {
		req.Header.Set("Last-Event-ID", s.lastID)
	}

	resp, err := s.config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.DecodeError{Message: "event stream refused", Details: resp.Status}
	}

	s.connected = true
	s.log.Info().Str("url", s.config.URL).Msg("connected to event stream")
	s.notify(ctx, output, "connected to event stream")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "id:"):
			s.lastID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))

		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			ev, err := protocol.Decode([]byte(payload))
			if err != nil {
				metrics.DecodeFailures.Inc()
				s.log.Warn().Err(err).Msg("skipping undecodable frame")
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case output <- ev:
			}
		}
	}
	return scanner.Err()
}

// notify injects a local client notice into the stream, mirroring the
// connected/disconnected lines the browser dashboard shows.
func (s *EventSource) notify(ctx context.Context, output chan<- core.Event, text string) {
	notice := core.UnknownEvent{
		Meta: core.Meta{At: time.Now().UTC()},
		Kind: "client",
		Text: text,
	}
	select {
	case <-ctx.Done():
	case output <- notice:
	}
}
