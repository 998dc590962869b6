// Package console turns the TimePhone pipeline's event feed into live,
// per-call display state. Events flow in from the ai-server over SSE, are
// folded into call records by the session aggregator, and the resulting
// snapshots fan out to dashboard clients.
package console

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/timephone/console/core"
	"github.com/timephone/console/metrics"
	"github.com/timephone/console/session"
)

// Source produces decoded events until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, output chan<- core.Event) error
}

// Sink receives the display updates the aggregator produces.
type Sink interface {
	Name() string
	Publish(session.Update)
}

// RunnerConfig holds runner configuration.
type RunnerConfig struct {
	Source Source
	Sinks  []Sink
	Logger zerolog.Logger
}

// Runner drives the console loop: it reads events from the source and
// applies them to the aggregator one at a time, in arrival order. An
// event is fully applied and published before the next is considered, so
// the aggregator sees a strictly sequential stream.
type Runner struct {
	config RunnerConfig
	agg    *session.Aggregator
	log    zerolog.Logger
}

// NewRunner creates a runner around a fresh aggregator.
func NewRunner(config RunnerConfig) *Runner {
	return &Runner{
		config: config,
		agg:    session.NewAggregator(config.Logger),
		log:    config.Logger.With().Str("component", "runner").Logger(),
	}
}

// Aggregator exposes the runner's aggregator for read-only snapshot
// queries from the HTTP layer.
func (r *Runner) Aggregator() *session.Aggregator {
	return r.agg
}

// Run processes events until the source stops or ctx is cancelled. A
// single bad event never terminates stream processing: dispatch failures
// are contained and logged, and the loop moves on to the next event.
func (r *Runner) Run(ctx context.Context) error {
	events := make(chan core.Event, 100)

	srcDone := make(chan error, 1)
	go func() {
		defer close(events)
		srcDone <- r.config.Source.Run(ctx, events)
	}()

	r.log.Info().Str("source", r.config.Source.Name()).Msg("console runner started")

	for ev := range events {
		r.dispatch(ev)
	}

	err := <-srcDone
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("source %s stopped: %w", r.config.Source.Name(), err)
	}
	return ctx.Err()
}

// dispatch applies one event and publishes whatever changed.
func (r *Runner) dispatch(ev core.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			r.log.Error().
				Str("kind", string(ev.EventType())).
				Interface("panic", rec).
				Str("stack", string(buf[:n])).
				Msg("event dispatch panicked; continuing")
		}
	}()

	metrics.EventsTotal.WithLabelValues(kindLabel(ev)).Inc()

	update := r.agg.Ingest(ev)
	if update.Empty() {
		return
	}
	for _, sink := range r.config.Sinks {
		sink.Publish(update)
	}
}

// kindLabel collapses unrecognized kinds to a single metric label so an
// adversarial or chatty producer cannot explode label cardinality.
func kindLabel(ev core.Event) string {
	if _, ok := ev.(core.UnknownEvent); ok {
		return "unknown"
	}
	return string(ev.EventType())
}
