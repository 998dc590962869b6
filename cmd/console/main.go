package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	console "github.com/timephone/console"
	"github.com/timephone/console/core"
	"github.com/timephone/console/protocol"
	"github.com/timephone/console/server"
	"github.com/timephone/console/stages"
)

func main() {
	cfg := loadConfig()

	level, err := zerolog.ParseLevel(cfg.logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	client := protocol.NewClient(cfg.serverURL)

	startCtx, startCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if h, err := client.Health(startCtx); err != nil {
		log.Warn().Err(err).Str("server", cfg.serverURL).Msg("ai-server not reachable yet")
	} else {
		log.Info().
			Str("llm_model", h.LLMModel).
			Str("whisper_model", h.WhisperModel).
			Str("device", h.Device).
			Bool("llm_ok", h.LLMOK).
			Msg("ai-server healthy")
	}
	if err := client.Announce(startCtx, "console connected"); err != nil {
		log.Debug().Err(err).Msg("startup notice not delivered")
	}
	startCancel()

	// The hub replays aggregator state to late-joining clients; the
	// runner is created right after, before any client can connect.
	var runner *console.Runner
	hub := stages.NewHub(stages.HubConfig{
		Replay: func() []core.Snapshot { return runner.Aggregator().Snapshots() },
		Logger: log,
	})

	source := stages.NewEventSource(stages.EventSourceConfig{
		URL:            client.BaseURL() + "/events",
		InitialBackoff: cfg.initialBackoff,
		MaxBackoff:     cfg.maxBackoff,
		Logger:         log,
	})

	runner = console.NewRunner(console.RunnerConfig{
		Source: source,
		Sinks:  []console.Sink{hub},
		Logger: log,
	})

	srv := server.New(server.Config{
		Aggregator:     runner.Aggregator(),
		Hub:            hub,
		Upstream:       client,
		AllowedOrigins: cfg.allowedOrigins,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.port,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runnerDone := make(chan error, 1)
	go func() { runnerDone <- runner.Run(ctx) }()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", httpServer.Addr).Str("server", cfg.serverURL).Msg("console starting")

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("http server failed")
		os.Exit(1)
	}

	stop()
	if err := <-runnerDone; err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("runner stopped with error")
	}

	log.Info().Msg("console stopped")
}
