package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/guardian/internal/api"
	"github.com/MikeSquared-Agency/guardian/internal/config"
	"github.com/MikeSquared-Agency/guardian/internal/conversation"
	"github.com/MikeSquared-Agency/guardian/internal/feed"
	"github.com/MikeSquared-Agency/guardian/internal/responder"
	"github.com/MikeSquared-Agency/guardian/internal/session"
	"github.com/MikeSquared-Agency/guardian/internal/store"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("configuration rejected", "error", err)
		os.Exit(1)
	}

	slog.Info("guardian starting", "port", cfg.Port, "reply_delay", cfg.ReplyDelay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var listeners []session.Option

	// NATS render feed (optional; without it renderers poll or use SSE)
	var bus *feed.Client
	if cfg.NatsURL != "" {
		var err error
		bus, err = feed.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		listeners = append(listeners, session.WithListener(feed.NewPublisher(bus, slog.Default())))
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set, render feed disabled")
	}

	// Transcript archive (optional). It outlives the sessions so their end
	// records are written before exit.
	archiveCtx, archiveCancel := context.WithCancel(context.Background())
	defer archiveCancel()
	var archiver *store.Archiver
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}
		archiver = store.NewArchiver(db, cfg.ArchiveBuffer, slog.Default())
		go archiver.Run(archiveCtx)
		listeners = append(listeners, session.WithListener(archiver))
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, transcripts will not be archived")
	}

	kw := responder.Keyword{}
	opts := append([]session.Option{
		session.WithIdleTTL(cfg.SessionIdleTTL),
		session.WithConversationOptions(conversation.WithReplyDelay(cfg.ReplyDelay)),
	}, listeners...)
	sessions := session.NewRegistry(kw, slog.Default(), opts...)

	sessionCtx, sessionCancel := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sessions.Run(sessionCtx, cfg.SweepInterval)
	}()

	// HTTP API
	srv := api.NewServer(cfg.Port, sessions, api.Info{
		Responder:  kw.Kind(),
		ReplyDelay: cfg.ReplyDelay,
	}, cfg.CORSOrigins, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if bus != nil {
		if err := bus.Publish(feed.SubjectAgentRegistered, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"responder": kw.Kind(),
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("guardian ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	// Ending the sessions first closes open event streams.
	sessionCancel()
	<-sweepDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}

	archiveCancel()
	if archiver != nil {
		archiver.Wait()
	}
	cancel()
	slog.Info("guardian stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
