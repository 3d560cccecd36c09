package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"livehub/auth"
	"livehub/directory"
	"livehub/domain/event"
	"livehub/internal"
	"livehub/moderation"
	"livehub/observability"
	"livehub/repositories"
	"livehub/runtime"
	"livehub/runtime/workers"
	"livehub/services"
	"livehub/sink"
	"livehub/transport"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the socket server and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Repositories & Runtime state
	messageRepository := repositories.NewMessageRepository(db, logger)
	membershipRepository := repositories.NewMembershipRepository(db, logger)
	readStateRepository := repositories.NewReadStateRepository(db, logger)
	searchRepository := repositories.NewSearchRepository(blugeWriter, logger)

	registry := runtime.NewRegistry()
	index := runtime.NewMembershipIndex()
	cache := runtime.NewRoomCache(config.RoomCacheBound)
	buffer := runtime.NewOfflineBuffer(config.OfflineBufferSize)
	bus := runtime.NewBus(logger, config.BusQueueSize)

	// Warm the in-memory index from the durable relation so room fan-out
	// works before anyone reconnects.
	memberships, err := membershipRepository.All()
	if err != nil {
		return exitRuntime, fmt.Errorf("membership warm-up failed: %w", err)
	}
	index.Load(memberships)
	logger.Info("Membership index warmed", "relations", len(memberships))

	// 4. Services
	stats := observability.NewStats()
	store := services.NewMessageStore(logger, messageRepository, cache, bus)
	readStateService := services.NewReadStateService(logger, readStateRepository, store, bus)

	moderator, err := moderation.NewModerator(moderation.DefaultWords(), charReplacement)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderator init failed: %w", err)
	}

	chatService := services.NewChatService(
		logger, membershipRepository, index, store, readStateService, moderator,
	)
	directoryStore := directory.NewStore(db, membershipRepository, logger)

	// 5. Transport
	hub := transport.NewHub(
		logger, registry, index, membershipRepository, buffer,
		readStateService, directoryStore, bus, stats,
	)
	dispatcher := transport.NewDispatcher(
		logger, chatService, readStateService, membershipRepository, searchRepository,
	)
	issuer := auth.NewTokenIssuer([]byte(config.TokenSecret), config.AuthTokenDuration)
	wsServer := transport.NewServer(
		logger, hub, dispatcher, issuer,
		config.HeartbeatInterval, int32(config.MaxMissedPongs),
	)

	// 6. Bus wiring: the hub turns facts into frames, the sinks feed the
	// search index and the counters.
	searchSink := sink.NewSearchSink(searchRepository, logger)
	statsSink := sink.NewStatsSink(stats)
	bus.Subscribe(event.KindMessagePosted, hub)
	bus.Subscribe(event.KindMessagePosted, searchSink)
	bus.Subscribe(event.KindMessagePosted, statsSink)
	bus.Subscribe(event.KindUnreadCountChanged, hub)
	bus.Subscribe(event.KindPresenceChanged, hub)
	bus.Subscribe(event.KindFriendRequestSent, hub)
	bus.Subscribe(event.KindFriendRequestAnswered, hub)
	bus.Subscribe(event.KindRoomInvitation, hub)
	bus.Subscribe(event.KindFriendListChanged, hub)

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.DebugPort != 0 {
		url := fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort)
		logger.Info("Debug Badger inspector available", "url", url)
		internal.StartDebugServer(db, config.DebugPort, func() map[string]any {
			snapshot := stats.Snapshot()
			return map[string]any{
				"ConnectionsOpened": snapshot.ConnectionsOpened,
				"ConnectionsClosed": snapshot.ConnectionsClosed,
				"MessagesPosted":    snapshot.MessagesPosted,
				"FramesSent":        snapshot.FramesSent,
				"FramesBuffered":    snapshot.FramesBuffered,
				"HeartbeatTimeouts": snapshot.HeartbeatTimeouts,
			}
		})
	}

	// 8. Start the background workers under supervision
	sup := workers.NewSupervisor(logger)
	sup.Add(bus, observability.NewReporter(logger, stats, config.MetricInterval))
	go sup.Run(ctx)

	// 9. HTTP server hosting the websocket endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 10. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 11. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
