package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-hub/contract"
	"chat-hub/httpapi"
	"chat-hub/repositories"
	"chat-hub/responder"
	"chat-hub/runtime"
	"chat-hub/runtime/workers"
	"chat-hub/search"
	"chat-hub/ws"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components and manages the server lifecycle.
// Keeping it separate from main ensures every defer (database close,
// index close) executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & Search Index
	messageRepository := repositories.NewMessageRepository(db, log)
	roomRepository := repositories.NewRoomRepository(db, log)
	if err = roomRepository.SeedDefaults(); err != nil {
		return fmt.Errorf("seeding default rooms failed: %w", err)
	}

	var index *search.Index
	if config.BlugeFilepath != "" {
		index, err = search.Open(config.BlugeFilepath, log)
		if err != nil {
			return fmt.Errorf("search index opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing search index...")
			_ = index.Close()
		}()
	}

	// 4. Runtime State
	rooms := runtime.NewRoomRegistry(log, roomRepository, config.RoomCapacity)
	if err = rooms.LoadPersisted(); err != nil {
		return fmt.Errorf("loading persisted rooms failed: %w", err)
	}
	presence := runtime.NewPresenceTracker()
	dms := runtime.NewDirectMessageIndex(log, messageRepository)

	greetings, err := responder.NewDetector([]string{"hello", "hi", "hey"})
	if err != nil {
		return fmt.Errorf("building greeting detector failed: %w", err)
	}
	help, err := responder.NewDetector([]string{"help"})
	if err != nil {
		return fmt.Errorf("building help detector failed: %w", err)
	}

	// A typed nil would slip past the router's nil checks, so only
	// assign the interface when an index actually exists.
	var messageIndex contract.MessageIndex
	if index != nil {
		messageIndex = index
	}
	router := runtime.NewRouter(log, rooms, presence, dms, messageRepository,
		messageIndex, greetings, help, config.BufferSize, config.ReplyDelay)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervised Workers
	telemetry, err := workers.NewTelemetryWorker(log, config.MetricInterval, router.QueueDepth)
	if err != nil {
		return fmt.Errorf("telemetry worker setup failed: %w", err)
	}
	sup := workers.NewSupervisor(log, config.RestartInterval).
		Add(workers.NewDeliveryWorker(log, router.Deliveries(), config.SinkTimeout)).
		Add(telemetry)

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 7. HTTP Surface (REST + websocket upgrade)
	gateway := ws.NewGateway(ctx, log, router, config.ConnectionBufferSize)
	api := httpapi.NewHandler(log, rooms, index)

	mux := chi.NewRouter()
	mux.Mount("/", api.Routes())
	mux.Get("/ws", gateway.ServeWS)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
