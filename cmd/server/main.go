package main

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/httpapi"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
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
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes
// error reporting, so every defer (database close, graceful HTTP shutdown)
// executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	options := badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(options)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Coordination core
	monitoring := observability.NewMonitoring()
	registry := runtime.NewRegistry()
	messageRepository := repositories.NewMessageRepository(db, logger)
	messageService := services.NewMessageService(logger, messageRepository)
	dispatcher := runtime.NewDispatcher(logger, registry, registry, messageService,
		monitoring, config.TypingTTL)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervised background workers
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(workers.NewStatsReporter(logger, monitoring, registry, config.MetricInterval))
	go supervisor.Run(ctx)
	defer supervisor.Stop()

	// 6. HTTP surface: WebSocket endpoint + REST CRUD on one server
	issuer := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(repositories.NewUserRepository(db), issuer)
	wsHandler := ws.NewHandler(logger, dispatcher, ws.Options{
		SendBufferSize: config.ConnectionBufferSize,
		ReadLimit:      config.ReadLimit,
		PongWait:       config.PongWait,
		PingInterval:   config.PingInterval,
		WriteTimeout:   config.WriteTimeout,
	})
	api := httpapi.NewHandler(logger, messageRepository, authService, issuer)

	mux := api.Routes()
	mux.Handle("/ws", wsHandler)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for shutdown signal or server failure
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return exitOK, nil
}
