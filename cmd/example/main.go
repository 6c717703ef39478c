/*
main.go - Application entry point

PURPOSE:
  Starts a standalone client process: opens (or creates) the local store,
  connects the Sync Engine if an app id is configured, and serves the
  devtools inspector over HTTP until interrupted.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Construct the client
  3. Start it (opens the sync session, if enabled)
  4. Serve the devtools router
  5. Wait for a signal, then shut down gracefully

COMMAND-LINE FLAGS:
  -app-id     Application id sent on session init (default: "local-example")
  -base-url   Sync endpoint base URL
  -db         Local database path (default: ":memory:")
  -port       Devtools HTTP port (default: 8090)
  -no-sync    Run fully offline, with no Sync Engine
  -verbose    Raise the logger to debug level

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new devtools connections
  2. Stop the client (closes the sync session)
  3. Exit

SEE ALSO:
  - client.go: Client construction and lifecycle
  - devtools/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaydb/relaydb-go"
)

func main() {
	appID := flag.String("app-id", "", "application id sent on session init")
	baseURL := flag.String("base-url", "", "sync endpoint base URL (defaults to the client's built-in default)")
	dbPath := flag.String("db", ":memory:", "local database path, or :memory: for an ephemeral store")
	port := flag.Int("port", 8090, "devtools HTTP port")
	noSync := flag.Bool("no-sync", false, "run fully offline, with no Sync Engine")
	verbose := flag.Bool("verbose", false, "raise the logger to debug level")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	opts := []relaydb.Option{
		relaydb.WithPersistenceDir(*dbPath),
		relaydb.WithLogger(logger),
	}
	if *baseURL != "" {
		opts = append(opts, relaydb.WithBaseURL(*baseURL))
	}
	if *noSync {
		opts = append(opts, relaydb.WithSyncDisabled())
	}
	if *verbose {
		opts = append(opts, relaydb.WithVerboseLogging())
	}

	id := *appID
	if id == "" {
		id = "local-example"
	}

	client, err := relaydb.New(id, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start client")
	}

	router := client.DevtoolsRouter("")
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", *port).Msg("devtools server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("devtools server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("devtools server forced to shutdown")
	}
	if err := client.Stop(); err != nil {
		logger.Error().Err(err).Msg("client stop failed")
	}

	logger.Info().Msg("stopped")
}

