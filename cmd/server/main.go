/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the reservation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load optional .env file, parse command-line flags
  2. Initialize SQLite store
  3. Parse the site definition (tools, areas, limits)
  4. Wire ledger, evaluator, coordinator, usage controller
  5. Configure HTTP router, start the missed-reservation sweeper
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: reservations.db)
           Use ":memory:" for an in-memory database
  -site    Site definition JSON path (default: site.json)

ENVIRONMENT:
  PORT, DB_PATH, SITE_PATH override the flag defaults. A .env file in
  the working directory is loaded first if present.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper, close the database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/reservations.db" -site="./cleanroom.json"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - factory/site.go: Site definition parsing
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/reservation-engine/api"
	"github.com/warp/reservation-engine/factory"
	"github.com/warp/reservation-engine/rates"
	"github.com/warp/reservation-engine/reservation"
	"github.com/warp/reservation-engine/store/sqlite"
)

func main() {
	// A .env file is optional; flags and real env vars win.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "reservations.db"), "SQLite database path")
	sitePath := flag.String("site", envStr("SITE_PATH", "site.json"), "site definition JSON path")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Parse the site definition
	siteJSON, err := os.ReadFile(*sitePath)
	if err != nil {
		log.Error("failed to read site definition", "path", *sitePath, "error", err)
		os.Exit(1)
	}
	site, err := factory.ParseSite(siteJSON)
	if err != nil {
		log.Error("failed to parse site definition", "error", err)
		os.Exit(1)
	}

	// Wire the engine
	directory := api.NewMemoryDirectory()
	billing := rates.NewTable()
	ledger := reservation.NewLedger(store)
	outages := reservation.NewOutageRegistry(store)
	capacity := &reservation.CapacityChecker{Ledger: ledger, Directory: directory}
	evaluator := &reservation.Evaluator{
		Ledger:    ledger,
		Outages:   outages,
		Capacity:  capacity,
		Charges:   billing,
		Inventory: site,
	}
	usage := reservation.NewUsageController(ledger, outages, billing, nil, log)
	coordinator := reservation.NewCoordinator(ledger, evaluator, site, directory, site, reservation.NopNotifier{}, log)

	// HTTP surface
	handler := api.NewHandler(site, ledger, coordinator, outages, usage, billing, directory)
	router := api.NewRouter(handler)

	sweeper := api.NewMissedSweeper(handler)
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", server.Addr, "site", site.Configuration.FacilityName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
