// Package main is the entry point for the shelter coordination server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bethesda-shelter/backend/internal/api"
	"github.com/bethesda-shelter/backend/internal/config"
	"github.com/bethesda-shelter/backend/internal/reservation"
	"github.com/bethesda-shelter/backend/internal/storage"
	"github.com/bethesda-shelter/backend/internal/voice"
	"github.com/bethesda-shelter/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	// Parse command-line flags
	addr := flag.String("addr", "", "HTTP server address (overrides SHELTER_ADDR)")
	dataDir := flag.String("data", "", "Data directory for SQLite database (overrides SHELTER_DATA_DIR)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.With().Str("service", "shelter").Logger()

	settings, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	if *addr != "" {
		settings.Addr = *addr
	}
	if *dataDir != "" {
		settings.DataDir = *dataDir
	}

	// Health check mode for container HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(settings.Addr); err != nil {
			log.Fatal().Err(err).Msg("health check failed")
		}
		os.Exit(0)
	}

	// Allow overriding version via environment
	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}
	log.Info().Str("version", version).Msg("starting shelter coordination server")

	keywords, err := config.LoadKeywords(settings.KeywordsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading keyword configuration")
	}

	// Initialize database
	if err := os.MkdirAll(settings.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", settings.DataDir).Msg("creating data directory")
	}
	db, err := storage.NewDB(settings.DataDir + "/shelter.db")
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer db.Close()

	// Run migrations
	if err := storage.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("running migrations")
	}
	log.Info().Msg("database migrations complete")

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize repositories
	bedRepo := storage.NewBedRepository(db)
	reservationRepo := storage.NewReservationRepository(db)
	chapelRepo := storage.NewChapelRepository(db)
	volunteerRepo := storage.NewVolunteerRepository(db)
	guestRepo := storage.NewGuestRepository(db)
	callLogRepo := storage.NewCallLogRepository(db)

	ctx := context.Background()

	// Seed the fixed inventory and verify the capacity invariant.
	// A wrong bed count at startup is fatal; at runtime it is loud but
	// the server keeps serving.
	if err := bedRepo.EnsureBeds(ctx); err != nil {
		log.Fatal().Err(err).Msg("seeding beds")
	}

	service := reservation.NewService(db, bedRepo, reservationRepo, hub, settings.HoldDuration, settings.AllocationRetryMax)
	if err := service.VerifyInventory(ctx); err != nil {
		log.Fatal().Err(err).Msg("bed inventory check failed")
	}

	// Start the expiration scheduler; it sweeps immediately to clear any
	// backlog from downtime.
	scheduler := reservation.NewScheduler(service, settings.ExpirationTick)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting expiration scheduler")
	}

	maintenance := reservation.NewMaintenance(service, reservationRepo, callLogRepo, settings.LogRetentionDays)
	if err := maintenance.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting maintenance jobs")
	}

	// Wire the voice agent: classifier over the configured keyword lists,
	// tools over the engine, sessions managed per call token.
	classifier := voice.NewClassifier(keywords)
	tools := voice.NewToolRouter(service, chapelRepo, volunteerRepo, settings.ToolCallDeadline, 1)
	agent := voice.NewAgent(classifier, tools, callLogRepo, settings.IdleSessionTimeout)

	// Initialize HTTP router
	router := api.NewRouter(api.Deps{
		DB:         db,
		Service:    service,
		Guests:     guestRepo,
		Chapels:    chapelRepo,
		Volunteers: volunteerRepo,
		Hub:        hub,
		Voice:      agent,
		StaticDir:  settings.StaticDir,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         settings.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Info().Str("addr", settings.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop schedulers and live call sessions
	scheduler.Stop()
	maintenance.Stop()
	agent.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}
