package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/pasture-risk/internal/api/http"
	"github.com/i474232898/pasture-risk/internal/config"
	"github.com/i474232898/pasture-risk/internal/params"
	"github.com/i474232898/pasture-risk/internal/scheduler"
	"github.com/i474232898/pasture-risk/internal/scoring"
	"github.com/i474232898/pasture-risk/internal/store"
	"github.com/i474232898/pasture-risk/internal/turnout"
	"github.com/i474232898/pasture-risk/internal/weather"
	"github.com/i474232898/pasture-risk/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// In-memory evaluation store with configured retention and freshness.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge, cfg.CacheTTL)

	registry, err := params.NewStore(params.Default())
	if err != nil {
		log.Fatalf("invalid parameter registry: %v", err)
	}
	engine, err := scoring.NewEngine(registry.Current())
	if err != nil {
		log.Fatalf("failed to build scoring engine: %v", err)
	}
	log.Printf("INFO: scoring with %s, parameters %s", engine.FormulaVersion(), engine.ParamsVersion())

	// Open-Meteo models with resilience (backoff + circuit breaker).
	// The first provider is primary; the rest are fallbacks in order.
	provs := []weather.Provider{providers.NewOpenMeteoProvider(httpClient, cfg.PrimaryModel)}
	if cfg.FallbackModel != "" && cfg.FallbackModel != cfg.PrimaryModel {
		provs = append(provs, providers.NewOpenMeteoProvider(httpClient, cfg.FallbackModel))
	}

	opts := []weather.Option{weather.WithEMSMode(cfg.EMSMode)}
	if cfg.SecondaryModel != "" {
		opts = append(opts, weather.WithSecondary(providers.NewOpenMeteoProvider(httpClient, cfg.SecondaryModel)))
	}
	// Geocoding requires a Google API key; without one, locations need coordinates.
	if cfg.GeocoderAPIKey != "" {
		opts = append(opts, weather.WithGeocoder(providers.NewGoogleGeocoder(cfg.GeocoderAPIKey)))
	} else {
		log.Println("INFO: GEOCODER_API_KEY not set; locations must carry lat/lon")
	}

	// Core service orchestrating providers, guard, scoring and store.
	service := weather.NewService(memStore, registry, provs, opts...)

	pasture := turnout.DefaultPastureConfig()
	if cfg.PastureConfigPath != "" {
		if pasture, err = turnout.LoadPastureConfig(cfg.PastureConfigPath); err != nil {
			log.Fatalf("failed to load pasture config: %v", err)
		}
	}
	log.Printf("INFO: turnout policy %s", pasture.Version)

	var kv store.KV = store.NewMemoryKV()
	if cfg.HorseDBPath != "" {
		db, err := store.OpenSQLite(cfg.HorseDBPath)
		if err != nil {
			log.Fatalf("failed to open horse database: %v", err)
		}
		defer db.Close()
		kv = db
	}

	// Scheduler that periodically re-evaluates every configured location.
	sched := scheduler.New(cfg.Locations, cfg.FetchInterval, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "pasture-risk",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":         "ok",
			"service":        "pasture-risk",
			"formulaVersion": scoring.FormulaVersion,
			"paramsVersion":  registry.Current().Version(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Handlers{
		Service:  service,
		Horses:   store.NewHorseRepository(kv),
		Pasture:  pasture,
		Analyses: turnout.AnalysisTable(cfg.HayAnalyses),
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
