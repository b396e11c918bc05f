package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/ndvi-change/internal/analysis"
	"github.com/i474232898/ndvi-change/internal/analysis/sources"
	httpapi "github.com/i474232898/ndvi-change/internal/api/http"
	"github.com/i474232898/ndvi-change/internal/config"
	"github.com/i474232898/ndvi-change/internal/scheduler"
	"github.com/i474232898/ndvi-change/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	// Shared HTTP client for outbound composite calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Sources in priority order: remote API (with backoff + circuit breaker),
	// then pre-exported composites on disk.
	var srcs []analysis.Source
	if cfg.CompositeAPIURL != "" {
		srcs = append(srcs, sources.NewCompositeAPISource(httpClient, cfg.CompositeAPIURL, cfg.CompositeAPIKey))
	}
	if cfg.CompositeDir != "" {
		srcs = append(srcs, sources.NewFileSource(cfg.CompositeDir))
	}

	var resultStore analysis.Store
	switch cfg.StoreDriver {
	case "sqlite":
		sqliteStore, err := store.NewSQLiteStore(cfg.StorePath, cfg.StoreMaxHistory, cfg.StoreMaxAge)
		if err != nil {
			log.Fatalf("failed to open result store: %v", err)
		}
		defer sqliteStore.Close()
		resultStore = sqliteStore
	default:
		resultStore = store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
	}

	// Core service orchestrating sources, rendering and store.
	service := analysis.NewService(cfg.ServiceConfig(), resultStore, srcs)

	if !cfg.Serve {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
		res, err := service.Run(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Error("comparison failed")
			os.Exit(1)
		}
		log.WithFields(log.Fields{
			"id":     res.ID,
			"change": res.ChangeLabel(),
			"figure": res.FigurePath,
		}).Info(res.TrendLabel())
		return
	}

	// Scheduler that periodically re-runs the comparison.
	sched := scheduler.New(cfg.AnalysisInterval, cfg.RunTimeout, scheduler.RunnerFunc(func(ctx context.Context) error {
		_, err := service.Run(ctx)
		return err
	}))
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "ndvi-change",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.RunTimeout + 10*time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "ndvi-change",
			"region":  service.Region().Name,
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, cfg.RunTimeout)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Errorf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorf("error during shutdown: %v", err)
	}
}
