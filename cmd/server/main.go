package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"panel-runtime/internal/admin"
	"panel-runtime/internal/auth"
	"panel-runtime/internal/config"
	"panel-runtime/internal/engine"
	"panel-runtime/internal/instrument"
	"panel-runtime/internal/metadata"
	"panel-runtime/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment and app.yaml")
	}

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s/%s, operations: %s)",
		cfg.Server.Port, cfg.Database.Driver, cfg.Database.Name, cfg.Operations.BaseURL)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	if cfg.Auth.AdminEmail != "" && cfg.Auth.AdminPassword != "" {
		if err := auth.EnsureOperator(ctx, db, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, []string{"admin"}); err != nil {
			log.Printf("WARN: Failed to seed admin operator: %v", err)
		}
	}

	// 4. Load page definitions
	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, db.DB, cfg.Pages.Dir, reg); err != nil {
		log.Printf("WARN: Failed to load pages: %v", err)
	}

	var metrics *instrument.Metrics
	if cfg.Metrics.Enabled {
		metrics = instrument.NewMetrics(cfg.Metrics.Namespace)
	}

	// 5. Operations: pages may serve some from the local store, the rest go to the backend
	ops := &engine.OperationRouter{
		Local:  engine.NewStoreOperations(db),
		Remote: engine.NewHTTPOperations(cfg.Operations.BaseURL, cfg.Operations.Timeout()),
	}
	rt := engine.NewRuntime(reg, ops, engine.NewSQLTableStates(db), engine.Options{
		OverflowThreshold: cfg.Grid.OverflowThreshold,
		DefaultPageSize:   cfg.Grid.DefaultPageSize,
		MaxConcurrency:    cfg.Resolver.MaxConcurrency,
		DisableOnError:    cfg.Expressions.DisableOnError,
		BaseURL:           cfg.Operations.BaseURL,
		TaskPath:          cfg.Operations.TaskPath,
		Metrics:           metrics,
	})

	// 6. Instrumentation
	var events *instrument.EventBuffer
	if cfg.Instrumentation.Enabled {
		events = instrument.NewEventBuffer(db.DB, db.Dialect, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		events.SetMetrics(metrics)
		defer events.Stop()
		instrument.StartCleanup(ctx, db.DB, db.Dialect, cfg.Instrumentation.RetentionDays)
	}

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(cfg.Instrumentation, events))
	if metrics != nil {
		app.Use(instrument.MetricsMiddleware(metrics))
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(metrics.Handler()))
	}

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "pages": len(reg.AllPages())})
	})

	// 9. Auth routes (no auth required)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.Auth)
	auth.RegisterRoutes(app, auth.NewHandler(db, tokens))
	authMW := auth.AuthMiddleware(tokens)

	// 10. Event traces (admin only)
	instrument.RegisterRoutes(app, instrument.NewEventHandler(db.DB, db.Dialect), authMW, auth.RequireAdmin())

	// 11. Page definition admin (admin only)
	admin.RegisterAdminRoutes(app, admin.NewHandler(db, reg, cfg.Pages.Dir), authMW, auth.RequireAdmin())

	// 12. Page runtime routes (auth required)
	engine.RegisterRoutes(app, engine.NewHandler(rt), authMW)

	// 13. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		if err := app.Shutdown(); err != nil {
			log.Printf("ERROR: shutdown: %v", err)
		}
	}()
	log.Printf("Starting server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("ERROR: server: %v", err)
	}
}
