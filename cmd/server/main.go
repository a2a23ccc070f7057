package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"ops-dashboard/internal/config"
	"ops-dashboard/internal/database"
	"ops-dashboard/internal/handlers"
	"ops-dashboard/internal/livestate"
	"ops-dashboard/internal/logger"
	"ops-dashboard/internal/middleware"
	"ops-dashboard/internal/models"
	"ops-dashboard/internal/quotes"
	"ops-dashboard/internal/schedule"
	"ops-dashboard/internal/services/agents"
	"ops-dashboard/internal/services/cron"
	"ops-dashboard/internal/services/portfolio"
	ws "ops-dashboard/internal/services/websocket"
	"ops-dashboard/internal/store/docs"
	"ops-dashboard/internal/store/kv"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		logger.Logger.Fatalw("Failed to connect to database", logger.FieldPath, cfg.Database.Path, logger.FieldError, err)
	}
	if err := database.AutoMigrate(db, &models.Snapshot{}, &models.Task{}); err != nil {
		logger.Logger.Fatalw("Failed to migrate database", logger.FieldError, err)
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}

	snapshots, err := openSnapshots(ctx, cfg, db, httpClient)
	if err != nil {
		logger.Logger.Fatalw("Failed to open snapshot store", logger.FieldBackend, cfg.Storage.Snapshots, logger.FieldError, err)
	}
	taskStore, err := openTasks(cfg, db, httpClient)
	if err != nil {
		logger.Logger.Fatalw("Failed to open task store", logger.FieldBackend, cfg.Storage.Tasks, logger.FieldError, err)
	}
	if closer, ok := snapshots.(io.Closer); ok {
		defer closer.Close()
	}
	logger.Logger.Infow("Stores ready", "snapshots", snapshots.Name(), "tasks", taskStore.Name())

	projector := schedule.NewProjector(schedule.Catalog, cfg.Location, schedule.Options{
		BenignFailures: append(append([]string{}, schedule.DefaultBenignFailures...), cfg.Schedule.BenignFailures...),
		Heuristics:     schedule.DefaultHeuristics.Merge(cfg.Schedule.Heuristics),
		OnAmbiguous: func(def schedule.JobDefinition, kind schedule.MatchKind, n int) {
			logger.Logger.Debugw("Ambiguous live match", logger.FieldJobID, def.ID, logger.FieldMatch, kind, logger.FieldCount, n)
		},
	})

	feed := livestate.NewFeed(snapshots, cfg.Feed.Key, livestate.WithMaxAge(cfg.Feed.DedupeWindow))
	hub := ws.NewHub()
	go hub.Run(ctx)

	workspace := docs.New(cfg.Files.WorkspaceRoot)
	provider := quotes.NewFMP(cfg.Quotes.BaseURL, cfg.Quotes.APIKey, cfg.Quotes.RatePerMinute, httpClient)
	invest := portfolio.New(snapshots, provider,
		filepath.Join(cfg.Files.WorkspaceRoot, "memory", "investing", "swing_trades.json"), cfg.Location)

	poller := cron.NewPoller(cfg.Feed.PollInterval)
	if err := poller.Add(cron.RefreshFunc{Label: cron.FeedRefresher, Fn: func(ctx context.Context) error {
		if snap := feed.Refresh(ctx); snap.Error != "" {
			return errors.New(snap.Error)
		}
		return nil
	}}, cfg.Feed.PollInterval); err != nil {
		logger.Logger.Fatalw("Failed to schedule feed polling", logger.FieldError, err)
	}

	h := handlers.New(handlers.Deps{
		Projector: projector,
		Feed:      feed,
		Snapshots: snapshots,
		Tasks:     taskStore,
		Docs:      workspace,
		Portfolio: invest,
		Agents:    agents.New(cfg.Files.OpenclawRoot),
		Hub:       hub,
		StartedAt: time.Now(),
		DiskPath:  cfg.Files.WorkspaceRoot,
		Poller:    poller,
	})
	feed.Subscribe(h.BroadcastSchedule)

	if files, ok := snapshots.(*kv.FileStore); ok && cfg.Feed.Watch {
		watcher, err := livestate.NewWatcher(files.Path(cfg.Feed.Key), feed, 0)
		if err != nil {
			logger.Logger.Warnw("Cron state watcher disabled", logger.FieldError, err)
		} else {
			go watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	feed.Get(ctx)
	poller.Start()
	defer poller.Stop()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: false,
	}))

	h.Register(app, middleware.AuthRequired(cfg.Auth.JWTSecret))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Logger.Warnw("Shutdown incomplete", logger.FieldError, err)
		}
	}()

	logger.Logger.Infow("🚀 Ops dashboard starting", logger.FieldAddress, "http://"+addr, "timezone", cfg.Timezone)
	if err := app.Listen(addr); err != nil {
		logger.Logger.Errorw("Server stopped", logger.FieldError, err)
	}
}
