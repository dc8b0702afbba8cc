package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"setlist-survivor/config"
	"setlist-survivor/handlers"
	"setlist-survivor/logger"
	"setlist-survivor/models"
	"setlist-survivor/services"
	"setlist-survivor/utils"
	"setlist-survivor/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLog := logger.New(logger.Config{
		Level:       cfg.Server.LogLevel,
		Format:      cfg.Server.LogFormat,
		ServiceName: "setlist-survivor",
	})
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormLevel := gormlogger.Warn
	if cfg.Server.IsDevelopment() {
		gormLevel = gormlogger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormLevel),
	})
	if err != nil {
		appLog.Fatal("failed to connect to database", "error", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		appLog.Fatal("failed to access database pool", "error", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(models.All()...); err != nil {
		appLog.Fatal("failed to migrate database", "error", err)
	}

	var archive services.SetlistArchive
	if cfg.Archive.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.Archive.AccountID, cfg.Archive.AccessKeyID, cfg.Archive.AccessKeySecret)
		if err != nil {
			appLog.Fatal("failed to initialize R2 client", "error", err)
		}
		archive = services.NewR2SetlistArchive(r2, cfg.Archive.Bucket)
		appLog.Info("setlist archive enabled", "bucket", cfg.Archive.Bucket)
	}

	provider := services.NewPhishNetClient(cfg.Provider, appLog)
	acquirer := services.NewSetlistAcquirer(provider, archive, cfg.Grading.StepTimeout, appLog)
	grading := services.NewGradingService(db, appLog)
	processor := services.NewResultsProcessor(db, grading, acquirer, services.NewFinalizePolicy(cfg.Grading), appLog)
	showStatus := services.NewShowStatusService(db, appLog)
	picks := services.NewPickService(db, appLog)
	board := services.NewLeaderboardService(db, appLog)
	admin := services.NewAdminService(db, grading, appLog)

	workers.NewPickLockWorker(showStatus, cfg.Cron.LockWorkerPeriod, appLog).Start(ctx)

	if cfg.Cron.Enabled {
		sched, err := processor.StartGradingScheduler(ctx, cfg.Cron.GradingInterval)
		if err != nil {
			appLog.Fatal("failed to start grading scheduler", "error", err)
		}
		defer func() {
			if err := sched.Shutdown(); err != nil {
				appLog.Warn("scheduler shutdown failed", "error", err)
			}
		}()
	}

	app := fiber.New(fiber.Config{
		AppName:      "setlist-survivor",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Cron-Secret",
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
		MaxAge:        86400,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := sqlDB.PingContext(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.SetupResultsRoutes(app, processor, cfg.Cron.Secret, appLog)
	handlers.SetupPoolRoutes(app, picks, board, appLog)
	handlers.SetupAdminRoutes(app, admin, appLog)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
			appLog.Error("server error", "error", err)
			stop()
		}
	}()

	appLog.Info("✅ Server running",
		"port", cfg.Server.Port,
		"grading_scheduler", cfg.Cron.Enabled,
		"grading_interval", cfg.Cron.GradingInterval.String(),
		"origins", cfg.Server.AllowedOrigins,
	)

	<-ctx.Done()
	appLog.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLog.Warn("server shutdown failed", "error", err)
	}
}
