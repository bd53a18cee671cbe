package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codelab-api/internal/config"
	"github.com/noah-isme/codelab-api/internal/database"
	"github.com/noah-isme/codelab-api/internal/handler"
	"github.com/noah-isme/codelab-api/internal/middleware"
	"github.com/noah-isme/codelab-api/internal/models"
	"github.com/noah-isme/codelab-api/internal/repository"
	"github.com/noah-isme/codelab-api/internal/router"
	"github.com/noah-isme/codelab-api/internal/service"
	"github.com/noah-isme/codelab-api/pkg/runner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Problem{},
		&models.TestCase{},
		&models.Submission{},
		&models.ExecutionResult{},
		&models.PlagiarismReport{},
		&models.ProctoringSession{},
		&models.ProctoringViolation{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	runClient, err := runner.NewClient(runner.Config{
		BaseURL:  cfg.RunnerBaseURL,
		APIToken: cfg.RunnerAPIToken,
		Timeout:  cfg.RunnerTimeout,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to create runner client: %v", err)
	}

	problemRepo := repository.NewProblemRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	plagiarismRepo := repository.NewPlagiarismRepository(db)
	proctoringRepo := repository.NewProctoringRepository(db)

	evaluationService := service.NewEvaluationService(submissionRepo, problemRepo, runClient, validate, logger, service.EvaluationConfig{
		MaxConcurrentCases:   cfg.EvalConcurrency,
		DefaultTimeLimitSec:  cfg.TimeLimitSec,
		DefaultMemoryLimitMB: cfg.MemoryLimitMB,
	})
	plagiarismService := service.NewPlagiarismService(plagiarismRepo, submissionRepo, logger, service.PlagiarismOptions{})
	proctoringService := service.NewProctoringService(proctoringRepo, validate, logger)
	monitorService := service.NewMonitorService(proctoringService, redisClient, cfg.ChannelBase, natsConn, logger)

	submissionHandler := handler.NewSubmissionHandler(evaluationService, plagiarismService, logger)
	labHandler := handler.NewLabHandler(proctoringService, plagiarismService, logger)
	monitorHandler := handler.NewMonitorHandler(monitorService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler: submissionHandler,
		LabHandler:        labHandler,
		MonitorHandler:    monitorHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	serviceCtx, stopServices := context.WithCancel(context.Background())
	defer stopServices()
	monitorService.Start(serviceCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
