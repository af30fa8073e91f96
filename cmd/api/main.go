package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/hackhub-api/internal/config"
	"github.com/noah-isme/hackhub-api/internal/database"
	"github.com/noah-isme/hackhub-api/internal/handler"
	"github.com/noah-isme/hackhub-api/internal/middleware"
	"github.com/noah-isme/hackhub-api/internal/models"
	"github.com/noah-isme/hackhub-api/internal/observability"
	"github.com/noah-isme/hackhub-api/internal/repository"
	"github.com/noah-isme/hackhub-api/internal/router"
	"github.com/noah-isme/hackhub-api/internal/service"
	"github.com/noah-isme/hackhub-api/pkg/ai"
	"github.com/noah-isme/hackhub-api/pkg/evidence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", cfg.AppName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.Challenge{}, &models.Submission{}, &models.ActivityLog{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, analysis status cache disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
	}

	scorer, closeScorer := buildScorer(ctx, cfg, logger)
	defer closeScorer()

	fetchers := service.EvidenceFetchers{
		Repository: evidence.NewGitHubFetcher(evidence.GitHubConfig{
			APIBaseURL: cfg.GitHubAPIURL,
			Token:      cfg.GitHubToken,
			UserAgent:  cfg.FetchUserAgent,
			Timeout:    cfg.FetchTimeout,
			Logger:     logger,
		}),
		Deck: evidence.NewDeckFetcher(evidence.DeckConfig{
			UserAgent: cfg.FetchUserAgent,
			Timeout:   cfg.FetchTimeout,
			Logger:    logger,
		}),
		Demo: evidence.NewDemoFetcher(evidence.DemoConfig{
			UserAgent: cfg.FetchUserAgent,
			Timeout:   cfg.DemoTimeout,
			Logger:    logger,
		}),
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, validate, logger)
	analysisService := service.NewAnalysisService(submissionRepo, challengeRepo, scorer, fetchers, redisClient, activityService, validate, service.AnalysisConfig{
		BatchDelay:      cfg.BatchDelay,
		StatusCacheTTL:  cfg.StatusCacheTTL,
		StaleClaimAfter: cfg.StaleClaimAfter,
	}, logger)

	var (
		dispatcher     service.AnalysisDispatcher
		waitDispatched func()
	)
	if natsConn != nil {
		natsDispatcher := service.NewNATSDispatcher(natsConn, cfg.NATSSubjectBase, analysisService, cfg.DetachedRunTimeout, logger)
		if err := natsDispatcher.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start analysis consumer")
		}
		dispatcher, waitDispatched = natsDispatcher, natsDispatcher.Wait
	} else {
		asyncDispatcher := service.NewAsyncDispatcher(analysisService, cfg.DetachedRunTimeout, logger)
		dispatcher, waitDispatched = asyncDispatcher, asyncDispatcher.Wait
	}

	submissionService := service.NewSubmissionService(submissionRepo, challengeRepo, dispatcher, validate, logger)

	analysisHandler := handler.NewAnalysisHandler(analysisService, middleware.RateLimit("analysis-trigger", cfg.TriggerRateLimit, cfg.TriggerRateInterval), logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)
	activityHandler := handler.NewActivityHandler(activityService, logger)
	seedHandler := handler.NewSeedHandler(service.NewSeedService(challengeRepo, validate, cfg.SeedEnabled, cfg.SeedToken, logger), logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		AnalysisHandler:   analysisHandler,
		SubmissionHandler: submissionHandler,
		ActivityHandler:   activityHandler,
		SeedHandler:       seedHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		HealthChecks:      healthChecks(db, redisClient, natsConn),
		MetricsHandler:    observability.MetricsHandler(),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	shutdown(app, waitDispatched, logger)
}

// buildScorer returns a nil scorer when no provider key is configured; analysis requests then fail fast.
func buildScorer(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ai.Scorer, func()) {
	noop := func() {}

	switch cfg.AIProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			logger.Warn().Msg("gemini api key missing, analysis disabled")
			return nil, noop
		}
		scorer, err := ai.NewGeminiScorer(ctx, ai.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.AIModel,
			Timeout: cfg.AITimeout,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create gemini scorer")
		}
		return scorer, func() {
			if err := scorer.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close gemini client")
			}
		}
	default:
		if cfg.OpenAIAPIKey == "" {
			logger.Warn().Msg("openai api key missing, analysis disabled")
			return nil, noop
		}
		scorer, err := ai.NewOpenAIScorer(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.AIModel,
			Timeout: cfg.AITimeout,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create openai scorer")
		}
		return scorer, noop
	}
}

func healthChecks(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) []handler.HealthDependency {
	checks := []handler.HealthDependency{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}

	if redisClient != nil {
		checks = append(checks, handler.HealthDependency{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return database.PingRedis(ctx, redisClient)
			},
		})
	}

	if natsConn != nil {
		checks = append(checks, handler.HealthDependency{
			Name: "nats",
			Check: func(context.Context) error {
				if !natsConn.IsConnected() {
					return errors.New("nats " + natsConn.Status().String())
				}
				return nil
			},
		})
	}

	return checks
}

func shutdown(app *fiber.App, waitDispatched func(), logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	done := make(chan struct{})
	go func() {
		waitDispatched()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn().Msg("detached analyses still running at shutdown")
	}

	logger.Info().Msg("server stopped")
}
