package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizcheck-backend/internal/config"
	"github.com/stemsi/quizcheck-backend/internal/database"
	"github.com/stemsi/quizcheck-backend/internal/grading"
	"github.com/stemsi/quizcheck-backend/internal/handler"
	"github.com/stemsi/quizcheck-backend/internal/logger"
	"github.com/stemsi/quizcheck-backend/internal/metrics"
	"github.com/stemsi/quizcheck-backend/internal/middleware"
	"github.com/stemsi/quizcheck-backend/internal/repository"
	"github.com/stemsi/quizcheck-backend/internal/router"
	"github.com/stemsi/quizcheck-backend/internal/service"
	"github.com/stemsi/quizcheck-backend/internal/validator"
	ws "github.com/stemsi/quizcheck-backend/internal/websocket"
	"github.com/stemsi/quizcheck-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting QuizCheck Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Metrics ───────────────────────────────────────────────────────
	var (
		m        *metrics.Metrics
		recorder service.Recorder
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)
		recorder = m
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(rdb)
	testRepo := repository.NewTestRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	gradeRepo := repository.NewGradeRepository(pool)
	resultsQueue := worker.NewResultsQueue(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	registry := grading.NewRegistry()

	authService := service.NewAuthService(cfg, userRepo, sessionRepo)
	testService := service.NewTestService(testRepo)
	questionService := service.NewQuestionService(registry, testRepo, questionRepo)
	answerService := service.NewAnswerService(registry, testRepo, questionRepo, answerRepo, gradeRepo)
	scoringService := service.NewScoringService(registry, answerRepo, recorder)
	gradeService := service.NewGradeService(service.GradeServiceDeps{
		Registry:       registry,
		Tests:          testRepo,
		Questions:      questionRepo,
		Answers:        answerRepo,
		Grades:         gradeRepo,
		Users:          userRepo,
		Scoring:        scoringService,
		Queue:          resultsQueue,
		Recorder:       recorder,
		RankingDefault: cfg.RankingDefaultLimit,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	broker := ws.NewRedisBroker(rdb, log)

	healthChecks := []handler.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: database.RedisPing(rdb)},
	}

	handlers := &router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Test:     handler.NewTestHandler(testService),
		Question: handler.NewQuestionHandler(questionService),
		Answer:   handler.NewAnswerHandler(answerService),
		Grade:    handler.NewGradeHandler(gradeService, broker, log),
		WS: handler.NewWSHandler(handler.WSServices{
			Tests:     testService,
			Questions: questionService,
			Answers:   answerService,
			Grades:    gradeService,
		}, broker, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(healthChecks, resultsQueue.Len, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	mailer := worker.NewMailer(cfg.SMTP, log)
	notificationWorker := worker.NewNotificationWorker(resultsQueue, gradeService, mailer, log)
	notificationWorker.Start(workerCtx)

	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimit, time.Minute)
	go authLimiter.Run(workerCtx.Done())

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, router.Options{
		Metrics:     m,
		AuthLimiter: authLimiter,
	})

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers. A job in flight finishes or is requeued.
	workerCancel()
	if !notificationWorker.Wait(5 * time.Second) {
		log.Warn().Msg("Notification worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
