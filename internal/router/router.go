package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizcheck-backend/internal/config"
	"github.com/stemsi/quizcheck-backend/internal/handler"
	"github.com/stemsi/quizcheck-backend/internal/metrics"
	"github.com/stemsi/quizcheck-backend/internal/middleware"
	"github.com/stemsi/quizcheck-backend/internal/response"
	"github.com/stemsi/quizcheck-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Test     *handler.TestHandler
	Question *handler.QuestionHandler
	Answer   *handler.AnswerHandler
	Grade    *handler.GradeHandler
	WS       *handler.WSHandler
	System   *handler.SystemHandler
}

// Options carries optional router components. Nil fields are skipped.
type Options struct {
	Metrics     *metrics.Metrics
	AuthLimiter *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	opts Options,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware())
		router.GET("/metrics", opts.Metrics.Handler())
	}

	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	requireAuth := middleware.RequireAuth(authService)
	checkSession := middleware.CheckSession(authService)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	if opts.AuthLimiter != nil {
		auth.Use(opts.AuthLimiter.Middleware())
	}
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)

		auth.POST("/logout", requireAuth, checkSession, handlers.Auth.Logout)
		auth.GET("/me", requireAuth, checkSession, handlers.Auth.Me)
	}

	// ─── 2. API Group (JWT + Session) ──────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(requireAuth, checkSession)
	{
		// Tests
		api.GET("/tests", handlers.Test.ListTests)
		api.POST("/tests", handlers.Test.CreateTest)
		api.GET("/tests/:id", handlers.Test.GetTest)
		api.PUT("/tests/:id", handlers.Test.UpdateTest)
		api.DELETE("/tests/:id", handlers.Test.DeleteTest)

		// Questions
		api.GET("/tests/:id/questions", handlers.Question.ListQuestions)
		api.POST("/tests/:id/questions", handlers.Question.AddQuestion)
		api.GET("/tests/:id/questions/:number", handlers.Question.GetQuestion)
		api.PUT("/questions/:id", handlers.Question.UpdateQuestion)
		api.DELETE("/questions/:id", handlers.Question.DeleteQuestion)

		// Answers
		api.GET("/questions/:id/answer", handlers.Answer.MyAnswer)
		api.PUT("/questions/:id/answer", handlers.Answer.SubmitAnswer)
		api.DELETE("/questions/:id/answer", handlers.Answer.DeleteAnswer)
		api.GET("/tests/:id/my-answers", handlers.Answer.MyAnswers)
		api.GET("/tests/:id/answers", handlers.Answer.TestAnswers)
		api.GET("/tests/:id/answers/:number", handlers.Answer.QuestionAnswers)

		// Grades
		api.POST("/tests/:id/approve", handlers.Grade.Approve)
		api.POST("/tests/:id/check", handlers.Grade.Check)
		api.GET("/tests/:id/ranking", handlers.Grade.Ranking)
		api.GET("/tests/:id/grade", handlers.Grade.MyGrade)
		api.POST("/tests/:id/send-email", handlers.Grade.SendResults)
	}

	// ─── 3. Admin Group (JWT + Admin Flag) ─────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(requireAuth, checkSession, middleware.RequireAdmin())
	{
		admin.PUT("/users/:id/admin", handlers.Auth.SetAdmin)
	}

	// ─── 4. WebSocket Group (?token= auth) ─────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireAuth, checkSession)
	{
		ws.GET("/tests/:id/stream", handlers.WS.TestStream)
	}

	return router
}
