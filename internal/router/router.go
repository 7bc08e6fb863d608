package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/examforge/exam-engine/internal/config"
	"github.com/examforge/exam-engine/internal/handler"
	"github.com/examforge/exam-engine/internal/middleware"
	"github.com/examforge/exam-engine/internal/response"
	"github.com/examforge/exam-engine/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Telemetry and autosave fire on every focus change or selection;
	// cap each client rather than each exam.
	telemetryLimiter := middleware.NewRateLimiter(240, time.Minute)

	// ─── Attempt lifecycle (student JWT) ───────────────────────────────
	attemptAPI := router.Group("/api/v1/attempts")
	attemptAPI.Use(middleware.RequireStudentJWT(authService))
	{
		attemptAPI.POST("", handlers.Attempt.StartAttempt)
		attemptAPI.GET("/active", handlers.Attempt.GetActiveAttempt)
		attemptAPI.POST("/:attempt_id/submit", handlers.Attempt.SubmitAnswers)
		attemptAPI.POST("/:attempt_id/answers",
			telemetryLimiter.Middleware(),
			handlers.Attempt.AutosaveAnswer,
		)
		attemptAPI.POST("/:attempt_id/events",
			telemetryLimiter.Middleware(),
			handlers.Attempt.RecordIntegrityEvent,
		)
	}

	// ─── Results (student or trusted service JWT) ──────────────────────
	studentAPI := router.Group("/api/v1/students")
	studentAPI.Use(middleware.RequireJWT(authService))
	{
		studentAPI.GET("/:student_id/results", handlers.Attempt.GetStudentResults)
	}

	return router
}
