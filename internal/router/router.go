package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/handler"
	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Flag    *handler.FlagHandler
	Review  *handler.ReviewHandler
	Policy  *handler.PolicyHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	verifier *service.TokenVerifier,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Detectors can be chatty; cap flag ingestion per IP.
	flagLimiter := middleware.NewRateLimiter(120, time.Minute)

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(verifier))
	{
		studentAPI.POST("/exams/:exam_id/session", handlers.Session.StartSession)
		studentAPI.GET("/sessions/:session_id", handlers.Session.GetSession)
		studentAPI.GET("/sessions/:session_id/paper", handlers.Session.GetPaper)
		studentAPI.GET("/sessions/:session_id/state", handlers.Session.GetState)
		studentAPI.PUT("/sessions/:session_id/answers", handlers.Session.SubmitAnswer)
		studentAPI.POST("/sessions/:session_id/submit", handlers.Session.Submit)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(verifier))
	{
		ws.GET("/student/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Proctor Ingestion (Instructor JWT, Rate Limited) ───────────
	proctorAPI := router.Group("/api/v1/proctor")
	proctorAPI.Use(middleware.RequireInstructorJWT(verifier), flagLimiter.Middleware())
	{
		proctorAPI.POST("/students/:student_id/flags", handlers.Flag.RecordFlag)
	}

	// ─── 4. Instructor Group (JWT) ─────────────────────────────────────
	instructorAPI := router.Group("/api/v1/instructor")
	instructorAPI.Use(middleware.RequireInstructorJWT(verifier))
	{
		instructorAPI.GET("/sessions/:session_id/review", handlers.Review.ReviewSession)
		instructorAPI.PUT("/sessions/:session_id/verdicts", handlers.Review.SetManualVerdict)
		instructorAPI.POST("/sessions/:session_id/publish", handlers.Review.PublishGrade)

		instructorAPI.GET("/exams/:exam_id/integrity", handlers.Monitor.GetIntegritySnapshot)

		instructorAPI.GET("/policy", handlers.Policy.GetPolicy)
		instructorAPI.PUT("/policy", handlers.Policy.UpdatePolicy)
	}

	return router
}
