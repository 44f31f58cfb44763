package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/qcmdesk/qcmdesk-backend/internal/config"
	"github.com/qcmdesk/qcmdesk-backend/internal/handler"
	"github.com/qcmdesk/qcmdesk-backend/internal/middleware"
	"github.com/qcmdesk/qcmdesk-backend/internal/response"
	"github.com/qcmdesk/qcmdesk-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	QCM         *handler.QCMHandler
	Exam        *handler.ExamHandler
	StudentExam *handler.StudentExamHandler
	Branch      *handler.BranchHandler
	WS          *handler.WSHandler
	System      *handler.SystemHandler
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
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

	// Rate limiter for credential-bearing routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)

		// Authenticated profile routes
		auth.GET("/me", middleware.RequireStudentJWT(authService), handlers.Auth.Me)
		auth.POST("/logout", middleware.RequireStudentJWT(authService), handlers.Auth.Logout)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/exams", handlers.StudentExam.ListOpen)
		studentAPI.POST("/exams/join", authLimiter.Middleware(), handlers.StudentExam.Join)

		studentAPI.GET("/attempts/:attempt_id/state", handlers.StudentExam.State)
		studentAPI.POST("/attempts/:attempt_id/select", handlers.StudentExam.Select)
		studentAPI.POST("/attempts/:attempt_id/save", handlers.StudentExam.Save)
		studentAPI.POST("/attempts/:attempt_id/finish", handlers.StudentExam.Finish)
		studentAPI.POST("/attempts/:attempt_id/retry", handlers.StudentExam.RetrySubmit)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Professor Group (JWT) ──────────────────────────────────────
	professorAPI := router.Group("/api/v1/professor")
	professorAPI.Use(middleware.RequireProfessorJWT(authService))
	{
		// QCM management
		professorAPI.GET("/qcms", handlers.QCM.List)
		professorAPI.POST("/qcms", handlers.QCM.Create)
		professorAPI.GET("/qcms/:qcm_id", handlers.QCM.Get)
		professorAPI.DELETE("/qcms/:qcm_id", handlers.QCM.Delete)

		// Exam session management
		professorAPI.GET("/sessions", handlers.Exam.ListSessions)
		professorAPI.POST("/sessions", handlers.Exam.CreateSession)
		professorAPI.GET("/sessions/:session_id", handlers.Exam.GetSession)
		professorAPI.DELETE("/sessions/:session_id", handlers.Exam.DeleteSession)
		professorAPI.GET("/sessions/:session_id/results", handlers.Exam.Results)
		professorAPI.GET("/sessions/:session_id/live", handlers.Exam.LiveSSE)

		// Branches
		professorAPI.GET("/branches", handlers.Branch.List)
		professorAPI.POST("/branches", handlers.Branch.Create)

		// Student session administration
		professorAPI.POST("/students/:student_id/reset-session", handlers.Auth.ResetStudentSession)

		// System monitoring
		professorAPI.GET("/system/stats", handlers.System.Stats)
	}

	return router
}
