package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/examforge/exam-session-service/internal/config"
	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
	"github.com/examforge/exam-session-service/internal/services"
	"github.com/examforge/exam-session-service/internal/utils"
	"github.com/examforge/exam-session-service/internal/validator"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
	examHandler    *ExamHandler
	authMiddleware *CasdoorAuthMiddleware
	rateLimiter    gin.HandlerFunc
	serviceManager services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	rateConfig config.RateLimitConfig,
	userRepo repositories.UserRepository,
	redisClient *redis.Client,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(
			serviceManager.Access(),
			serviceManager.Session(),
			serviceManager.Answer(),
			serviceManager.Violation(),
			logger,
		),
		examHandler: NewExamHandler(
			serviceManager.Exam(),
			serviceManager.Question(),
			validator,
			logger,
		),
		authMiddleware: NewCasdoorAuthMiddleware(casdoorConfig, userRepo),
		rateLimiter:    RateLimitMiddleware(redisClient, rateConfig, logger),
		serviceManager: serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Exam routes
		exams := v1.Group("/exams")
		{
			// Authoring - Teachers and Admins only
			exams.POST("", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.examHandler.CreateExam)
			exams.PUT("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.examHandler.UpdateExam)
			exams.DELETE("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.examHandler.DeleteExam)
			exams.POST("/:id/publish", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.examHandler.PublishExam)
			exams.POST("/:id/archive", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.examHandler.ArchiveExam)
			exams.POST("/:id/questions", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.examHandler.AddQuestionToExam)
			exams.DELETE("/:id/questions/:question_id", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.examHandler.RemoveQuestionFromExam)
			exams.POST("/:id/invitations", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.examHandler.CreateInvitations)
			exams.GET("/:id/stats", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.examHandler.GetExamStats)

			// View - all authenticated users
			exams.GET("", hm.examHandler.ListExams)
			exams.GET("/:id", hm.examHandler.GetExam)
			exams.GET("/:id/access", hm.sessionHandler.CheckAccess)
		}

		// Question routes - Teachers and Admins only
		questions := v1.Group("/questions")
		questions.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin))
		{
			questions.POST("", hm.examHandler.CreateQuestion)
			questions.GET("/:id", hm.examHandler.GetQuestion)
			questions.DELETE("/:id", hm.examHandler.DeleteQuestion)
		}

		// Session routes - mutating operations carry the rate limiter
		sessions := v1.Group("/sessions")
		{
			sessions.POST("/start", hm.rateLimiter, hm.sessionHandler.StartSession)
			sessions.GET("", hm.sessionHandler.ListSessions)
			sessions.GET("/:id/status", hm.sessionHandler.GetStatus)
			sessions.GET("/:id/questions/:index", hm.sessionHandler.GetQuestion)
			sessions.POST("/:id/answers", hm.rateLimiter, hm.sessionHandler.SubmitAnswer)
			sessions.POST("/:id/violations", hm.rateLimiter, hm.sessionHandler.TrackViolation)
			sessions.GET("/:id/violations", hm.sessionHandler.ListViolations)
			sessions.POST("/:id/complete", hm.sessionHandler.CompleteSession)
			sessions.POST("/:id/abandon", hm.sessionHandler.AbandonSession)
			sessions.POST("/:id/timeout", hm.sessionHandler.HandleTimeout)
			sessions.GET("/:id/results", hm.sessionHandler.GetResults)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "exam-session-service",
		})
	})
}
