package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/repositories/casdoor"
	"github.com/quizdeck/quiz-service/internal/services"
	"github.com/quizdeck/quiz-service/internal/utils"
	"github.com/quizdeck/quiz-service/internal/validator"
)

type HandlerManager struct {
	quizHandler    *QuizHandler
	attemptHandler *AttemptHandler
	studentHandler *StudentHandler
	userHandler    *UserHandler
	authMiddleware *CasdoorAuthMiddleware
	healthCheck    func(c *gin.Context)
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig casdoor.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		quizHandler:    NewQuizHandler(serviceManager.Quiz(), serviceManager.Import(), validator, logger),
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		studentHandler: NewStudentHandler(serviceManager.Student(), logger),
		userHandler:    NewUserHandler(userRepo, logger),
		authMiddleware: authMiddleware,
		healthCheck: func(c *gin.Context) {
			status := "healthy"
			code := 200
			if err := serviceManager.HealthCheck(c.Request.Context()); err != nil {
				status = "unhealthy"
				code = 503
			}
			c.JSON(code, gin.H{
				"status":  status,
				"service": "quiz-service",
			})
		},
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Quiz routes
		quizzes := v1.Group("/quizzes")
		{
			// Authoring - Admins only
			quizzes.POST("", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.quizHandler.CreateQuiz)
			quizzes.PUT("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.quizHandler.UpdateQuiz)
			quizzes.DELETE("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.quizHandler.DeleteQuiz)
			quizzes.PUT("/:id/active", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.quizHandler.SetQuizActive)
			quizzes.POST("/import", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.quizHandler.ImportQuiz)

			// Viewing and taking - all authenticated users
			quizzes.GET("", hm.quizHandler.ListQuizzes)
			quizzes.GET("/:id", hm.quizHandler.GetQuiz)
			quizzes.GET("/:id/can-take", hm.quizHandler.CanTakeQuiz)
			quizzes.POST("/:id/attempts", hm.attemptHandler.ResolveAttempt)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/answers", hm.attemptHandler.SaveAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/result", hm.attemptHandler.GetResult)
		}

		// Student routes
		students := v1.Group("/students")
		{
			students.GET("/me/quizzes", hm.studentHandler.GetAvailableQuizzes)
			students.GET("/me/attempts", hm.studentHandler.GetAttemptHistory)
			students.GET("/me/stats", hm.studentHandler.GetStudentStats)
		}

		// User routes
		users := v1.Group("/users")
		{
			users.GET("/me", hm.userHandler.GetMe)
			users.GET("/:id", hm.userHandler.GetUser)
		}
	}

	// Health check endpoint
	router.GET("/health", hm.healthCheck)
}
