package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/services"
	"github.com/quizdeck/quiz-service/internal/utils"
)

type StudentHandler struct {
	BaseHandler
	studentService services.StudentService
}

func NewStudentHandler(studentService services.StudentService, logger utils.Logger) *StudentHandler {
	return &StudentHandler{
		BaseHandler:    NewBaseHandler(logger),
		studentService: studentService,
	}
}

// GetAvailableQuizzes lists active quizzes for the caller
// @Summary List available quizzes
// @Description Lists active quizzes with the caller's attempt counts
// @Tags students
// @Accept json
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} services.QuizListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students/me/quizzes [get]
func (h *StudentHandler) GetAvailableQuizzes(c *gin.Context) {
	h.LogRequest(c, "Getting available quizzes")

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	limit := h.parseIntQuery(c, "limit", 20)
	offset := h.parseIntQuery(c, "offset", 0)

	quizzes, err := h.studentService.GetAvailableQuizzes(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quizzes)
}

// GetAttemptHistory lists the caller's submitted attempts
// @Summary Get attempt history
// @Description Lists the caller's submitted attempts, newest first
// @Tags students
// @Accept json
// @Produce json
// @Param quiz_id query uint false "Filter by quiz"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} services.AttemptHistoryResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students/me/attempts [get]
func (h *StudentHandler) GetAttemptHistory(c *gin.Context) {
	h.LogRequest(c, "Getting attempt history")

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	filters := repositories.AttemptFilters{
		Limit:  h.parseIntQuery(c, "limit", 20),
		Offset: h.parseIntQuery(c, "offset", 0),
	}
	if quizID := uint(h.parseIntQuery(c, "quiz_id", 0)); quizID != 0 {
		filters.QuizID = &quizID
	}
	status := models.AttemptSubmitted
	filters.Status = &status

	history, err := h.studentService.GetAttemptHistory(c.Request.Context(), userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// GetStudentStats aggregates the caller's results
// @Summary Get student stats
// @Description Aggregates the caller's scores and time across all quizzes
// @Tags students
// @Accept json
// @Produce json
// @Success 200 {object} services.StudentStatsResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students/me/stats [get]
func (h *StudentHandler) GetStudentStats(c *gin.Context) {
	h.LogRequest(c, "Getting student stats")

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	stats, err := h.studentService.GetStats(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
