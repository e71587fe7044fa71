package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openedu/course-service/internal/repositories"
	"github.com/openedu/course-service/internal/services"
)

// GradeHandler serves question rendering, submissions and grade access.
type GradeHandler struct {
	baseHandler
	gradeService services.GradeService
}

func NewGradeHandler(gradeService services.GradeService, logger *slog.Logger) *GradeHandler {
	return &GradeHandler{
		baseHandler:  baseHandler{logger: logger},
		gradeService: gradeService,
	}
}

// RenderQuestion renders one question for the authenticated user.
func (h *GradeHandler) RenderQuestion(c *gin.Context) {
	questionID := h.parseIDParam(c, "id")
	if questionID == 0 {
		return
	}
	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	req := services.GetQuestionRequest{
		UserID:             userID,
		QuestionID:         questionID,
		ShowCorrectAnswers: c.Query("show_correct_answers") == "true",
		ReadonlyWorkbookID: h.parseUintQueryPtr(c, "workbook_id"),
	}

	rendered, err := h.gradeService.GetQuestion(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rendered)
}

// ListQuestions returns a topic's questions, with the caller's grades
// preloaded.
func (h *GradeHandler) ListQuestions(c *gin.Context) {
	topicID := h.parseIDParam(c, "id")
	if topicID == 0 {
		return
	}
	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	questions, err := h.gradeService.GetQuestions(c.Request.Context(), repositories.QuestionFilters{
		TopicID:       &topicID,
		UserID:        &userID,
		IncludeHidden: c.Query("include_hidden") == "true",
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

// SubmitAnswer scores one attempt for the authenticated user.
func (h *GradeHandler) SubmitAnswer(c *gin.Context) {
	questionID := h.parseIDParam(c, "id")
	if questionID == 0 {
		return
	}
	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid form payload",
			Details: err.Error(),
		})
		return
	}

	req := services.SubmitAnswerRequest{
		UserID:     userID,
		QuestionID: questionID,
		FormData:   c.Request.PostForm,
	}

	resp, err := h.gradeService.SubmitAnswer(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *GradeHandler) GetGrade(c *gin.Context) {
	questionID := h.parseIDParam(c, "id")
	if questionID == 0 {
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		userID = h.currentUserID(c)
		if userID == "" {
			return
		}
	}

	grade, err := h.gradeService.GetGrade(c.Request.Context(), userID, questionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, grade)
}

func (h *GradeHandler) GetWorkbooks(c *gin.Context) {
	gradeID := h.parseIDParam(c, "id")
	if gradeID == 0 {
		return
	}

	workbooks, err := h.gradeService.GetWorkbooks(c.Request.Context(), gradeID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, workbooks)
}

type lockRequest struct {
	Locked bool `json:"locked"`
}

func (h *GradeHandler) SetGradeLocked(c *gin.Context) {
	gradeID := h.parseIDParam(c, "id")
	if gradeID == 0 {
		return
	}
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	grade, err := h.gradeService.SetGradeLocked(c.Request.Context(), gradeID, req.Locked, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, grade)
}

// FindMissingGrades reports (user, question) pairs with no grade row.
func (h *GradeHandler) FindMissingGrades(c *gin.Context) {
	missing, err := h.gradeService.FindMissingGrades(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, missing)
}

// SyncMissingGrades backfills every missing grade row.
func (h *GradeHandler) SyncMissingGrades(c *gin.Context) {
	created, err := h.gradeService.SyncMissingGrades(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Missing grades synced",
		Data:    gin.H{"created": created},
	})
}
