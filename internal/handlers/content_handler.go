package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openedu/course-service/internal/repositories"
	"github.com/openedu/course-service/internal/services"
)

// ContentHandler serves the unit/topic/question tree endpoints.
type ContentHandler struct {
	baseHandler
	contentService services.ContentService
}

func NewContentHandler(contentService services.ContentService, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		baseHandler:    baseHandler{logger: logger},
		contentService: contentService,
	}
}

// ===== UNITS =====

func (h *ContentHandler) CreateUnit(c *gin.Context) {
	var req services.CreateUnitRequest
	if !h.bind(c, &req) {
		return
	}

	unit, err := h.contentService.CreateUnit(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, unit)
}

func (h *ContentHandler) UpdateUnit(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.UpdateUnitRequest
	if !h.bind(c, &req) {
		return
	}

	unit, err := h.contentService.UpdateUnit(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

func (h *ContentHandler) RelocateUnit(c *gin.Context) {
	h.relocate(c, h.contentService.RelocateUnit)
}

func (h *ContentHandler) DeleteUnit(c *gin.Context) {
	h.delete(c, h.contentService.DeleteUnit)
}

// ===== TOPICS =====

func (h *ContentHandler) CreateTopic(c *gin.Context) {
	var req services.CreateTopicRequest
	if !h.bind(c, &req) {
		return
	}

	topic, err := h.contentService.CreateTopic(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, topic)
}

func (h *ContentHandler) GetTopic(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	topic, err := h.contentService.GetTopic(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, topic)
}

func (h *ContentHandler) ListTopics(c *gin.Context) {
	filters := repositories.TopicFilters{
		CourseID: h.parseUintQueryPtr(c, "course_id"),
		UnitID:   h.parseUintQueryPtr(c, "unit_id"),
		Limit:    h.parseIntQuery(c, "size", 50),
	}
	if openStr := c.Query("is_open"); openStr != "" {
		open := openStr == "true"
		filters.IsOpen = &open
		now := time.Now()
		filters.Now = &now
	}

	topics, err := h.contentService.GetTopics(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, topics)
}

func (h *ContentHandler) UpdateTopic(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.UpdateTopicRequest
	if !h.bind(c, &req) {
		return
	}

	topic, err := h.contentService.UpdateTopic(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, topic)
}

func (h *ContentHandler) RelocateTopic(c *gin.Context) {
	h.relocate(c, h.contentService.RelocateTopic)
}

func (h *ContentHandler) DeleteTopic(c *gin.Context) {
	h.delete(c, h.contentService.DeleteTopic)
}

// ===== QUESTIONS =====

func (h *ContentHandler) CreateQuestion(c *gin.Context) {
	var req services.CreateQuestionRequest
	if !h.bind(c, &req) {
		return
	}

	question, err := h.contentService.CreateQuestion(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

func (h *ContentHandler) UpdateQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.UpdateQuestionRequest
	if !h.bind(c, &req) {
		return
	}

	question, err := h.contentService.UpdateQuestion(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

func (h *ContentHandler) RelocateQuestion(c *gin.Context) {
	h.relocate(c, h.contentService.RelocateQuestion)
}

func (h *ContentHandler) DeleteQuestion(c *gin.Context) {
	h.delete(c, h.contentService.DeleteQuestion)
}

// ===== OVERRIDES =====

func (h *ContentHandler) CreateTopicOverride(c *gin.Context) {
	var req services.TopicOverrideRequest
	if !h.bind(c, &req) {
		return
	}

	override, err := h.contentService.CreateTopicOverride(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, override)
}

func (h *ContentHandler) CreateQuestionOverride(c *gin.Context) {
	var req services.QuestionOverrideRequest
	if !h.bind(c, &req) {
		return
	}

	override, err := h.contentService.CreateQuestionOverride(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, override)
}

// ===== SHARED =====

func (h *ContentHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return false
	}
	return true
}

func (h *ContentHandler) relocate(c *gin.Context, fn func(ctx context.Context, id uint, req *services.RelocateRequest) error) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.RelocateRequest
	if !h.bind(c, &req) {
		return
	}

	if err := fn(c.Request.Context(), id, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Content relocated"})
}

func (h *ContentHandler) delete(c *gin.Context, fn func(ctx context.Context, id uint) (*services.DeleteResult, error)) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	result, err := fn(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Content deleted",
		Data:    result,
	})
}
