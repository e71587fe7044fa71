package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openedu/course-service/internal/config"
	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/repositories"
	"github.com/openedu/course-service/internal/services"
)

// HandlerManager owns all handlers and wires them onto the router.
type HandlerManager struct {
	courseHandler  *CourseHandler
	contentHandler *ContentHandler
	gradeHandler   *GradeHandler
	authMiddleware *CasdoorAuthMiddleware
	serviceManager services.ServiceManager
	logger         *slog.Logger
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger *slog.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	return &HandlerManager{
		courseHandler:  NewCourseHandler(serviceManager.Course(), logger),
		contentHandler: NewContentHandler(serviceManager.Content(), logger),
		gradeHandler:   NewGradeHandler(serviceManager.Grade(), logger),
		authMiddleware: NewCasdoorAuthMiddleware(casdoorConfig, userRepo),
		serviceManager: serviceManager,
		logger:         logger,
	}
}

// SetupRoutes registers all API routes. Content mutation and reporting
// routes require the professor role; admins always pass.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.healthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())

	professorOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleProfessor)

	courses := v1.Group("/courses")
	{
		courses.GET("", hm.courseHandler.ListCourses)
		courses.GET("/:id", hm.courseHandler.GetCourse)
		courses.GET("/code/:code", hm.courseHandler.GetCourseByCode)
		courses.POST("", professorOnly, hm.courseHandler.CreateCourse)
		courses.PUT("/:id", professorOnly, hm.courseHandler.UpdateCourse)

		courses.DELETE("/:id/students/:user_id", professorOnly, hm.courseHandler.DropStudent)
		courses.GET("/:id/stats/units", professorOnly, hm.courseHandler.GetUnitStats)
		courses.GET("/:id/gradebook", professorOnly, hm.courseHandler.ExportGradebook)
	}

	enrollments := v1.Group("/enrollments")
	{
		enrollments.POST("", professorOnly, hm.courseHandler.Enroll)
		enrollments.POST("/by-code", hm.courseHandler.EnrollByCode)
	}

	units := v1.Group("/units", professorOnly)
	{
		units.POST("", hm.contentHandler.CreateUnit)
		units.PUT("/:id", hm.contentHandler.UpdateUnit)
		units.PUT("/:id/relocate", hm.contentHandler.RelocateUnit)
		units.DELETE("/:id", hm.contentHandler.DeleteUnit)
	}

	topics := v1.Group("/topics")
	{
		topics.GET("", hm.contentHandler.ListTopics)
		topics.GET("/:id", hm.contentHandler.GetTopic)
		topics.GET("/:id/questions", hm.gradeHandler.ListQuestions)
		topics.POST("", professorOnly, hm.contentHandler.CreateTopic)
		topics.PUT("/:id", professorOnly, hm.contentHandler.UpdateTopic)
		topics.PUT("/:id/relocate", professorOnly, hm.contentHandler.RelocateTopic)
		topics.DELETE("/:id", professorOnly, hm.contentHandler.DeleteTopic)
	}

	questions := v1.Group("/questions")
	{
		questions.GET("/:id/render", hm.gradeHandler.RenderQuestion)
		questions.POST("/:id/submit", hm.gradeHandler.SubmitAnswer)
		questions.GET("/:id/grade", hm.gradeHandler.GetGrade)
		questions.POST("", professorOnly, hm.contentHandler.CreateQuestion)
		questions.PUT("/:id", professorOnly, hm.contentHandler.UpdateQuestion)
		questions.PUT("/:id/relocate", professorOnly, hm.contentHandler.RelocateQuestion)
		questions.DELETE("/:id", professorOnly, hm.contentHandler.DeleteQuestion)
	}

	grades := v1.Group("/grades", professorOnly)
	{
		grades.GET("", hm.courseHandler.GetGrades)
		grades.GET("/stats/topics", hm.courseHandler.GetTopicStats)
		grades.GET("/stats/questions", hm.courseHandler.GetQuestionStats)
		grades.GET("/:id/workbooks", hm.gradeHandler.GetWorkbooks)
		grades.PUT("/:id/lock", hm.gradeHandler.SetGradeLocked)
		grades.GET("/missing", hm.gradeHandler.FindMissingGrades)
		grades.POST("/sync", hm.gradeHandler.SyncMissingGrades)
	}

	overrides := v1.Group("/overrides", professorOnly)
	{
		overrides.POST("/topics", hm.contentHandler.CreateTopicOverride)
		overrides.POST("/questions", hm.contentHandler.CreateQuestionOverride)
	}
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
