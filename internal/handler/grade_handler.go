package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openacad/sis-api/internal/models"
	"github.com/openacad/sis-api/internal/service"
	appErrors "github.com/openacad/sis-api/pkg/errors"
	"github.com/openacad/sis-api/pkg/response"
)

// GradeHandler exposes assessment scoring and grade finalization.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// ListAssessments godoc
// @Summary List assessment scores
// @Tags Grades
// @Produce json
// @Security BearerAuth
// @Param enrollmentId query string false "Filter by enrollment"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assessments [get]
func (h *GradeHandler) ListAssessments(c *gin.Context) {
	var filter models.AssessmentFilter
	filter.EnrollmentID = c.Query("enrollmentId")
	filter.GradedBy = c.Query("gradedBy")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	scores, pagination, err := h.grades.ListAssessments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scores, pagination)
}

// CreateAssessment godoc
// @Summary Record an assessment score
// @Tags Grades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateAssessmentRequest true "Score payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assessments [post]
func (h *GradeHandler) CreateAssessment(c *gin.Context) {
	var req service.CreateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	gradedBy := ""
	if claims := claimsFromContext(c); claims != nil {
		gradedBy = claims.UserID
	}
	score, err := h.grades.CreateAssessment(c.Request.Context(), req, gradedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, score)
}

// UpdateAssessment godoc
// @Summary Revise an assessment score
// @Tags Grades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Score ID"
// @Param payload body service.UpdateAssessmentRequest true "Score payload"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id} [put]
func (h *GradeHandler) UpdateAssessment(c *gin.Context) {
	var req service.UpdateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	gradedBy := ""
	if claims := claimsFromContext(c); claims != nil {
		gradedBy = claims.UserID
	}
	score, err := h.grades.UpdateAssessment(c.Request.Context(), c.Param("id"), req, gradedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, score, nil)
}

// DeleteAssessment godoc
// @Summary Delete an assessment score
// @Tags Grades
// @Produce json
// @Security BearerAuth
// @Param id path string true "Score ID"
// @Success 204
// @Router /assessments/{id} [delete]
func (h *GradeHandler) DeleteAssessment(c *gin.Context) {
	if err := h.grades.DeleteAssessment(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Preview godoc
// @Summary Preview the provisional grade for an enrollment
// @Tags Grades
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/grade/preview [get]
func (h *GradeHandler) Preview(c *gin.Context) {
	result, err := h.grades.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Finalize godoc
// @Summary Finalize the grade for an enrollment
// @Description Computes the weighted percentage, assigns the letter grade, moves the enrollment to COMPLETED or FAILED, and recomputes the student's GPA.
// @Tags Grades
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /enrollments/{id}/grade/finalize [post]
func (h *GradeHandler) Finalize(c *gin.Context) {
	result, err := h.grades.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Amend godoc
// @Summary Amend a finalized grade
// @Tags Grades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Param payload body service.AmendGradeRequest true "Amendment payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/grade [put]
func (h *GradeHandler) Amend(c *gin.Context) {
	var req service.AmendGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.grades.Amend(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
