package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openacad/sis-api/internal/models"
	"github.com/openacad/sis-api/internal/service"
	appErrors "github.com/openacad/sis-api/pkg/errors"
	"github.com/openacad/sis-api/pkg/response"
)

// ReportHandler exposes transcript and roster exports.
type ReportHandler struct {
	reports  *service.ReportService
	students *service.StudentService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService, students *service.StudentService) *ReportHandler {
	return &ReportHandler{reports: reports, students: students}
}

// Transcript godoc
// @Summary Get a student's transcript
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param format query string false "json, csv, or pdf" default(json)
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transcript [get]
func (h *ReportHandler) Transcript(c *gin.Context) {
	studentID := c.Param("id")
	if err := h.requireSelfOrStaff(c, studentID); err != nil {
		response.Error(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		transcript, err := h.reports.Transcript(c.Request.Context(), studentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, transcript, nil)
	case "csv":
		data, err := h.reports.TranscriptCSV(c.Request.Context(), studentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		serveAttachment(c, data, "text/csv", fmt.Sprintf("transcript-%s.csv", studentID))
	case "pdf":
		data, err := h.reports.TranscriptPDF(c.Request.Context(), studentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		serveAttachment(c, data, "application/pdf", fmt.Sprintf("transcript-%s.pdf", studentID))
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported format"))
	}
}

// ClassRoster godoc
// @Summary Export the roster of a class offering as CSV
// @Tags Reports
// @Produce text/csv
// @Security BearerAuth
// @Param id path string true "Offering ID"
// @Success 200
// @Router /offerings/{id}/roster [get]
func (h *ReportHandler) ClassRoster(c *gin.Context) {
	offeringID := c.Param("id")
	data, err := h.reports.ClassRosterCSV(c.Request.Context(), offeringID)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveAttachment(c, data, "text/csv", fmt.Sprintf("roster-%s.csv", offeringID))
}

func (h *ReportHandler) requireSelfOrStaff(c *gin.Context, studentID string) error {
	claims := claimsFromContext(c)
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleStudent {
		return nil
	}
	student, err := h.students.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		return appErrors.ErrForbidden
	}
	if student.ID != studentID {
		return appErrors.ErrForbidden
	}
	return nil
}

func serveAttachment(c *gin.Context, data []byte, contentType, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
