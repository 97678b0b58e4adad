package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openacad/sis-api/internal/models"
	appErrors "github.com/openacad/sis-api/pkg/errors"
	"github.com/openacad/sis-api/pkg/export"
)

type reportEnrollmentStore interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type reportStudentStore interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type reportOfferingStore interface {
	FindDetailByID(ctx context.Context, id string) (*models.OfferingDetail, error)
}

// ReportConfig brands generated documents.
type ReportConfig struct {
	InstitutionName string
	CacheTTL        time.Duration
}

// ReportService assembles transcripts and rosters and renders them as
// JSON, CSV, or PDF. Assembled transcripts are cached; any grade write
// for the student invalidates the entry.
type ReportService struct {
	enrollments reportEnrollmentStore
	students    reportStudentStore
	offerings   reportOfferingStore
	cache       *CacheService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	cfg         ReportConfig
	logger      *zap.Logger
}

// NewReportService constructs the report service.
func NewReportService(
	enrollments reportEnrollmentStore,
	students reportStudentStore,
	offerings reportOfferingStore,
	cache *CacheService,
	cfg ReportConfig,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InstitutionName == "" {
		cfg.InstitutionName = "OpenAcad"
	}
	return &ReportService{
		enrollments: enrollments,
		students:    students,
		offerings:   offerings,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		cfg:         cfg,
		logger:      logger,
	}
}

// Transcript assembles the full academic record for one student.
func (s *ReportService) Transcript(ctx context.Context, studentID string) (*models.Transcript, error) {
	key := transcriptCacheKey(studentID)
	if s.cache != nil {
		var cached models.Transcript
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	details, err := s.listAll(ctx, models.EnrollmentFilter{
		StudentID: studentID,
		SortBy:    "enrolled_at",
		SortOrder: "ASC",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}

	transcript := buildTranscript(student, details)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, transcript, s.cfg.CacheTTL); err != nil {
			s.logger.Debug("transcript cache write skipped", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return transcript, nil
}

// TranscriptCSV renders the transcript as CSV.
func (s *ReportService) TranscriptCSV(ctx context.Context, studentID string) ([]byte, error) {
	transcript, err := s.Transcript(ctx, studentID)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(transcriptDataset(transcript))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript csv")
	}
	return data, nil
}

// TranscriptPDF renders the transcript as a branded PDF document.
func (s *ReportService) TranscriptPDF(ctx context.Context, studentID string) ([]byte, error) {
	transcript, err := s.Transcript(ctx, studentID)
	if err != nil {
		return nil, err
	}
	opts := export.PDFOptions{
		Title:    fmt.Sprintf("%s — Official Transcript", s.cfg.InstitutionName),
		Subtitle: fmt.Sprintf("%s (%s)", transcript.Student.FullName, transcript.Student.StudentNo),
		Footer: []string{
			fmt.Sprintf("Cumulative GPA: %.2f", transcript.CumulativeGPA),
			fmt.Sprintf("Credits earned: %d", transcript.TotalCredits),
			fmt.Sprintf("Generated %s", time.Now().UTC().Format("2006-01-02 15:04 MST")),
		},
	}
	data, err := s.pdf.Render(transcriptDataset(transcript), opts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript pdf")
	}
	return data, nil
}

// ClassRosterCSV renders the enrollment roster of one offering.
func (s *ReportService) ClassRosterCSV(ctx context.Context, offeringID string) ([]byte, error) {
	offering, err := s.offerings.FindDetailByID(ctx, offeringID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class offering not found")
	}
	details, err := s.listAll(ctx, models.EnrollmentFilter{
		OfferingID: offeringID,
		SortBy:     "student_name",
		SortOrder:  "ASC",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := export.Dataset{
		Headers: []string{"Student No", "Student", "Status", "Grade", "Enrolled At"},
	}
	for _, detail := range details {
		grade := ""
		if detail.Grade != nil {
			grade = *detail.Grade
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student No":  detail.StudentNo,
			"Student":     detail.StudentName,
			"Status":      string(detail.Status),
			"Grade":       grade,
			"Enrolled At": detail.EnrolledAt.Format("2006-01-02"),
		})
	}
	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
	}
	s.logger.Debug("roster exported", zap.String("offering", offering.Code), zap.Int("rows", len(dataset.Rows)))
	return data, nil
}

// InvalidateStudent drops any cached transcript for the student.
func (s *ReportService) InvalidateStudent(ctx context.Context, studentID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, transcriptCacheKey(studentID))
}

func transcriptCacheKey(studentID string) string {
	return "transcript:" + studentID
}

// reportPageSize is the largest page the enrollment repository serves;
// anything bigger is clamped down, so reports walk pages of this size.
const reportPageSize = 100

// listAll drains every page of the enrollment listing. Reports need the
// complete record: a truncated transcript would disagree with the
// cumulative GPA, which is computed over the full history.
func (s *ReportService) listAll(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	filter.PageSize = reportPageSize

	var all []models.EnrollmentDetail
	for page := 1; ; page++ {
		filter.Page = page
		rows, total, err := s.enrollments.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

// buildTranscript folds enrollment details into transcript rows and
// per-semester GPAs. Dropped enrollments are omitted; in-progress ones
// appear without a grade. The cumulative GPA is read from the student
// row, which the grade pipeline keeps current.
func buildTranscript(student *models.StudentDetail, details []models.EnrollmentDetail) *models.Transcript {
	transcript := &models.Transcript{
		Student:       student,
		CumulativeGPA: student.GPA,
	}

	type termKey struct {
		Year     int
		Semester models.Semester
	}
	type termAgg struct {
		qualityPoints float64
		credits       int
	}
	terms := make(map[termKey]*termAgg)
	var termOrder []termKey

	for _, detail := range details {
		if detail.Status == models.EnrollmentStatusDropped {
			continue
		}
		transcript.Rows = append(transcript.Rows, models.TranscriptRow{
			CourseCode:   detail.CourseCode,
			CourseName:   detail.CourseName,
			Credits:      detail.Credits,
			Semester:     detail.Semester,
			AcademicYear: detail.AcademicYear,
			Status:       detail.Status,
			Grade:        detail.Grade,
			GradePoints:  detail.GradePoints,
		})
		if detail.Status == models.EnrollmentStatusCompleted {
			transcript.TotalCredits += detail.Credits
		}
		if detail.GradePoints == nil {
			continue
		}
		key := termKey{Year: detail.AcademicYear, Semester: detail.Semester}
		agg, ok := terms[key]
		if !ok {
			agg = &termAgg{}
			terms[key] = agg
			termOrder = append(termOrder, key)
		}
		agg.qualityPoints += *detail.GradePoints * float64(detail.Credits)
		agg.credits += detail.Credits
	}

	for _, key := range termOrder {
		agg := terms[key]
		if agg.credits == 0 {
			continue
		}
		transcript.SemesterGPAs = append(transcript.SemesterGPAs, models.SemesterGPA{
			Semester:     key.Semester,
			AcademicYear: key.Year,
			GPA:          roundHalfEven(agg.qualityPoints / float64(agg.credits)),
			Credits:      agg.credits,
		})
	}
	return transcript
}

func transcriptDataset(transcript *models.Transcript) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Course", "Title", "Credits", "Term", "Status", "Grade", "Points"},
	}
	for _, row := range transcript.Rows {
		grade, points := "", ""
		if row.Grade != nil {
			grade = *row.Grade
		}
		if row.GradePoints != nil {
			points = fmt.Sprintf("%.2f", *row.GradePoints)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Course":  row.CourseCode,
			"Title":   row.CourseName,
			"Credits": fmt.Sprintf("%d", row.Credits),
			"Term":    fmt.Sprintf("%s %d", row.Semester, row.AcademicYear),
			"Status":  string(row.Status),
			"Grade":   grade,
			"Points":  points,
		})
	}
	return dataset
}
