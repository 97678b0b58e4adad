package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Semester identifies the term an offering runs in.
type Semester string

const (
	SemesterFall   Semester = "FALL"
	SemesterSpring Semester = "SPRING"
	SemesterSummer Semester = "SUMMER"
)

// OfferingStatus tracks whether an offering accepts enrollments.
type OfferingStatus string

const (
	OfferingStatusOpen      OfferingStatus = "OPEN"
	OfferingStatusClosed    OfferingStatus = "CLOSED"
	OfferingStatusCancelled OfferingStatus = "CANCELLED"
)

// DayOfWeek values accepted in schedule blocks.
var DaysOfWeek = map[string]bool{
	"MONDAY": true, "TUESDAY": true, "WEDNESDAY": true,
	"THURSDAY": true, "FRIDAY": true, "SATURDAY": true, "SUNDAY": true,
}

// ScheduleBlock is one weekly meeting slot. Times are zero-padded
// "HH:MM" strings; the interval is half-open: [start, end).
type ScheduleBlock struct {
	Day       string `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ScheduleBlocks is the JSONB-backed block list on an offering.
type ScheduleBlocks []ScheduleBlock

// Value implements driver.Valuer for JSONB storage.
func (s ScheduleBlocks) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schedule blocks: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner for JSONB storage.
func (s *ScheduleBlocks) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported schedule blocks type %T", src)
	}
	return json.Unmarshal(raw, s)
}

// ClassOffering is a scheduled instance of a course for one semester.
// EnrolledCount never exceeds Capacity; the admission transaction
// guards the pair with a row lock.
type ClassOffering struct {
	ID            string         `db:"id" json:"id"`
	CourseID      string         `db:"course_id" json:"course_id"`
	InstructorID  string         `db:"instructor_id" json:"instructor_id"`
	RoomID        *string        `db:"room_id" json:"room_id,omitempty"`
	Code          string         `db:"code" json:"code"`
	Section       string         `db:"section" json:"section"`
	Semester      Semester       `db:"semester" json:"semester"`
	AcademicYear  int            `db:"academic_year" json:"academic_year"`
	Capacity      int            `db:"capacity" json:"capacity"`
	EnrolledCount int            `db:"enrolled_count" json:"enrolled_count"`
	Schedule      ScheduleBlocks `db:"schedule" json:"schedule"`
	Status        OfferingStatus `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// AvailableSeats returns the remaining capacity.
func (o *ClassOffering) AvailableSeats() int {
	return o.Capacity - o.EnrolledCount
}

// IsFull reports whether every seat is taken.
func (o *ClassOffering) IsFull() bool {
	return o.EnrolledCount >= o.Capacity
}

// OfferingDetail enriches ClassOffering with course and room context.
type OfferingDetail struct {
	ClassOffering
	CourseCode     string  `db:"course_code" json:"course_code"`
	CourseName     string  `db:"course_name" json:"course_name"`
	Credits        int     `db:"credits" json:"credits"`
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
	RoomNumber     *string `db:"room_number" json:"room_number,omitempty"`
}

// OfferingFilter captures search parameters for listing offerings.
type OfferingFilter struct {
	CourseID     string
	InstructorID string
	Semester     Semester
	AcademicYear int
	Status       OfferingStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// OfferingRef identifies an offering inside schedule-conflict error
// details.
type OfferingRef struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}
