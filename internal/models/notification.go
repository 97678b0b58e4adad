package models

import "time"

// NotificationType enumerates the events the core emits.
type NotificationType string

const (
	NotificationEnrollmentConfirmed NotificationType = "ENROLLMENT_CONFIRMED"
	NotificationEnrollmentDropped   NotificationType = "ENROLLMENT_DROPPED"
	NotificationGradeFinalized      NotificationType = "GRADE_FINALIZED"
)

// Notification is a persisted in-app message for one user.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// NotificationEvent is the fire-and-forget payload handed to the
// dispatch queue after a successful admission, drop, or finalization.
type NotificationEvent struct {
	Type    NotificationType `json:"type"`
	UserID  string           `json:"user_id"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
}

// NotificationFilter provides filters for listing notifications.
type NotificationFilter struct {
	UserID   string
	Unread   *bool
	Page     int
	PageSize int
}
