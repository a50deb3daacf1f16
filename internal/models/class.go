package models

import "time"

// Class owns sessions. Capacity 1 marks a 1-on-1 class.
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	SubjectID *string   `db:"subject_id" json:"subject_id,omitempty"`
	LevelID   *string   `db:"level_id" json:"level_id,omitempty"`
	CampusID  string    `db:"campus_id" json:"campus_id"`
	RoomID    *string   `db:"room_id" json:"room_id,omitempty"`
	Capacity  int       `db:"capacity" json:"capacity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentStatus tracks whether a student currently holds a seat.
type EnrollmentStatus string

const (
	EnrollmentStatusActive EnrollmentStatus = "ACTIVE"
	EnrollmentStatusLeft   EnrollmentStatus = "LEFT"
)

// Enrollment links a student to a class.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	ClassID   string           `db:"class_id" json:"class_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// ProvisionClassParams carries the inputs for resolving or creating the
// concrete 1-on-1 class during booking approval.
type ProvisionClassParams struct {
	TeacherID string
	StudentID string
	CourseID  string
	SubjectID *string
	LevelID   *string
	CampusID  string
	RoomID    *string
}

// Teacher carries the fields the scheduling core needs. LegacySubjectID is
// the single subject link older records carry instead of rows in
// teacher_subjects.
type Teacher struct {
	ID              string    `db:"id" json:"id"`
	FullName        string    `db:"full_name" json:"full_name"`
	Active          bool      `db:"active" json:"active"`
	LegacySubjectID *string   `db:"legacy_subject_id" json:"legacy_subject_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
