package models

import "time"

// BookingRequestStatus is the admission state machine's state.
type BookingRequestStatus string

const (
	BookingStatusPending   BookingRequestStatus = "PENDING"
	BookingStatusApproved  BookingRequestStatus = "APPROVED"
	BookingStatusRejected  BookingRequestStatus = "REJECTED"
	BookingStatusCancelled BookingRequestStatus = "CANCELLED"
)

// Valid returns true when the status is a supported value.
func (s BookingRequestStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusApproved, BookingStatusRejected, BookingStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state admits no further transitions.
func (s BookingRequestStatus) Terminal() bool {
	return s != BookingStatusPending
}

// BookingLink defines the window and granularity an external student may
// browse for self-service booking.
type BookingLink struct {
	ID                string    `db:"id" json:"id"`
	StudentID         string    `db:"student_id" json:"student_id"`
	StartDate         time.Time `db:"start_date" json:"start_date"`
	EndDate           time.Time `db:"end_date" json:"end_date"`
	DurationMin       int       `db:"duration_min" json:"duration_min"`
	SlotStepMin       int       `db:"slot_step_min" json:"slot_step_min"`
	OnlySelectedSlots bool      `db:"only_selected_slots" json:"only_selected_slots"`
	Active            bool      `db:"active" json:"active"`
	CourseID          string    `db:"course_id" json:"course_id"`
	SubjectID         *string   `db:"subject_id" json:"subject_id,omitempty"`
	CampusID          string    `db:"campus_id" json:"campus_id"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the link's window has fully passed at the given
// instant.
func (l BookingLink) Expired(now time.Time) bool {
	return now.After(l.EndDate.AddDate(0, 0, 1))
}

// BookingLinkSlot is one entry of a link's preconfigured slot allow-list.
type BookingLinkSlot struct {
	ID        string    `db:"id" json:"id"`
	LinkID    string    `db:"link_id" json:"link_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	StartAt   time.Time `db:"start_at" json:"start_at"`
	EndAt     time.Time `db:"end_at" json:"end_at"`
}

// BookingRequest is a student's claim on a slot, pending admin review.
type BookingRequest struct {
	ID          string               `db:"id" json:"id"`
	LinkID      string               `db:"link_id" json:"link_id"`
	StudentID   string               `db:"student_id" json:"student_id"`
	TeacherID   string               `db:"teacher_id" json:"teacher_id"`
	StartAt     time.Time            `db:"start_at" json:"start_at"`
	EndAt       time.Time            `db:"end_at" json:"end_at"`
	Status      BookingRequestStatus `db:"status" json:"status"`
	StudentNote *string              `db:"student_note" json:"student_note,omitempty"`
	AdminNote   *string              `db:"admin_note" json:"admin_note,omitempty"`
	SessionID   *string              `db:"session_id" json:"session_id,omitempty"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updated_at"`
}

// BookingSlotLock is the uniqueness row that adjudicates races between
// concurrent submissions for the same (teacher, start, end). It exists iff a
// PENDING or APPROVED request holds the slot.
type BookingSlotLock struct {
	ID        string    `db:"id" json:"id"`
	RequestID string    `db:"request_id" json:"request_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	StartAt   time.Time `db:"start_at" json:"start_at"`
	EndAt     time.Time `db:"end_at" json:"end_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Slot is one bookable candidate offered to a student.
type Slot struct {
	TeacherID   string    `json:"teacher_id"`
	TeacherName string    `json:"teacher_name"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

// ClaimedRange is a (teacher, start, end) triple held by a live booking
// request.
type ClaimedRange struct {
	TeacherID string    `db:"teacher_id"`
	StartAt   time.Time `db:"start_at"`
	EndAt     time.Time `db:"end_at"`
}

// BookingRequestFilter narrows admin request listings.
type BookingRequestFilter struct {
	LinkID    string
	StudentID string
	TeacherID string
	Status    *BookingRequestStatus
	Page      int
	PageSize  int
}
