package models

import "time"

// Occupancy kinds referenced by conflict details.
const (
	OccupantKindSession     = "SESSION"
	OccupantKindAppointment = "APPOINTMENT"
)

// BookingProposal is the input to the conflict detector. TeacherID, StartAt
// and EndAt are always required; the optional fields switch on extra checks.
type BookingProposal struct {
	TeacherID string
	StartAt   time.Time
	EndAt     time.Time

	// ClassID enables the exact-duplicate session guard.
	ClassID string
	// RoomID enables the room-overlap scan.
	RoomID *string
	// StudentID enables the student-overlap scan and scopes the excused
	// exclusion to that student's seat.
	StudentID *string
	// IgnoreSessionID excludes the session being modified, for reassignment
	// flows.
	IgnoreSessionID string
}

// ConflictDetail identifies the existing occupancy that blocks a proposal.
type ConflictDetail struct {
	Resource      string    `json:"resource"`
	OccupantKind  string    `json:"occupant_kind"`
	ConflictingID string    `json:"conflicting_id"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
}

// ConflictError is the structured rejection the detector returns. Code maps
// onto the scheduling error taxonomy; AllowedRanges is populated for
// availability failures so operators can see the teacher's actual day.
type ConflictError struct {
	Code          string          `json:"code"`
	Message       string          `json:"message"`
	Detail        *ConflictDetail `json:"detail,omitempty"`
	AllowedRanges []TimeRange     `json:"allowed_ranges,omitempty"`
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
