package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// Attendance is a per-seat record for a session. An EXCUSED status vacates
// the seat for conflict purposes.
type Attendance struct {
	ID            string           `db:"id" json:"id"`
	SessionID     string           `db:"session_id" json:"session_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	Status        AttendanceStatus `db:"status" json:"status"`
	ExcusedCharge bool             `db:"excused_charge" json:"excused_charge"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}
