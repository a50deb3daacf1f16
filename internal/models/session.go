package models

import "time"

// Session is a scheduled occurrence of a class. TeacherID overrides the
// owning class's default teacher when set; StudentID pins a seat and is only
// meaningful for capacity-1 classes.
type Session struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	StartAt   time.Time `db:"start_at" json:"start_at"`
	EndAt     time.Time `db:"end_at" json:"end_at"`
	TeacherID *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	StudentID *string   `db:"student_id" json:"student_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EffectiveTeacherID resolves the session's teacher, falling back to the
// class default.
func (s Session) EffectiveTeacherID(classTeacherID string) string {
	if s.TeacherID != nil && *s.TeacherID != "" {
		return *s.TeacherID
	}
	return classTeacherID
}

// SessionOccupancy is a session joined with the owning class's fields needed
// for conflict scans.
type SessionOccupancy struct {
	Session
	ClassTeacherID string  `db:"class_teacher_id"`
	ClassRoomID    *string `db:"class_room_id"`
	ClassName      string  `db:"class_name"`
}

// SessionOccupant is one student's seat in a session with an optional
// attendance status. A missing status means no attendance was recorded yet.
type SessionOccupant struct {
	SessionID string            `db:"session_id"`
	StudentID string            `db:"student_id"`
	Status    *AttendanceStatus `db:"status"`
}

// Excused reports whether this seat was vacated.
func (o SessionOccupant) Excused() bool {
	return o.Status != nil && *o.Status == AttendanceStatusExcused
}

// Appointment is a standalone 1-on-1 booking not tied to a recurring class.
type Appointment struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	StartAt   time.Time `db:"start_at" json:"start_at"`
	EndAt     time.Time `db:"end_at" json:"end_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SessionTeacherChange records a teacher reassignment for auditability. It is
// written in the same transaction as the session update.
type SessionTeacherChange struct {
	ID           string    `db:"id" json:"id"`
	SessionID    string    `db:"session_id" json:"session_id"`
	OldTeacherID *string   `db:"old_teacher_id" json:"old_teacher_id,omitempty"`
	NewTeacherID string    `db:"new_teacher_id" json:"new_teacher_id"`
	ChangedBy    string    `db:"changed_by" json:"changed_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
