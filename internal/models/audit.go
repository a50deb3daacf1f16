package models

import "time"

// Audit actions emitted by the scheduling core.
const (
	AuditActionBookingSubmit      = "BOOKING_SUBMIT"
	AuditActionBookingApprove     = "BOOKING_APPROVE"
	AuditActionBookingReject      = "BOOKING_REJECT"
	AuditActionBookingCancel      = "BOOKING_CANCEL"
	AuditActionSessionCreate      = "SESSION_CREATE"
	AuditActionSessionCancel      = "SESSION_CANCEL"
	AuditActionTeacherReassign    = "TEACHER_REASSIGN"
	AuditActionAvailabilityClear  = "AVAILABILITY_CLEAR"
	AuditActionAppointmentCreate  = "APPOINTMENT_CREATE"
	AuditActionAvailabilityChange = "AVAILABILITY_CHANGE"
)

// AuditEvent is a fire-and-forget audit trail record.
type AuditEvent struct {
	ID         string    `db:"id" json:"id"`
	Actor      string    `db:"actor" json:"actor"`
	Module     string    `db:"module" json:"module"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Meta       []byte    `db:"meta" json:"meta,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Pagination describes list metadata shared across endpoints.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
