package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mirelo-edu/tutor-api/internal/models"
)

// AppointmentRepository manages standalone 1-on-1 bookings.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs an AppointmentRepository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// FindByID loads an appointment by id.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	const query = `SELECT id, teacher_id, student_id, start_at, end_at, created_at FROM appointments WHERE id = $1`
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		return nil, err
	}
	return &appt, nil
}

// FindOverlappingByTeacher returns the teacher's appointments intersecting
// [startAt, endAt).
func (r *AppointmentRepository) FindOverlappingByTeacher(ctx context.Context, teacherID string, startAt, endAt time.Time) ([]models.Appointment, error) {
	const query = `SELECT id, teacher_id, student_id, start_at, end_at, created_at FROM appointments WHERE teacher_id = $1 AND start_at < $3 AND end_at > $2 ORDER BY start_at ASC`
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, teacherID, startAt, endAt); err != nil {
		return nil, fmt.Errorf("find teacher appointment overlaps: %w", err)
	}
	return appts, nil
}

// FindOverlappingByStudent returns the student's appointments intersecting
// [startAt, endAt).
func (r *AppointmentRepository) FindOverlappingByStudent(ctx context.Context, studentID string, startAt, endAt time.Time) ([]models.Appointment, error) {
	const query = `SELECT id, teacher_id, student_id, start_at, end_at, created_at FROM appointments WHERE student_id = $1 AND start_at < $3 AND end_at > $2 ORDER BY start_at ASC`
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, studentID, startAt, endAt); err != nil {
		return nil, fmt.Errorf("find student appointment overlaps: %w", err)
	}
	return appts, nil
}

// Create stores a new appointment.
func (r *AppointmentRepository) Create(ctx context.Context, appt *models.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO appointments (id, teacher_id, student_id, start_at, end_at, created_at) VALUES (:id, :teacher_id, :student_id, :start_at, :end_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, appt); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// Delete removes an appointment by id.
func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return nil
}
