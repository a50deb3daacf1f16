package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mirelo-edu/tutor-api/internal/models"
)

// EnrollmentRepository manages class seats.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// UpsertActiveWithTx ensures the student holds an active seat in the class,
// reactivating a previous enrollment when one exists. Runs inside the
// caller's transaction.
func (r *EnrollmentRepository) UpsertActiveWithTx(ctx context.Context, tx *sqlx.Tx, classID, studentID string) (*models.Enrollment, error) {
	now := time.Now().UTC()
	enrollment := models.Enrollment{
		ID:        uuid.NewString(),
		ClassID:   classID,
		StudentID: studentID,
		Status:    models.EnrollmentStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	const query = `INSERT INTO enrollments (id, class_id, student_id, status, created_at, updated_at) VALUES (:id, :class_id, :student_id, :status, :created_at, :updated_at) ON CONFLICT (class_id, student_id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, query, &enrollment); err != nil {
		return nil, fmt.Errorf("upsert enrollment: %w", err)
	}
	return &enrollment, nil
}

// ListActiveByClass returns a class's active enrollments.
func (r *EnrollmentRepository) ListActiveByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	const query = `SELECT id, class_id, student_id, status, created_at, updated_at FROM enrollments WHERE class_id = $1 AND status = 'ACTIVE' ORDER BY created_at ASC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, classID); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}
