package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mirelo-edu/tutor-api/internal/models"
)

// AttendanceRepository reads per-seat attendance for conflict evaluation.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ListOccupants returns every occupied seat for the given sessions with its
// attendance status, if recorded. Capacity-1 sessions contribute their pinned
// student; other sessions contribute the owning class's active enrollments.
func (r *AttendanceRepository) ListOccupants(ctx context.Context, sessionIDs []string) ([]models.SessionOccupant, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	const raw = `
		SELECT s.id AS session_id, s.student_id AS student_id, a.status
		FROM sessions s
		LEFT JOIN attendances a ON a.session_id = s.id AND a.student_id = s.student_id
		WHERE s.id IN (?) AND s.student_id IS NOT NULL
		UNION ALL
		SELECT s.id AS session_id, e.student_id AS student_id, a.status
		FROM sessions s
		JOIN enrollments e ON e.class_id = s.class_id AND e.status = 'ACTIVE'
		LEFT JOIN attendances a ON a.session_id = s.id AND a.student_id = e.student_id
		WHERE s.id IN (?) AND s.student_id IS NULL`

	query, args, err := sqlx.In(raw, sessionIDs, sessionIDs)
	if err != nil {
		return nil, fmt.Errorf("build occupants query: %w", err)
	}
	query = r.db.Rebind(query)

	var occupants []models.SessionOccupant
	if err := r.db.SelectContext(ctx, &occupants, query, args...); err != nil {
		return nil, fmt.Errorf("list session occupants: %w", err)
	}
	return occupants, nil
}
