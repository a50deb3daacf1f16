package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mirelo-edu/tutor-api/internal/models"
)

// ErrEnrollmentConflict is returned when the student already takes the same
// course through a different class.
var ErrEnrollmentConflict = errors.New("student enrolled in course via another class")

// ClassRepository provisions classes for booking approval.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID loads a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, teacher_id, course_id, subject_id, level_id, campus_id, room_id, capacity, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// GetOrCreateOneOnOneClass resolves the capacity-1 class for (teacher,
// student, course), creating it when absent. It fails with
// ErrEnrollmentConflict when the student already takes the course through
// another class. Idempotent.
func (r *ClassRepository) GetOrCreateOneOnOneClass(ctx context.Context, params models.ProvisionClassParams) (*models.Class, error) {
	const findQuery = `SELECT c.id, c.name, c.teacher_id, c.course_id, c.subject_id, c.level_id, c.campus_id, c.room_id, c.capacity, c.created_at, c.updated_at FROM classes c JOIN enrollments e ON e.class_id = c.id AND e.status = 'ACTIVE' WHERE c.teacher_id = $1 AND c.course_id = $2 AND c.capacity = 1 AND e.student_id = $3`
	var existing models.Class
	err := r.db.GetContext(ctx, &existing, findQuery, params.TeacherID, params.CourseID, params.StudentID)
	if err == nil {
		return &existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("find one-on-one class: %w", err)
	}

	const conflictQuery = `SELECT EXISTS (SELECT 1 FROM enrollments e JOIN classes c ON c.id = e.class_id WHERE e.student_id = $1 AND e.status = 'ACTIVE' AND c.course_id = $2 AND NOT (c.teacher_id = $3 AND c.capacity = 1))`
	var conflicting bool
	if err := r.db.GetContext(ctx, &conflicting, conflictQuery, params.StudentID, params.CourseID, params.TeacherID); err != nil {
		return nil, fmt.Errorf("check enrollment conflict: %w", err)
	}
	if conflicting {
		return nil, ErrEnrollmentConflict
	}

	now := time.Now().UTC()
	class := models.Class{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("1-on-1 %s/%s", params.TeacherID, params.StudentID),
		TeacherID: params.TeacherID,
		CourseID:  params.CourseID,
		SubjectID: params.SubjectID,
		LevelID:   params.LevelID,
		CampusID:  params.CampusID,
		RoomID:    params.RoomID,
		Capacity:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	const insertQuery = `INSERT INTO classes (id, name, teacher_id, course_id, subject_id, level_id, campus_id, room_id, capacity, created_at, updated_at) VALUES (:id, :name, :teacher_id, :course_id, :subject_id, :level_id, :campus_id, :room_id, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, insertQuery, &class); err != nil {
		return nil, fmt.Errorf("create one-on-one class: %w", err)
	}
	return &class, nil
}
