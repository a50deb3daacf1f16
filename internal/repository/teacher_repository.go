package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mirelo-edu/tutor-api/internal/models"
)

// TeacherRepository reads teacher records and subject capabilities.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	const query = `SELECT id, full_name, active, legacy_subject_id, created_at, updated_at FROM teachers WHERE id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ListByIDs fetches teachers in bulk, ordered by name.
func (r *TeacherRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Teacher, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, full_name, active, legacy_subject_id, created_at, updated_at FROM teachers WHERE id IN (?) ORDER BY full_name ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("build teachers query: %w", err)
	}
	query = r.db.Rebind(query)

	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, fmt.Errorf("list teachers by ids: %w", err)
	}
	return teachers, nil
}

// TeachesSubject reports whether the teacher may teach the subject, through
// a direct subject assignment or the legacy single-subject link.
func (r *TeacherRepository) TeachesSubject(ctx context.Context, teacherID, subjectID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM teacher_subjects ts WHERE ts.teacher_id = $1 AND ts.subject_id = $2) OR EXISTS (SELECT 1 FROM teachers t WHERE t.id = $1 AND t.legacy_subject_id = $2)`
	var eligible bool
	if err := r.db.GetContext(ctx, &eligible, query, teacherID, subjectID); err != nil {
		return false, fmt.Errorf("check teacher subject: %w", err)
	}
	return eligible, nil
}
