package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mirelo-edu/tutor-api/internal/models"
)

const sessionOccupancyColumns = `s.id, s.class_id, s.start_at, s.end_at, s.teacher_id, s.student_id, s.created_at, s.updated_at, c.teacher_id AS class_teacher_id, c.room_id AS class_room_id, c.name AS class_name`

// SessionRepository manages persistence for class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, class_id, start_at, end_at, teacher_id, student_id, created_at, updated_at FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindOverlappingByTeacher returns sessions occupying the teacher within
// [startAt, endAt), either through a direct teacher override or through the
// owning class's default teacher. ignoreSessionID excludes the session being
// modified and may be empty.
func (r *SessionRepository) FindOverlappingByTeacher(ctx context.Context, teacherID string, startAt, endAt time.Time, ignoreSessionID string) ([]models.SessionOccupancy, error) {
	const query = `SELECT ` + sessionOccupancyColumns + ` FROM sessions s JOIN classes c ON c.id = s.class_id WHERE (s.teacher_id = $1 OR (s.teacher_id IS NULL AND c.teacher_id = $1)) AND s.start_at < $3 AND s.end_at > $2 AND s.id <> $4 ORDER BY s.start_at ASC`
	var sessions []models.SessionOccupancy
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID, startAt, endAt, ignoreSessionID); err != nil {
		return nil, fmt.Errorf("find teacher session overlaps: %w", err)
	}
	return sessions, nil
}

// FindOverlappingByRoom returns sessions of classes assigned to the room
// within [startAt, endAt).
func (r *SessionRepository) FindOverlappingByRoom(ctx context.Context, roomID string, startAt, endAt time.Time, ignoreSessionID string) ([]models.SessionOccupancy, error) {
	const query = `SELECT ` + sessionOccupancyColumns + ` FROM sessions s JOIN classes c ON c.id = s.class_id WHERE c.room_id = $1 AND s.start_at < $3 AND s.end_at > $2 AND s.id <> $4 ORDER BY s.start_at ASC`
	var sessions []models.SessionOccupancy
	if err := r.db.SelectContext(ctx, &sessions, query, roomID, startAt, endAt, ignoreSessionID); err != nil {
		return nil, fmt.Errorf("find room session overlaps: %w", err)
	}
	return sessions, nil
}

// FindOverlappingByStudent returns sessions occupying the student within
// [startAt, endAt), either through a pinned seat or an active enrollment in
// the owning class.
func (r *SessionRepository) FindOverlappingByStudent(ctx context.Context, studentID string, startAt, endAt time.Time, ignoreSessionID string) ([]models.SessionOccupancy, error) {
	const query = `SELECT ` + sessionOccupancyColumns + ` FROM sessions s JOIN classes c ON c.id = s.class_id WHERE (s.student_id = $1 OR (s.student_id IS NULL AND EXISTS (SELECT 1 FROM enrollments e WHERE e.class_id = s.class_id AND e.student_id = $1 AND e.status = 'ACTIVE'))) AND s.start_at < $3 AND s.end_at > $2 AND s.id <> $4 ORDER BY s.start_at ASC`
	var sessions []models.SessionOccupancy
	if err := r.db.SelectContext(ctx, &sessions, query, studentID, startAt, endAt, ignoreSessionID); err != nil {
		return nil, fmt.Errorf("find student session overlaps: %w", err)
	}
	return sessions, nil
}

// FindAtClassTime returns the session at the exact class and time, if one
// exists. Used for the idempotent create guard.
func (r *SessionRepository) FindAtClassTime(ctx context.Context, classID string, startAt, endAt time.Time) (*models.Session, error) {
	const query = `SELECT id, class_id, start_at, end_at, teacher_id, student_id, created_at, updated_at FROM sessions WHERE class_id = $1 AND start_at = $2 AND end_at = $3`
	var session models.Session
	err := r.db.GetContext(ctx, &session, query, classID, startAt, endAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session at class time: %w", err)
	}
	return &session, nil
}

// FindAtClassTimeWithTx is FindAtClassTime inside an existing transaction.
func (r *SessionRepository) FindAtClassTimeWithTx(ctx context.Context, tx *sqlx.Tx, classID string, startAt, endAt time.Time) (*models.Session, error) {
	const query = `SELECT id, class_id, start_at, end_at, teacher_id, student_id, created_at, updated_at FROM sessions WHERE class_id = $1 AND start_at = $2 AND end_at = $3`
	var session models.Session
	err := tx.GetContext(ctx, &session, query, classID, startAt, endAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session at class time: %w", err)
	}
	return &session, nil
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	return r.insertSession(ctx, r.db, session)
}

// CreateWithTx stores a new session using an existing transaction.
func (r *SessionRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, session *models.Session) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	return r.insertSession(ctx, tx, session)
}

// BulkCreate inserts many sessions within one transaction. Used by weekly
// generation.
func (r *SessionRepository) BulkCreate(ctx context.Context, sessions []models.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk create sessions: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i := range sessions {
		if err = r.insertSession(ctx, tx, &sessions[i]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk create sessions: %w", err)
	}
	return nil
}

func (r *SessionRepository) insertSession(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO sessions (id, class_id, start_at, end_at, teacher_id, student_id, created_at, updated_at) VALUES (:id, :class_id, :start_at, :end_at, :teacher_id, :student_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateTeacherWithTx sets the session's teacher override inside an existing
// transaction.
func (r *SessionRepository) UpdateTeacherWithTx(ctx context.Context, tx *sqlx.Tx, sessionID string, teacherID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET teacher_id = $1, updated_at = $2 WHERE id = $3`, teacherID, time.Now().UTC(), sessionID); err != nil {
		return fmt.Errorf("update session teacher: %w", err)
	}
	return nil
}

// InsertTeacherChangeWithTx records a reassignment audit row inside the same
// transaction as the session update.
func (r *SessionRepository) InsertTeacherChangeWithTx(ctx context.Context, tx *sqlx.Tx, change *models.SessionTeacherChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO session_teacher_changes (id, session_id, old_teacher_id, new_teacher_id, changed_by, created_at) VALUES (:id, :session_id, :old_teacher_id, :new_teacher_id, :changed_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, change); err != nil {
		return fmt.Errorf("insert session teacher change: %w", err)
	}
	return nil
}

// Delete removes a session by id.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
