package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mirelo-edu/tutor-api/internal/models"
)

// AvailabilityRepository persists weekly templates and date overrides.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs an AvailabilityRepository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListWeekly returns a teacher's full weekly template ordered by weekday and
// start minute.
func (r *AvailabilityRepository) ListWeekly(ctx context.Context, teacherID string) ([]models.WeeklyAvailability, error) {
	const query = `SELECT id, teacher_id, weekday, start_min, end_min, created_at FROM weekly_availability WHERE teacher_id = $1 ORDER BY weekday ASC, start_min ASC`
	var rules []models.WeeklyAvailability
	if err := r.db.SelectContext(ctx, &rules, query, teacherID); err != nil {
		return nil, fmt.Errorf("list weekly availability: %w", err)
	}
	return rules, nil
}

// ListWeeklyByDay returns the template rows for one weekday.
func (r *AvailabilityRepository) ListWeeklyByDay(ctx context.Context, teacherID string, weekday int) ([]models.WeeklyAvailability, error) {
	const query = `SELECT id, teacher_id, weekday, start_min, end_min, created_at FROM weekly_availability WHERE teacher_id = $1 AND weekday = $2 ORDER BY start_min ASC`
	var rules []models.WeeklyAvailability
	if err := r.db.SelectContext(ctx, &rules, query, teacherID, weekday); err != nil {
		return nil, fmt.Errorf("list weekly availability by day: %w", err)
	}
	return rules, nil
}

// CreateWeekly inserts a weekly rule.
func (r *AvailabilityRepository) CreateWeekly(ctx context.Context, rule *models.WeeklyAvailability) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO weekly_availability (id, teacher_id, weekday, start_min, end_min, created_at) VALUES (:id, :teacher_id, :weekday, :start_min, :end_min, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create weekly availability: %w", err)
	}
	return nil
}

// DeleteWeekly removes a weekly rule owned by the teacher.
func (r *AvailabilityRepository) DeleteWeekly(ctx context.Context, teacherID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM weekly_availability WHERE id = $1 AND teacher_id = $2`, id, teacherID)
	if err != nil {
		return false, fmt.Errorf("delete weekly availability: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete weekly availability: %w", err)
	}
	return affected > 0, nil
}

// ListDate returns a day's override rows ordered by start minute.
func (r *AvailabilityRepository) ListDate(ctx context.Context, teacherID string, date time.Time) ([]models.DateAvailability, error) {
	const query = `SELECT id, teacher_id, date, start_min, end_min, created_at FROM date_availability WHERE teacher_id = $1 AND date = $2 ORDER BY start_min ASC`
	var rows []models.DateAvailability
	if err := r.db.SelectContext(ctx, &rows, query, teacherID, date); err != nil {
		return nil, fmt.Errorf("list date availability: %w", err)
	}
	return rows, nil
}

// ReplaceDate swaps a day's override rows for the given ranges in one
// transaction. Passing no ranges leaves the day with zero rows, which means
// the weekly template applies again.
func (r *AvailabilityRepository) ReplaceDate(ctx context.Context, teacherID string, date time.Time, ranges []models.TimeRange) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace date availability: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM date_availability WHERE teacher_id = $1 AND date = $2`, teacherID, date); err != nil {
		return fmt.Errorf("clear date availability: %w", err)
	}

	now := time.Now().UTC()
	for _, rng := range ranges {
		row := models.DateAvailability{
			ID:        uuid.NewString(),
			TeacherID: teacherID,
			Date:      date,
			StartMin:  rng.StartMin,
			EndMin:    rng.EndMin,
			CreatedAt: now,
		}
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO date_availability (id, teacher_id, date, start_min, end_min, created_at) VALUES (:id, :teacher_id, :date, :start_min, :end_min, :created_at)`, &row); err != nil {
			return fmt.Errorf("insert date availability: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace date availability: %w", err)
	}
	return nil
}

// ClearDate removes a day's override rows.
func (r *AvailabilityRepository) ClearDate(ctx context.Context, teacherID string, date time.Time) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM date_availability WHERE teacher_id = $1 AND date = $2`, teacherID, date); err != nil {
		return fmt.Errorf("clear date availability: %w", err)
	}
	return nil
}

// ListOverriddenDates returns the distinct dates in [from, to] that already
// carry override rows.
func (r *AvailabilityRepository) ListOverriddenDates(ctx context.Context, teacherID string, from, to time.Time) ([]time.Time, error) {
	const query = `SELECT DISTINCT date FROM date_availability WHERE teacher_id = $1 AND date >= $2 AND date <= $3 ORDER BY date ASC`
	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list overridden dates: %w", err)
	}
	return dates, nil
}

// BulkInsertDate inserts many override rows within a transaction. Used by
// month materialization.
func (r *AvailabilityRepository) BulkInsertDate(ctx context.Context, rows []models.DateAvailability) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk insert date availability: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for i := range rows {
		row := rows[i]
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO date_availability (id, teacher_id, date, start_min, end_min, created_at) VALUES (:id, :teacher_id, :date, :start_min, :end_min, :created_at)`, &row); err != nil {
			return fmt.Errorf("bulk insert date availability: %w", err)
		}
		rows[i] = row
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk insert date availability: %w", err)
	}
	return nil
}
