package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mirelo-edu/tutor-api/internal/models"
)

// ErrSlotTaken is returned when the slot-lock uniqueness constraint rejects
// an admission. It is the expected outcome of two submissions racing for the
// same slot, not a datastore failure.
var ErrSlotTaken = errors.New("slot lock already held")

const pqUniqueViolation = "23505"

// BookingRepository persists booking links, requests and slot locks.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// FindLink loads a booking link by id.
func (r *BookingRepository) FindLink(ctx context.Context, id string) (*models.BookingLink, error) {
	const query = `SELECT id, student_id, start_date, end_date, duration_min, slot_step_min, only_selected_slots, active, course_id, subject_id, campus_id, created_at FROM booking_links WHERE id = $1`
	var link models.BookingLink
	if err := r.db.GetContext(ctx, &link, query, id); err != nil {
		return nil, err
	}
	return &link, nil
}

// ListLinkTeacherIDs returns the teachers offered by a link.
func (r *BookingRepository) ListLinkTeacherIDs(ctx context.Context, linkID string) ([]string, error) {
	const query = `SELECT teacher_id FROM booking_link_teachers WHERE link_id = $1 ORDER BY teacher_id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, linkID); err != nil {
		return nil, fmt.Errorf("list link teachers: %w", err)
	}
	return ids, nil
}

// ListLinkSlots returns a link's preconfigured allow-list.
func (r *BookingRepository) ListLinkSlots(ctx context.Context, linkID string) ([]models.BookingLinkSlot, error) {
	const query = `SELECT id, link_id, teacher_id, start_at, end_at FROM booking_link_slots WHERE link_id = $1 ORDER BY start_at ASC`
	var slots []models.BookingLinkSlot
	if err := r.db.SelectContext(ctx, &slots, query, linkID); err != nil {
		return nil, fmt.Errorf("list link slots: %w", err)
	}
	return slots, nil
}

// ListClaims returns the slot-lock ranges held for the given teachers within
// [from, to). Locks exist exactly for PENDING and APPROVED requests.
func (r *BookingRepository) ListClaims(ctx context.Context, teacherIDs []string, from, to time.Time) ([]models.ClaimedRange, error) {
	if len(teacherIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT teacher_id, start_at, end_at FROM booking_slot_locks WHERE teacher_id IN (?) AND start_at < ? AND end_at > ?`, teacherIDs, to, from)
	if err != nil {
		return nil, fmt.Errorf("build claims query: %w", err)
	}
	query = r.db.Rebind(query)

	var claims []models.ClaimedRange
	if err := r.db.SelectContext(ctx, &claims, query, args...); err != nil {
		return nil, fmt.Errorf("list slot claims: %w", err)
	}
	return claims, nil
}

// FindRequest loads a booking request by id.
func (r *BookingRepository) FindRequest(ctx context.Context, id string) (*models.BookingRequest, error) {
	const query = `SELECT id, link_id, student_id, teacher_id, start_at, end_at, status, student_note, admin_note, session_id, created_at, updated_at FROM booking_requests WHERE id = $1`
	var req models.BookingRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListRequests returns booking requests matching the filter with a total
// count.
func (r *BookingRepository) ListRequests(ctx context.Context, filter models.BookingRequestFilter) ([]models.BookingRequest, int, error) {
	base := "FROM booking_requests WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.LinkID != "" {
		conditions = append(conditions, fmt.Sprintf("link_id = $%d", len(args)+1))
		args = append(args, filter.LinkID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, link_id, student_id, teacher_id, start_at, end_at, status, student_note, admin_note, session_id, created_at, updated_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d", base, size, offset)
	var requests []models.BookingRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list booking requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count booking requests: %w", err)
	}

	return requests, total, nil
}

// CreatePending inserts the request and its slot lock in one transaction.
// The unique constraint on (teacher_id, start_at, end_at) is what actually
// adjudicates concurrent submissions: a violation on the lock insert rolls
// back the request row too and surfaces as ErrSlotTaken.
func (r *BookingRepository) CreatePending(ctx context.Context, req *models.BookingRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	req.Status = models.BookingStatusPending

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submit booking request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, `INSERT INTO booking_requests (id, link_id, student_id, teacher_id, start_at, end_at, status, student_note, created_at, updated_at) VALUES (:id, :link_id, :student_id, :teacher_id, :start_at, :end_at, :status, :student_note, :created_at, :updated_at)`, req); err != nil {
		err = fmt.Errorf("insert booking request: %w", err)
		return err
	}

	lock := models.BookingSlotLock{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		TeacherID: req.TeacherID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		CreatedAt: now,
	}
	if _, err = tx.NamedExecContext(ctx, `INSERT INTO booking_slot_locks (id, request_id, teacher_id, start_at, end_at, created_at) VALUES (:id, :request_id, :teacher_id, :start_at, :end_at, :created_at)`, &lock); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			err = ErrSlotTaken
			return err
		}
		err = fmt.Errorf("insert slot lock: %w", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit submit booking request: %w", err)
	}
	return nil
}

// ApproveWithTx marks a PENDING request APPROVED and links the materialized
// session, inside the caller's transaction. Returns false when the request
// was no longer pending, which makes concurrent approvals lose cleanly.
func (r *BookingRepository) ApproveWithTx(ctx context.Context, tx *sqlx.Tx, requestID, sessionID string, adminNote *string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE booking_requests SET status = $1, session_id = $2, admin_note = $3, updated_at = $4 WHERE id = $5 AND status = $6`,
		models.BookingStatusApproved, sessionID, adminNote, time.Now().UTC(), requestID, models.BookingStatusPending)
	if err != nil {
		return false, fmt.Errorf("approve booking request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve booking request: %w", err)
	}
	return affected > 0, nil
}

// Close transitions a PENDING request to REJECTED or CANCELLED and releases
// its slot lock in one transaction, freeing the key for future admissions.
// Returns false when the request was no longer pending.
func (r *BookingRepository) Close(ctx context.Context, requestID string, status models.BookingRequestStatus, note *string) (bool, error) {
	if status != models.BookingStatusRejected && status != models.BookingStatusCancelled {
		return false, fmt.Errorf("close booking request: unsupported status %s", status)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin close booking request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE booking_requests SET status = $1, admin_note = COALESCE($2, admin_note), updated_at = $3 WHERE id = $4 AND status = $5`,
		status, note, time.Now().UTC(), requestID, models.BookingStatusPending)
	if err != nil {
		err = fmt.Errorf("close booking request: %w", err)
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		err = fmt.Errorf("close booking request: %w", err)
		return false, err
	}
	if affected == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM booking_slot_locks WHERE request_id = $1`, requestID); err != nil {
		err = fmt.Errorf("release slot lock: %w", err)
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit close booking request: %w", err)
	}
	return true, nil
}
