package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mirelo-edu/tutor-api/internal/models"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
)

type sessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	BulkCreate(ctx context.Context, sessions []models.Session) error
	UpdateTeacherWithTx(ctx context.Context, tx *sqlx.Tx, sessionID string, teacherID string) error
	InsertTeacherChangeWithTx(ctx context.Context, tx *sqlx.Tx, change *models.SessionTeacherChange) error
	Delete(ctx context.Context, id string) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type enrollmentReader interface {
	ListActiveByClass(ctx context.Context, classID string) ([]models.Enrollment, error)
}

type appointmentWriter interface {
	Create(ctx context.Context, appt *models.Appointment) error
}

// CreateSessionRequest schedules one occurrence for a class.
type CreateSessionRequest struct {
	ClassID   string    `json:"class_id" validate:"required"`
	StartAt   time.Time `json:"start_at" validate:"required"`
	EndAt     time.Time `json:"end_at" validate:"required"`
	TeacherID *string   `json:"teacher_id,omitempty"`
}

// GenerateWeeklyRequest materializes a class's weekly meeting pattern across a
// date window.
type GenerateWeeklyRequest struct {
	ClassID  string    `json:"class_id" validate:"required"`
	Weekday  int       `json:"weekday" validate:"min=0,max=6"`
	StartMin int       `json:"start_min" validate:"min=0,max=1439"`
	EndMin   int       `json:"end_min" validate:"min=1,max=1440"`
	FromDate time.Time `json:"from_date" validate:"required"`
	ToDate   time.Time `json:"to_date" validate:"required"`
}

// SkippedOccurrence reports one candidate the weekly generator dropped.
type SkippedOccurrence struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	Reason  string    `json:"reason"`
}

// GenerateWeeklyResult is the generator's outcome report.
type GenerateWeeklyResult struct {
	Created []models.Session    `json:"created"`
	Skipped []SkippedOccurrence `json:"skipped"`
}

// CreateAppointmentRequest books a standalone 1-on-1 meeting.
type CreateAppointmentRequest struct {
	TeacherID string    `json:"teacher_id" validate:"required"`
	StudentID string    `json:"student_id" validate:"required"`
	StartAt   time.Time `json:"start_at" validate:"required"`
	EndAt     time.Time `json:"end_at" validate:"required"`
}

// SessionService covers the admin-side scheduling operations. All of them
// funnel through the conflict detector instead of carrying their own overlap
// logic.
type SessionService struct {
	sessions     sessionRepository
	classes      classReader
	enrollments  enrollmentReader
	appointments appointmentWriter
	conflicts    conflictChecker
	ledger       PackageLedger
	tx           txRunner
	audit        *AuditService
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewSessionService instantiates SessionService.
func NewSessionService(sessions sessionRepository, classes classReader, enrollments enrollmentReader, appointments appointmentWriter, conflicts conflictChecker, ledger PackageLedger, tx txRunner, audit *AuditService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:     sessions,
		classes:      classes,
		enrollments:  enrollments,
		appointments: appointments,
		conflicts:    conflicts,
		ledger:       ledger,
		tx:           tx,
		audit:        audit,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
	}
}

// CreateSession schedules one session for a class after clearing all conflict
// dimensions. For capacity-1 classes the enrolled student's calendar is
// checked too.
func (s *SessionService) CreateSession(ctx context.Context, req CreateSessionRequest, actor string) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session request")
	}

	class, err := s.loadClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}

	teacherID := class.TeacherID
	if req.TeacherID != nil && *req.TeacherID != "" {
		teacherID = *req.TeacherID
	}
	if class.SubjectID != nil {
		if err := s.conflicts.EnsureEligible(ctx, teacherID, *class.SubjectID); err != nil {
			return nil, err
		}
	}

	proposal := models.BookingProposal{
		TeacherID: teacherID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		ClassID:   class.ID,
		RoomID:    class.RoomID,
	}
	studentID, err := s.pinnedStudent(ctx, class)
	if err != nil {
		return nil, err
	}
	proposal.StudentID = studentID

	if err := s.conflicts.Check(ctx, proposal); err != nil {
		return nil, err
	}

	session := &models.Session{
		ClassID:   class.ID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		TeacherID: req.TeacherID,
		StudentID: studentID,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.audit.Record(ctx, actor, "schedule", models.AuditActionSessionCreate, "session", session.ID, map[string]interface{}{
		"class_id": class.ID,
		"start_at": req.StartAt,
		"end_at":   req.EndAt,
	})
	return session, nil
}

// GenerateWeekly walks the window day by day, keeps the dates matching the
// weekly pattern, drops conflicted candidates into the skip report and bulk
// inserts the rest. A window with nothing creatable is not an error.
func (s *SessionService) GenerateWeekly(ctx context.Context, req GenerateWeeklyRequest, actor string) (*GenerateWeeklyResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation request")
	}
	if req.EndMin <= req.StartMin {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "")
	}
	from := truncateToDay(req.FromDate)
	to := truncateToDay(req.ToDate)
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "window end precedes window start")
	}

	class, err := s.loadClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	studentID, err := s.pinnedStudent(ctx, class)
	if err != nil {
		return nil, err
	}

	result := &GenerateWeeklyResult{}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if int(day.Weekday()) != req.Weekday {
			continue
		}
		startAt := day.Add(time.Duration(req.StartMin) * time.Minute)
		endAt := day.Add(time.Duration(req.EndMin) * time.Minute)

		proposal := models.BookingProposal{
			TeacherID: class.TeacherID,
			StartAt:   startAt,
			EndAt:     endAt,
			ClassID:   class.ID,
			RoomID:    class.RoomID,
			StudentID: studentID,
		}
		if err := s.conflicts.Check(ctx, proposal); err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) && appErr.Status < 500 {
				result.Skipped = append(result.Skipped, SkippedOccurrence{
					StartAt: startAt,
					EndAt:   endAt,
					Reason:  appErr.Message,
				})
				continue
			}
			return nil, err
		}
		result.Created = append(result.Created, models.Session{
			ClassID:   class.ID,
			StartAt:   startAt,
			EndAt:     endAt,
			StudentID: studentID,
		})
	}

	if len(result.Created) > 0 {
		if err := s.sessions.BulkCreate(ctx, result.Created); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create sessions")
		}
	}

	s.audit.Record(ctx, actor, "schedule", models.AuditActionSessionCreate, "class", class.ID, map[string]interface{}{
		"generated": len(result.Created),
		"skipped":   len(result.Skipped),
	})
	return result, nil
}

// ReassignTeacher swaps a session's teacher. The conflict check is teacher
// wide and ignores the session being moved, and the override plus the change
// record land in one transaction.
func (s *SessionService) ReassignTeacher(ctx context.Context, sessionID, newTeacherID, actor string) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	class, err := s.loadClass(ctx, session.ClassID)
	if err != nil {
		return err
	}

	if class.SubjectID != nil {
		if err := s.conflicts.EnsureEligible(ctx, newTeacherID, *class.SubjectID); err != nil {
			return err
		}
	}

	proposal := models.BookingProposal{
		TeacherID:       newTeacherID,
		StartAt:         session.StartAt,
		EndAt:           session.EndAt,
		IgnoreSessionID: session.ID,
	}
	if err := s.conflicts.Check(ctx, proposal); err != nil {
		return err
	}

	oldTeacherID := session.TeacherID
	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.sessions.UpdateTeacherWithTx(ctx, tx, session.ID, newTeacherID); err != nil {
			return err
		}
		return s.sessions.InsertTeacherChangeWithTx(ctx, tx, &models.SessionTeacherChange{
			SessionID:    session.ID,
			OldTeacherID: oldTeacherID,
			NewTeacherID: newTeacherID,
			ChangedBy:    actor,
		})
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reassign teacher")
	}

	s.audit.Record(ctx, actor, "schedule", models.AuditActionTeacherReassign, "session", session.ID, map[string]interface{}{
		"new_teacher_id": newTeacherID,
	})
	return nil
}

// CreateAppointment books a standalone 1-on-1 meeting. The student must hold
// an active lesson package, and both calendars are checked.
func (s *SessionService) CreateAppointment(ctx context.Context, req CreateAppointmentRequest, actor string) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment request")
	}

	hasBalance, err := s.ledger.HasActiveBalance(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lesson package")
	}
	if !hasBalance {
		return nil, appErrors.Clone(appErrors.ErrNoActivePackage, "")
	}

	proposal := models.BookingProposal{
		TeacherID: req.TeacherID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		StudentID: &req.StudentID,
	}
	if err := s.conflicts.Check(ctx, proposal); err != nil {
		return nil, err
	}

	appt := &models.Appointment{
		TeacherID: req.TeacherID,
		StudentID: req.StudentID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
	}
	if err := s.appointments.Create(ctx, appt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
	}

	s.audit.Record(ctx, actor, "schedule", models.AuditActionAppointmentCreate, "appointment", appt.ID, map[string]interface{}{
		"teacher_id": req.TeacherID,
		"student_id": req.StudentID,
	})
	return appt, nil
}

// CancelSession removes a session, freeing the teacher, room and students for
// that window.
func (s *SessionService) CancelSession(ctx context.Context, sessionID, actor string) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}
	s.audit.Record(ctx, actor, "schedule", models.AuditActionSessionCancel, "session", session.ID, nil)
	return nil
}

func (s *SessionService) loadClass(ctx context.Context, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *SessionService) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// pinnedStudent resolves the single active student of a capacity-1 class so
// session proposals can include the student dimension.
func (s *SessionService) pinnedStudent(ctx context.Context, class *models.Class) (*string, error) {
	if class.Capacity != 1 {
		return nil, nil
	}
	enrollments, err := s.enrollments.ListActiveByClass(ctx, class.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if len(enrollments) == 0 {
		return nil, nil
	}
	id := enrollments[0].StudentID
	return &id, nil
}
