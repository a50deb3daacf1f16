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
	"github.com/mirelo-edu/tutor-api/internal/repository"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
)

type bookingRepository interface {
	FindLink(ctx context.Context, id string) (*models.BookingLink, error)
	ListLinkTeacherIDs(ctx context.Context, linkID string) ([]string, error)
	ListLinkSlots(ctx context.Context, linkID string) ([]models.BookingLinkSlot, error)
	FindRequest(ctx context.Context, id string) (*models.BookingRequest, error)
	ListRequests(ctx context.Context, filter models.BookingRequestFilter) ([]models.BookingRequest, int, error)
	CreatePending(ctx context.Context, req *models.BookingRequest) error
	ApproveWithTx(ctx context.Context, tx *sqlx.Tx, requestID, sessionID string, adminNote *string) (bool, error)
	Close(ctx context.Context, requestID string, status models.BookingRequestStatus, note *string) (bool, error)
}

type conflictChecker interface {
	Check(ctx context.Context, p models.BookingProposal) error
	EnsureEligible(ctx context.Context, teacherID, subjectID string) error
}

type sessionMaterializer interface {
	FindAtClassTimeWithTx(ctx context.Context, tx *sqlx.Tx, classID string, startAt, endAt time.Time) (*models.Session, error)
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, session *models.Session) error
}

type enrollmentWriter interface {
	UpsertActiveWithTx(ctx context.Context, tx *sqlx.Tx, classID, studentID string) (*models.Enrollment, error)
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type slotInvalidator interface {
	InvalidateLink(ctx context.Context, linkID string)
}

// SubmitBookingRequest is a student's slot selection.
type SubmitBookingRequest struct {
	LinkID      string    `json:"link_id" validate:"required"`
	StudentID   string    `json:"student_id" validate:"required"`
	TeacherID   string    `json:"teacher_id" validate:"required"`
	StartAt     time.Time `json:"start_at" validate:"required"`
	EndAt       time.Time `json:"end_at" validate:"required"`
	StudentNote *string   `json:"student_note,omitempty"`
}

// BookingService runs the admission and approval state machine:
// PENDING -> {APPROVED, REJECTED, CANCELLED}, terminal states final.
type BookingService struct {
	repo        bookingRepository
	conflicts   conflictChecker
	sessions    sessionMaterializer
	enrollments enrollmentWriter
	provisioner ClassProvisioner
	tx          txRunner
	slots       slotInvalidator
	audit       *AuditService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewBookingService instantiates BookingService.
func NewBookingService(repo bookingRepository, conflicts conflictChecker, sessions sessionMaterializer, enrollments enrollmentWriter, provisioner ClassProvisioner, tx txRunner, slots slotInvalidator, audit *AuditService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		repo:        repo,
		conflicts:   conflicts,
		sessions:    sessions,
		enrollments: enrollments,
		provisioner: provisioner,
		tx:          tx,
		slots:       slots,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit admits a student's slot selection. The preceding validations give a
// fast, friendly rejection; the slot-lock unique insert inside CreatePending
// is what actually decides races between concurrent submissions.
func (s *BookingService) Submit(ctx context.Context, req SubmitBookingRequest) (*models.BookingRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking submission")
	}

	link, err := s.loadLink(ctx, req.LinkID)
	if err != nil {
		return nil, err
	}
	if link.StudentID != req.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "booking link belongs to another student")
	}
	if err := s.validateSlotAgainstLink(ctx, link, req.TeacherID, req.StartAt, req.EndAt); err != nil {
		return nil, err
	}

	proposal := models.BookingProposal{
		TeacherID: req.TeacherID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		StudentID: &req.StudentID,
	}
	if err := s.conflicts.Check(ctx, proposal); err != nil {
		s.recordAdmission("conflict")
		return nil, err
	}

	request := &models.BookingRequest{
		LinkID:      req.LinkID,
		StudentID:   req.StudentID,
		TeacherID:   req.TeacherID,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		StudentNote: req.StudentNote,
	}
	if err := s.repo.CreatePending(ctx, request); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			s.recordAdmission("slot_taken")
			return nil, appErrors.Clone(appErrors.ErrSlotAlreadyClaimed, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit booking request")
	}

	s.recordAdmission("accepted")
	s.audit.Record(ctx, req.StudentID, "booking", models.AuditActionBookingSubmit, "booking_request", request.ID, map[string]interface{}{
		"teacher_id": req.TeacherID,
		"start_at":   req.StartAt,
		"end_at":     req.EndAt,
	})
	s.slots.InvalidateLink(ctx, req.LinkID)
	return request, nil
}

// Approve materializes a PENDING request into a class, an enrollment and a
// session, then marks it APPROVED. All writes run in one transaction; a
// request that is no longer pending makes the call fail without side
// effects, so a second approval never creates a second session.
func (s *BookingService) Approve(ctx context.Context, requestID string, adminNote *string, actor string) (string, error) {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return "", err
	}
	switch request.Status {
	case models.BookingStatusPending:
	case models.BookingStatusApproved:
		return "", appErrors.Clone(appErrors.ErrConflict, "booking request already approved")
	default:
		return "", appErrors.Clone(appErrors.ErrConflict, "booking request is closed")
	}

	link, err := s.loadLink(ctx, request.LinkID)
	if err != nil {
		return "", err
	}

	subjectID := ""
	if link.SubjectID != nil {
		subjectID = *link.SubjectID
	}
	if err := s.conflicts.EnsureEligible(ctx, request.TeacherID, subjectID); err != nil {
		return "", err
	}

	// Time may have passed since submission; re-check against live data.
	proposal := models.BookingProposal{
		TeacherID: request.TeacherID,
		StartAt:   request.StartAt,
		EndAt:     request.EndAt,
		StudentID: &request.StudentID,
	}
	if err := s.conflicts.Check(ctx, proposal); err != nil {
		return "", err
	}

	class, err := s.provisioner.GetOrCreateOneOnOneClass(ctx, models.ProvisionClassParams{
		TeacherID: request.TeacherID,
		StudentID: request.StudentID,
		CourseID:  link.CourseID,
		SubjectID: link.SubjectID,
		CampusID:  link.CampusID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEnrollmentConflict) {
			return "", appErrors.Clone(appErrors.ErrEnrollmentConflict, "")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision class")
	}

	var sessionID string
	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.enrollments.UpsertActiveWithTx(ctx, tx, class.ID, request.StudentID); err != nil {
			return err
		}

		existing, err := s.sessions.FindAtClassTimeWithTx(ctx, tx, class.ID, request.StartAt, request.EndAt)
		if err != nil {
			return err
		}
		if existing != nil {
			sessionID = existing.ID
		} else {
			session := &models.Session{
				ClassID:   class.ID,
				StartAt:   request.StartAt,
				EndAt:     request.EndAt,
				TeacherID: &request.TeacherID,
				StudentID: &request.StudentID,
			}
			if err := s.sessions.CreateWithTx(ctx, tx, session); err != nil {
				return err
			}
			sessionID = session.ID
		}

		approved, err := s.repo.ApproveWithTx(ctx, tx, requestID, sessionID, adminNote)
		if err != nil {
			return err
		}
		if !approved {
			return appErrors.Clone(appErrors.ErrConflict, "booking request is no longer pending")
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return "", appErr
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve booking request")
	}

	s.audit.Record(ctx, actor, "booking", models.AuditActionBookingApprove, "booking_request", requestID, map[string]interface{}{
		"session_id": sessionID,
		"class_id":   class.ID,
	})
	s.slots.InvalidateLink(ctx, request.LinkID)
	return sessionID, nil
}

// Reject closes a PENDING request and releases its slot lock.
func (s *BookingService) Reject(ctx context.Context, requestID string, adminNote *string, actor string) error {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}

	closed, err := s.repo.Close(ctx, requestID, models.BookingStatusRejected, adminNote)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject booking request")
	}
	if !closed {
		return appErrors.Clone(appErrors.ErrConflict, "booking request is no longer pending")
	}

	s.audit.Record(ctx, actor, "booking", models.AuditActionBookingReject, "booking_request", requestID, nil)
	s.slots.InvalidateLink(ctx, request.LinkID)
	return nil
}

// Cancel lets the owning student withdraw a request while it is still
// PENDING. Once approved the request is immutable except through explicit
// reassignment flows.
func (s *BookingService) Cancel(ctx context.Context, requestID, studentID string) error {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "booking request belongs to another student")
	}

	closed, err := s.repo.Close(ctx, requestID, models.BookingStatusCancelled, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking request")
	}
	if !closed {
		return appErrors.Clone(appErrors.ErrConflict, "booking request is no longer pending")
	}

	s.audit.Record(ctx, studentID, "booking", models.AuditActionBookingCancel, "booking_request", requestID, nil)
	s.slots.InvalidateLink(ctx, request.LinkID)
	return nil
}

// List returns booking requests for admin review.
func (s *BookingService) List(ctx context.Context, filter models.BookingRequestFilter) ([]models.BookingRequest, *models.Pagination, error) {
	requests, total, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list booking requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *BookingService) loadLink(ctx context.Context, linkID string) (*models.BookingLink, error) {
	link, err := s.repo.FindLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrLinkUnavailable, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking link")
	}
	if !link.Active {
		return nil, appErrors.Clone(appErrors.ErrLinkUnavailable, "")
	}
	if link.Expired(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrLinkExpired, "")
	}
	return link, nil
}

func (s *BookingService) loadRequest(ctx context.Context, requestID string) (*models.BookingRequest, error) {
	request, err := s.repo.FindRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking request")
	}
	return request, nil
}

func (s *BookingService) validateSlotAgainstLink(ctx context.Context, link *models.BookingLink, teacherID string, startAt, endAt time.Time) error {
	teacherIDs, err := s.repo.ListLinkTeacherIDs(ctx, link.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load link teachers")
	}
	offered := false
	for _, id := range teacherIDs {
		if id == teacherID {
			offered = true
			break
		}
	}
	if !offered {
		return appErrors.Clone(appErrors.ErrInvalidTeacherForLink, "")
	}

	day := truncateToDay(startAt)
	if day.Before(truncateToDay(link.StartDate)) || day.After(truncateToDay(link.EndDate)) {
		return appErrors.Clone(appErrors.ErrSlotNotOffered, "slot is outside the link window")
	}
	if int(endAt.Sub(startAt).Minutes()) != link.DurationMin {
		return appErrors.Clone(appErrors.ErrSlotNotOffered, "slot duration does not match the link")
	}

	if link.OnlySelectedSlots {
		slots, err := s.repo.ListLinkSlots(ctx, link.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load link slot allow-list")
		}
		for _, slot := range slots {
			if slot.TeacherID == teacherID && slot.StartAt.Equal(startAt) && slot.EndAt.Equal(endAt) {
				return nil
			}
		}
		return appErrors.Clone(appErrors.ErrSlotNotOffered, "")
	}
	return nil
}

func (s *BookingService) recordAdmission(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAdmission(outcome)
	}
}
