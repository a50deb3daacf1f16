package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mirelo-edu/tutor-api/internal/models"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
)

type availabilityResolver interface {
	Resolve(ctx context.Context, teacherID string, date time.Time) ([]models.TimeRange, error)
}

type sessionConflictRepository interface {
	FindOverlappingByTeacher(ctx context.Context, teacherID string, startAt, endAt time.Time, ignoreSessionID string) ([]models.SessionOccupancy, error)
	FindOverlappingByRoom(ctx context.Context, roomID string, startAt, endAt time.Time, ignoreSessionID string) ([]models.SessionOccupancy, error)
	FindOverlappingByStudent(ctx context.Context, studentID string, startAt, endAt time.Time, ignoreSessionID string) ([]models.SessionOccupancy, error)
	FindAtClassTime(ctx context.Context, classID string, startAt, endAt time.Time) (*models.Session, error)
}

type appointmentConflictRepository interface {
	FindOverlappingByTeacher(ctx context.Context, teacherID string, startAt, endAt time.Time) ([]models.Appointment, error)
	FindOverlappingByStudent(ctx context.Context, studentID string, startAt, endAt time.Time) ([]models.Appointment, error)
}

type occupantRepository interface {
	ListOccupants(ctx context.Context, sessionIDs []string) ([]models.SessionOccupant, error)
}

type teacherEligibilityRepository interface {
	TeachesSubject(ctx context.Context, teacherID, subjectID string) (bool, error)
}

// ConflictService is the single conflict detector every scheduling call site
// goes through. It checks a proposal against availability and existing
// occupancies, short-circuiting on the first violation with a typed reason.
type ConflictService struct {
	resolver     availabilityResolver
	sessions     sessionConflictRepository
	appointments appointmentConflictRepository
	occupants    occupantRepository
	teachers     teacherEligibilityRepository
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewConflictService instantiates ConflictService.
func NewConflictService(resolver availabilityResolver, sessions sessionConflictRepository, appointments appointmentConflictRepository, occupants occupantRepository, teachers teacherEligibilityRepository, metrics *MetricsService, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{
		resolver:     resolver,
		sessions:     sessions,
		appointments: appointments,
		occupants:    occupants,
		teachers:     teachers,
		metrics:      metrics,
		logger:       logger,
	}
}

// EnsureEligible verifies the teacher can teach the subject. This is a
// capability check independent of scheduling and runs before any time check.
func (s *ConflictService) EnsureEligible(ctx context.Context, teacherID, subjectID string) error {
	if subjectID == "" {
		return nil
	}
	eligible, err := s.teachers.TeachesSubject(ctx, teacherID, subjectID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher eligibility")
	}
	if !eligible {
		return appErrors.Clone(appErrors.ErrTeacherIneligible, fmt.Sprintf("teacher %s cannot teach subject %s", teacherID, subjectID))
	}
	return nil
}

// Check validates a proposal. Checks run in a fixed order and return on the
// first violation: range shape, availability containment, exact-duplicate
// session, teacher overlap, room overlap, student overlap.
func (s *ConflictService) Check(ctx context.Context, p models.BookingProposal) error {
	err := s.runChecks(ctx, p)
	if err != nil && s.metrics != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Status < 500 {
			s.metrics.RecordConflict(appErr.Code)
		}
	}
	return err
}

func (s *ConflictService) runChecks(ctx context.Context, p models.BookingProposal) error {
	if err := validateRange(p.StartAt, p.EndAt); err != nil {
		return err
	}

	if err := s.checkAvailability(ctx, p); err != nil {
		return err
	}

	if p.ClassID != "" {
		existing, err := s.sessions.FindAtClassTime(ctx, p.ClassID, p.StartAt, p.EndAt)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicate session")
		}
		if existing != nil {
			return wrapConflict(appErrors.ErrDuplicateSession, &models.ConflictError{
				Code:    appErrors.ErrDuplicateSession.Code,
				Message: fmt.Sprintf("session %s already exists for class %s at this time", existing.ID, p.ClassID),
				Detail:  sessionDetail("CLASS", existing.ID, existing.StartAt, existing.EndAt),
			})
		}
	}

	if err := s.checkTeacherOverlap(ctx, p); err != nil {
		return err
	}

	if p.RoomID != nil && *p.RoomID != "" {
		if err := s.checkRoomOverlap(ctx, p); err != nil {
			return err
		}
	}

	if p.StudentID != nil && *p.StudentID != "" {
		if err := s.checkStudentOverlap(ctx, p); err != nil {
			return err
		}
	}

	return nil
}

func (s *ConflictService) checkAvailability(ctx context.Context, p models.BookingProposal) error {
	allowed, err := s.resolver.Resolve(ctx, p.TeacherID, p.StartAt)
	if err != nil {
		return err
	}

	proposed := models.TimeRange{StartMin: minuteOfDay(p.StartAt), EndMin: minuteOfDay(p.EndAt)}
	if proposed.EndMin == 0 {
		proposed.EndMin = models.MinutesPerDay
	}
	for _, rng := range allowed {
		if rng.Contains(proposed) {
			return nil
		}
	}

	return wrapConflict(appErrors.ErrOutsideAvailability, &models.ConflictError{
		Code:          appErrors.ErrOutsideAvailability.Code,
		Message:       outsideAvailabilityMessage(proposed, allowed),
		AllowedRanges: allowed,
	})
}

func (s *ConflictService) checkTeacherOverlap(ctx context.Context, p models.BookingProposal) error {
	sessions, err := s.sessions.FindOverlappingByTeacher(ctx, p.TeacherID, p.StartAt, p.EndAt, p.IgnoreSessionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan teacher sessions")
	}
	// Teacher occupancy is freed only when the whole session is cancelled,
	// i.e. every occupant excused, regardless of which student the proposal
	// is for.
	blocking, err := s.firstBlockingSession(ctx, sessions, "")
	if err != nil {
		return err
	}
	if blocking != nil {
		return wrapConflict(appErrors.ErrTeacherTimeConflict, &models.ConflictError{
			Code:    appErrors.ErrTeacherTimeConflict.Code,
			Message: fmt.Sprintf("teacher %s is occupied by session %s (%s)", p.TeacherID, blocking.ID, blocking.ClassName),
			Detail:  sessionDetail("TEACHER", blocking.ID, blocking.StartAt, blocking.EndAt),
		})
	}

	appts, err := s.appointments.FindOverlappingByTeacher(ctx, p.TeacherID, p.StartAt, p.EndAt)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan teacher appointments")
	}
	if len(appts) > 0 {
		appt := appts[0]
		return wrapConflict(appErrors.ErrTeacherTimeConflict, &models.ConflictError{
			Code:    appErrors.ErrTeacherTimeConflict.Code,
			Message: fmt.Sprintf("teacher %s is occupied by appointment %s", p.TeacherID, appt.ID),
			Detail:  appointmentDetail("TEACHER", appt),
		})
	}

	return nil
}

func (s *ConflictService) checkRoomOverlap(ctx context.Context, p models.BookingProposal) error {
	sessions, err := s.sessions.FindOverlappingByRoom(ctx, *p.RoomID, p.StartAt, p.EndAt, p.IgnoreSessionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan room sessions")
	}
	blocking, err := s.firstBlockingSession(ctx, sessions, "")
	if err != nil {
		return err
	}
	if blocking != nil {
		return wrapConflict(appErrors.ErrRoomTimeConflict, &models.ConflictError{
			Code:    appErrors.ErrRoomTimeConflict.Code,
			Message: fmt.Sprintf("room %s is occupied by session %s (%s)", *p.RoomID, blocking.ID, blocking.ClassName),
			Detail:  sessionDetail("ROOM", blocking.ID, blocking.StartAt, blocking.EndAt),
		})
	}
	return nil
}

func (s *ConflictService) checkStudentOverlap(ctx context.Context, p models.BookingProposal) error {
	studentID := *p.StudentID

	sessions, err := s.sessions.FindOverlappingByStudent(ctx, studentID, p.StartAt, p.EndAt, p.IgnoreSessionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan student sessions")
	}
	// Student occupancy is scoped to the student's own seat: a shared class
	// blocks only when this student's attendance is not excused.
	blocking, err := s.firstBlockingSession(ctx, sessions, studentID)
	if err != nil {
		return err
	}
	if blocking != nil {
		return wrapConflict(appErrors.ErrStudentTimeConflict, &models.ConflictError{
			Code:    appErrors.ErrStudentTimeConflict.Code,
			Message: fmt.Sprintf("student %s is occupied by session %s (%s)", studentID, blocking.ID, blocking.ClassName),
			Detail:  sessionDetail("STUDENT", blocking.ID, blocking.StartAt, blocking.EndAt),
		})
	}

	appts, err := s.appointments.FindOverlappingByStudent(ctx, studentID, p.StartAt, p.EndAt)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan student appointments")
	}
	if len(appts) > 0 {
		appt := appts[0]
		return wrapConflict(appErrors.ErrStudentTimeConflict, &models.ConflictError{
			Code:    appErrors.ErrStudentTimeConflict.Code,
			Message: fmt.Sprintf("student %s is occupied by appointment %s", studentID, appt.ID),
			Detail:  appointmentDetail("STUDENT", appt),
		})
	}

	return nil
}

// firstBlockingSession returns the first session the excused-exclusion rule
// does not free, or nil when every overlap is freed.
func (s *ConflictService) firstBlockingSession(ctx context.Context, sessions []models.SessionOccupancy, scopeStudentID string) (*models.SessionOccupancy, error) {
	if len(sessions) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	occupants, err := s.occupants.ListOccupants(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session occupants")
	}
	bySession := make(map[string][]models.SessionOccupant, len(sessions))
	for _, occ := range occupants {
		bySession[occ.SessionID] = append(bySession[occ.SessionID], occ)
	}

	for i := range sessions {
		if !sessionFreedByExcusal(bySession[sessions[i].ID], scopeStudentID) {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// sessionFreedByExcusal is the one shared excused-exclusion predicate.
// With a scope student, only that seat matters: the session is freed when
// the student's own attendance is EXCUSED. Without a scope, the session is
// freed only when every occupant is excused — the class was cancelled and
// the time is genuinely free again. A session with no occupants blocks:
// the seat simply has no attendance yet.
func sessionFreedByExcusal(occupants []models.SessionOccupant, scopeStudentID string) bool {
	if scopeStudentID != "" {
		for _, occ := range occupants {
			if occ.StudentID == scopeStudentID {
				return occ.Excused()
			}
		}
		return false
	}

	if len(occupants) == 0 {
		return false
	}
	for _, occ := range occupants {
		if !occ.Excused() {
			return false
		}
	}
	return true
}

func validateRange(startAt, endAt time.Time) error {
	if !endAt.After(startAt) {
		return wrapConflict(appErrors.ErrInvalidRange, &models.ConflictError{
			Code:    appErrors.ErrInvalidRange.Code,
			Message: "end must be after start",
		})
	}
	s, e := startAt.UTC(), endAt.UTC()
	endsAtMidnight := e.Hour() == 0 && e.Minute() == 0 && e.Second() == 0
	sameDay := s.Year() == e.Year() && s.YearDay() == e.YearDay()
	nextMidnight := endsAtMidnight && e.AddDate(0, 0, -1).YearDay() == s.YearDay() && e.AddDate(0, 0, -1).Year() == s.Year()
	if !sameDay && !nextMidnight {
		return wrapConflict(appErrors.ErrInvalidRange, &models.ConflictError{
			Code:    appErrors.ErrInvalidRange.Code,
			Message: "range must not span multiple days",
		})
	}
	return nil
}

func minuteOfDay(t time.Time) int {
	t = t.UTC()
	return t.Hour()*60 + t.Minute()
}

func outsideAvailabilityMessage(proposed models.TimeRange, allowed []models.TimeRange) string {
	if len(allowed) == 0 {
		return fmt.Sprintf("proposed %s but teacher has no availability that day", proposed)
	}
	parts := make([]string, 0, len(allowed))
	for _, rng := range allowed {
		parts = append(parts, rng.String())
	}
	return fmt.Sprintf("proposed %s but teacher is only available %s", proposed, strings.Join(parts, ", "))
}

func sessionDetail(resource, id string, startAt, endAt time.Time) *models.ConflictDetail {
	return &models.ConflictDetail{
		Resource:      resource,
		OccupantKind:  models.OccupantKindSession,
		ConflictingID: id,
		StartAt:       startAt,
		EndAt:         endAt,
	}
}

func appointmentDetail(resource string, appt models.Appointment) *models.ConflictDetail {
	return &models.ConflictDetail{
		Resource:      resource,
		OccupantKind:  models.OccupantKindAppointment,
		ConflictingID: appt.ID,
		StartAt:       appt.StartAt,
		EndAt:         appt.EndAt,
	}
}

func wrapConflict(base *appErrors.Error, domainErr *models.ConflictError) error {
	return appErrors.Wrap(domainErr, base.Code, base.Status, domainErr.Message)
}
