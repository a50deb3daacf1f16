package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mirelo-edu/tutor-api/internal/models"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
)

type availabilityRepository interface {
	ListWeekly(ctx context.Context, teacherID string) ([]models.WeeklyAvailability, error)
	ListWeeklyByDay(ctx context.Context, teacherID string, weekday int) ([]models.WeeklyAvailability, error)
	CreateWeekly(ctx context.Context, rule *models.WeeklyAvailability) error
	DeleteWeekly(ctx context.Context, teacherID, id string) (bool, error)
	ListDate(ctx context.Context, teacherID string, date time.Time) ([]models.DateAvailability, error)
	ReplaceDate(ctx context.Context, teacherID string, date time.Time, ranges []models.TimeRange) error
	ClearDate(ctx context.Context, teacherID string, date time.Time) error
	ListOverriddenDates(ctx context.Context, teacherID string, from, to time.Time) ([]time.Time, error)
	BulkInsertDate(ctx context.Context, rows []models.DateAvailability) error
}

// CreateWeeklyRuleRequest adds one recurring range to a teacher's template.
type CreateWeeklyRuleRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	Weekday   int    `json:"weekday" validate:"min=0,max=6"`
	StartMin  int    `json:"start_min" validate:"min=0,max=1439"`
	EndMin    int    `json:"end_min" validate:"min=1,max=1440"`
}

// SetDateOverrideRequest replaces a day's ranges.
type SetDateOverrideRequest struct {
	TeacherID string             `json:"teacher_id" validate:"required"`
	Date      time.Time          `json:"date" validate:"required"`
	Ranges    []models.TimeRange `json:"ranges"`
}

// AvailabilityService resolves and maintains teacher availability.
type AvailabilityService struct {
	repo      availabilityRepository
	audit     *AuditService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService instantiates AvailabilityService.
func NewAvailabilityService(repo availabilityRepository, audit *AuditService, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Resolve returns the teacher's allowed minute ranges for the date, sorted
// and non-overlapping. Date overrides fully replace the weekly template:
// when any override row exists for the day, the template is not consulted,
// even if every override row filters out as invalid. An empty result means
// the teacher is unavailable that day.
func (s *AvailabilityService) Resolve(ctx context.Context, teacherID string, date time.Time) ([]models.TimeRange, error) {
	day := truncateToDay(date)

	overrides, err := s.repo.ListDate(ctx, teacherID, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load date availability")
	}
	if len(overrides) > 0 {
		ranges := make([]models.TimeRange, 0, len(overrides))
		for _, row := range overrides {
			if row.Range().Valid() {
				ranges = append(ranges, row.Range())
			}
		}
		models.SortRanges(ranges)
		return ranges, nil
	}

	rules, err := s.repo.ListWeeklyByDay(ctx, teacherID, int(day.Weekday()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly availability")
	}
	ranges := make([]models.TimeRange, 0, len(rules))
	for _, rule := range rules {
		if rule.Range().Valid() {
			ranges = append(ranges, rule.Range())
		}
	}
	models.SortRanges(ranges)
	return ranges, nil
}

// ListWeekly returns a teacher's full template.
func (s *AvailabilityService) ListWeekly(ctx context.Context, teacherID string) ([]models.WeeklyAvailability, error) {
	rules, err := s.repo.ListWeekly(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list weekly availability")
	}
	return rules, nil
}

// CreateWeeklyRule appends a recurring range after overlap validation.
func (s *AvailabilityService) CreateWeeklyRule(ctx context.Context, req CreateWeeklyRuleRequest) (*models.WeeklyAvailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid weekly rule payload")
	}

	rng := models.TimeRange{StartMin: req.StartMin, EndMin: req.EndMin}
	if !rng.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "start must be before end within one day")
	}

	existing, err := s.repo.ListWeeklyByDay(ctx, req.TeacherID, req.Weekday)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly availability")
	}
	for _, rule := range existing {
		if rule.Range().Overlaps(rng) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRange, "range overlaps an existing weekly rule")
		}
	}

	rule := models.WeeklyAvailability{
		TeacherID: req.TeacherID,
		Weekday:   req.Weekday,
		StartMin:  req.StartMin,
		EndMin:    req.EndMin,
	}
	if err := s.repo.CreateWeekly(ctx, &rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create weekly rule")
	}

	s.audit.Record(ctx, req.TeacherID, "availability", models.AuditActionAvailabilityChange, "weekly_availability", rule.ID, nil)
	return &rule, nil
}

// DeleteWeeklyRule removes one recurring range.
func (s *AvailabilityService) DeleteWeeklyRule(ctx context.Context, teacherID, ruleID string) error {
	deleted, err := s.repo.DeleteWeekly(ctx, teacherID, ruleID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete weekly rule")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "weekly rule not found")
	}
	s.audit.Record(ctx, teacherID, "availability", models.AuditActionAvailabilityChange, "weekly_availability", ruleID, nil)
	return nil
}

// SetDateOverride replaces the day's ranges. An empty range set removes the
// override entirely so the weekly template applies again; use ClearDate to
// make that intent explicit.
func (s *AvailabilityService) SetDateOverride(ctx context.Context, req SetDateOverrideRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date override payload")
	}
	for _, rng := range req.Ranges {
		if !rng.Valid() {
			return appErrors.Clone(appErrors.ErrInvalidRange, "start must be before end within one day")
		}
	}
	if models.RangesOverlap(req.Ranges) {
		return appErrors.Clone(appErrors.ErrInvalidRange, "override ranges overlap")
	}

	day := truncateToDay(req.Date)
	if err := s.repo.ReplaceDate(ctx, req.TeacherID, day, req.Ranges); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set date override")
	}

	s.audit.Record(ctx, req.TeacherID, "availability", models.AuditActionAvailabilityChange, "date_availability", day.Format("2006-01-02"), nil)
	return nil
}

// ClearDate removes a day's override rows so the weekly template applies
// again.
func (s *AvailabilityService) ClearDate(ctx context.Context, teacherID string, date time.Time) error {
	day := truncateToDay(date)
	if err := s.repo.ClearDate(ctx, teacherID, day); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear date availability")
	}
	s.audit.Record(ctx, teacherID, "availability", models.AuditActionAvailabilityClear, "date_availability", day.Format("2006-01-02"), nil)
	return nil
}

// MaterializeMonth bulk-generates date rows from the weekly template for
// every day of the month that does not already carry an override. The insert
// runs in one transaction.
func (s *AvailabilityService) MaterializeMonth(ctx context.Context, teacherID string, year int, month time.Month) (int, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	existing, err := s.repo.ListOverriddenDates(ctx, teacherID, first, last)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overridden dates")
	}
	taken := make(map[string]struct{}, len(existing))
	for _, d := range existing {
		taken[truncateToDay(d).Format("2006-01-02")] = struct{}{}
	}

	rules, err := s.repo.ListWeekly(ctx, teacherID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly availability")
	}
	byWeekday := make(map[int][]models.TimeRange)
	for _, rule := range rules {
		if rule.Range().Valid() {
			byWeekday[rule.Weekday] = append(byWeekday[rule.Weekday], rule.Range())
		}
	}

	var rows []models.DateAvailability
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if _, ok := taken[day.Format("2006-01-02")]; ok {
			continue
		}
		for _, rng := range byWeekday[int(day.Weekday())] {
			rows = append(rows, models.DateAvailability{
				TeacherID: teacherID,
				Date:      day,
				StartMin:  rng.StartMin,
				EndMin:    rng.EndMin,
			})
		}
	}

	if err := s.repo.BulkInsertDate(ctx, rows); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to materialize month")
	}
	return len(rows), nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
