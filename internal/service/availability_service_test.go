package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirelo-edu/tutor-api/internal/models"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
)

type fakeAvailabilityRepo struct {
	weekly     []models.WeeklyAvailability
	dates      map[string][]models.DateAvailability // keyed by YYYY-MM-DD
	overridden []time.Time

	bulkInserted []models.DateAvailability
	replaced     map[string][]models.TimeRange
	cleared      []string
	deleteOK     bool
}

func (f *fakeAvailabilityRepo) ListWeekly(context.Context, string) ([]models.WeeklyAvailability, error) {
	return f.weekly, nil
}

func (f *fakeAvailabilityRepo) ListWeeklyByDay(_ context.Context, _ string, weekday int) ([]models.WeeklyAvailability, error) {
	var out []models.WeeklyAvailability
	for _, rule := range f.weekly {
		if rule.Weekday == weekday {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeAvailabilityRepo) CreateWeekly(_ context.Context, rule *models.WeeklyAvailability) error {
	rule.ID = "rule-new"
	f.weekly = append(f.weekly, *rule)
	return nil
}

func (f *fakeAvailabilityRepo) DeleteWeekly(context.Context, string, string) (bool, error) {
	return f.deleteOK, nil
}

func (f *fakeAvailabilityRepo) ListDate(_ context.Context, _ string, date time.Time) ([]models.DateAvailability, error) {
	return f.dates[date.Format("2006-01-02")], nil
}

func (f *fakeAvailabilityRepo) ReplaceDate(_ context.Context, _ string, date time.Time, ranges []models.TimeRange) error {
	if f.replaced == nil {
		f.replaced = make(map[string][]models.TimeRange)
	}
	f.replaced[date.Format("2006-01-02")] = ranges
	return nil
}

func (f *fakeAvailabilityRepo) ClearDate(_ context.Context, _ string, date time.Time) error {
	f.cleared = append(f.cleared, date.Format("2006-01-02"))
	return nil
}

func (f *fakeAvailabilityRepo) ListOverriddenDates(context.Context, string, time.Time, time.Time) ([]time.Time, error) {
	return f.overridden, nil
}

func (f *fakeAvailabilityRepo) BulkInsertDate(_ context.Context, rows []models.DateAvailability) error {
	f.bulkInserted = rows
	return nil
}

func TestResolveUsesWeeklyTemplate(t *testing.T) {
	repo := &fakeAvailabilityRepo{weekly: []models.WeeklyAvailability{
		{ID: "r1", TeacherID: "t1", Weekday: 1, StartMin: 18 * 60, EndMin: 20 * 60},
		{ID: "r2", TeacherID: "t1", Weekday: 1, StartMin: 9 * 60, EndMin: 11 * 60},
		{ID: "r3", TeacherID: "t1", Weekday: 3, StartMin: 9 * 60, EndMin: 11 * 60},
	}}
	svc := NewAvailabilityService(repo, nil, nil, nil)

	// 2026-03-02 is a Monday.
	ranges, err := svc.Resolve(context.Background(), "t1", at("2026-03-02", 12, 0))
	require.NoError(t, err)
	assert.Equal(t, []models.TimeRange{
		{StartMin: 9 * 60, EndMin: 11 * 60},
		{StartMin: 18 * 60, EndMin: 20 * 60},
	}, ranges)
}

func TestResolveOverrideReplacesTemplate(t *testing.T) {
	repo := &fakeAvailabilityRepo{
		weekly: []models.WeeklyAvailability{
			{ID: "r1", TeacherID: "t1", Weekday: 1, StartMin: 18 * 60, EndMin: 20 * 60},
		},
		dates: map[string][]models.DateAvailability{
			"2026-03-02": {{ID: "d1", TeacherID: "t1", StartMin: 10 * 60, EndMin: 12 * 60}},
		},
	}
	svc := NewAvailabilityService(repo, nil, nil, nil)

	ranges, err := svc.Resolve(context.Background(), "t1", at("2026-03-02", 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []models.TimeRange{{StartMin: 10 * 60, EndMin: 12 * 60}}, ranges)
}

func TestResolveInvalidOverrideRowsStillSuppressTemplate(t *testing.T) {
	// The day has override rows, but every one filters out as invalid. The
	// weekly template must NOT resurface: the day reads as unavailable.
	repo := &fakeAvailabilityRepo{
		weekly: []models.WeeklyAvailability{
			{ID: "r1", TeacherID: "t1", Weekday: 1, StartMin: 18 * 60, EndMin: 20 * 60},
		},
		dates: map[string][]models.DateAvailability{
			"2026-03-02": {{ID: "d1", TeacherID: "t1", StartMin: 12 * 60, EndMin: 10 * 60}},
		},
	}
	svc := NewAvailabilityService(repo, nil, nil, nil)

	ranges, err := svc.Resolve(context.Background(), "t1", at("2026-03-02", 0, 0))
	require.NoError(t, err)
	assert.Empty(t, ranges)
}

func TestResolveNoRulesMeansUnavailable(t *testing.T) {
	svc := NewAvailabilityService(&fakeAvailabilityRepo{}, nil, nil, nil)

	ranges, err := svc.Resolve(context.Background(), "t1", at("2026-03-02", 0, 0))
	require.NoError(t, err)
	assert.Empty(t, ranges)
}

func TestCreateWeeklyRuleRejectsOverlap(t *testing.T) {
	repo := &fakeAvailabilityRepo{weekly: []models.WeeklyAvailability{
		{ID: "r1", TeacherID: "t1", Weekday: 1, StartMin: 9 * 60, EndMin: 11 * 60},
	}}
	svc := NewAvailabilityService(repo, nil, nil, nil)

	_, err := svc.CreateWeeklyRule(context.Background(), CreateWeeklyRuleRequest{
		TeacherID: "t1", Weekday: 1, StartMin: 10 * 60, EndMin: 12 * 60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)

	// Touching boundaries are not an overlap.
	rule, err := svc.CreateWeeklyRule(context.Background(), CreateWeeklyRuleRequest{
		TeacherID: "t1", Weekday: 1, StartMin: 11 * 60, EndMin: 12 * 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "rule-new", rule.ID)
}

func TestCreateWeeklyRuleRejectsInvertedRange(t *testing.T) {
	svc := NewAvailabilityService(&fakeAvailabilityRepo{}, nil, nil, nil)

	_, err := svc.CreateWeeklyRule(context.Background(), CreateWeeklyRuleRequest{
		TeacherID: "t1", Weekday: 1, StartMin: 12 * 60, EndMin: 10 * 60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestSetDateOverrideRejectsOverlappingRanges(t *testing.T) {
	svc := NewAvailabilityService(&fakeAvailabilityRepo{}, nil, nil, nil)

	err := svc.SetDateOverride(context.Background(), SetDateOverrideRequest{
		TeacherID: "t1",
		Date:      at("2026-03-02", 0, 0),
		Ranges: []models.TimeRange{
			{StartMin: 9 * 60, EndMin: 11 * 60},
			{StartMin: 10 * 60, EndMin: 12 * 60},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestSetDateOverridePersistsRanges(t *testing.T) {
	repo := &fakeAvailabilityRepo{}
	svc := NewAvailabilityService(repo, nil, nil, nil)

	err := svc.SetDateOverride(context.Background(), SetDateOverrideRequest{
		TeacherID: "t1",
		Date:      at("2026-03-02", 15, 30),
		Ranges:    []models.TimeRange{{StartMin: 9 * 60, EndMin: 11 * 60}},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.TimeRange{{StartMin: 9 * 60, EndMin: 11 * 60}}, repo.replaced["2026-03-02"])
}

func TestDeleteWeeklyRuleNotFound(t *testing.T) {
	svc := NewAvailabilityService(&fakeAvailabilityRepo{deleteOK: false}, nil, nil, nil)

	err := svc.DeleteWeeklyRule(context.Background(), "t1", "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestMaterializeMonthSkipsOverriddenDays(t *testing.T) {
	repo := &fakeAvailabilityRepo{
		weekly: []models.WeeklyAvailability{
			{ID: "r1", TeacherID: "t1", Weekday: 1, StartMin: 18 * 60, EndMin: 20 * 60},
		},
		overridden: []time.Time{at("2026-03-02", 0, 0)},
	}
	svc := NewAvailabilityService(repo, nil, nil, nil)

	// March 2026 has five Mondays; one already carries an override.
	created, err := svc.MaterializeMonth(context.Background(), "t1", 2026, time.March)
	require.NoError(t, err)
	assert.Equal(t, 4, created)
	require.Len(t, repo.bulkInserted, 4)
	for _, row := range repo.bulkInserted {
		assert.Equal(t, time.Monday, row.Date.Weekday())
		assert.NotEqual(t, "2026-03-02", row.Date.Format("2006-01-02"))
	}
}
