package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirelo-edu/tutor-api/internal/models"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
)

type fakeLinkStore struct {
	link       *models.BookingLink
	teacherIDs []string
	slots      []models.BookingLinkSlot
	claims     []models.ClaimedRange
}

func (f *fakeLinkStore) FindLink(context.Context, string) (*models.BookingLink, error) {
	return f.link, nil
}

func (f *fakeLinkStore) ListLinkTeacherIDs(context.Context, string) ([]string, error) {
	return f.teacherIDs, nil
}

func (f *fakeLinkStore) ListLinkSlots(context.Context, string) ([]models.BookingLinkSlot, error) {
	return f.slots, nil
}

func (f *fakeLinkStore) ListClaims(context.Context, []string, time.Time, time.Time) ([]models.ClaimedRange, error) {
	return f.claims, nil
}

type fakeTeacherDir struct {
	teachers []models.Teacher
}

func (f *fakeTeacherDir) ListByIDs(context.Context, []string) ([]models.Teacher, error) {
	return f.teachers, nil
}

func newSlotFixture(resolver *fakeResolver, links *fakeLinkStore, sessions *fakeSessionScan, occ *fakeOccupants) *SlotService {
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	if sessions == nil {
		sessions = &fakeSessionScan{}
	}
	if occ == nil {
		occ = &fakeOccupants{}
	}
	teachers := &fakeTeacherDir{teachers: []models.Teacher{{ID: "t1", FullName: "Dana"}, {ID: "t2", FullName: "Ali"}}}
	cache := NewCacheService(nil, nil, time.Minute, nil, false)
	return NewSlotService(resolver, links, sessions, &fakeApptScan{}, occ, teachers, cache, nil, nil)
}

func testLink() *models.BookingLink {
	return &models.BookingLink{
		ID:          "link-1",
		StudentID:   "alex",
		StartDate:   at("2026-03-01", 0, 0),
		EndDate:     at("2026-03-31", 0, 0),
		DurationMin: 60,
		SlotStepMin: 30,
		Active:      true,
		CourseID:    "course-1",
		CampusID:    "campus-1",
	}
}

func TestEnumerateWalksTheGrid(t *testing.T) {
	// Availability 09:00-11:00 on one day, duration 60, step 30 produces
	// exactly 09:00, 09:30 and 10:00 starts.
	resolver := &fakeResolver{ranges: map[string][]models.TimeRange{
		"2026-03-02": {{StartMin: 9 * 60, EndMin: 11 * 60}},
	}}
	links := &fakeLinkStore{link: testLink(), teacherIDs: []string{"t1"}}
	svc := newSlotFixture(resolver, links, nil, nil)

	slots, err := svc.Enumerate(context.Background(), "link-1", 2026, time.March)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, at("2026-03-02", 9, 0), slots[0].StartAt)
	assert.Equal(t, at("2026-03-02", 9, 30), slots[1].StartAt)
	assert.Equal(t, at("2026-03-02", 10, 0), slots[2].StartAt)
	assert.Equal(t, at("2026-03-02", 11, 0), slots[2].EndAt)
	assert.Equal(t, "Dana", slots[0].TeacherName)
}

func TestEnumerateRemovesBusySlots(t *testing.T) {
	resolver := &fakeResolver{ranges: map[string][]models.TimeRange{
		"2026-03-02": {{StartMin: 9 * 60, EndMin: 11 * 60}},
	}}
	links := &fakeLinkStore{link: testLink(), teacherIDs: []string{"t1"}}
	sessions := &fakeSessionScan{byTeacher: []models.SessionOccupancy{{
		Session: models.Session{ID: "sess-1", StartAt: at("2026-03-02", 9, 30), EndAt: at("2026-03-02", 10, 30)},
	}}}
	occ := &fakeOccupants{occupants: []models.SessionOccupant{
		{SessionID: "sess-1", StudentID: "blair", Status: nil},
	}}
	svc := newSlotFixture(resolver, links, sessions, occ)

	slots, err := svc.Enumerate(context.Background(), "link-1", 2026, time.March)
	require.NoError(t, err)
	// Every candidate overlaps the 09:30-10:30 session.
	assert.Empty(t, slots)
}

func TestEnumerateExcusedSessionFreesSlots(t *testing.T) {
	resolver := &fakeResolver{ranges: map[string][]models.TimeRange{
		"2026-03-02": {{StartMin: 9 * 60, EndMin: 11 * 60}},
	}}
	links := &fakeLinkStore{link: testLink(), teacherIDs: []string{"t1"}}
	sessions := &fakeSessionScan{byTeacher: []models.SessionOccupancy{{
		Session: models.Session{ID: "sess-1", StartAt: at("2026-03-02", 9, 30), EndAt: at("2026-03-02", 10, 30)},
	}}}
	occ := &fakeOccupants{occupants: []models.SessionOccupant{
		{SessionID: "sess-1", StudentID: "blair", Status: statusPtr(models.AttendanceStatusExcused)},
	}}
	svc := newSlotFixture(resolver, links, sessions, occ)

	slots, err := svc.Enumerate(context.Background(), "link-1", 2026, time.March)
	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestEnumerateRemovesClaimedSlots(t *testing.T) {
	resolver := &fakeResolver{ranges: map[string][]models.TimeRange{
		"2026-03-02": {{StartMin: 9 * 60, EndMin: 11 * 60}},
	}}
	links := &fakeLinkStore{
		link:       testLink(),
		teacherIDs: []string{"t1"},
		claims: []models.ClaimedRange{
			{TeacherID: "t1", StartAt: at("2026-03-02", 9, 30), EndAt: at("2026-03-02", 10, 30)},
		},
	}
	svc := newSlotFixture(resolver, links, nil, nil)

	slots, err := svc.Enumerate(context.Background(), "link-1", 2026, time.March)
	require.NoError(t, err)
	// Only the exact claimed (teacher, start, end) disappears; the detector
	// still guards overlap at admission time.
	require.Len(t, slots, 2)
	assert.Equal(t, at("2026-03-02", 9, 0), slots[0].StartAt)
	assert.Equal(t, at("2026-03-02", 10, 0), slots[1].StartAt)
}

func TestEnumerateHonoursAllowList(t *testing.T) {
	resolver := &fakeResolver{ranges: map[string][]models.TimeRange{
		"2026-03-02": {{StartMin: 9 * 60, EndMin: 11 * 60}},
	}}
	link := testLink()
	link.OnlySelectedSlots = true
	links := &fakeLinkStore{
		link:       link,
		teacherIDs: []string{"t1"},
		slots: []models.BookingLinkSlot{
			{LinkID: "link-1", TeacherID: "t1", StartAt: at("2026-03-02", 9, 30), EndAt: at("2026-03-02", 10, 30)},
		},
	}
	svc := newSlotFixture(resolver, links, nil, nil)

	slots, err := svc.Enumerate(context.Background(), "link-1", 2026, time.March)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, at("2026-03-02", 9, 30), slots[0].StartAt)
}

func TestEnumerateSortsByStartThenTeacher(t *testing.T) {
	resolver := &fakeResolver{ranges: map[string][]models.TimeRange{
		"2026-03-02": {{StartMin: 9 * 60, EndMin: 10 * 60}},
	}}
	links := &fakeLinkStore{link: testLink(), teacherIDs: []string{"t1", "t2"}}
	svc := newSlotFixture(resolver, links, nil, nil)

	slots, err := svc.Enumerate(context.Background(), "link-1", 2026, time.March)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	// Same start for both teachers: Ali (t2) sorts before Dana (t1).
	assert.Equal(t, "Ali", slots[0].TeacherName)
	assert.Equal(t, "Dana", slots[1].TeacherName)
}

func TestEnumerateInactiveLink(t *testing.T) {
	link := testLink()
	link.Active = false
	svc := newSlotFixture(nil, &fakeLinkStore{link: link}, nil, nil)

	_, err := svc.Enumerate(context.Background(), "link-1", 2026, time.March)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLinkUnavailable.Code, appErrors.FromError(err).Code)
}

func TestEnumerateMonthOutsideWindowIsEmpty(t *testing.T) {
	svc := newSlotFixture(nil, &fakeLinkStore{link: testLink(), teacherIDs: []string{"t1"}}, nil, nil)

	slots, err := svc.Enumerate(context.Background(), "link-1", 2026, time.June)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestEnumerateObservesRunDuration(t *testing.T) {
	resolver := &fakeResolver{ranges: map[string][]models.TimeRange{
		"2026-03-02": {{StartMin: 9 * 60, EndMin: 11 * 60}},
	}}
	links := &fakeLinkStore{link: testLink(), teacherIDs: []string{"t1"}}
	teachers := &fakeTeacherDir{teachers: []models.Teacher{{ID: "t1", FullName: "Dana"}}}
	cache := NewCacheService(nil, nil, time.Minute, nil, false)
	metrics := NewMetricsService()
	svc := NewSlotService(resolver, links, &fakeSessionScan{}, &fakeApptScan{}, &fakeOccupants{}, teachers, cache, metrics, nil)

	_, err := svc.Enumerate(context.Background(), "link-1", 2026, time.March)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "slot_enumeration_duration_seconds_count 1")
}
