package service

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirelo-edu/tutor-api/internal/models"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
)

type fakeSessionStore struct {
	session     *models.Session
	created     *models.Session
	bulkCreated []models.Session
	newTeacher  string
	change      *models.SessionTeacherChange
	deleted     []string
}

func (f *fakeSessionStore) FindByID(context.Context, string) (*models.Session, error) {
	return f.session, nil
}

func (f *fakeSessionStore) Create(_ context.Context, session *models.Session) error {
	session.ID = "sess-new"
	f.created = session
	return nil
}

func (f *fakeSessionStore) BulkCreate(_ context.Context, sessions []models.Session) error {
	f.bulkCreated = sessions
	return nil
}

func (f *fakeSessionStore) UpdateTeacherWithTx(_ context.Context, _ *sqlx.Tx, _ string, teacherID string) error {
	f.newTeacher = teacherID
	return nil
}

func (f *fakeSessionStore) InsertTeacherChangeWithTx(_ context.Context, _ *sqlx.Tx, change *models.SessionTeacherChange) error {
	f.change = change
	return nil
}

func (f *fakeSessionStore) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeClassStore struct {
	class *models.Class
}

func (f *fakeClassStore) FindByID(context.Context, string) (*models.Class, error) {
	return f.class, nil
}

type fakeEnrollmentList struct {
	enrollments []models.Enrollment
}

func (f *fakeEnrollmentList) ListActiveByClass(context.Context, string) ([]models.Enrollment, error) {
	return f.enrollments, nil
}

type fakeApptStore struct {
	created *models.Appointment
}

func (f *fakeApptStore) Create(_ context.Context, appt *models.Appointment) error {
	appt.ID = "appt-new"
	f.created = appt
	return nil
}

type fakeLedger struct {
	balance bool
}

func (f fakeLedger) HasActiveBalance(context.Context, string) (bool, error) {
	return f.balance, nil
}

type sessionFixture struct {
	sessions     *fakeSessionStore
	classes      *fakeClassStore
	enrollments  *fakeEnrollmentList
	appointments *fakeApptStore
	conflicts    *fakeConflicts
	svc          *SessionService
}

func newSessionFixture(ledger fakeLedger) *sessionFixture {
	roomID := "room-1"
	f := &sessionFixture{
		sessions: &fakeSessionStore{},
		classes: &fakeClassStore{class: &models.Class{
			ID: "class-1", Name: "1-on-1 alex", TeacherID: "t1",
			CourseID: "course-1", CampusID: "campus-1", RoomID: &roomID, Capacity: 1,
		}},
		enrollments:  &fakeEnrollmentList{enrollments: []models.Enrollment{{ClassID: "class-1", StudentID: "alex", Status: models.EnrollmentStatusActive}}},
		appointments: &fakeApptStore{},
		conflicts:    &fakeConflicts{},
	}
	f.svc = NewSessionService(f.sessions, f.classes, f.enrollments, f.appointments, f.conflicts, ledger, fakeTxRunner{}, nil, nil, nil, nil)
	return f
}

func TestCreateSessionPinsStudentForOneOnOne(t *testing.T) {
	f := newSessionFixture(fakeLedger{})

	session, err := f.svc.CreateSession(context.Background(), CreateSessionRequest{
		ClassID: "class-1",
		StartAt: at("2026-03-02", 18, 0),
		EndAt:   at("2026-03-02", 19, 0),
	}, "admin-1")
	require.NoError(t, err)
	require.NotNil(t, session.StudentID)
	assert.Equal(t, "alex", *session.StudentID)
	assert.Nil(t, session.TeacherID, "no override keeps the class default")
}

func TestCreateSessionRejectedByDetector(t *testing.T) {
	f := newSessionFixture(fakeLedger{})
	f.conflicts.checkErr = appErrors.Clone(appErrors.ErrOutsideAvailability, "")

	_, err := f.svc.CreateSession(context.Background(), CreateSessionRequest{
		ClassID: "class-1",
		StartAt: at("2026-03-02", 18, 0),
		EndAt:   at("2026-03-02", 19, 0),
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOutsideAvailability.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.sessions.created)
}

func TestGenerateWeeklySkipsConflictedDays(t *testing.T) {
	f := newSessionFixture(fakeLedger{})
	calls := 0
	// Fail the second Monday only.
	f.conflicts.checkErr = nil
	f.svc.conflicts = conflictFunc(func(p models.BookingProposal) error {
		calls++
		if calls == 2 {
			return appErrors.Clone(appErrors.ErrTeacherTimeConflict, "teacher busy")
		}
		return nil
	})

	result, err := f.svc.GenerateWeekly(context.Background(), GenerateWeeklyRequest{
		ClassID:  "class-1",
		Weekday:  1,
		StartMin: 18 * 60,
		EndMin:   19 * 60,
		FromDate: at("2026-03-01", 0, 0),
		ToDate:   at("2026-03-31", 0, 0),
	}, "admin-1")
	require.NoError(t, err)
	assert.Len(t, result.Created, 4)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, at("2026-03-09", 18, 0), result.Skipped[0].StartAt)
	assert.Equal(t, "teacher busy", result.Skipped[0].Reason)
	assert.Len(t, f.sessions.bulkCreated, 4)
}

func TestGenerateWeeklyRejectsInvertedWindow(t *testing.T) {
	f := newSessionFixture(fakeLedger{})

	_, err := f.svc.GenerateWeekly(context.Background(), GenerateWeeklyRequest{
		ClassID:  "class-1",
		Weekday:  1,
		StartMin: 18 * 60,
		EndMin:   19 * 60,
		FromDate: at("2026-03-31", 0, 0),
		ToDate:   at("2026-03-01", 0, 0),
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestReassignTeacherWritesChangeRecord(t *testing.T) {
	f := newSessionFixture(fakeLedger{})
	oldTeacher := "t1"
	f.sessions.session = &models.Session{
		ID: "sess-1", ClassID: "class-1",
		StartAt: at("2026-03-02", 18, 0), EndAt: at("2026-03-02", 19, 0),
		TeacherID: &oldTeacher,
	}

	err := f.svc.ReassignTeacher(context.Background(), "sess-1", "t2", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "t2", f.sessions.newTeacher)
	require.NotNil(t, f.sessions.change)
	assert.Equal(t, "t2", f.sessions.change.NewTeacherID)
	require.NotNil(t, f.sessions.change.OldTeacherID)
	assert.Equal(t, "t1", *f.sessions.change.OldTeacherID)
	assert.Equal(t, "admin-1", f.sessions.change.ChangedBy)
}

func TestReassignTeacherConflictAborts(t *testing.T) {
	f := newSessionFixture(fakeLedger{})
	f.sessions.session = &models.Session{ID: "sess-1", ClassID: "class-1", StartAt: at("2026-03-02", 18, 0), EndAt: at("2026-03-02", 19, 0)}
	f.conflicts.checkErr = appErrors.Clone(appErrors.ErrTeacherTimeConflict, "")

	err := f.svc.ReassignTeacher(context.Background(), "sess-1", "t2", "admin-1")
	require.Error(t, err)
	assert.Empty(t, f.sessions.newTeacher)
	assert.Nil(t, f.sessions.change)
}

func TestCreateAppointmentRequiresPackage(t *testing.T) {
	f := newSessionFixture(fakeLedger{balance: false})

	_, err := f.svc.CreateAppointment(context.Background(), CreateAppointmentRequest{
		TeacherID: "t1", StudentID: "alex",
		StartAt: at("2026-03-02", 18, 0), EndAt: at("2026-03-02", 19, 0),
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoActivePackage.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.appointments.created)
}

func TestCreateAppointmentHappyPath(t *testing.T) {
	f := newSessionFixture(fakeLedger{balance: true})

	appt, err := f.svc.CreateAppointment(context.Background(), CreateAppointmentRequest{
		TeacherID: "t1", StudentID: "alex",
		StartAt: at("2026-03-02", 18, 0), EndAt: at("2026-03-02", 19, 0),
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "appt-new", appt.ID)
}

func TestCancelSessionDeletes(t *testing.T) {
	f := newSessionFixture(fakeLedger{})
	f.sessions.session = &models.Session{ID: "sess-1", ClassID: "class-1"}

	err := f.svc.CancelSession(context.Background(), "sess-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, f.sessions.deleted)
}

// conflictFunc adapts a function to the conflict checker consumed by the
// services under test.
type conflictFunc func(p models.BookingProposal) error

func (fn conflictFunc) Check(_ context.Context, p models.BookingProposal) error {
	return fn(p)
}

func (conflictFunc) EnsureEligible(context.Context, string, string) error {
	return nil
}
