package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirelo-edu/tutor-api/internal/models"
	"github.com/mirelo-edu/tutor-api/internal/repository"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
)

type fakeBookingRepo struct {
	link       *models.BookingLink
	linkErr    error
	teacherIDs []string
	slots      []models.BookingLinkSlot
	request    *models.BookingRequest
	requestErr error

	createErr    error
	created      *models.BookingRequest
	approveOK    bool
	approved     bool
	closeOK      bool
	closedStatus models.BookingRequestStatus
}

func (f *fakeBookingRepo) FindLink(context.Context, string) (*models.BookingLink, error) {
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	return f.link, nil
}

func (f *fakeBookingRepo) ListLinkTeacherIDs(context.Context, string) ([]string, error) {
	return f.teacherIDs, nil
}

func (f *fakeBookingRepo) ListLinkSlots(context.Context, string) ([]models.BookingLinkSlot, error) {
	return f.slots, nil
}

func (f *fakeBookingRepo) FindRequest(context.Context, string) (*models.BookingRequest, error) {
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return f.request, nil
}

func (f *fakeBookingRepo) ListRequests(context.Context, models.BookingRequestFilter) ([]models.BookingRequest, int, error) {
	if f.request == nil {
		return nil, 0, nil
	}
	return []models.BookingRequest{*f.request}, 1, nil
}

func (f *fakeBookingRepo) CreatePending(_ context.Context, req *models.BookingRequest) error {
	if f.createErr != nil {
		return f.createErr
	}
	req.ID = "req-1"
	req.Status = models.BookingStatusPending
	f.created = req
	return nil
}

func (f *fakeBookingRepo) ApproveWithTx(context.Context, *sqlx.Tx, string, string, *string) (bool, error) {
	f.approved = f.approveOK
	return f.approveOK, nil
}

func (f *fakeBookingRepo) Close(_ context.Context, _ string, status models.BookingRequestStatus, _ *string) (bool, error) {
	if f.closeOK {
		f.closedStatus = status
	}
	return f.closeOK, nil
}

type fakeConflicts struct {
	checkErr    error
	eligibleErr error
}

func (f *fakeConflicts) Check(context.Context, models.BookingProposal) error {
	return f.checkErr
}

func (f *fakeConflicts) EnsureEligible(context.Context, string, string) error {
	return f.eligibleErr
}

type fakeSessionWriter struct {
	existing *models.Session
	created  *models.Session
}

func (f *fakeSessionWriter) FindAtClassTimeWithTx(context.Context, *sqlx.Tx, string, time.Time, time.Time) (*models.Session, error) {
	return f.existing, nil
}

func (f *fakeSessionWriter) CreateWithTx(_ context.Context, _ *sqlx.Tx, session *models.Session) error {
	session.ID = "sess-new"
	f.created = session
	return nil
}

type fakeEnrollmentUpsert struct {
	upserted bool
}

func (f *fakeEnrollmentUpsert) UpsertActiveWithTx(context.Context, *sqlx.Tx, string, string) (*models.Enrollment, error) {
	f.upserted = true
	return &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusActive}, nil
}

type fakeProvisioner struct {
	class *models.Class
	err   error
}

func (f *fakeProvisioner) GetOrCreateOneOnOneClass(context.Context, models.ProvisionClassParams) (*models.Class, error) {
	return f.class, f.err
}

type fakeTxRunner struct{}

func (fakeTxRunner) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

type fakeInvalidator struct {
	patterns []string
}

func (f *fakeInvalidator) InvalidateLink(_ context.Context, linkID string) {
	f.patterns = append(f.patterns, linkID)
}

type bookingFixture struct {
	repo        *fakeBookingRepo
	conflicts   *fakeConflicts
	sessions    *fakeSessionWriter
	enrollments *fakeEnrollmentUpsert
	provisioner *fakeProvisioner
	invalidator *fakeInvalidator
	svc         *BookingService
}

func newBookingFixture() *bookingFixture {
	f := &bookingFixture{
		repo: &fakeBookingRepo{
			link:       testLink(),
			teacherIDs: []string{"t1"},
			approveOK:  true,
			closeOK:    true,
		},
		conflicts:   &fakeConflicts{},
		sessions:    &fakeSessionWriter{},
		enrollments: &fakeEnrollmentUpsert{},
		provisioner: &fakeProvisioner{class: &models.Class{ID: "class-1", TeacherID: "t1", CourseID: "course-1", Capacity: 1}},
		invalidator: &fakeInvalidator{},
	}
	f.svc = NewBookingService(f.repo, f.conflicts, f.sessions, f.enrollments, f.provisioner, fakeTxRunner{}, f.invalidator, nil, nil, nil, nil)
	f.svc.now = func() time.Time { return at("2026-03-10", 12, 0) }
	return f
}

func submitReq() SubmitBookingRequest {
	return SubmitBookingRequest{
		LinkID:    "link-1",
		StudentID: "alex",
		TeacherID: "t1",
		StartAt:   at("2026-03-16", 9, 0),
		EndAt:     at("2026-03-16", 10, 0),
	}
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	f := newBookingFixture()

	request, err := f.svc.Submit(context.Background(), submitReq())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, request.Status)
	assert.Equal(t, "req-1", request.ID)
	assert.Equal(t, []string{"link-1"}, f.invalidator.patterns)
}

func TestSubmitLinkNotFound(t *testing.T) {
	f := newBookingFixture()
	f.repo.linkErr = sql.ErrNoRows

	_, err := f.svc.Submit(context.Background(), submitReq())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLinkUnavailable.Code, appErrors.FromError(err).Code)
}

func TestSubmitInactiveLink(t *testing.T) {
	f := newBookingFixture()
	f.repo.link.Active = false

	_, err := f.svc.Submit(context.Background(), submitReq())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLinkUnavailable.Code, appErrors.FromError(err).Code)
}

func TestSubmitExpiredLink(t *testing.T) {
	f := newBookingFixture()
	f.svc.now = func() time.Time { return at("2026-04-02", 12, 0) }

	_, err := f.svc.Submit(context.Background(), submitReq())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLinkExpired.Code, appErrors.FromError(err).Code)
}

func TestSubmitWrongStudent(t *testing.T) {
	f := newBookingFixture()
	req := submitReq()
	req.StudentID = "blair"

	_, err := f.svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmitTeacherNotOnLink(t *testing.T) {
	f := newBookingFixture()
	req := submitReq()
	req.TeacherID = "t9"

	_, err := f.svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTeacherForLink.Code, appErrors.FromError(err).Code)
}

func TestSubmitSlotOutsideWindow(t *testing.T) {
	f := newBookingFixture()
	req := submitReq()
	req.StartAt = at("2026-04-06", 9, 0)
	req.EndAt = at("2026-04-06", 10, 0)

	_, err := f.svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotNotOffered.Code, appErrors.FromError(err).Code)
}

func TestSubmitWrongDuration(t *testing.T) {
	f := newBookingFixture()
	req := submitReq()
	req.EndAt = at("2026-03-16", 9, 30)

	_, err := f.svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotNotOffered.Code, appErrors.FromError(err).Code)
}

func TestSubmitAllowListMiss(t *testing.T) {
	f := newBookingFixture()
	f.repo.link.OnlySelectedSlots = true
	f.repo.slots = []models.BookingLinkSlot{
		{LinkID: "link-1", TeacherID: "t1", StartAt: at("2026-03-16", 14, 0), EndAt: at("2026-03-16", 15, 0)},
	}

	_, err := f.svc.Submit(context.Background(), submitReq())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotNotOffered.Code, appErrors.FromError(err).Code)
}

func TestSubmitConflictRejected(t *testing.T) {
	f := newBookingFixture()
	f.conflicts.checkErr = appErrors.Clone(appErrors.ErrTeacherTimeConflict, "")

	_, err := f.svc.Submit(context.Background(), submitReq())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTeacherTimeConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitLosesSlotRace(t *testing.T) {
	// Two students submit the same slot; the unique constraint decides. The
	// loser gets SLOT_ALREADY_CLAIMED.
	f := newBookingFixture()
	f.repo.createErr = repository.ErrSlotTaken

	_, err := f.svc.Submit(context.Background(), submitReq())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotAlreadyClaimed.Code, appErrors.FromError(err).Code)
}

func pendingRequest() *models.BookingRequest {
	return &models.BookingRequest{
		ID:        "req-1",
		LinkID:    "link-1",
		StudentID: "alex",
		TeacherID: "t1",
		StartAt:   at("2026-03-16", 9, 0),
		EndAt:     at("2026-03-16", 10, 0),
		Status:    models.BookingStatusPending,
	}
}

func TestApproveMaterializesSession(t *testing.T) {
	f := newBookingFixture()
	f.repo.request = pendingRequest()

	sessionID, err := f.svc.Approve(context.Background(), "req-1", nil, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-new", sessionID)
	assert.True(t, f.enrollments.upserted)
	require.NotNil(t, f.sessions.created)
	assert.Equal(t, "class-1", f.sessions.created.ClassID)
	require.NotNil(t, f.sessions.created.TeacherID)
	assert.Equal(t, "t1", *f.sessions.created.TeacherID)
	require.NotNil(t, f.sessions.created.StudentID)
	assert.Equal(t, "alex", *f.sessions.created.StudentID)
}

func TestApproveReusesExistingSession(t *testing.T) {
	f := newBookingFixture()
	f.repo.request = pendingRequest()
	f.sessions.existing = &models.Session{ID: "sess-old", ClassID: "class-1"}

	sessionID, err := f.svc.Approve(context.Background(), "req-1", nil, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-old", sessionID)
	assert.Nil(t, f.sessions.created)
}

func TestApproveAlreadyApprovedIsConflict(t *testing.T) {
	f := newBookingFixture()
	req := pendingRequest()
	req.Status = models.BookingStatusApproved
	f.repo.request = req

	_, err := f.svc.Approve(context.Background(), "req-1", nil, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.sessions.created, "no second session may be created")
}

func TestApproveRejectedRequestIsConflict(t *testing.T) {
	f := newBookingFixture()
	req := pendingRequest()
	req.Status = models.BookingStatusRejected
	f.repo.request = req

	_, err := f.svc.Approve(context.Background(), "req-1", nil, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApproveRechecksConflicts(t *testing.T) {
	f := newBookingFixture()
	f.repo.request = pendingRequest()
	f.conflicts.checkErr = appErrors.Clone(appErrors.ErrTeacherTimeConflict, "")

	_, err := f.svc.Approve(context.Background(), "req-1", nil, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTeacherTimeConflict.Code, appErrors.FromError(err).Code)
	assert.False(t, f.repo.approved)
}

func TestApproveIneligibleTeacher(t *testing.T) {
	f := newBookingFixture()
	f.repo.request = pendingRequest()
	subject := "math"
	f.repo.link.SubjectID = &subject
	f.conflicts.eligibleErr = appErrors.Clone(appErrors.ErrTeacherIneligible, "")

	_, err := f.svc.Approve(context.Background(), "req-1", nil, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTeacherIneligible.Code, appErrors.FromError(err).Code)
}

func TestApproveEnrollmentConflict(t *testing.T) {
	f := newBookingFixture()
	f.repo.request = pendingRequest()
	f.provisioner.class = nil
	f.provisioner.err = repository.ErrEnrollmentConflict

	_, err := f.svc.Approve(context.Background(), "req-1", nil, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEnrollmentConflict.Code, appErrors.FromError(err).Code)
}

func TestApproveLosesUpdateRace(t *testing.T) {
	// The status flipped between the read and the guarded UPDATE.
	f := newBookingFixture()
	f.repo.request = pendingRequest()
	f.repo.approveOK = false

	_, err := f.svc.Approve(context.Background(), "req-1", nil, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRejectClosesRequest(t *testing.T) {
	f := newBookingFixture()
	f.repo.request = pendingRequest()

	err := f.svc.Reject(context.Background(), "req-1", nil, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRejected, f.repo.closedStatus)
	assert.Equal(t, []string{"link-1"}, f.invalidator.patterns)
}

func TestCancelByOwningStudent(t *testing.T) {
	f := newBookingFixture()
	f.repo.request = pendingRequest()

	err := f.svc.Cancel(context.Background(), "req-1", "alex")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, f.repo.closedStatus)
}

func TestCancelByOtherStudentForbidden(t *testing.T) {
	f := newBookingFixture()
	f.repo.request = pendingRequest()

	err := f.svc.Cancel(context.Background(), "req-1", "blair")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCancelNonPendingIsConflict(t *testing.T) {
	f := newBookingFixture()
	f.repo.request = pendingRequest()
	f.repo.closeOK = false

	err := f.svc.Cancel(context.Background(), "req-1", "alex")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
