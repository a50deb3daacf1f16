package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mirelo-edu/tutor-api/internal/models"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
)

type bookingLinkReader interface {
	FindLink(ctx context.Context, id string) (*models.BookingLink, error)
	ListLinkTeacherIDs(ctx context.Context, linkID string) ([]string, error)
	ListLinkSlots(ctx context.Context, linkID string) ([]models.BookingLinkSlot, error)
	ListClaims(ctx context.Context, teacherIDs []string, from, to time.Time) ([]models.ClaimedRange, error)
}

type teacherReader interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.Teacher, error)
}

// SlotService enumerates bookable candidates for a booking link. It is a
// pure read: the same inputs at the same instant produce the same output,
// which makes it cheap to re-run after every mutation.
type SlotService struct {
	resolver     availabilityResolver
	bookings     bookingLinkReader
	sessions     sessionConflictRepository
	appointments appointmentConflictRepository
	occupants    occupantRepository
	teachers     teacherReader
	cache        *CacheService
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewSlotService instantiates SlotService.
func NewSlotService(resolver availabilityResolver, bookings bookingLinkReader, sessions sessionConflictRepository, appointments appointmentConflictRepository, occupants occupantRepository, teachers teacherReader, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *SlotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		resolver:     resolver,
		bookings:     bookings,
		sessions:     sessions,
		appointments: appointments,
		occupants:    occupants,
		teachers:     teachers,
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
	}
}

type busyRange struct {
	startAt time.Time
	endAt   time.Time
}

// Enumerate produces the sorted candidate slots for one month of the link's
// window.
func (s *SlotService) Enumerate(ctx context.Context, linkID string, year int, month time.Month) ([]models.Slot, error) {
	cacheKey := slotCacheKey(linkID, year, month)
	var cached []models.Slot
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveSlotEnumeration(time.Since(start))
		}
	}()

	link, err := s.bookings.FindLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrLinkUnavailable, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking link")
	}
	if !link.Active {
		return nil, appErrors.Clone(appErrors.ErrLinkUnavailable, "")
	}

	from, to := monthWindow(link, year, month)
	if from.After(to) {
		return []models.Slot{}, nil
	}
	windowEnd := to.AddDate(0, 0, 1)

	teacherIDs, err := s.bookings.ListLinkTeacherIDs(ctx, linkID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load link teachers")
	}
	if len(teacherIDs) == 0 {
		return []models.Slot{}, nil
	}
	teachers, err := s.teachers.ListByIDs(ctx, teacherIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	nameByID := make(map[string]string, len(teachers))
	for _, t := range teachers {
		nameByID[t.ID] = t.FullName
	}

	busyByTeacher, err := s.collectBusy(ctx, teacherIDs, from, windowEnd)
	if err != nil {
		return nil, err
	}

	claims, err := s.bookings.ListClaims(ctx, teacherIDs, from, windowEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot claims")
	}
	claimed := make(map[string]struct{}, len(claims))
	for _, c := range claims {
		claimed[slotKey(c.TeacherID, c.StartAt, c.EndAt)] = struct{}{}
	}

	var allowList map[string]struct{}
	if link.OnlySelectedSlots {
		slots, err := s.bookings.ListLinkSlots(ctx, linkID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load link slot allow-list")
		}
		allowList = make(map[string]struct{}, len(slots))
		for _, slot := range slots {
			allowList[slotKey(slot.TeacherID, slot.StartAt, slot.EndAt)] = struct{}{}
		}
	}

	duration := time.Duration(link.DurationMin) * time.Minute
	var result []models.Slot
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, teacherID := range teacherIDs {
			ranges, err := s.resolver.Resolve(ctx, teacherID, day)
			if err != nil {
				return nil, err
			}
			for _, rng := range ranges {
				for off := rng.StartMin; off+link.DurationMin <= rng.EndMin; off += link.SlotStepMin {
					startAt := day.Add(time.Duration(off) * time.Minute)
					endAt := startAt.Add(duration)
					if overlapsAny(busyByTeacher[teacherID], startAt, endAt) {
						continue
					}
					if _, taken := claimed[slotKey(teacherID, startAt, endAt)]; taken {
						continue
					}
					if allowList != nil {
						if _, offered := allowList[slotKey(teacherID, startAt, endAt)]; !offered {
							continue
						}
					}
					result = append(result, models.Slot{
						TeacherID:   teacherID,
						TeacherName: nameByID[teacherID],
						StartAt:     startAt,
						EndAt:       endAt,
					})
				}
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartAt.Equal(result[j].StartAt) {
			return result[i].StartAt.Before(result[j].StartAt)
		}
		return result[i].TeacherName < result[j].TeacherName
	})
	if result == nil {
		result = []models.Slot{}
	}

	s.cache.Set(ctx, cacheKey, result)
	return result, nil
}

// InvalidateLink drops the cached slot listings for a link. Booking
// mutations call this so the public page refreshes promptly.
func (s *SlotService) InvalidateLink(ctx context.Context, linkID string) {
	s.cache.Invalidate(ctx, fmt.Sprintf("slots:%s:*", linkID))
}

// collectBusy loads each teacher's blocking sessions and appointments over
// the window, applying the excused-exclusion rule once per session.
func (s *SlotService) collectBusy(ctx context.Context, teacherIDs []string, from, to time.Time) (map[string][]busyRange, error) {
	busy := make(map[string][]busyRange, len(teacherIDs))
	var allSessions []models.SessionOccupancy
	sessionTeacher := make(map[string]string)

	for _, teacherID := range teacherIDs {
		sessions, err := s.sessions.FindOverlappingByTeacher(ctx, teacherID, from, to, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan teacher sessions")
		}
		for _, sess := range sessions {
			allSessions = append(allSessions, sess)
			sessionTeacher[sess.ID] = teacherID
		}

		appts, err := s.appointments.FindOverlappingByTeacher(ctx, teacherID, from, to)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan teacher appointments")
		}
		for _, appt := range appts {
			busy[teacherID] = append(busy[teacherID], busyRange{startAt: appt.StartAt, endAt: appt.EndAt})
		}
	}

	if len(allSessions) == 0 {
		return busy, nil
	}

	ids := make([]string, 0, len(allSessions))
	for _, sess := range allSessions {
		ids = append(ids, sess.ID)
	}
	occupants, err := s.occupants.ListOccupants(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session occupants")
	}
	bySession := make(map[string][]models.SessionOccupant)
	for _, occ := range occupants {
		bySession[occ.SessionID] = append(bySession[occ.SessionID], occ)
	}

	for _, sess := range allSessions {
		if sessionFreedByExcusal(bySession[sess.ID], "") {
			continue
		}
		teacherID := sessionTeacher[sess.ID]
		busy[teacherID] = append(busy[teacherID], busyRange{startAt: sess.StartAt, endAt: sess.EndAt})
	}
	return busy, nil
}

func overlapsAny(busy []busyRange, startAt, endAt time.Time) bool {
	for _, b := range busy {
		if b.startAt.Before(endAt) && startAt.Before(b.endAt) {
			return true
		}
	}
	return false
}

func monthWindow(link *models.BookingLink, year int, month time.Month) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	from := truncateToDay(link.StartDate)
	if first.After(from) {
		from = first
	}
	to := truncateToDay(link.EndDate)
	if last.Before(to) {
		to = last
	}
	return from, to
}

func slotKey(teacherID string, startAt, endAt time.Time) string {
	return fmt.Sprintf("%s|%d|%d", teacherID, startAt.Unix(), endAt.Unix())
}

func slotCacheKey(linkID string, year int, month time.Month) string {
	return fmt.Sprintf("slots:%s:%04d-%02d", linkID, year, int(month))
}
