package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

const calendarDateLayout = "2006-01-02"

type calendarRepo interface {
	EventsForClasses(ctx context.Context, classIDs []string, from, to time.Time) ([]models.CalendarEvent, error)
	EventsForUser(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error)
	AllEvents(ctx context.Context, from, to time.Time) ([]models.CalendarEvent, error)
}

type calendarClassRepo interface {
	ListClassIDsForUser(ctx context.Context, userID string, role models.ClassMemberRole) ([]string, error)
}

// calendarStrategy resolves the events visible to one role.
type calendarStrategy func(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error)

// CalendarService builds per-user event feeds. Visibility is decided by a
// closed set of role strategies: admins and coordinators see everything,
// professors and students see the simulations of their classes. Feeds are
// cached in Redis for a short TTL since the underlying query fans out
// across five tables.
type CalendarService struct {
	repo       calendarRepo
	classes    calendarClassRepo
	cache      *redis.Client
	cacheTTL   time.Duration
	logger     *zap.Logger
	strategies map[models.UserRole]calendarStrategy
}

// NewCalendarService constructs CalendarService. The cache client may be
// nil, in which case every request hits the database.
func NewCalendarService(repo calendarRepo, classes calendarClassRepo, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CalendarService{
		repo:     repo,
		classes:  classes,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
	s.strategies = map[models.UserRole]calendarStrategy{
		models.RoleAdmin:       s.allEvents,
		models.RoleCoordinator: s.allEvents,
		models.RoleProfessor:   s.classEvents(models.ClassMemberProfessor),
		models.RoleStudent:     s.classEvents(models.ClassMemberStudent),
	}
	return s
}

// EventsForUser returns the calendar feed of a user acting under the given
// role between two ISO dates (inclusive start, exclusive day after end).
func (s *CalendarService) EventsForUser(ctx context.Context, userID string, role models.UserRole, fromStr, toStr string) ([]models.CalendarEvent, error) {
	from, to, err := parseDateRange(fromStr, toStr)
	if err != nil {
		return nil, err
	}

	strategy, ok := s.strategies[role]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s has no calendar view", role))
	}

	cacheKey := fmt.Sprintf("calendar:%s:%s:%s:%s", role, userID, fromStr, toStr)
	if cached, ok := s.fromCache(ctx, cacheKey); ok {
		return cached, nil
	}

	events, err := strategy(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no events in the requested range")
	}

	s.toCache(ctx, cacheKey, events)
	return events, nil
}

// Invalidate drops every cached feed. Called after scheduling changes.
func (s *CalendarService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, "calendar:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.cache.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.Warn("failed to drop calendar cache key", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("calendar cache scan failed", zap.Error(err))
	}
}

func (s *CalendarService) allEvents(ctx context.Context, _ string, from, to time.Time) ([]models.CalendarEvent, error) {
	events, err := s.repo.AllEvents(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load events")
	}
	return events, nil
}

// classEvents resolves events through class membership, falling back to
// direct simulation participation for users enrolled in no class.
func (s *CalendarService) classEvents(memberRole models.ClassMemberRole) calendarStrategy {
	return func(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error) {
		classIDs, err := s.classes.ListClassIDsForUser(ctx, userID, memberRole)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve user classes")
		}

		if len(classIDs) > 0 {
			events, err := s.repo.EventsForClasses(ctx, classIDs, from, to)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class events")
			}
			if len(events) > 0 {
				return events, nil
			}
		}

		events, err := s.repo.EventsForUser(ctx, userID, from, to)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user events")
		}
		return events, nil
	}
}

func (s *CalendarService) fromCache(ctx context.Context, key string) ([]models.CalendarEvent, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("calendar cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var events []models.CalendarEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		s.logger.Warn("calendar cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return events, true
}

func (s *CalendarService) toCache(ctx context.Context, key string, events []models.CalendarEvent) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("calendar cache write failed", zap.Error(err))
	}
}

func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := time.Parse(calendarDateLayout, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrInvalidDateRange,
			fmt.Sprintf("invalid from date %q, expected YYYY-MM-DD", fromStr))
	}
	to, err := time.Parse(calendarDateLayout, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrInvalidDateRange,
			fmt.Sprintf("invalid to date %q, expected YYYY-MM-DD", toStr))
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrInvalidDateRange, "to date precedes from date")
	}
	// The range is inclusive of the last day.
	return from, to.AddDate(0, 0, 1), nil
}
