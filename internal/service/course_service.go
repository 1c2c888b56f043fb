package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByJaverianaID(ctx context.Context, javerianaID string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type courseUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CourseRequest creates or updates a catalog course.
type CourseRequest struct {
	JaverianaID   string `json:"javeriana_id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Faculty       string `json:"faculty" validate:"required"`
	Department    string `json:"department"`
	Program       string `json:"program"`
	Semester      string `json:"semester"`
	CoordinatorID string `json:"coordinator_id" validate:"required"`
}

// CourseService manages the course catalog.
type CourseService struct {
	repo      courseRepository
	users     courseUserReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, users courseUserReader, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, users: users, validator: validate, logger: logger}
}

// List returns courses matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, &models.Pagination{Page: filter.Page, Size: filter.PageSize, Total: total}, nil
}

// Get loads one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a course. The institutional ID must be unique and the
// owner must hold the coordinator role.
func (s *CourseService) Create(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	if _, err := s.repo.FindByJaverianaID(ctx, req.JaverianaID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course institutional id already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check institutional id")
	}

	if err := s.checkCoordinator(ctx, req.CoordinatorID); err != nil {
		return nil, err
	}

	course := &models.Course{
		JaverianaID:   req.JaverianaID,
		Name:          req.Name,
		Faculty:       req.Faculty,
		Department:    req.Department,
		Program:       req.Program,
		Semester:      req.Semester,
		CoordinatorID: req.CoordinatorID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("javeriana_id", course.JaverianaID))
	return course, nil
}

// Update changes a course.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.JaverianaID != course.JaverianaID {
		if _, err := s.repo.FindByJaverianaID(ctx, req.JaverianaID); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course institutional id already registered")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check institutional id")
		}
	}

	if req.CoordinatorID != course.CoordinatorID {
		if err := s.checkCoordinator(ctx, req.CoordinatorID); err != nil {
			return nil, err
		}
	}

	course.JaverianaID = req.JaverianaID
	course.Name = req.Name
	course.Faculty = req.Faculty
	course.Department = req.Department
	course.Program = req.Program
	course.Semester = req.Semester
	course.CoordinatorID = req.CoordinatorID

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes a course.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

func (s *CourseService) checkCoordinator(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "coordinator not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coordinator")
	}
	if !user.HasRole(models.RoleCoordinator) {
		return appErrors.Clone(appErrors.ErrValidation, "course owner must hold the coordinator role")
	}
	return nil
}
