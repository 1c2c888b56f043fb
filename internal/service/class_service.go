package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassModel, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassModel, error)
	Create(ctx context.Context, class *models.ClassModel) error
	Update(ctx context.Context, class *models.ClassModel) error
	Delete(ctx context.Context, id string) error
	ListMembers(ctx context.Context, classID string, role models.ClassMemberRole) ([]models.User, error)
	ReplaceMembers(ctx context.Context, classID string, role models.ClassMemberRole, userIDs []string) error
}

type classCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type classUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ClassRequest creates or updates a class offering.
type ClassRequest struct {
	JaverianaID          string `json:"javeriana_id" validate:"required"`
	Period               string `json:"period" validate:"required"`
	NumberOfParticipants int    `json:"number_of_participants" validate:"gte=0"`
	CourseID             string `json:"course_id" validate:"required"`
}

// ReplaceMembersRequest replaces one membership set of a class.
type ReplaceMembersRequest struct {
	UserIDs []string `json:"user_ids" validate:"required"`
}

// ClassService manages class offerings and their memberships. A user may
// not be professor and student of the same class at once.
type ClassService struct {
	repo      classRepository
	courses   classCourseReader
	users     classUserReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, courses classCourseReader, users classUserReader, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, courses: courses, users: users, validator: validate, logger: logger}
}

// List returns classes matching the filter.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassModel, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, &models.Pagination{Page: filter.Page, Size: filter.PageSize, Total: total}, nil
}

// Get loads one class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassModel, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create registers a class under an existing course.
func (s *ClassService) Create(ctx context.Context, req ClassRequest) (*models.ClassModel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	class := &models.ClassModel{
		JaverianaID:          req.JaverianaID,
		Period:               req.Period,
		NumberOfParticipants: req.NumberOfParticipants,
		CourseID:             req.CourseID,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("period", class.Period))
	return class, nil
}

// Update changes a class.
func (s *ClassService) Update(ctx context.Context, id string, req ClassRequest) (*models.ClassModel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.CourseID != class.CourseID {
		if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
	}

	class.JaverianaID = req.JaverianaID
	class.Period = req.Period
	class.NumberOfParticipants = req.NumberOfParticipants
	class.CourseID = req.CourseID

	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// Delete removes a class.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}

// Members lists the users of one membership set.
func (s *ClassService) Members(ctx context.Context, classID string, role models.ClassMemberRole) ([]models.User, error) {
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, classID, role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class members")
	}
	return members, nil
}

// ReplaceProfessors swaps the professor set of a class. Every user must
// hold the professor role and may not already be a student of the class.
func (s *ClassService) ReplaceProfessors(ctx context.Context, classID string, req ReplaceMembersRequest) error {
	return s.replaceMembers(ctx, classID, models.ClassMemberProfessor, models.RoleProfessor, req)
}

// ReplaceStudents swaps the student set of a class. Every user must hold
// the student role and may not already be a professor of the class.
func (s *ClassService) ReplaceStudents(ctx context.Context, classID string, req ReplaceMembersRequest) error {
	return s.replaceMembers(ctx, classID, models.ClassMemberStudent, models.RoleStudent, req)
}

func (s *ClassService) replaceMembers(ctx context.Context, classID string, memberRole models.ClassMemberRole, requiredRole models.UserRole, req ReplaceMembersRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid members payload")
	}

	if _, err := s.Get(ctx, classID); err != nil {
		return err
	}

	seen := make(map[string]bool, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		if seen[userID] {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("user %s appears more than once", userID))
		}
		seen[userID] = true

		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("user %s not found", userID))
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
		}
		if !user.HasRole(requiredRole) {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("user %s does not hold the %s role", userID, requiredRole))
		}
	}

	otherRole := models.ClassMemberStudent
	if memberRole == models.ClassMemberStudent {
		otherRole = models.ClassMemberProfessor
	}
	others, err := s.repo.ListMembers(ctx, classID, otherRole)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class members")
	}
	for _, other := range others {
		if seen[other.ID] {
			return appErrors.Clone(appErrors.ErrConflict,
				fmt.Sprintf("user %s is already a %s of this class", other.ID, otherRole))
		}
	}

	if err := s.repo.ReplaceMembers(ctx, classID, memberRole, req.UserIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace class members")
	}
	s.logger.Info("class members replaced",
		zap.String("class_id", classID),
		zap.String("member_role", string(memberRole)),
		zap.Int("count", len(req.UserIDs)))
	return nil
}
