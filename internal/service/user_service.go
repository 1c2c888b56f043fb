package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByInstitutionalID(ctx context.Context, institutionalID string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateRoles(ctx context.Context, id string, roles []string, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

var knownRoles = map[models.UserRole]bool{
	models.RoleAdmin:       true,
	models.RoleProfessor:   true,
	models.RoleStudent:     true,
	models.RoleCoordinator: true,
}

// CreateUserRequest is the payload for registering a user.
type CreateUserRequest struct {
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required,min=6"`
	Name            string   `json:"name" validate:"required"`
	LastName        string   `json:"last_name" validate:"required"`
	InstitutionalID string   `json:"institutional_id" validate:"required"`
	Roles           []string `json:"roles" validate:"required,min=1"`
	PreferredRole   string   `json:"preferred_role"`
}

// UpdateUserRequest updates mutable profile fields.
type UpdateUserRequest struct {
	Name          string  `json:"name" validate:"required"`
	LastName      string  `json:"last_name" validate:"required"`
	PreferredRole string  `json:"preferred_role"`
	Active        *bool   `json:"active"`
	Email         *string `json:"email" validate:"omitempty,email"`
}

// UpdateRolesRequest replaces the role set of a user.
type UpdateRolesRequest struct {
	Roles         []string `json:"roles" validate:"required,min=1"`
	PreferredRole string   `json:"preferred_role"`
}

// UserService manages accounts and role assignment.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns users matching the filter.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, Size: filter.PageSize, Total: total}, nil
}

// Get loads one user.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create registers a user. Email and institutional ID must be unique.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if err := validateRoles(req.Roles); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if _, err := s.repo.FindByInstitutionalID(ctx, req.InstitutionalID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "institutional id already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check institutional id")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	preferred := models.UserRole(req.PreferredRole)
	if preferred == "" {
		preferred = models.UserRole(req.Roles[0])
	}
	if !containsRole(req.Roles, preferred) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "preferred role must be one of the assigned roles")
	}

	user := &models.User{
		Email:           req.Email,
		PasswordHash:    string(hash),
		Name:            req.Name,
		LastName:        req.LastName,
		InstitutionalID: req.InstitutionalID,
		Roles:           req.Roles,
		PreferredRole:   preferred,
		Active:          true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	return user, nil
}

// Update changes the mutable profile fields of a user.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != user.Email {
		if _, err := s.repo.FindByEmail(ctx, *req.Email); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		user.Email = *req.Email
	}

	user.Name = req.Name
	user.LastName = req.LastName
	if req.PreferredRole != "" {
		preferred := models.UserRole(req.PreferredRole)
		if !containsRole(user.Roles, preferred) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "preferred role must be one of the assigned roles")
		}
		user.PreferredRole = preferred
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	return user, nil
}

// UpdateRoles replaces the role set of a user.
func (s *UserService) UpdateRoles(ctx context.Context, id string, req UpdateRolesRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roles payload")
	}
	if err := validateRoles(req.Roles); err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	preferred := models.UserRole(req.PreferredRole)
	if preferred == "" {
		preferred = user.PreferredRole
	}
	if !containsRole(req.Roles, preferred) {
		preferred = models.UserRole(req.Roles[0])
	}

	if err := s.repo.UpdateRoles(ctx, id, req.Roles, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update roles")
	}

	user.Roles = req.Roles
	user.PreferredRole = preferred
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist preferred role")
	}

	s.logger.Info("user roles updated", zap.String("user_id", id), zap.Strings("roles", req.Roles))
	return user, nil
}

// UpdatePreferredRole switches the role a user sees by default after login.
// The role must already be assigned to the user.
func (s *UserService) UpdatePreferredRole(ctx context.Context, id string, role string) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	preferred := models.UserRole(role)
	if !containsRole(user.Roles, preferred) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "preferred role must be one of the assigned roles")
	}

	user.PreferredRole = preferred
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update preferred role")
	}
	return user, nil
}

// Delete removes a user.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	return nil
}

// PurgeExpiredTokens removes stale refresh and reset tokens. Run by the
// background maintenance job.
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	purged, err := s.repo.PurgeExpiredTokens(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge expired tokens")
	}
	if purged > 0 {
		s.logger.Info("expired tokens purged", zap.Int64("count", purged))
	}
	return purged, nil
}

func validateRoles(roles []string) error {
	for _, role := range roles {
		if !knownRoles[models.UserRole(role)] {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", role))
		}
	}
	return nil
}

func containsRole(roles []string, role models.UserRole) bool {
	for _, r := range roles {
		if models.UserRole(r) == role {
			return true
		}
	}
	return false
}
