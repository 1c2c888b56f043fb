package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type mockUserRepo struct {
	users  map[string]*models.User
	purged int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*models.User)}
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByInstitutionalID(ctx context.Context, institutionalID string) (*models.User, error) {
	for _, u := range m.users {
		if u.InstitutionalID == institutionalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-" + user.InstitutionalID
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) UpdateRoles(ctx context.Context, id string, roles []string, updatedAt time.Time) error {
	if u, ok := m.users[id]; ok {
		u.Roles = pq.StringArray(roles)
	}
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	return m.purged, nil
}

func seedUser(repo *mockUserRepo, id string, roles ...string) *models.User {
	u := &models.User{
		ID:              id,
		Email:           id + "@javeriana.edu.co",
		Name:            "Laura",
		LastName:        "Gomez",
		InstitutionalID: "inst-" + id,
		Roles:           pq.StringArray(roles),
		PreferredRole:   models.UserRole(roles[0]),
		Active:          true,
	}
	repo.users[id] = u
	return u
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", string(models.RoleProfessor))
	svc := NewUserService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:           "u1@javeriana.edu.co",
		Password:        "secret1",
		Name:            "Ana",
		LastName:        "Ruiz",
		InstitutionalID: "000999",
		Roles:           []string{string(models.RoleStudent)},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateUserRejectsDuplicateInstitutionalID(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", string(models.RoleProfessor))
	svc := NewUserService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:           "new@javeriana.edu.co",
		Password:        "secret1",
		Name:            "Ana",
		LastName:        "Ruiz",
		InstitutionalID: "inst-u1",
		Roles:           []string{string(models.RoleStudent)},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:           "new@javeriana.edu.co",
		Password:        "secret1",
		Name:            "Ana",
		LastName:        "Ruiz",
		InstitutionalID: "000999",
		Roles:           []string{"JANITOR"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateUserDefaultsPreferredRole(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:           "new@javeriana.edu.co",
		Password:        "secret1",
		Name:            "Ana",
		LastName:        "Ruiz",
		InstitutionalID: "000999",
		Roles:           []string{string(models.RoleProfessor), string(models.RoleCoordinator)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleProfessor, user.PreferredRole)
	assert.True(t, user.Active)
}

func TestUpdatePreferredRoleRequiresAssignedRole(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", string(models.RoleProfessor), string(models.RoleCoordinator))
	svc := NewUserService(repo, nil, nil)

	_, err := svc.UpdatePreferredRole(context.Background(), "u1", string(models.RoleAdmin))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	user, err := svc.UpdatePreferredRole(context.Background(), "u1", string(models.RoleCoordinator))
	require.NoError(t, err)
	assert.Equal(t, models.RoleCoordinator, user.PreferredRole)
	assert.Equal(t, models.RoleCoordinator, repo.users["u1"].PreferredRole)
}

func TestUpdateRolesKeepsPreferredWhenStillAssigned(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", string(models.RoleProfessor))
	svc := NewUserService(repo, nil, nil)

	user, err := svc.UpdateRoles(context.Background(), "u1", UpdateRolesRequest{
		Roles: []string{string(models.RoleProfessor), string(models.RoleCoordinator)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleProfessor, user.PreferredRole)
}

func TestUpdateRolesResetsDanglingPreferred(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", string(models.RoleProfessor))
	svc := NewUserService(repo, nil, nil)

	user, err := svc.UpdateRoles(context.Background(), "u1", UpdateRolesRequest{
		Roles: []string{string(models.RoleStudent)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.PreferredRole)
}

func TestPurgeExpiredTokensReportsCount(t *testing.T) {
	repo := newMockUserRepo()
	repo.purged = 7
	svc := NewUserService(repo, nil, nil)

	purged, err := svc.PurgeExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), purged)
}
