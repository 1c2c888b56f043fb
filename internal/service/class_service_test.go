package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type mockClassRepo struct {
	classes  map[string]*models.ClassModel
	members  map[models.ClassMemberRole][]models.User
	replaced map[models.ClassMemberRole][]string
}

func newMockClassRepo() *mockClassRepo {
	return &mockClassRepo{
		classes:  map[string]*models.ClassModel{"class-1": {ID: "class-1", JaverianaID: "1501", Period: "2026-1", CourseID: "course-1"}},
		members:  make(map[models.ClassMemberRole][]models.User),
		replaced: make(map[models.ClassMemberRole][]string),
	}
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassModel, int, error) {
	var out []models.ClassModel
	for _, c := range m.classes {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.ClassModel, error) {
	if c, ok := m.classes[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.ClassModel) error {
	if class.ID == "" {
		class.ID = "class-generated"
	}
	cp := *class
	m.classes[class.ID] = &cp
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.ClassModel) error {
	cp := *class
	m.classes[class.ID] = &cp
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	delete(m.classes, id)
	return nil
}

func (m *mockClassRepo) ListMembers(ctx context.Context, classID string, role models.ClassMemberRole) ([]models.User, error) {
	return m.members[role], nil
}

func (m *mockClassRepo) ReplaceMembers(ctx context.Context, classID string, role models.ClassMemberRole, userIDs []string) error {
	m.replaced[role] = userIDs
	return nil
}

type mockClassCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockClassCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockClassUserReader struct {
	users map[string]*models.User
}

func (m *mockClassUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func classUser(id string, roles ...string) *models.User {
	return &models.User{ID: id, Name: "User", LastName: id, Roles: pq.StringArray(roles), Active: true}
}

func newClassServiceForTest(repo *mockClassRepo, users *mockClassUserReader) *ClassService {
	courses := &mockClassCourseReader{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Name: "Semiology"},
	}}
	return NewClassService(repo, courses, users, nil, nil)
}

func TestCreateClassRequiresCourse(t *testing.T) {
	repo := newMockClassRepo()
	svc := newClassServiceForTest(repo, &mockClassUserReader{})

	_, err := svc.Create(context.Background(), ClassRequest{
		JaverianaID: "1502",
		Period:      "2026-1",
		CourseID:    "course-missing",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	class, err := svc.Create(context.Background(), ClassRequest{
		JaverianaID: "1502",
		Period:      "2026-1",
		CourseID:    "course-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, class.ID)
}

func TestReplaceStudentsRequiresStudentRole(t *testing.T) {
	repo := newMockClassRepo()
	users := &mockClassUserReader{users: map[string]*models.User{
		"prof-1": classUser("prof-1", string(models.RoleProfessor)),
	}}
	svc := newClassServiceForTest(repo, users)

	err := svc.ReplaceStudents(context.Background(), "class-1", ReplaceMembersRequest{UserIDs: []string{"prof-1"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.replaced)
}

func TestReplaceStudentsRejectsExistingProfessor(t *testing.T) {
	repo := newMockClassRepo()
	repo.members[models.ClassMemberProfessor] = []models.User{*classUser("both-1", string(models.RoleProfessor), string(models.RoleStudent))}
	users := &mockClassUserReader{users: map[string]*models.User{
		"both-1": classUser("both-1", string(models.RoleProfessor), string(models.RoleStudent)),
	}}
	svc := newClassServiceForTest(repo, users)

	err := svc.ReplaceStudents(context.Background(), "class-1", ReplaceMembersRequest{UserIDs: []string{"both-1"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReplaceStudentsRejectsDuplicates(t *testing.T) {
	repo := newMockClassRepo()
	users := &mockClassUserReader{users: map[string]*models.User{
		"stu-1": classUser("stu-1", string(models.RoleStudent)),
	}}
	svc := newClassServiceForTest(repo, users)

	err := svc.ReplaceStudents(context.Background(), "class-1", ReplaceMembersRequest{UserIDs: []string{"stu-1", "stu-1"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReplaceStudentsPersists(t *testing.T) {
	repo := newMockClassRepo()
	users := &mockClassUserReader{users: map[string]*models.User{
		"stu-1": classUser("stu-1", string(models.RoleStudent)),
		"stu-2": classUser("stu-2", string(models.RoleStudent)),
	}}
	svc := newClassServiceForTest(repo, users)

	err := svc.ReplaceStudents(context.Background(), "class-1", ReplaceMembersRequest{UserIDs: []string{"stu-1", "stu-2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1", "stu-2"}, repo.replaced[models.ClassMemberStudent])
}

func TestReplaceProfessorsRejectsExistingStudent(t *testing.T) {
	repo := newMockClassRepo()
	repo.members[models.ClassMemberStudent] = []models.User{*classUser("both-1", string(models.RoleProfessor), string(models.RoleStudent))}
	users := &mockClassUserReader{users: map[string]*models.User{
		"both-1": classUser("both-1", string(models.RoleProfessor), string(models.RoleStudent)),
	}}
	svc := newClassServiceForTest(repo, users)

	err := svc.ReplaceProfessors(context.Background(), "class-1", ReplaceMembersRequest{UserIDs: []string{"both-1"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
