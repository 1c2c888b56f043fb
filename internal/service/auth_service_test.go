package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type mockAuthUserRepo struct {
	users         map[string]*models.User // by id
	byEmail       map[string]*models.User
	refreshTokens map[string]*models.RefreshToken      // by token value
	resetTokens   map[string]*models.PasswordResetToken // by token value
	revokedAll    []string
	passwords     map[string]string // user id -> new hash
}

func newMockAuthUserRepo() *mockAuthUserRepo {
	return &mockAuthUserRepo{
		users:         make(map[string]*models.User),
		byEmail:       make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
		resetTokens:   make(map[string]*models.PasswordResetToken),
		passwords:     make(map[string]string),
	}
}

func (m *mockAuthUserRepo) addUser(u *models.User) {
	m.users[u.ID] = u
	m.byEmail[u.Email] = u
}

func (m *mockAuthUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if u, ok := m.users[id]; ok {
		u.LastLogin = &ts
	}
	return nil
}

func (m *mockAuthUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwords[id] = passwordHash
	if u, ok := m.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	for _, t := range m.refreshTokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	cp := *token
	m.refreshTokens[token.Token] = &cp
	return nil
}

func (m *mockAuthUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthUserRepo) CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	cp := *token
	m.resetTokens[token.Token] = &cp
	return nil
}

func (m *mockAuthUserRepo) FindPasswordResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	if t, ok := m.resetTokens[token]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) MarkPasswordResetTokenUsed(ctx context.Context, id string) error {
	for _, t := range m.resetTokens {
		if t.ID == id {
			t.Used = true
		}
	}
	return nil
}

type mockMailer struct {
	sent []string // recipient addresses
}

func (m *mockMailer) Send(to, subject, htmlBody string) error {
	m.sent = append(m.sent, to)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		ResetTokenExpiry:   time.Hour,
		Issuer:             "simlab-api",
		Audience:           []string{"simlab"},
	}
}

func activeUser(id, email, password string) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return &models.User{
		ID:            id,
		Email:         email,
		PasswordHash:  string(hash),
		Name:          "Ana",
		LastName:      "Diaz",
		Roles:         pq.StringArray{string(models.RoleProfessor)},
		PreferredRole: models.RoleProfessor,
		Active:        true,
	}
}

func TestLoginIssuesTokenPair(t *testing.T) {
	repo := newMockAuthUserRepo()
	repo.addUser(activeUser("user-1", "ana@example.com", "secret123"))
	svc := NewAuthService(repo, &mockMailer{}, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Len(t, repo.refreshTokens, 1)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Contains(t, claims.Roles, string(models.RoleProfessor))
}

func TestLoginWrongPasswordRejected(t *testing.T) {
	repo := newMockAuthUserRepo()
	repo.addUser(activeUser("user-1", "ana@example.com", "secret123"))
	svc := NewAuthService(repo, &mockMailer{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccountRejected(t *testing.T) {
	repo := newMockAuthUserRepo()
	user := activeUser("user-1", "ana@example.com", "secret123")
	user.Active = false
	repo.addUser(user)
	svc := NewAuthService(repo, &mockMailer{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenRotates(t *testing.T) {
	repo := newMockAuthUserRepo()
	repo.addUser(activeUser("user-1", "ana@example.com", "secret123"))
	svc := NewAuthService(repo, &mockMailer{}, nil, nil, testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// the consumed token is revoked and cannot be replayed
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestForgotPasswordSilentOnUnknownEmail(t *testing.T) {
	repo := newMockAuthUserRepo()
	mailer := &mockMailer{}
	svc := NewAuthService(repo, mailer, nil, nil, testAuthConfig())

	err := svc.ForgotPassword(context.Background(), models.ResetPasswordRequest{Email: "nobody@example.com"})
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
	assert.Empty(t, repo.resetTokens)
}

func TestForgotPasswordSendsMailForActiveAccount(t *testing.T) {
	repo := newMockAuthUserRepo()
	repo.addUser(activeUser("user-1", "ana@example.com", "secret123"))
	mailer := &mockMailer{}
	svc := NewAuthService(repo, mailer, nil, nil, testAuthConfig())

	err := svc.ForgotPassword(context.Background(), models.ResetPasswordRequest{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.com"}, mailer.sent)
	assert.Len(t, repo.resetTokens, 1)
}

func TestResetPasswordConsumesToken(t *testing.T) {
	repo := newMockAuthUserRepo()
	repo.addUser(activeUser("user-1", "ana@example.com", "secret123"))
	svc := NewAuthService(repo, &mockMailer{}, nil, nil, testAuthConfig())

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ResetPasswordRequest{Email: "ana@example.com"}))
	var tokenValue string
	for v := range repo.resetTokens {
		tokenValue = v
	}

	err := svc.ResetPassword(context.Background(), models.ConfirmResetPasswordRequest{Token: tokenValue, NewPassword: "newpass1"})
	require.NoError(t, err)
	assert.NotEmpty(t, repo.passwords["user-1"])
	assert.Contains(t, repo.revokedAll, "user-1")

	// a consumed token cannot be reused
	err = svc.ResetPassword(context.Background(), models.ConfirmResetPasswordRequest{Token: tokenValue, NewPassword: "newpass2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestResetPasswordExpiredTokenRejected(t *testing.T) {
	repo := newMockAuthUserRepo()
	repo.addUser(activeUser("user-1", "ana@example.com", "secret123"))
	repo.resetTokens["expired"] = &models.PasswordResetToken{
		ID:        "tok-1",
		UserID:    "user-1",
		Token:     "expired",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	svc := NewAuthService(repo, &mockMailer{}, nil, nil, testAuthConfig())

	err := svc.ResetPassword(context.Background(), models.ConfirmResetPasswordRequest{Token: "expired", NewPassword: "newpass1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo := newMockAuthUserRepo()
	repo.addUser(activeUser("user-1", "ana@example.com", "secret123"))
	svc := NewAuthService(repo, &mockMailer{}, nil, nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "newpass1",
	})
	require.NoError(t, err)
	assert.Contains(t, repo.revokedAll, "user-1")

	err = svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "other123",
	})
	require.Error(t, err, "old password no longer matches after the change")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	repo := newMockAuthUserRepo()
	repo.addUser(activeUser("user-1", "ana@example.com", "secret123"))
	svc := NewAuthService(repo, &mockMailer{}, nil, nil, testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	other := NewAuthService(repo, &mockMailer{}, nil, nil, AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: time.Hour,
	})
	_, err = other.ValidateToken(login.AccessToken)
	require.Error(t, err)
}
