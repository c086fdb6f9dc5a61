package admin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/admin"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, user *admin.AdminUser) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockRepository) GetByEmail(ctx context.Context, email string) (*admin.AdminUser, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*admin.AdminUser), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*admin.AdminUser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*admin.AdminUser), args.Error(1)
}

func (m *MockRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

const testSecret = "test-jwt-secret"

func newService(t *testing.T) (admin.Service, admin.Repository) {
	t.Helper()
	repo := admin.NewMemoryRepository()
	return admin.NewService(repo, admin.NewTokenManager(testSecret, time.Hour)), repo
}

func TestAdminService_CreateAndLogin(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	created, err := svc.CreateAdmin(ctx, "  Owner@Example.COM ", "s3cret-pass", "Owner")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", created.Email)
	assert.NotEqual(t, "s3cret-pass", created.PasswordHash)
	assert.True(t, created.IsActive)

	session, err := svc.Login(ctx, "OWNER@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, created.ID, session.User.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)

	claims, err := svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID.String(), claims.UserID)
	assert.Equal(t, "owner@example.com", claims.Email)

	me, err := svc.Me(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, "Owner", me.Name)
}

func TestAdminService_Login_InvalidCredentials(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	created, err := svc.CreateAdmin(ctx, "owner@example.com", "s3cret-pass", "Owner")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "owner@example.com", "wrong-pass")
	assert.ErrorIs(t, err, admin.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, admin.ErrInvalidCredentials)

	// деактивированный администратор не может войти даже с верным паролем
	inactive := *created
	inactive.ID = uuid.Must(uuid.NewV4())
	inactive.Email = "inactive@example.com"
	inactive.IsActive = false
	require.NoError(t, repo.Create(ctx, &inactive))

	_, err = svc.Login(ctx, "inactive@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, admin.ErrInvalidCredentials)
}

func TestAdminService_Login_RepositoryError(t *testing.T) {
	repo := new(MockRepository)
	svc := admin.NewService(repo, admin.NewTokenManager(testSecret, time.Hour))
	dbErr := errors.New("connection reset")

	repo.On("GetByEmail", mock.Anything, "owner@example.com").Return(nil, dbErr).Once()

	_, err := svc.Login(context.Background(), "owner@example.com", "whatever")
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, admin.ErrInvalidCredentials)
	repo.AssertExpectations(t)
}

func TestAdminService_CreateAdmin_Errors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateAdmin(ctx, "owner@example.com", "short", "Owner")
	assert.ErrorIs(t, err, admin.ErrWeakPassword)

	_, err = svc.CreateAdmin(ctx, "owner@example.com", "s3cret-pass", "Owner")
	require.NoError(t, err)

	_, err = svc.CreateAdmin(ctx, "OWNER@example.com", "another-pass", "Copy")
	assert.ErrorIs(t, err, admin.ErrEmailExists)
}

func TestAdminService_EnsureAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.EnsureAdmin(ctx, "owner@example.com", "s3cret-pass", "Owner")
	require.NoError(t, err)

	second, err := svc.EnsureAdmin(ctx, "owner@example.com", "different-pass", "Other")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// пароль не перезаписывается при повторном запуске
	_, err = svc.Login(ctx, "owner@example.com", "s3cret-pass")
	assert.NoError(t, err)
}

func TestAdminService_Me_UnknownUser(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Me(context.Background(), &admin.Claims{UserID: uuid.Must(uuid.NewV4()).String()})
	assert.ErrorIs(t, err, admin.ErrNotFound)

	_, err = svc.Me(context.Background(), &admin.Claims{UserID: "not-a-uuid"})
	assert.ErrorIs(t, err, admin.ErrUnauthorized)
}
