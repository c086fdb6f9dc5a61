package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const PasswordCost = 12

// dummyHash сравнивается с паролем, когда администратора нет или он отключен,
// чтобы время ответа не выдавало существующие email
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("not-a-real-admin-password"), PasswordCost)
	if err != nil {
		panic(fmt.Sprintf("admin: failed to build dummy password hash: %v", err))
	}
	return hash
})

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *AdminUser
}

type Service interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	Authenticate(token string) (*Claims, error)
	Me(ctx context.Context, claims *Claims) (*AdminUser, error)
	CreateAdmin(ctx context.Context, email, password, name string) (*AdminUser, error)
	EnsureAdmin(ctx context.Context, email, password, name string) (*AdminUser, error)
}

type service struct {
	repo   Repository
	tokens *TokenManager
	now    func() time.Time
}

func NewService(repo Repository, tokens *TokenManager) Service {
	return &service{repo: repo, tokens: tokens, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		user = nil
	case err != nil:
		log.Error().Err(err).Str("email", email).Msg("service: failed to load admin for login")
		return nil, fmt.Errorf("service: failed to load admin: %w", err)
	}

	if !verifyPassword(user, password) {
		switch {
		case user == nil:
			log.Warn().Str("email", email).Msg("service: login for unknown admin")
		case !user.IsActive:
			log.Warn().Str("email", email).Msg("service: login for inactive admin")
		default:
			log.Warn().Str("email", email).Msg("service: wrong admin password")
		}
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// вход не блокируем
		log.Warn().Err(err).Str("admin_id", user.ID.String()).Msg("service: failed to record last login")
	} else {
		user.LastLoginAt = &now
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	log.Info().Str("admin_id", user.ID.String()).Msg("service: admin logged in")
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// verifyPassword всегда выполняет ровно одно сравнение bcrypt.
func verifyPassword(user *AdminUser, password string) bool {
	if user == nil || !user.IsActive {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func (s *service) Authenticate(token string) (*Claims, error) {
	return s.tokens.Parse(token)
}

func (s *service) Me(ctx context.Context, claims *Claims) (*AdminUser, error) {
	id, err := uuid.FromString(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad user id in token", ErrUnauthorized)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Str("admin_id", claims.UserID).Msg("service: failed to load current admin")
		return nil, fmt.Errorf("service: failed to load admin '%s': %w", id, err)
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}
	return user, nil
}

func (s *service) CreateAdmin(ctx context.Context, email, password, name string) (*AdminUser, error) {
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to hash admin password")
		return nil, fmt.Errorf("service: internal error hashing password: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate admin id: %w", err)
	}

	now := s.now()
	user := &AdminUser{
		ID:           id,
		Email:        NormalizeEmail(email),
		Name:         name,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Str("email", user.Email).Msg("service: failed to create admin")
		return nil, fmt.Errorf("service: failed to save admin: %w", err)
	}

	log.Info().Str("admin_id", user.ID.String()).Str("email", user.Email).Msg("service: admin created")
	return user, nil
}

// EnsureAdmin создает администратора, если такого email еще нет, иначе
// возвращает существующего без изменения пароля.
func (s *service) EnsureAdmin(ctx context.Context, email, password, name string) (*AdminUser, error) {
	existing, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("service: failed to look up admin: %w", err)
	}
	return s.CreateAdmin(ctx, email, password, name)
}
