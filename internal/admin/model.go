package admin

import (
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("admin user not found")
	ErrEmailExists        = errors.New("admin with this email already exists")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// AdminUser - учетная запись администратора панели заказов.
type AdminUser struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name" db:"name"`
	PasswordHash string     `json:"-" db:"password_hash"` // никогда не отдаем наружу
	IsActive     bool       `json:"isActive" db:"is_active"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
