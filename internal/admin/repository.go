package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, user *AdminUser) error
	GetByEmail(ctx context.Context, email string) (*AdminUser, error)
	GetByID(ctx context.Context, id uuid.UUID) (*AdminUser, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

const adminColumns = `id, email, name, password_hash, is_active, last_login_at, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, user *AdminUser) error {
	query := `
		INSERT INTO admin_users (id, email, name, password_hash, is_active, created_at, updated_at)
		VALUES (:id, :email, :name, :password_hash, :is_active, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrEmailExists
		}
		return fmt.Errorf("repository: failed to create admin %s: %w", user.Email, err)
	}
	return nil
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*AdminUser, error) {
	var user AdminUser
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE email = $1`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to get admin by email: %w", err)
	}
	return &user, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*AdminUser, error) {
	var user AdminUser
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to get admin by id '%s': %w", id, err)
	}
	return &user, nil
}

func (r *postgresRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE admin_users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("repository: failed to update last login for '%s': %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type memoryRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*AdminUser
}

// NewMemoryRepository хранит администраторов в памяти процесса, когда БД не настроена.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[uuid.UUID]*AdminUser)}
}

func (r *memoryRepository) Create(_ context.Context, user *AdminUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == user.Email {
			return ErrEmailExists
		}
	}
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *memoryRepository) GetByEmail(_ context.Context, email string) (*AdminUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Email == email {
			found := *user
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepository) GetByID(_ context.Context, id uuid.UUID) (*AdminUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	found := *user
	return &found, nil
}

func (r *memoryRepository) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.LastLoginAt = &at
	user.UpdatedAt = at
	return nil
}
