package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eegility/internal/domain"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, first_name, last_name, role, institution, department, is_active, created_at`

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *UserRepository) get(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Upsert сохраняет профиль, полученный от внешнего сервиса авторизации,
// чтобы получателей шаринга можно было искать по email.
func (r *UserRepository) Upsert(ctx context.Context, user *domain.User) error {
	query := `
        INSERT INTO users (` + userColumns + `)
        VALUES (:id, :email, :first_name, :last_name, :role, :institution, :department, :is_active, CURRENT_TIMESTAMP)
        ON CONFLICT (id) DO UPDATE SET
            email       = EXCLUDED.email,
            first_name  = EXCLUDED.first_name,
            last_name   = EXCLUDED.last_name,
            role        = EXCLUDED.role,
            institution = EXCLUDED.institution,
            department  = EXCLUDED.department,
            is_active   = EXCLUDED.is_active`

	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}
