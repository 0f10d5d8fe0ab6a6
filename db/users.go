package db

import (
	"context"
	"strings"

	"procurement/models"
)

const userColumns = `id, email, name, role, organization_id, password_hash, active, created_at`

func (r *repo) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.getContext(ctx, u, query, id); err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

func (r *repo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u := &models.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	if err := r.getContext(ctx, u, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		return nil, notFound(err, "user", email)
	}
	return u, nil
}

// FindRequester: активный заказчик, предпочтительно из указанной организации.
func (r *repo) FindRequester(ctx context.Context, preferOrgID int64) (*models.User, error) {
	u := &models.User{}
	query := `
        SELECT ` + userColumns + ` FROM users
        WHERE role = $1 AND active
        ORDER BY (organization_id = $2) DESC, id
        LIMIT 1`
	if err := r.getContext(ctx, u, query, models.RoleRequester, preferOrgID); err != nil {
		return nil, notFound(err, "requester for organization", preferOrgID)
	}
	return u, nil
}

// CreateUser используется административной командой CLI.
func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	query := `
        INSERT INTO users (email, name, role, organization_id, password_hash, active)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query,
		u.Email, u.Name, u.Role, u.OrganizationID, u.PasswordHash, u.Active).
		Scan(&u.ID, &u.CreatedAt)
	return mapErr(err)
}

// SetUserActive включает или блокирует пользователя.
func (s *Storage) SetUserActive(ctx context.Context, email string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET active = $1 WHERE email = $2`,
		active, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return err
	}
	return mustAffect(res, "user", email)
}
