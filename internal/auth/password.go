package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"procurement/internal/workflow"
	"procurement/models"
)

const MinPasswordLength = 8

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserLookup: то, что Identity Gate читает из хранилища.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Gate аутентифицирует пользователей и превращает токены в workflow.Actor.
type Gate struct {
	users  UserLookup
	issuer *Issuer
}

func NewGate(users UserLookup, issuer *Issuer) *Gate {
	return &Gate{users: users, issuer: issuer}
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// Login проверяет пароль. Неизвестный e-mail, неверный пароль и заблокированный
// пользователь неразличимы для клиента.
func (g *Gate) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := g.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, workflow.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !u.Active || u.PasswordHash == "" || !CheckPassword(u.PasswordHash, password) {
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	token, exp, err := g.issuer.Issue(u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// Resolve проверяет токен и загружает актуальные роль и статус пользователя.
func (g *Gate) Resolve(ctx context.Context, token string) (workflow.Actor, error) {
	id, _, err := g.issuer.Parse(token)
	if err != nil {
		return workflow.Actor{}, err
	}
	u, err := g.users.GetUser(ctx, id)
	if errors.Is(err, workflow.ErrNotFound) {
		return workflow.Actor{}, fmt.Errorf("%w: unknown user", ErrUnauthorized)
	}
	if err != nil {
		return workflow.Actor{}, err
	}
	if !u.Active {
		return workflow.Actor{}, fmt.Errorf("%w: user is disabled", ErrUnauthorized)
	}
	return workflow.Actor{ID: u.ID, Role: u.Role, Email: u.Email, OrganizationID: u.OrganizationID}, nil
}
