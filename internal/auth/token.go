// Package auth реализует Identity Gate: выпуск и проверка JWT, пароли, middleware.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"procurement/models"
)

var ErrUnauthorized = errors.New("unauthorized")

const issuer = "procurement"

// Claims: полезная нагрузка токена. Роль в токене информативна:
// middleware перечитывает пользователя из хранилища на каждый запрос.
type Claims struct {
	Email          string      `json:"email"`
	Role           models.Role `json:"role"`
	OrganizationID int64       `json:"org"`
	jwt.RegisteredClaims
}

// Issuer подписывает и проверяет токены HS256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(u *models.User) (token string, expires time.Time, err error) {
	now := i.now()
	expires = now.Add(i.ttl)
	claims := Claims{
		Email:          u.Email,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expires, nil
}

// Parse проверяет подпись, срок и издателя и возвращает ID пользователя.
func (i *Issuer) Parse(token string) (int64, *Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, nil, fmt.Errorf("%w: bad subject", ErrUnauthorized)
	}
	return id, claims, nil
}
