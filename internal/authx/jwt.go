package authx

import (
	"context"
	"errors"
	"fmt"

	"github.com/daluzconsciente/tienda-api/internal/postgres"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
)

const Audience = "authenticated"

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 session tokens issued by the auth provider.
type Verifier struct {
	Secret []byte
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

type RoleResolver interface {
	// RoleFor returns "" for users without an active operator role.
	RoleFor(ctx context.Context, userID string) (Role, error)
}

type AdminRepo struct{ DB postgres.DB }

func (r *AdminRepo) RoleFor(ctx context.Context, userID string) (Role, error) {
	var role string
	err := r.DB.QueryRow(ctx,
		`SELECT role FROM admin_users WHERE user_id = $1 AND is_active`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve role: %w", err)
	}
	return Role(role), nil
}
