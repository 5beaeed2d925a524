package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eegility/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator verifies HS256 bearer tokens whose subject is the user
// id. Role, department and activity always come from the user store, never
// from the token.
type JWTAuthenticator struct {
	secret []byte
	issuer string
	users  UserStore
}

func NewJWTAuthenticator(secret, issuer string, users UserStore) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &JWTAuthenticator{
		secret: []byte(secret),
		issuer: issuer,
		users:  users,
	}, nil
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, authorization string) (*domain.Identity, error) {
	raw, err := bearerToken(authorization)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, domain.NewError(domain.KindUnauthenticated, "invalid token")
	}
	if claims.Subject == "" {
		return nil, domain.NewError(domain.KindUnauthenticated, "token has no subject")
	}

	user, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.KindUnauthenticated, "unknown user")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	identity := user.Identity()
	return &identity, nil
}

// IssueToken подписывает токен для пользователя.
func (a *JWTAuthenticator) IssueToken(userID string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
