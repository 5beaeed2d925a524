package auth

import (
	"context"
	"strings"

	"eegility/internal/domain"
)

// Authenticator turns the Authorization header of a request into the
// caller's identity. Missing or invalid credentials yield
// domain.ErrUnauthenticated; an inactive account still authenticates and is
// rejected later by the services.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (*domain.Identity, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// UserSyncer сохраняет профили, пришедшие от внешнего сервиса авторизации.
type UserSyncer interface {
	Upsert(ctx context.Context, user *domain.User) error
}

// bearerToken извлекает токен из заголовка "Bearer <token>".
func bearerToken(authorization string) (string, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", domain.NewError(domain.KindUnauthenticated, "no authorization header")
	}
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", domain.NewError(domain.KindUnauthenticated, "malformed authorization header")
	}
	return strings.TrimSpace(token), nil
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the identity stored by the authentication middleware.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(domain.Identity)
	return identity, ok
}
