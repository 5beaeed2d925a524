package auth

import (
	"context"
	"fmt"
	"strings"

	"eegility/internal/domain"
	"eegility/internal/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const getUserMethod = "/auth_v1.AuthV1/GetUser"

// GRPCAuthenticator asks the remote auth service who the caller is. The
// Authorization header is forwarded as metadata; the profile comes back as
// a google.protobuf.Struct.
type GRPCAuthenticator struct {
	conn  grpc.ClientConnInterface
	users UserSyncer
	log   *zap.Logger
}

// NewGRPCAuthenticator creates the authenticator. users may be nil; when
// set, every resolved profile is stored locally so recipients can be found
// by email.
func NewGRPCAuthenticator(conn grpc.ClientConnInterface, users UserSyncer, log *zap.Logger) *GRPCAuthenticator {
	return &GRPCAuthenticator{
		conn:  conn,
		users: users,
		log:   logger.Named(log, "auth"),
	}
}

func (a *GRPCAuthenticator) Authenticate(ctx context.Context, authorization string) (*domain.Identity, error) {
	if _, err := bearerToken(authorization); err != nil {
		return nil, err
	}

	md := metadata.New(map[string]string{
		"authorization": authorization,
	})
	ctx = metadata.NewOutgoingContext(ctx, md)

	var resp structpb.Struct
	if err := a.conn.Invoke(ctx, getUserMethod, &emptypb.Empty{}, &resp); err != nil {
		switch status.Code(err) {
		case codes.Unauthenticated, codes.PermissionDenied, codes.NotFound:
			return nil, domain.NewError(domain.KindUnauthenticated, "invalid token")
		}
		return nil, fmt.Errorf("auth service: %w", err)
	}

	user, err := userFromStruct(&resp)
	if err != nil {
		return nil, err
	}

	if a.users != nil {
		if err := a.users.Upsert(ctx, user); err != nil {
			a.log.Warn("failed to sync user profile", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	identity := user.Identity()
	return &identity, nil
}

// userFromStruct разбирает профиль пользователя. Старые версии сервиса
// присылают name/lastname и роль номером.
func userFromStruct(s *structpb.Struct) (*domain.User, error) {
	fields := s.GetFields()
	str := func(keys ...string) string {
		for _, key := range keys {
			if v, ok := fields[key]; ok {
				switch kind := v.GetKind().(type) {
				case *structpb.Value_StringValue:
					return strings.TrimSpace(kind.StringValue)
				case *structpb.Value_NumberValue:
					return fmt.Sprintf("%d", int64(kind.NumberValue))
				}
			}
		}
		return ""
	}

	user := &domain.User{
		ID:          str("id", "user_id"),
		Email:       str("email"),
		FirstName:   str("first_name", "name"),
		LastName:    str("last_name", "lastname"),
		Institution: str("institution"),
		Department:  str("department"),
		IsActive:    true,
	}
	if user.ID == "" {
		return nil, domain.NewError(domain.KindUnauthenticated, "auth service returned no user id")
	}

	user.Role = domain.RoleUser
	if raw := str("role"); raw != "" {
		role, err := domain.ParseRole(raw)
		if err != nil {
			return nil, fmt.Errorf("auth service: %w", err)
		}
		user.Role = role
	}

	if v, ok := fields["is_active"]; ok {
		if b, ok := v.GetKind().(*structpb.Value_BoolValue); ok {
			user.IsActive = b.BoolValue
		}
	}
	return user, nil
}
