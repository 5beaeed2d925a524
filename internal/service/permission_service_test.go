package service

import (
	"context"
	"testing"

	"eegility/internal/domain"

	"github.com/google/uuid"
)

func TestCheckPermissionUnknownRecord(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.perms.CheckPermission(context.Background(), root.Identity(), uuid.New(), domain.ActionView)
	assertKind(t, err, domain.KindNotFound)
}

func TestCheckPermissionIdentityChecks(t *testing.T) {
	env := newTestEnv(t)
	record := env.addRecord(alice, baseTime)

	_, err := env.perms.CheckPermission(context.Background(), domain.Identity{}, record.ID, domain.ActionView)
	assertKind(t, err, domain.KindUnauthenticated)

	_, err = env.perms.CheckPermission(context.Background(), frank.Identity(), record.ID, domain.ActionView)
	assertKind(t, err, domain.KindAccountInactive)
}

func TestAuthorizeMasksInvisibleRecords(t *testing.T) {
	env := newTestEnv(t)
	record := env.addRecord(alice, baseTime)
	env.share(alice, bob, record, domain.PermissionViewOnly, nil, true)
	ctx := context.Background()

	tests := []struct {
		name   string
		caller domain.User
		action domain.Action
		want   domain.ErrorKind
	}{
		{"owner deletes", alice, domain.ActionDelete, ""},
		{"admin modifies", root, domain.ActionModify, ""},
		{"head downloads", carol, domain.ActionDownload, ""},
		{"head modifies", carol, domain.ActionModify, domain.KindForbidden},
		{"grantee views", bob, domain.ActionView, ""},
		{"grantee downloads view only", bob, domain.ActionDownload, domain.KindForbidden},
		{"grantee shares", bob, domain.ActionShare, domain.KindForbidden},
		{"other head views", dave, domain.ActionView, domain.KindNotFound},
		{"other head deletes", dave, domain.ActionDelete, domain.KindNotFound},
		{"other institution head views", erin, domain.ActionView, domain.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.perms.Authorize(ctx, tt.caller.Identity(), record.ID, tt.action)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.ID != record.ID {
					t.Fatalf("got record %s", got.ID)
				}
				return
			}
			assertKind(t, err, tt.want)
		})
	}
}

func TestEffectiveAccess(t *testing.T) {
	env := newTestEnv(t)
	record := env.addRecord(alice, baseTime)
	env.share(alice, bob, record, domain.PermissionViewDownload, nil, true)
	ctx := context.Background()

	tests := []struct {
		caller         domain.User
		wantType       domain.AccessType
		wantPermission domain.Permission
	}{
		{alice, domain.AccessTypeOwner, domain.PermissionViewDownload},
		{carol, domain.AccessTypeDepartment, domain.PermissionViewDownload},
		{root, domain.AccessTypeDepartment, domain.PermissionViewDownload},
		{bob, domain.AccessTypeShared, domain.PermissionViewDownload},
	}
	for _, tt := range tests {
		summary, err := env.perms.EffectiveAccess(ctx, tt.caller.Identity(), record.ID)
		if err != nil {
			t.Fatalf("%s: %v", tt.caller.ID, err)
		}
		if summary.AccessType != tt.wantType || summary.Permission != tt.wantPermission {
			t.Errorf("%s: got %s/%s", tt.caller.ID, summary.AccessType, summary.Permission)
		}
	}

	_, err := env.perms.EffectiveAccess(ctx, dave.Identity(), record.ID)
	assertKind(t, err, domain.KindNotFound)
}
