package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	err := fmt.Errorf("respond: %w", NewError(KindConflict, "request %s changed", "abc"))

	if !errors.Is(err, ErrConflict) {
		t.Fatal("wrapped conflict should match ErrConflict")
	}
	if errors.Is(err, ErrInvalidTransition) {
		t.Fatal("conflict must not match another kind")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("KindOf = %s", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("unclassified errors are internal")
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"admin":           RoleAdmin,
		"Admin":           RoleAdmin,
		"2":               RoleAdmin,
		"DepartmentHead":  RoleDepartmentHead,
		"department_head": RoleDepartmentHead,
		"1":               RoleDepartmentHead,
		"User":            RoleUser,
	}
	for raw, want := range cases {
		got, err := ParseRole(raw)
		if err != nil || got != want {
			t.Errorf("ParseRole(%q) = %s, %v; want %s", raw, got, err, want)
		}
	}

	if _, err := ParseRole("superuser"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown role error = %v", err)
	}
}
