package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser           Role = "user"
	RoleDepartmentHead Role = "department_head"
	RoleAdmin          Role = "admin"
)

// ParseRole приводит роль к каноническому виду. Старые клиенты присылают
// роль то строкой ("DepartmentHead"), то номером enum ("1").
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "0":
		return RoleUser, nil
	case "department_head", "departmenthead", "department-head", "1":
		return RoleDepartmentHead, nil
	case "admin", "2":
		return RoleAdmin, nil
	default:
		return "", NewError(KindValidation, "unknown role %q", raw)
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleDepartmentHead, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID          string    `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	FirstName   string    `json:"first_name" db:"first_name"`
	LastName    string    `json:"last_name" db:"last_name"`
	Role        Role      `json:"role" db:"role"`
	Institution string    `json:"institution" db:"institution"`
	Department  string    `json:"department" db:"department"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Identity is the verified caller of a single request. It is passed
// explicitly into every policy and lifecycle call.
type Identity struct {
	UserID      string `json:"user_id"`
	Role        Role   `json:"role"`
	Institution string `json:"institution"`
	Department  string `json:"department"`
	IsActive    bool   `json:"is_active"`
}

func (u *User) Identity() Identity {
	return Identity{
		UserID:      u.ID,
		Role:        u.Role,
		Institution: u.Institution,
		Department:  u.Department,
		IsActive:    u.IsActive,
	}
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// SameDepartment сравнивает и отделение, и учреждение: одноимённые
// отделения разных клиник не пересекаются.
func (i Identity) SameDepartment(institution, department string) bool {
	return i.Department != "" &&
		i.Department == department &&
		i.Institution == institution
}
