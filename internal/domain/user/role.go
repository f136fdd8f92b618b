package user

import (
	"fmt"
	"strings"
)

// Role is ordered: root > admin > user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleRoot  Role = "root"
)

// Rank returns the position of the role in the hierarchy. Unknown roles rank
// below RoleUser so they never pass a privilege check.
func (r Role) Rank() int {
	switch r {
	case RoleRoot:
		return 3
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r is the same as or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// CanManageRole reports whether an actor holding r may act on an account that
// holds target, or assign target to someone. Root manages everyone, everybody
// else only manages strictly lower roles.
func (r Role) CanManageRole(target Role) bool {
	if !r.Valid() || !target.Valid() {
		return false
	}
	if r == RoleRoot {
		return true
	}
	return r.Rank() > target.Rank()
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
