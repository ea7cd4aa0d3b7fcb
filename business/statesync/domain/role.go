package domain

import "fmt"

// Role is the process's position in a multi-process deployment.
type Role string

const (
	// RoleStandalone generates and replays state locally and never touches the shared cache.
	RoleStandalone Role = "standalone"
	// RolePrimary is the single authoritative writer of shared snapshots.
	RolePrimary Role = "primary"
	// RoleReplica adopts snapshots written by the primary.
	RoleReplica Role = "replica"
)

// ParseRole parses a configured role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStandalone, RolePrimary, RoleReplica:
		return r, nil
	case "":
		return RoleStandalone, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// IsReplica reports whether the role follows another process's cache writes.
func (r Role) IsReplica() bool {
	return r == RoleReplica
}
