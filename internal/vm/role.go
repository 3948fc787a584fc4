package vm

import "fmt"

// Role is the part a node plays in a nondeterministic call.
type Role int

const (
	// RoleLeader executes nondet blocks first and posts their outcome.
	RoleLeader Role = iota

	// RoleValidator fetches the leader outcome and votes on it.
	RoleValidator
)

// String returns "leader" or "validator".
func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleValidator:
		return "validator"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole parses the String form of a role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "leader", "":
		return RoleLeader, nil
	case "validator":
		return RoleValidator, nil
	default:
		return 0, fmt.Errorf("unknown role %q (want leader or validator)", s)
	}
}

// Permissions gates host capabilities for one execution.
type Permissions struct {
	// Deterministic executions may touch storage but not host modules.
	// Nondet blocks run with Deterministic unset.
	Deterministic bool

	CanReadStorage  bool
	CanWriteStorage bool
	CanSpawnNondet  bool
	CanSendMessages bool
}

// TopLevel is the permission set of a contract entry point.
func TopLevel() Permissions {
	return Permissions{
		Deterministic:   true,
		CanReadStorage:  true,
		CanWriteStorage: true,
		CanSpawnNondet:  true,
		CanSendMessages: true,
	}
}

// Nondet is the permission set of a leader or validator function.
func Nondet() Permissions {
	return Permissions{}
}

// Sandbox derives the permissions of a nested execution. Writes are granted
// only when requested and held by the parent. A sandbox never spawns nondet
// calls nor sends messages.
func (p Permissions) Sandbox(allowWrite bool) Permissions {
	return Permissions{
		Deterministic:   p.Deterministic,
		CanReadStorage:  p.CanReadStorage,
		CanWriteStorage: allowWrite && p.CanWriteStorage,
	}
}

// String renders the permission set for logs.
func (p Permissions) String() string {
	flag := func(b bool, s string) string {
		if b {
			return s
		}
		return "-"
	}
	return flag(p.Deterministic, "d") + flag(p.CanReadStorage, "r") + flag(p.CanWriteStorage, "w") +
		flag(p.CanSpawnNondet, "n") + flag(p.CanSendMessages, "m")
}

// ParsePermissions parses the String form.
func ParsePermissions(s string) (Permissions, error) {
	var p Permissions
	if len(s) != 5 {
		return p, fmt.Errorf("invalid permissions %q", s)
	}
	fields := []*bool{&p.Deterministic, &p.CanReadStorage, &p.CanWriteStorage, &p.CanSpawnNondet, &p.CanSendMessages}
	for i, letter := range "drwnm" {
		switch rune(s[i]) {
		case letter:
			*fields[i] = true
		case '-':
		default:
			return p, fmt.Errorf("invalid permissions %q", s)
		}
	}
	return p, nil
}
