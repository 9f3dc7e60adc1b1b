// Package dist holds the workspace distribution policy: which role each
// numbered workspace belongs to for a given monitor count, and which
// physical output currently fills each role. Everything here is pure;
// no IPC, no files, no clocks.
package dist

import "fmt"

// Role is an abstract monitor position, decoupled from device names so
// the distribution table never hardcodes an output identifier.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
	RoleTertiary  Role = "tertiary"
	RoleOverflow  Role = "overflow"
)

// ValidRole reports whether r is one of the four known roles.
func ValidRole(r Role) bool {
	switch r {
	case RolePrimary, RoleSecondary, RoleTertiary, RoleOverflow:
		return true
	}
	return false
}

// DefaultWorkspaceCount is the number of managed workspaces when the
// configuration does not override it.
const DefaultWorkspaceCount = 70

// Distribution maps every managed workspace number to a role. Values are
// only constructed through Calculate, which guarantees total coverage of
// 1..WorkspaceCount and role validity; an invalid Distribution cannot
// exist.
type Distribution struct {
	MonitorCount   int
	WorkspaceCount int
	workspaceRole  map[int]Role
}

// Role returns the role for workspace ws. Coverage is total, so the
// boolean is false only for workspace numbers outside 1..WorkspaceCount.
func (d Distribution) Role(ws int) (Role, bool) {
	r, ok := d.workspaceRole[ws]
	return r, ok
}

// Workspaces returns the managed workspace numbers in ascending order.
func (d Distribution) Workspaces() []int {
	out := make([]int, 0, d.WorkspaceCount)
	for ws := 1; ws <= d.WorkspaceCount; ws++ {
		out = append(out, ws)
	}
	return out
}

// RoleTable returns a copy of the workspace-to-role map.
func (d Distribution) RoleTable() map[int]Role {
	out := make(map[int]Role, len(d.workspaceRole))
	for ws, r := range d.workspaceRole {
		out[ws] = r
	}
	return out
}

// Calculate returns the distribution for monitorCount monitors over
// workspaceCount workspaces. The table is fixed:
//
//	1 monitor:  1..N primary
//	2 monitors: 1-2 primary, 3..N secondary
//	3 monitors: 1-2 primary, 3-5 secondary, 6..N tertiary
//	4+:         1-2 primary, 3-5 secondary, 6-9 tertiary, 10..N overflow
//
// The result is deterministic for a given input pair.
func Calculate(monitorCount, workspaceCount int) (Distribution, error) {
	if monitorCount < 1 {
		return Distribution{}, fmt.Errorf("monitor count must be at least 1, got %d", monitorCount)
	}
	if workspaceCount < 1 {
		return Distribution{}, fmt.Errorf("workspace count must be at least 1, got %d", workspaceCount)
	}
	roles := make(map[int]Role, workspaceCount)
	for ws := 1; ws <= workspaceCount; ws++ {
		roles[ws] = roleFor(ws, monitorCount)
	}
	d := Distribution{
		MonitorCount:   monitorCount,
		WorkspaceCount: workspaceCount,
		workspaceRole:  roles,
	}
	if err := d.validate(); err != nil {
		return Distribution{}, err
	}
	return d, nil
}

func roleFor(ws, monitorCount int) Role {
	switch {
	case monitorCount == 1:
		return RolePrimary
	case monitorCount == 2:
		if ws <= 2 {
			return RolePrimary
		}
		return RoleSecondary
	case monitorCount == 3:
		switch {
		case ws <= 2:
			return RolePrimary
		case ws <= 5:
			return RoleSecondary
		default:
			return RoleTertiary
		}
	default:
		switch {
		case ws <= 2:
			return RolePrimary
		case ws <= 5:
			return RoleSecondary
		case ws <= 9:
			return RoleTertiary
		default:
			return RoleOverflow
		}
	}
}

// validate enforces the coverage and role-validity invariants. A failure
// here is a defect in the table above, not an environmental condition.
func (d Distribution) validate() error {
	for ws := 1; ws <= d.WorkspaceCount; ws++ {
		r, ok := d.workspaceRole[ws]
		if !ok {
			return fmt.Errorf("distribution gap: workspace %d has no role", ws)
		}
		if !ValidRole(r) {
			return fmt.Errorf("distribution assigns invalid role %q to workspace %d", r, ws)
		}
	}
	return nil
}
