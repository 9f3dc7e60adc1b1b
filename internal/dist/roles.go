package dist

// AssignRoles maps active output names to roles by connection order: the
// first output seen becomes primary, the second secondary, the third
// tertiary, and anything after that overflow. The input order is whatever
// Hyprland reported, which reflects registration order. An empty input
// yields an empty map; the caller decides how to treat a headless
// topology.
func AssignRoles(outputNames []string) map[string]Role {
	ordered := []Role{RolePrimary, RoleSecondary, RoleTertiary}
	assignments := make(map[string]Role, len(outputNames))
	for i, name := range outputNames {
		if name == "" {
			continue
		}
		if _, seen := assignments[name]; seen {
			continue
		}
		if i < len(ordered) {
			assignments[name] = ordered[i]
		} else {
			assignments[name] = RoleOverflow
		}
	}
	return assignments
}

// InvertRoles builds the role-to-output view used when resolving a
// distribution to concrete commands. Overflow may be held by several
// outputs; the first one in connection order wins, matching the ordering
// of the input slice handed to AssignRoles.
func InvertRoles(outputNames []string, assignments map[string]Role) map[Role]string {
	inverted := make(map[Role]string, len(assignments))
	for _, name := range outputNames {
		role, ok := assignments[name]
		if !ok {
			continue
		}
		if _, taken := inverted[role]; !taken {
			inverted[role] = name
		}
	}
	return inverted
}
