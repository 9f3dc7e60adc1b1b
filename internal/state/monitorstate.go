package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/vpittamp/hyprdist/internal/dist"
)

// SchemaVersion identifies the monitor state file layout.
const SchemaVersion = "1"

// MonitorInfo is one active monitor with the role it currently fills.
type MonitorInfo struct {
	Name   string    `json:"name"`
	Role   dist.Role `json:"role"`
	Active bool      `json:"active"`
}

// MonitorState is the durable record of the last successful reassignment.
// It is recovery and diagnostics output only; a live snapshot always wins
// over anything read back from disk.
type MonitorState struct {
	Version              string         `json:"version"`
	LastUpdated          time.Time      `json:"lastUpdated"`
	ActiveMonitors       []MonitorInfo  `json:"activeMonitors"`
	WorkspaceAssignments map[int]string `json:"workspaceAssignments"`
}

// NewMonitorState assembles the persisted view from the ordered active
// outputs, their role assignments, and the resolved distribution. Every
// managed workspace must resolve to an output; a gap means the
// distribution or role map is broken and the state must not be written.
func NewMonitorState(now time.Time, outputs []string, roles map[string]dist.Role, distribution dist.Distribution) (*MonitorState, error) {
	monitors := make([]MonitorInfo, 0, len(outputs))
	for _, name := range outputs {
		role, ok := roles[name]
		if !ok {
			return nil, fmt.Errorf("output %q has no role assignment", name)
		}
		monitors = append(monitors, MonitorInfo{Name: name, Role: role, Active: true})
	}
	inverted := dist.InvertRoles(outputs, roles)
	assignments := make(map[int]string, distribution.WorkspaceCount)
	for _, ws := range distribution.Workspaces() {
		role, ok := distribution.Role(ws)
		if !ok {
			return nil, fmt.Errorf("workspace %d missing from distribution", ws)
		}
		output, ok := inverted[role]
		if !ok {
			return nil, fmt.Errorf("no active output fills role %q for workspace %d", role, ws)
		}
		assignments[ws] = output
	}
	return &MonitorState{
		Version:              SchemaVersion,
		LastUpdated:          now,
		ActiveMonitors:       monitors,
		WorkspaceAssignments: assignments,
	}, nil
}

// AssignmentPairs returns the workspace assignments as a sorted flat list,
// the shape consumed by the downstream configuration tooling.
func (m *MonitorState) AssignmentPairs() []AssignmentPair {
	pairs := make([]AssignmentPair, 0, len(m.WorkspaceAssignments))
	for ws, output := range m.WorkspaceAssignments {
		pairs = append(pairs, AssignmentPair{Workspace: ws, Output: output})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Workspace < pairs[j].Workspace })
	return pairs
}

// AssignmentPair is one row of the derived workspace-assignment artifact.
type AssignmentPair struct {
	Workspace int    `json:"workspace"`
	Output    string `json:"output"`
}

// CloneMonitorState returns a deep copy, or nil for nil input.
func CloneMonitorState(src *MonitorState) *MonitorState {
	if src == nil {
		return nil
	}
	copyState := *src
	if len(src.ActiveMonitors) > 0 {
		copyState.ActiveMonitors = append([]MonitorInfo(nil), src.ActiveMonitors...)
	}
	if len(src.WorkspaceAssignments) > 0 {
		assignments := make(map[int]string, len(src.WorkspaceAssignments))
		for ws, output := range src.WorkspaceAssignments {
			assignments[ws] = output
		}
		copyState.WorkspaceAssignments = assignments
	}
	return &copyState
}
