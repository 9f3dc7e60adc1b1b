package engine

import (
	"time"

	"github.com/vpittamp/hyprdist/internal/state"
)

// DetectMigrations finds every window that lives on a workspace still
// assigned to a disconnected output. NewOutput is left blank; the
// executor fills it in once the new role mapping is known. An empty
// disconnected set returns nil without touching the snapshot, which is
// the common case on monitor-connect events.
func DetectMigrations(snap *state.Snapshot, disconnected map[string]struct{}, now time.Time) []MigrationRecord {
	if len(disconnected) == 0 {
		return nil
	}
	var records []MigrationRecord
	for _, ws := range snap.Workspaces {
		if _, gone := disconnected[ws.MonitorName]; !gone {
			continue
		}
		for _, client := range snap.ClientsOnWorkspace(ws.ID) {
			records = append(records, MigrationRecord{
				WindowID:    client.Address,
				WindowClass: client.Class,
				OldOutput:   ws.MonitorName,
				Workspace:   ws.ID,
				Timestamp:   now,
			})
		}
	}
	return records
}

// diffOutputs returns the names present in before but absent from the
// current snapshot, i.e. the outputs that disappeared since the last
// successful reassignment.
func diffOutputs(before []string, current []string) map[string]struct{} {
	currentSet := make(map[string]struct{}, len(current))
	for _, name := range current {
		currentSet[name] = struct{}{}
	}
	gone := make(map[string]struct{})
	for _, name := range before {
		if _, ok := currentSet[name]; !ok {
			gone[name] = struct{}{}
		}
	}
	return gone
}
