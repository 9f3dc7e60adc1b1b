package state

import "context"

// Client describes a Hyprland client window.
type Client struct {
	Address     string
	Class       string
	Title       string
	WorkspaceID int
	MonitorName string
}

// Workspace describes a Hyprland workspace and the monitor that owns it.
type Workspace struct {
	ID          int
	Name        string
	MonitorName string
	Windows     int
}

// Monitor describes an active monitor in connection order.
type Monitor struct {
	ID       int
	Name     string
	Focused  bool
	Disabled bool
}

// Snapshot is a point-in-time view of the Hyprland topology. It is built
// fresh for every reassignment; Hyprland remains the authority and
// nothing here is cached between operations.
type Snapshot struct {
	Monitors   []Monitor
	Workspaces []Workspace
	Clients    []Client
}

// DataSource abstracts the queries required to build a topology snapshot.
type DataSource interface {
	ListMonitors(ctx context.Context) ([]Monitor, error)
	ListWorkspaces(ctx context.Context) ([]Workspace, error)
	ListClients(ctx context.Context) ([]Client, error)
}

// NewSnapshot queries the data source and assembles a snapshot. Any query
// failure aborts the whole snapshot; a partially built view is worse than
// none because the caller would act on it.
func NewSnapshot(ctx context.Context, src DataSource) (*Snapshot, error) {
	monitors, err := src.ListMonitors(ctx)
	if err != nil {
		return nil, err
	}
	workspaces, err := src.ListWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := src.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Monitors:   monitors,
		Workspaces: workspaces,
		Clients:    clients,
	}
	// Clients sometimes arrive without a monitor name; the owning
	// workspace knows it.
	workspaceMonitor := make(map[int]string, len(workspaces))
	for _, ws := range workspaces {
		workspaceMonitor[ws.ID] = ws.MonitorName
	}
	for i := range snap.Clients {
		c := &snap.Clients[i]
		if c.MonitorName == "" {
			if name, ok := workspaceMonitor[c.WorkspaceID]; ok {
				c.MonitorName = name
			}
		}
	}
	return snap, nil
}

// MonitorNames returns the names of active monitors in connection order.
func (s *Snapshot) MonitorNames() []string {
	names := make([]string, 0, len(s.Monitors))
	for _, m := range s.Monitors {
		if m.Disabled {
			continue
		}
		names = append(names, m.Name)
	}
	return names
}

// WorkspaceByID finds a workspace by its number, or nil.
func (s *Snapshot) WorkspaceByID(id int) *Workspace {
	for i := range s.Workspaces {
		if s.Workspaces[i].ID == id {
			return &s.Workspaces[i]
		}
	}
	return nil
}

// WorkspacesOnMonitor returns the workspace numbers currently owned by the
// named monitor, in the order Hyprland reported them.
func (s *Snapshot) WorkspacesOnMonitor(name string) []int {
	var ids []int
	for _, ws := range s.Workspaces {
		if ws.MonitorName == name {
			ids = append(ids, ws.ID)
		}
	}
	return ids
}

// ClientsOnWorkspace returns the clients contained in workspace id.
func (s *Snapshot) ClientsOnWorkspace(id int) []Client {
	var out []Client
	for _, c := range s.Clients {
		if c.WorkspaceID == id {
			out = append(out, c)
		}
	}
	return out
}

// CloneSnapshot returns a deep copy of the provided snapshot.
func CloneSnapshot(src *Snapshot) *Snapshot {
	if src == nil {
		return nil
	}
	copySnap := *src
	if len(src.Monitors) > 0 {
		copySnap.Monitors = append([]Monitor(nil), src.Monitors...)
	}
	if len(src.Workspaces) > 0 {
		copySnap.Workspaces = append([]Workspace(nil), src.Workspaces...)
	}
	if len(src.Clients) > 0 {
		copySnap.Clients = append([]Client(nil), src.Clients...)
	}
	return &copySnap
}
