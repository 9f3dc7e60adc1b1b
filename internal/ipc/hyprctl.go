package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vpittamp/hyprdist/internal/state"
	"github.com/vpittamp/hyprdist/internal/util"
)

// Client wraps hyprctl shell-outs for topology queries and, when the
// command socket is unavailable, workspace dispatches.
type Client struct {
	Binary string
}

// NewClient returns a hyprctl client using the binary on PATH.
func NewClient() *Client {
	return &Client{Binary: "hyprctl"}
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("hyprctl %s: %v: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (c *Client) queryJSON(ctx context.Context, topic string) ([]byte, error) {
	return c.run(ctx, "-j", topic)
}

// ListMonitors returns the active monitors in the order Hyprland reports
// them, which reflects connection order.
func (c *Client) ListMonitors(ctx context.Context) ([]state.Monitor, error) {
	data, err := c.queryJSON(ctx, "monitors")
	if err != nil {
		return nil, err
	}
	var raw []struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		Focused  bool   `json:"focused"`
		Disabled bool   `json:"disabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode monitors: %w", err)
	}
	monitors := make([]state.Monitor, 0, len(raw))
	for _, m := range raw {
		monitors = append(monitors, state.Monitor{
			ID:       m.ID,
			Name:     m.Name,
			Focused:  m.Focused,
			Disabled: m.Disabled,
		})
	}
	return monitors, nil
}

// ListWorkspaces returns workspaces with their owning monitor.
func (c *Client) ListWorkspaces(ctx context.Context) ([]state.Workspace, error) {
	data, err := c.queryJSON(ctx, "workspaces")
	if err != nil {
		return nil, err
	}
	var raw []struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		MonitorName string `json:"monitor"`
		Windows     int    `json:"windows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode workspaces: %w", err)
	}
	workspaces := make([]state.Workspace, 0, len(raw))
	for _, ws := range raw {
		workspaces = append(workspaces, state.Workspace{
			ID:          ws.ID,
			Name:        ws.Name,
			MonitorName: ws.MonitorName,
			Windows:     ws.Windows,
		})
	}
	return workspaces, nil
}

// ListClients returns all client windows.
func (c *Client) ListClients(ctx context.Context) ([]state.Client, error) {
	data, err := c.queryJSON(ctx, "clients")
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Address   string `json:"address"`
		Class     string `json:"class"`
		Title     string `json:"title"`
		Workspace struct {
			ID int `json:"id"`
		} `json:"workspace"`
		Monitor any `json:"monitor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode clients: %w", err)
	}
	clients := make([]state.Client, 0, len(raw))
	for _, cl := range raw {
		// Older Hyprland versions report the monitor as a numeric id,
		// newer ones as a name.
		var monitorName string
		switch v := cl.Monitor.(type) {
		case string:
			monitorName = v
		case float64:
			monitorName = strconv.Itoa(int(v))
		}
		clients = append(clients, state.Client{
			Address:     cl.Address,
			Class:       cl.Class,
			Title:       cl.Title,
			WorkspaceID: cl.Workspace.ID,
			MonitorName: monitorName,
		})
	}
	return clients, nil
}

// MoveWorkspaceToMonitor dispatches a single workspace reassignment via
// hyprctl. Hyprland answers "ok" on success.
func (c *Client) MoveWorkspaceToMonitor(ctx context.Context, workspace int, output string) error {
	out, err := c.run(ctx, "dispatch", "moveworkspacetomonitor", strconv.Itoa(workspace), output)
	if err != nil {
		return err
	}
	if reply := strings.TrimSpace(string(out)); reply != "" && reply != "ok" {
		return fmt.Errorf("moveworkspacetomonitor %d %s: %s", workspace, output, reply)
	}
	return nil
}

var _ state.DataSource = (*Client)(nil)
var _ Commander = (*Client)(nil)

// Commander issues workspace reassignment commands. Each command reports
// its own success or failure.
type Commander interface {
	MoveWorkspaceToMonitor(ctx context.Context, workspace int, output string) error
}

// CommandStrategy describes how commands reach Hyprland.
type CommandStrategy string

const (
	// CommandStrategySocket uses the Hyprland command socket directly.
	CommandStrategySocket CommandStrategy = "socket"
	// CommandStrategyHyprctl shells out to the hyprctl binary.
	CommandStrategyHyprctl CommandStrategy = "hyprctl"
)

// EngineClient bundles the query client with a command strategy.
type EngineClient struct {
	*Client
	commander Commander
}

// MoveWorkspaceToMonitor forwards to the active command strategy.
func (c *EngineClient) MoveWorkspaceToMonitor(ctx context.Context, workspace int, output string) error {
	if c.commander != nil {
		return c.commander.MoveWorkspaceToMonitor(ctx, workspace, output)
	}
	return c.Client.MoveWorkspaceToMonitor(ctx, workspace, output)
}

// NewEngineClient returns a client using the requested strategy, falling
// back to hyprctl when the command socket cannot be resolved.
func NewEngineClient(logger *util.Logger, requested CommandStrategy) (*EngineClient, CommandStrategy, error) {
	base := NewClient()
	switch requested {
	case CommandStrategySocket:
		cmdr, err := newSocketCommander()
		if err != nil {
			if logger != nil {
				logger.Warnf("falling back to hyprctl commands: %v", err)
			}
			return &EngineClient{Client: base}, CommandStrategyHyprctl, nil
		}
		if logger != nil {
			logger.Debugf("using command socket at %s", cmdr.SocketPath())
		}
		return &EngineClient{Client: base, commander: cmdr}, CommandStrategySocket, nil
	case CommandStrategyHyprctl:
		return &EngineClient{Client: base}, CommandStrategyHyprctl, nil
	default:
		return nil, "", fmt.Errorf("unknown command strategy %q", requested)
	}
}

var _ Commander = (*EngineClient)(nil)
