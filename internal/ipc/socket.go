package ipc

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type socketCommander struct {
	path string
}

func newSocketCommander() (*socketCommander, error) {
	path, err := commandSocketPath()
	if err != nil {
		return nil, err
	}
	return &socketCommander{path: path}, nil
}

// MoveWorkspaceToMonitor writes one dispatch to the command socket and
// reads the reply. Hyprland answers "ok" per dispatch; anything else is a
// command failure.
func (d *socketCommander) MoveWorkspaceToMonitor(ctx context.Context, workspace int, output string) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", d.path)
	if err != nil {
		return fmt.Errorf("connect command socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	payload := "dispatch moveworkspacetomonitor " + strconv.Itoa(workspace) + " " + output
	if _, err := conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("write command payload: %w", err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return fmt.Errorf("read command reply: %w", err)
	}
	if resp := strings.TrimSpace(string(reply)); resp != "ok" {
		return fmt.Errorf("moveworkspacetomonitor %d %s: %s", workspace, output, resp)
	}
	return nil
}

func (d *socketCommander) SocketPath() string {
	return d.path
}

func commandSocketPath() (string, error) {
	sig := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return "", fmt.Errorf("HYPRLAND_INSTANCE_SIGNATURE not set")
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(runtimeDir, "hypr", sig, ".socket.sock"), nil
}

var _ Commander = (*socketCommander)(nil)
