package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/vpittamp/hyprdist/internal/util"
)

// Event represents a raw Hyprland event stream payload.
type Event struct {
	Kind    string
	Payload string
}

// MonitorEventKind tags the validated topology events the engine reacts
// to.
type MonitorEventKind string

const (
	MonitorConnected    MonitorEventKind = "connected"
	MonitorDisconnected MonitorEventKind = "disconnected"
	MonitorChanged      MonitorEventKind = "changed"
)

// MonitorEvent is a topology change validated at the IPC boundary. Output
// may be empty for layout-wide changes.
type MonitorEvent struct {
	Kind   MonitorEventKind
	Output string
}

// Subscribe connects to the Hyprland event socket and streams raw events
// until context cancellation.
func Subscribe(ctx context.Context, logger *util.Logger) (<-chan Event, error) {
	socket, err := eventSocketPath()
	if err != nil {
		return nil, err
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect event socket: %w", err)
	}
	events := make(chan Event)
	go func() {
		defer close(events)
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := scanner.Text()
			parts := strings.SplitN(line, ">>", 2)
			ev := Event{Kind: parts[0]}
			if len(parts) == 2 {
				ev.Payload = parts[1]
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warnf("event stream error: %v", err)
		}
	}()
	return events, nil
}

// ParseMonitorEvent converts a raw event into a typed topology event. The
// second return is false for event kinds the engine does not care about;
// the error is non-nil only for a topology event with a malformed payload.
func ParseMonitorEvent(ev Event) (MonitorEvent, bool, error) {
	switch ev.Kind {
	case "monitoradded":
		name := strings.TrimSpace(ev.Payload)
		if name == "" {
			return MonitorEvent{}, false, fmt.Errorf("monitoradded missing name")
		}
		return MonitorEvent{Kind: MonitorConnected, Output: name}, true, nil
	case "monitoraddedv2":
		name, err := parseMonitorV2Payload(ev.Payload)
		if err != nil {
			return MonitorEvent{}, false, err
		}
		return MonitorEvent{Kind: MonitorConnected, Output: name}, true, nil
	case "monitorremoved":
		name := strings.TrimSpace(ev.Payload)
		if name == "" {
			return MonitorEvent{}, false, fmt.Errorf("monitorremoved missing name")
		}
		return MonitorEvent{Kind: MonitorDisconnected, Output: name}, true, nil
	case "monitorremovedv2":
		name, err := parseMonitorV2Payload(ev.Payload)
		if err != nil {
			return MonitorEvent{}, false, err
		}
		return MonitorEvent{Kind: MonitorDisconnected, Output: name}, true, nil
	case "configreloaded":
		// A Hyprland config reload can reposition or disable monitors
		// without emitting add/remove events.
		return MonitorEvent{Kind: MonitorChanged}, true, nil
	default:
		return MonitorEvent{}, false, nil
	}
}

// parseMonitorV2Payload extracts the name from an "ID,NAME,DESCRIPTION"
// payload.
func parseMonitorV2Payload(payload string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(payload), ",", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid monitor v2 payload %q", payload)
	}
	return strings.TrimSpace(parts[1]), nil
}

func eventSocketPath() (string, error) {
	sig := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return "", fmt.Errorf("HYPRLAND_INSTANCE_SIGNATURE not set")
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(runtimeDir, "hypr", sig, ".socket2.sock"), nil
}
