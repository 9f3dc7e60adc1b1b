package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vpittamp/hyprdist/internal/config"
	"github.com/vpittamp/hyprdist/internal/control"
	"github.com/vpittamp/hyprdist/internal/engine"
)

const (
	// defaultTimeout is used when the caller does not provide a context deadline.
	defaultTimeout = 3 * time.Second
)

// Client talks to the running hyprdist daemon over its control socket.
type Client struct {
	socketPath string
}

type (
	// StatusReport mirrors the daemon's status payload.
	StatusReport = engine.StatusReport
	// HistoryResult wraps the reassignment results returned by the daemon.
	HistoryResult = control.HistoryResult
	// MigrationsResult wraps the migration records returned by the daemon.
	MigrationsResult = control.MigrationsResult
	// RulesReport mirrors the daemon's distribution rule table.
	RulesReport = engine.RulesReport
)

// New creates a client that connects to the provided socket path. When path is
// empty, the default runtime path is used.
func New(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = control.DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Client{socketPath: path}, nil
}

// Status retrieves the daemon's current phase, outputs, and metrics.
func (c *Client) Status(ctx context.Context) (StatusReport, error) {
	var report StatusReport
	if err := c.do(ctx, control.Request{Action: control.ActionStatus}, &report); err != nil {
		return StatusReport{}, err
	}
	return report, nil
}

// History retrieves up to limit reassignment results, newest first.
// limit <= 0 requests the full retained history.
func (c *Client) History(ctx context.Context, limit int) (HistoryResult, error) {
	req := control.Request{Action: control.ActionHistory}
	if limit > 0 {
		req.Params = map[string]any{"limit": limit}
	}
	var result HistoryResult
	if err := c.do(ctx, req, &result); err != nil {
		return HistoryResult{}, err
	}
	return result, nil
}

// Migrations retrieves window migration records, optionally filtered to
// one workspace. workspace 0 means all workspaces.
func (c *Client) Migrations(ctx context.Context, workspace int) (MigrationsResult, error) {
	req := control.Request{Action: control.ActionMigrations}
	if workspace > 0 {
		req.Params = map[string]any{"workspace": workspace}
	}
	var result MigrationsResult
	if err := c.do(ctx, req, &result); err != nil {
		return MigrationsResult{}, err
	}
	return result, nil
}

// Config retrieves the daemon's effective configuration.
func (c *Client) Config(ctx context.Context) (config.Config, error) {
	var cfg config.Config
	if err := c.do(ctx, control.Request{Action: control.ActionConfigShow}, &cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Rules retrieves the distribution rule table the daemon is applying.
func (c *Client) Rules(ctx context.Context) (RulesReport, error) {
	var report RulesReport
	if err := c.do(ctx, control.Request{Action: control.ActionRules}, &report); err != nil {
		return RulesReport{}, err
	}
	return report, nil
}

// Reassign asks the daemon to run a reassignment as soon as possible.
func (c *Client) Reassign(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionReassign}, nil)
}

// Reload asks the daemon to reload its configuration.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionReload}, nil)
}

func (c *Client) do(ctx context.Context, req control.Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp control.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != control.StatusOK {
		if resp.Error == "" {
			resp.Error = "unknown control error"
		}
		return errors.New(resp.Error)
	}
	if out == nil || resp.Data == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
