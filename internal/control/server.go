package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/vpittamp/hyprdist/internal/config"
	"github.com/vpittamp/hyprdist/internal/engine"
	"github.com/vpittamp/hyprdist/internal/util"
)

// HistoryResult wraps the reassignment results returned by the history action.
type HistoryResult struct {
	Results []engine.ReassignmentResult `json:"results"`
}

// MigrationsResult wraps the migration records returned by the migrations action.
type MigrationsResult struct {
	Migrations []engine.MigrationRecord `json:"migrations"`
}

// Server hosts the hyprdist control socket and serves requests.
type Server struct {
	controller *engine.Controller
	logger     *util.Logger
	reload     func(reason string) error
	showConfig func() *config.Config
	socketPath string

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new control server. reload and showConfig are
// supplied by the daemon so the server never owns configuration state.
func NewServer(ctrl *engine.Controller, logger *util.Logger, reload func(reason string) error, showConfig func() *config.Config) (*Server, error) {
	path, err := DefaultSocketPath()
	if err != nil {
		return nil, err
	}
	return &Server{
		controller: ctrl,
		logger:     logger,
		reload:     reload,
		showConfig: showConfig,
		socketPath: path,
	}, nil
}

// Serve listens on the control socket until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.prepareSocket(); err != nil {
		return err
	}
	s.logger.Infof("control server listening on %s", s.socketPath)
	defer s.cleanup()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := s.accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Errorf("control accept error: %v", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) accept(ctx context.Context) (net.Conn, error) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return nil, context.Canceled
	}
	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

func (s *Server) prepareSocket() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod control socket: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

func (s *Server) cleanup() {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warnf("remove control socket: %v", err)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	var req Request
	if err := dec.Decode(&req); err != nil {
		s.writeError(conn, fmt.Errorf("decode request: %w", err))
		return
	}
	switch req.Action {
	case ActionStatus:
		s.writeOK(conn, s.controller.Status())
	case ActionHistory:
		s.handleHistory(conn, req.Params)
	case ActionMigrations:
		s.handleMigrations(conn, req.Params)
	case ActionConfigShow:
		s.handleConfigShow(conn)
	case ActionRules:
		s.writeOK(conn, s.controller.Rules())
	case ActionReassign:
		s.controller.RequestReassign("control request")
		s.writeOK(conn, nil)
	case ActionReload:
		s.handleReload(conn)
	default:
		s.writeError(conn, fmt.Errorf("unknown action %q", req.Action))
	}
}

func (s *Server) handleHistory(conn net.Conn, params map[string]any) {
	limit, err := intParam(params, "limit")
	if err != nil {
		s.writeError(conn, err)
		return
	}
	if limit < 0 {
		s.writeError(conn, errors.New("limit cannot be negative"))
		return
	}
	s.writeOK(conn, HistoryResult{Results: s.controller.History(limit)})
}

func (s *Server) handleMigrations(conn net.Conn, params map[string]any) {
	workspace, err := intParam(params, "workspace")
	if err != nil {
		s.writeError(conn, err)
		return
	}
	if workspace < 0 {
		s.writeError(conn, errors.New("workspace cannot be negative"))
		return
	}
	s.writeOK(conn, MigrationsResult{Migrations: s.controller.Migrations(workspace)})
}

func (s *Server) handleConfigShow(conn net.Conn) {
	if s.showConfig == nil {
		s.writeError(conn, errors.New("config inspection not supported"))
		return
	}
	cfg := s.showConfig()
	if cfg == nil {
		s.writeError(conn, errors.New("no configuration loaded"))
		return
	}
	s.writeOK(conn, cfg)
}

func (s *Server) handleReload(conn net.Conn) {
	if s.reload == nil {
		s.writeError(conn, errors.New("reload not supported"))
		return
	}
	if err := s.reload("control request"); err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, nil)
}

// intParam reads an optional numeric parameter. JSON numbers arrive as
// float64 through the generic params map.
func intParam(params map[string]any, key string) (int, error) {
	raw, ok := params[key]
	if !ok {
		return 0, nil
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number", key)
	}
}

func (s *Server) writeOK(conn net.Conn, data any) {
	resp := Response{Status: StatusOK}
	if data != nil {
		resp.Data = data
	}
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) writeError(conn net.Conn, err error) {
	resp := Response{Status: StatusError}
	if err != nil {
		resp.Error = err.Error()
	}
	_ = json.NewEncoder(conn).Encode(resp)
}
