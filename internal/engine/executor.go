package engine

import (
	"context"
	"time"

	"github.com/vpittamp/hyprdist/internal/dist"
	"github.com/vpittamp/hyprdist/internal/ipc"
	"github.com/vpittamp/hyprdist/internal/util"
)

// Executor resolves a distribution against the current role holders and
// issues one reassignment command per workspace. Commands are
// independent: a failed command is counted and logged but never aborts
// the rest of the batch. Re-running against an unchanged topology
// reissues identical commands, which Hyprland treats as no-ops.
type Executor struct {
	commander ipc.Commander
	logger    *util.Logger
	timeout   func() time.Duration
}

// NewExecutor creates an executor issuing commands through commander.
// timeout is consulted per command so a config reload takes effect
// mid-flight; nil means unbounded.
func NewExecutor(commander ipc.Commander, logger *util.Logger, timeout func() time.Duration) *Executor {
	return &Executor{commander: commander, logger: logger, timeout: timeout}
}

// Apply walks every managed workspace in ascending order, resolves its
// role to a concrete output, and dispatches the move. It returns the
// number of workspaces successfully reassigned and the number of failed
// commands. After the batch, pending migration records get their
// NewOutput backfilled from the same role mapping.
func (e *Executor) Apply(ctx context.Context, distribution dist.Distribution, outputs []string, roles map[string]dist.Role, records []MigrationRecord) (reassigned, failures int) {
	inverted := dist.InvertRoles(outputs, roles)
	workspaceOutput := make(map[int]string, distribution.WorkspaceCount)

	for _, ws := range distribution.Workspaces() {
		role, ok := distribution.Role(ws)
		if !ok {
			// Unreachable given the calculator's coverage invariant.
			e.logger.Errorf("workspace %d missing from distribution, skipping", ws)
			continue
		}
		output, ok := inverted[role]
		if !ok {
			e.logger.Warnf("no active output for role %q, skipping workspace %d", role, ws)
			continue
		}
		workspaceOutput[ws] = output
		if err := e.move(ctx, ws, output); err != nil {
			e.logger.Warnf("assign workspace %d to %s: %v", ws, output, err)
			failures++
			continue
		}
		reassigned++
	}

	for i := range records {
		if output, ok := workspaceOutput[records[i].Workspace]; ok {
			records[i].NewOutput = output
		}
	}
	return reassigned, failures
}

func (e *Executor) move(ctx context.Context, workspace int, output string) error {
	if e.timeout != nil {
		if d := e.timeout(); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}
	return e.commander.MoveWorkspaceToMonitor(ctx, workspace, output)
}
