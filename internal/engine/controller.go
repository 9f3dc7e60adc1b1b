package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vpittamp/hyprdist/internal/config"
	"github.com/vpittamp/hyprdist/internal/dist"
	"github.com/vpittamp/hyprdist/internal/ipc"
	"github.com/vpittamp/hyprdist/internal/metrics"
	"github.com/vpittamp/hyprdist/internal/persist"
	"github.com/vpittamp/hyprdist/internal/state"
	"github.com/vpittamp/hyprdist/internal/util"
)

// Client is everything the controller needs from Hyprland: the three
// topology queries and the workspace move command.
type Client interface {
	state.DataSource
	ipc.Commander
}

// Phase names the controller's position in its event cycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDebouncing  Phase = "debouncing"
	PhaseReassigning Phase = "reassigning"
)

type subscribeFunc func(ctx context.Context, logger *util.Logger) (<-chan ipc.Event, error)

// Controller owns the reassignment lifecycle: it subscribes to topology
// events, coalesces bursts behind a cancellable debounce timer, and runs
// the snapshot/distribute/migrate/execute/persist pipeline as a single
// unit of work. It is the only component that mutates the in-memory
// monitor state, the result history, and the timer.
type Controller struct {
	client    Client
	logger    *util.Logger
	store     *persist.Store
	collector *metrics.Collector
	executor  *Executor

	mu             sync.Mutex
	workspaceCount int
	debounce       time.Duration
	ipcTimeout     time.Duration
	phase          Phase
	lastState      *state.MonitorState
	knownOutputs   []string
	history        *resultHistory
	pending        bool

	trigger   chan string
	subscribe subscribeFunc
}

// New creates a controller. The client is injected so tests can drive the
// pipeline with fakes; nothing in the controller touches package-level
// state.
func New(client Client, logger *util.Logger, store *persist.Store, collector *metrics.Collector, cfg *config.Config) *Controller {
	c := &Controller{
		client:         client,
		logger:         logger,
		store:          store,
		collector:      collector,
		workspaceCount: cfg.WorkspaceCount,
		debounce:       cfg.Debounce(),
		ipcTimeout:     cfg.IPCTimeout(),
		phase:          PhaseIdle,
		history:        newResultHistory(cfg.HistorySize),
		trigger:        make(chan string, 1),
		subscribe:      ipc.Subscribe,
	}
	c.executor = NewExecutor(client, logger, c.commandTimeout)
	return c
}

func (c *Controller) commandTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ipcTimeout
}

// ReloadConfig applies the runtime-reloadable knobs from a fresh config.
// The history capacity is fixed at construction; changing it mid-flight
// would silently discard records.
func (c *Controller) ReloadConfig(cfg *config.Config) {
	c.mu.Lock()
	c.workspaceCount = cfg.WorkspaceCount
	c.debounce = cfg.Debounce()
	c.ipcTimeout = cfg.IPCTimeout()
	c.mu.Unlock()
	c.logger.Infof("config reloaded: %d workspaces, %s debounce", cfg.WorkspaceCount, cfg.Debounce())
}

// RestoreState seeds the last-known monitor state from disk. Recovery
// only: the first reassignment rebuilds everything from a live snapshot.
func (c *Controller) RestoreState() {
	ms, err := c.store.Load()
	if err != nil {
		c.logger.Warnf("restore monitor state: %v", err)
		return
	}
	if ms == nil {
		c.logger.Debugf("no prior monitor state found")
		return
	}
	names := make([]string, 0, len(ms.ActiveMonitors))
	for _, m := range ms.ActiveMonitors {
		names = append(names, m.Name)
	}
	c.mu.Lock()
	c.lastState = ms
	c.knownOutputs = names
	c.mu.Unlock()
	c.logger.Infof("restored monitor state from %s (%d monitors)", c.store.StatePath(), len(names))
}

// RequestReassign queues a reassignment outside the event stream, e.g.
// from the control socket. It never blocks: if an operation is already
// queued or running, the request collapses into the pending flag.
func (c *Controller) RequestReassign(reason string) {
	select {
	case c.trigger <- reason:
	default:
		c.mu.Lock()
		c.pending = true
		c.mu.Unlock()
	}
}

// Run drives the controller until context cancellation. It performs one
// immediate reassignment so a crashed or freshly installed daemon
// converges before the first hardware event.
func (c *Controller) Run(ctx context.Context) error {
	c.runOnce(ctx, "startup")

	events, err := c.subscribeEvents(ctx)
	if err != nil {
		return err
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	arm := func() {
		window := c.debounceWindow()
		if timer == nil {
			timer = time.NewTimer(window)
			timerCh = timer.C
		} else {
			if !timer.Stop() {
				<-timerCh
			}
			timer.Reset(window)
		}
		c.setPhase(PhaseDebouncing)
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			mev, interesting, err := ipc.ParseMonitorEvent(ev)
			if err != nil {
				c.logger.Warnf("dropping malformed %s event: %v", ev.Kind, err)
				continue
			}
			if !interesting {
				continue
			}
			if mev.Output != "" {
				c.logger.Infof("monitor %s: %s", mev.Kind, mev.Output)
			} else {
				c.logger.Infof("monitor topology %s", mev.Kind)
			}
			arm()
		case <-timerCh:
			timer = nil
			timerCh = nil
			c.runOnce(ctx, "topology settled")
			if c.takePending() {
				arm()
			}
		case reason := <-c.trigger:
			c.runOnce(ctx, reason)
			if c.takePending() {
				arm()
			}
		}
	}
}

func (c *Controller) subscribeEvents(ctx context.Context) (<-chan ipc.Event, error) {
	if c.subscribe != nil {
		return c.subscribe(ctx, c.logger)
	}
	return ipc.Subscribe(ctx, c.logger)
}

func (c *Controller) debounceWindow() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debounce
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Controller) takePending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.pending
	c.pending = false
	return was
}

// runOnce executes the full pipeline once and records the outcome. The
// pipeline always runs to completion; only the debounce timer is
// cancellable.
func (c *Controller) runOnce(ctx context.Context, trigger string) {
	c.setPhase(PhaseReassigning)
	defer c.setPhase(PhaseIdle)

	start := time.Now()
	result := c.reassign(ctx, trigger, start)
	result.DurationMs = time.Since(start).Milliseconds()

	c.mu.Lock()
	c.history.add(result)
	c.mu.Unlock()
	c.collector.RecordOperation(result.Success, result.WorkspacesReassigned, result.WindowsMigrated, result.CommandFailures)

	if result.Success {
		c.logger.Infof("reassignment (%s): %d monitors, %d workspaces, %d windows migrated in %dms",
			trigger, result.MonitorCount, result.WorkspacesReassigned, result.WindowsMigrated, result.DurationMs)
	} else {
		c.logger.Errorf("reassignment (%s) failed: %s", trigger, result.ErrorMessage)
	}
}

func (c *Controller) reassign(ctx context.Context, trigger string, start time.Time) ReassignmentResult {
	result := ReassignmentResult{Trigger: trigger, Timestamp: start}

	c.mu.Lock()
	workspaceCount := c.workspaceCount
	ipcTimeout := c.ipcTimeout
	prevKnown := append([]string(nil), c.knownOutputs...)
	c.mu.Unlock()

	snap, err := state.NewSnapshot(ctx, timeoutSource{src: c.client, timeout: ipcTimeout})
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("query topology: %v", err)
		return result
	}

	outputs := snap.MonitorNames()
	result.MonitorCount = len(outputs)
	if len(outputs) == 0 {
		// Degenerate but survivable: lid closed with no external
		// display, or a dock mid-handshake. Try again on the next event.
		c.logger.Warnf("no active outputs, skipping reassignment")
		result.ErrorMessage = "no active outputs"
		return result
	}

	roles := dist.AssignRoles(outputs)
	distribution, err := dist.Calculate(len(outputs), workspaceCount)
	if err != nil {
		c.logger.Errorf("distribution invariant violated: %v", err)
		result.ErrorMessage = fmt.Sprintf("calculate distribution: %v", err)
		return result
	}

	disconnected := diffOutputs(prevKnown, outputs)
	records := DetectMigrations(snap, disconnected, start)

	reassigned, failures := c.executor.Apply(ctx, distribution, outputs, roles, records)
	result.WorkspacesReassigned = reassigned
	result.CommandFailures = failures
	result.WindowsMigrated = len(records)
	result.Migrations = records

	ms, err := state.NewMonitorState(time.Now(), outputs, roles, distribution)
	if err != nil {
		c.logger.Errorf("monitor state invariant violated: %v", err)
		result.ErrorMessage = fmt.Sprintf("build monitor state: %v", err)
		return result
	}
	if err := c.store.Save(ms); err != nil {
		result.ErrorMessage = fmt.Sprintf("persist monitor state: %v", err)
		return result
	}
	if err := c.store.SaveAssignments(ms); err != nil {
		result.ErrorMessage = fmt.Sprintf("persist workspace assignments: %v", err)
		return result
	}

	c.mu.Lock()
	c.lastState = ms
	c.knownOutputs = outputs
	c.mu.Unlock()

	result.Success = true
	return result
}

// timeoutSource bounds each individual topology query so an unresponsive
// compositor cannot hang the pipeline.
type timeoutSource struct {
	src     state.DataSource
	timeout time.Duration
}

func (t timeoutSource) call(ctx context.Context, fn func(context.Context) error) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (t timeoutSource) ListMonitors(ctx context.Context) ([]state.Monitor, error) {
	var out []state.Monitor
	err := t.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = t.src.ListMonitors(ctx)
		return err
	})
	return out, err
}

func (t timeoutSource) ListWorkspaces(ctx context.Context) ([]state.Workspace, error) {
	var out []state.Workspace
	err := t.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = t.src.ListWorkspaces(ctx)
		return err
	})
	return out, err
}

func (t timeoutSource) ListClients(ctx context.Context) ([]state.Client, error) {
	var out []state.Client
	err := t.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = t.src.ListClients(ctx)
		return err
	})
	return out, err
}

// OutputStatus summarizes one active output for diagnostics.
type OutputStatus struct {
	Name       string    `json:"name"`
	Role       dist.Role `json:"role"`
	Workspaces []int     `json:"workspaces"`
}

// StatusReport is the read-only status payload served to diagnostics
// callers.
type StatusReport struct {
	Phase          Phase               `json:"phase"`
	WorkspaceCount int                 `json:"workspaceCount"`
	Outputs        []OutputStatus      `json:"outputs"`
	LastUpdated    time.Time           `json:"lastUpdated,omitempty"`
	LastResult     *ReassignmentResult `json:"lastResult,omitempty"`
	Metrics        metrics.Snapshot    `json:"metrics"`
}

// Status returns the current roles, per-output workspace lists, and the
// most recent operation outcome. It copies under a short lock and never
// waits on a running pipeline.
func (c *Controller) Status() StatusReport {
	c.mu.Lock()
	report := StatusReport{
		Phase:          c.phase,
		WorkspaceCount: c.workspaceCount,
	}
	ms := state.CloneMonitorState(c.lastState)
	last := c.history.latest()
	c.mu.Unlock()

	if ms != nil {
		report.LastUpdated = ms.LastUpdated
		byOutput := make(map[string][]int)
		for ws, output := range ms.WorkspaceAssignments {
			byOutput[output] = append(byOutput[output], ws)
		}
		for _, mon := range ms.ActiveMonitors {
			workspaces := byOutput[mon.Name]
			sort.Ints(workspaces)
			report.Outputs = append(report.Outputs, OutputStatus{
				Name:       mon.Name,
				Role:       mon.Role,
				Workspaces: workspaces,
			})
		}
	}
	if last != nil {
		// Trim the per-window detail; History serves it on demand.
		summary := *last
		summary.Migrations = nil
		report.LastResult = &summary
	}
	report.Metrics = c.collector.Snapshot()
	return report
}

// History returns up to limit results, newest first. limit <= 0 returns
// everything retained.
func (c *Controller) History(limit int) []ReassignmentResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.recent(limit)
}

// Migrations flattens the migration records from retained history, newest
// operation first. workspace > 0 filters to a single workspace number.
func (c *Controller) Migrations(workspace int) []MigrationRecord {
	c.mu.Lock()
	results := c.history.recent(0)
	c.mu.Unlock()

	var records []MigrationRecord
	for _, result := range results {
		for _, rec := range result.Migrations {
			if workspace > 0 && rec.Workspace != workspace {
				continue
			}
			records = append(records, rec)
		}
	}
	return records
}

// RoleSpan is one contiguous run of workspaces mapped to a role.
type RoleSpan struct {
	Role dist.Role `json:"role"`
	From int       `json:"from"`
	To   int       `json:"to"`
}

// DistributionRule is the distribution table for one monitor count.
type DistributionRule struct {
	Monitors string     `json:"monitors"`
	Spans    []RoleSpan `json:"spans"`
}

// RulesReport exposes the static distribution policy and the controller's
// timing configuration.
type RulesReport struct {
	WorkspaceCount int                `json:"workspaceCount"`
	DebounceMs     int64              `json:"debounceMs"`
	IPCTimeoutMs   int64              `json:"ipcTimeoutMs"`
	Rules          []DistributionRule `json:"rules"`
}

// Rules derives the rule table from the calculator itself so diagnostics
// can never drift from the policy actually applied.
func (c *Controller) Rules() RulesReport {
	c.mu.Lock()
	report := RulesReport{
		WorkspaceCount: c.workspaceCount,
		DebounceMs:     c.debounce.Milliseconds(),
		IPCTimeoutMs:   c.ipcTimeout.Milliseconds(),
	}
	workspaceCount := c.workspaceCount
	c.mu.Unlock()

	labels := []struct {
		monitors int
		label    string
	}{
		{1, "1"},
		{2, "2"},
		{3, "3"},
		{4, "4+"},
	}
	for _, entry := range labels {
		distribution, err := dist.Calculate(entry.monitors, workspaceCount)
		if err != nil {
			c.logger.Errorf("derive rule table: %v", err)
			continue
		}
		report.Rules = append(report.Rules, DistributionRule{
			Monitors: entry.label,
			Spans:    compressSpans(distribution),
		})
	}
	return report
}

func compressSpans(distribution dist.Distribution) []RoleSpan {
	var spans []RoleSpan
	for _, ws := range distribution.Workspaces() {
		role, _ := distribution.Role(ws)
		if n := len(spans); n > 0 && spans[n-1].Role == role && spans[n-1].To == ws-1 {
			spans[n-1].To = ws
			continue
		}
		spans = append(spans, RoleSpan{Role: role, From: ws, To: ws})
	}
	return spans
}
