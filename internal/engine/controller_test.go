package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vpittamp/hyprdist/internal/config"
	"github.com/vpittamp/hyprdist/internal/dist"
	"github.com/vpittamp/hyprdist/internal/ipc"
	"github.com/vpittamp/hyprdist/internal/metrics"
	"github.com/vpittamp/hyprdist/internal/persist"
	"github.com/vpittamp/hyprdist/internal/state"
	"github.com/vpittamp/hyprdist/internal/util"
)

type moveCall struct {
	Workspace int
	Output    string
}

type fakeHypr struct {
	mu               sync.Mutex
	monitors         []state.Monitor
	workspaces       []state.Workspace
	clients          []state.Client
	moves            []moveCall
	monitorErr       error
	moveErr          map[int]error
	gate             chan struct{}
	listMonitorCalls int
}

func (f *fakeHypr) ListMonitors(context.Context) ([]state.Monitor, error) {
	f.mu.Lock()
	f.listMonitorCalls++
	gate := f.gate
	err := f.monitorErr
	out := append([]state.Monitor(nil), f.monitors...)
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeHypr) ListWorkspaces(context.Context) ([]state.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.Workspace(nil), f.workspaces...), nil
}

func (f *fakeHypr) ListClients(context.Context) ([]state.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.Client(nil), f.clients...), nil
}

// MoveWorkspaceToMonitor records the command and mirrors what Hyprland
// would do: the workspace and its clients now live on the target output.
func (f *fakeHypr) MoveWorkspaceToMonitor(_ context.Context, workspace int, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.moveErr[workspace]; err != nil {
		return err
	}
	f.moves = append(f.moves, moveCall{Workspace: workspace, Output: output})
	for i := range f.workspaces {
		if f.workspaces[i].ID == workspace {
			f.workspaces[i].MonitorName = output
		}
	}
	for i := range f.clients {
		if f.clients[i].WorkspaceID == workspace {
			f.clients[i].MonitorName = output
		}
	}
	return nil
}

func (f *fakeHypr) setMonitors(monitors []state.Monitor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitors = monitors
}

func (f *fakeHypr) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func (f *fakeHypr) monitorCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listMonitorCalls
}

func (f *fakeHypr) recordedMoves() []moveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]moveCall(nil), f.moves...)
}

func testLogger() *util.Logger {
	return util.NewLoggerWithWriter(util.LevelError, io.Discard)
}

func testConfig(t *testing.T, debounceMs int) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		WorkspaceCount:  10,
		DebounceMs:      debounceMs,
		IPCTimeoutMs:    1000,
		HistorySize:     100,
		StateFile:       filepath.Join(dir, "monitors.json"),
		AssignmentsFile: filepath.Join(dir, "workspaces.json"),
	}
}

func newTestController(t *testing.T, fake *fakeHypr, events chan ipc.Event, debounceMs int) (*Controller, *persist.Store) {
	t.Helper()
	cfg := testConfig(t, debounceMs)
	logger := testLogger()
	store := persist.NewStore(cfg.StateFile, cfg.AssignmentsFile, logger)
	c := New(fake, logger, store, metrics.NewCollector(), cfg)
	c.subscribe = func(ctx context.Context, _ *util.Logger) (<-chan ipc.Event, error) {
		return events, nil
	}
	return c, store
}

func startController(t *testing.T, c *Controller) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("controller did not stop")
		}
	})
	return cancel
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func threeMonitorFake() *fakeHypr {
	return &fakeHypr{
		monitors: []state.Monitor{
			{ID: 0, Name: "A"},
			{ID: 1, Name: "B"},
			{ID: 2, Name: "C"},
		},
		workspaces: []state.Workspace{
			{ID: 1, MonitorName: "A"},
			{ID: 2, MonitorName: "A"},
			{ID: 3, MonitorName: "B"},
			{ID: 4, MonitorName: "B"},
			{ID: 5, MonitorName: "B"},
			{ID: 6, MonitorName: "C"},
		},
		clients: []state.Client{
			{Address: "0x1", Class: "kitty", WorkspaceID: 1, MonitorName: "A"},
			{Address: "0x2", Class: "firefox", WorkspaceID: 3, MonitorName: "B"},
			{Address: "0x3", Class: "slack", WorkspaceID: 4, MonitorName: "B"},
			{Address: "0x4", Class: "code", WorkspaceID: 6, MonitorName: "C"},
		},
	}
}

func TestStartupReassignment(t *testing.T) {
	fake := threeMonitorFake()
	events := make(chan ipc.Event, 16)
	c, store := newTestController(t, fake, events, 40)
	startController(t, c)

	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })
	result := c.History(1)[0]
	if !result.Success {
		t.Fatalf("startup reassignment failed: %s", result.ErrorMessage)
	}
	if result.MonitorCount != 3 || result.WorkspacesReassigned != 10 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.WindowsMigrated != 0 {
		t.Fatalf("startup should migrate nothing, got %d", result.WindowsMigrated)
	}

	ms, err := store.Load()
	if err != nil || ms == nil {
		t.Fatalf("state not persisted: %v", err)
	}
	want := map[int]string{
		1: "A", 2: "A",
		3: "B", 4: "B", 5: "B",
		6: "C", 7: "C", 8: "C", 9: "C", 10: "C",
	}
	if diff := cmp.Diff(want, ms.WorkspaceAssignments); diff != "" {
		t.Fatalf("assignments mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(store.AssignmentsPath()); err != nil {
		t.Fatalf("assignments artifact missing: %v", err)
	}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	fake := threeMonitorFake()
	events := make(chan ipc.Event, 16)
	c, _ := newTestController(t, fake, events, 150)
	startController(t, c)
	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })

	for i := 0; i < 5; i++ {
		events <- ipc.Event{Kind: "monitoradded", Payload: "D"}
		time.Sleep(10 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 2 })
	time.Sleep(400 * time.Millisecond)
	if got := len(c.History(0)); got != 2 {
		t.Fatalf("burst of 5 events produced %d reassignments, want exactly 1 after startup", got-1)
	}
}

func TestEventDuringReassignmentIsNotLost(t *testing.T) {
	fake := threeMonitorFake()
	events := make(chan ipc.Event, 16)
	c, _ := newTestController(t, fake, events, 30)
	startController(t, c)
	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })

	gate := make(chan struct{})
	fake.setGate(gate)
	events <- ipc.Event{Kind: "monitoradded", Payload: "D"}

	// Wait for the second pipeline run to block inside the snapshot.
	waitFor(t, 2*time.Second, func() bool { return fake.monitorCalls() == 2 })

	// A topology change lands while the reassignment is in flight.
	events <- ipc.Event{Kind: "monitorremoved", Payload: "D"}
	fake.setGate(nil)
	close(gate)

	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 3 })
}

func TestManualReassignQueuedWhileBusy(t *testing.T) {
	c, _ := newTestController(t, threeMonitorFake(), make(chan ipc.Event, 1), 30)

	c.RequestReassign("first")
	c.RequestReassign("second")
	c.RequestReassign("third")

	if got := <-c.trigger; got != "first" {
		t.Fatalf("trigger = %q, want first", got)
	}
	if !c.takePending() {
		t.Fatal("overflow requests should have collapsed into the pending flag")
	}
	if c.takePending() {
		t.Fatal("pending flag should reset after take")
	}
}

func TestThreeToTwoMonitorScenario(t *testing.T) {
	fake := threeMonitorFake()
	events := make(chan ipc.Event, 16)
	c, store := newTestController(t, fake, events, 30)
	startController(t, c)
	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })

	// B disappears; its workspaces still report B until the engine moves
	// them.
	fake.setMonitors([]state.Monitor{
		{ID: 0, Name: "A"},
		{ID: 2, Name: "C"},
	})
	events <- ipc.Event{Kind: "monitorremoved", Payload: "B"}

	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 2 })
	result := c.History(1)[0]
	if !result.Success {
		t.Fatalf("reassignment failed: %s", result.ErrorMessage)
	}
	if result.MonitorCount != 2 {
		t.Fatalf("monitor count = %d, want 2", result.MonitorCount)
	}
	if result.WindowsMigrated != 2 {
		t.Fatalf("windows migrated = %d, want 2 (the windows on B)", result.WindowsMigrated)
	}
	for _, rec := range result.Migrations {
		if rec.OldOutput != "B" {
			t.Errorf("migration %s old output = %q, want B", rec.WindowID, rec.OldOutput)
		}
		if rec.NewOutput != "C" {
			t.Errorf("migration %s new output = %q, want C", rec.WindowID, rec.NewOutput)
		}
		if rec.Workspace != 3 && rec.Workspace != 4 {
			t.Errorf("migration %s workspace = %d, workspace numbers must be preserved", rec.WindowID, rec.Workspace)
		}
	}

	ms, err := store.Load()
	if err != nil || ms == nil {
		t.Fatalf("state not persisted: %v", err)
	}
	wantRoles := []state.MonitorInfo{
		{Name: "A", Role: dist.RolePrimary, Active: true},
		{Name: "C", Role: dist.RoleSecondary, Active: true},
	}
	if diff := cmp.Diff(wantRoles, ms.ActiveMonitors); diff != "" {
		t.Fatalf("roles mismatch (-want +got):\n%s", diff)
	}
	for ws := 1; ws <= 2; ws++ {
		if ms.WorkspaceAssignments[ws] != "A" {
			t.Errorf("workspace %d on %q, want A", ws, ms.WorkspaceAssignments[ws])
		}
	}
	for ws := 3; ws <= 10; ws++ {
		if ms.WorkspaceAssignments[ws] != "C" {
			t.Errorf("workspace %d on %q, want C", ws, ms.WorkspaceAssignments[ws])
		}
	}

	// Window conservation: every window still exists, none on the dead
	// output.
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.clients) != 4 {
		t.Fatalf("window count changed: %d", len(fake.clients))
	}
	for _, client := range fake.clients {
		if client.MonitorName == "B" {
			t.Errorf("window %s still on disconnected output", client.Address)
		}
	}
}

func TestRapidFlapSettlesOnce(t *testing.T) {
	fake := threeMonitorFake()
	events := make(chan ipc.Event, 16)
	c, _ := newTestController(t, fake, events, 250)
	startController(t, c)
	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })

	four := []state.Monitor{
		{ID: 0, Name: "A"},
		{ID: 1, Name: "B"},
		{ID: 2, Name: "C"},
		{ID: 3, Name: "D"},
	}
	three := fake.recordedMonitors()

	fake.setMonitors(four)
	events <- ipc.Event{Kind: "monitoradded", Payload: "D"}
	time.Sleep(20 * time.Millisecond)
	fake.setMonitors(three)
	events <- ipc.Event{Kind: "monitorremoved", Payload: "D"}
	time.Sleep(20 * time.Millisecond)
	fake.setMonitors(four)
	events <- ipc.Event{Kind: "monitoradded", Payload: "D"}

	waitFor(t, 3*time.Second, func() bool { return len(c.History(0)) == 2 })
	time.Sleep(500 * time.Millisecond)
	history := c.History(0)
	if len(history) != 2 {
		t.Fatalf("flap produced %d reassignments, want exactly 1 after startup", len(history)-1)
	}
	if history[0].MonitorCount != 4 {
		t.Fatalf("settled monitor count = %d, want 4 (final state)", history[0].MonitorCount)
	}
}

func TestIdempotentRerun(t *testing.T) {
	fake := threeMonitorFake()
	events := make(chan ipc.Event, 16)
	c, store := newTestController(t, fake, events, 30)
	startController(t, c)
	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })

	first, err := store.Load()
	if err != nil || first == nil {
		t.Fatalf("load after first run: %v", err)
	}

	c.RequestReassign("manual")
	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 2 })

	second, err := store.Load()
	if err != nil || second == nil {
		t.Fatalf("load after second run: %v", err)
	}
	if diff := cmp.Diff(first.WorkspaceAssignments, second.WorkspaceAssignments); diff != "" {
		t.Fatalf("assignments changed on unchanged topology (-first +second):\n%s", diff)
	}
	for _, result := range c.History(0) {
		if !result.Success {
			t.Fatalf("expected both runs to succeed: %+v", result)
		}
	}

	moves := fake.recordedMoves()
	if len(moves) != 20 {
		t.Fatalf("move count = %d, want 20 (10 per run)", len(moves))
	}
	if diff := cmp.Diff(moves[:10], moves[10:]); diff != "" {
		t.Fatalf("second run issued different commands:\n%s", diff)
	}
}

func TestMissingStateFileIsRebuilt(t *testing.T) {
	fake := threeMonitorFake()
	events := make(chan ipc.Event, 16)
	c, store := newTestController(t, fake, events, 30)

	c.RestoreState()
	if !c.Status().LastUpdated.IsZero() {
		t.Fatal("restore of missing state should leave nothing behind")
	}

	startController(t, c)
	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })
	if _, err := os.Stat(store.StatePath()); err != nil {
		t.Fatalf("state file not recreated: %v", err)
	}
}

func TestQueryFailureRecordsFailedResult(t *testing.T) {
	fake := threeMonitorFake()
	fake.monitorErr = errors.New("compositor unresponsive")
	events := make(chan ipc.Event, 16)
	c, store := newTestController(t, fake, events, 30)
	startController(t, c)

	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })
	result := c.History(1)[0]
	if result.Success {
		t.Fatal("expected failed result")
	}
	if result.ErrorMessage == "" {
		t.Fatal("failed result must carry an error message")
	}
	if ms, err := store.Load(); err != nil || ms != nil {
		t.Fatalf("failed operation must not persist state, got %+v, %v", ms, err)
	}
	if len(fake.recordedMoves()) != 0 {
		t.Fatal("failed snapshot must not issue commands")
	}
}

func TestZeroOutputsSkipsReassignment(t *testing.T) {
	fake := &fakeHypr{}
	events := make(chan ipc.Event, 16)
	c, _ := newTestController(t, fake, events, 30)
	startController(t, c)

	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })
	result := c.History(1)[0]
	if result.Success {
		t.Fatal("zero outputs must not count as success")
	}
	if result.ErrorMessage != "no active outputs" {
		t.Fatalf("error = %q", result.ErrorMessage)
	}
	if len(fake.recordedMoves()) != 0 {
		t.Fatal("no commands should be issued with zero outputs")
	}
}

func TestStatusAndRulesReports(t *testing.T) {
	fake := threeMonitorFake()
	events := make(chan ipc.Event, 16)
	c, _ := newTestController(t, fake, events, 30)
	startController(t, c)
	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })

	status := c.Status()
	if len(status.Outputs) != 3 {
		t.Fatalf("status outputs = %d, want 3", len(status.Outputs))
	}
	if status.Outputs[0].Role != dist.RolePrimary || status.Outputs[0].Name != "A" {
		t.Fatalf("first output = %+v", status.Outputs[0])
	}
	if !cmp.Equal(status.Outputs[1].Workspaces, []int{3, 4, 5}) {
		t.Fatalf("secondary workspaces = %v", status.Outputs[1].Workspaces)
	}
	if status.LastResult == nil || !status.LastResult.Success {
		t.Fatalf("last result = %+v", status.LastResult)
	}
	if status.Metrics.Totals.Operations != 1 {
		t.Fatalf("metrics operations = %d", status.Metrics.Totals.Operations)
	}

	rules := c.Rules()
	if rules.WorkspaceCount != 10 || rules.DebounceMs != 30 {
		t.Fatalf("rules report = %+v", rules)
	}
	if len(rules.Rules) != 4 {
		t.Fatalf("rule table rows = %d, want 4", len(rules.Rules))
	}
	wantSpans := []RoleSpan{
		{Role: dist.RolePrimary, From: 1, To: 2},
		{Role: dist.RoleSecondary, From: 3, To: 5},
		{Role: dist.RoleTertiary, From: 6, To: 9},
		{Role: dist.RoleOverflow, From: 10, To: 10},
	}
	if diff := cmp.Diff(wantSpans, rules.Rules[3].Spans); diff != "" {
		t.Fatalf("4+ spans mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrationsFilter(t *testing.T) {
	fake := threeMonitorFake()
	events := make(chan ipc.Event, 16)
	c, _ := newTestController(t, fake, events, 30)
	startController(t, c)
	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 1 })

	fake.setMonitors([]state.Monitor{{ID: 0, Name: "A"}, {ID: 2, Name: "C"}})
	events <- ipc.Event{Kind: "monitorremoved", Payload: "B"}
	waitFor(t, 2*time.Second, func() bool { return len(c.History(0)) == 2 })

	all := c.Migrations(0)
	if len(all) != 2 {
		t.Fatalf("migrations = %d, want 2", len(all))
	}
	ws3 := c.Migrations(3)
	if len(ws3) != 1 || ws3[0].WindowID != "0x2" {
		t.Fatalf("workspace filter result = %+v", ws3)
	}
	if len(c.Migrations(9)) != 0 {
		t.Fatal("filter on untouched workspace should be empty")
	}
}

func (f *fakeHypr) recordedMonitors() []state.Monitor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.Monitor(nil), f.monitors...)
}
