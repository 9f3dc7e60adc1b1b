package metrics

import (
	"sync"
	"time"
)

// Collector aggregates counters across reassignment operations.
type Collector struct {
	mu      sync.RWMutex
	started time.Time
	totals  Totals
}

// Totals holds the lifetime counters for the daemon process.
type Totals struct {
	Operations           uint64    `json:"operations"`
	Failures             uint64    `json:"failures"`
	WorkspacesReassigned uint64    `json:"workspacesReassigned"`
	WindowsMigrated      uint64    `json:"windowsMigrated"`
	CommandFailures      uint64    `json:"commandFailures"`
	LastOperation        time.Time `json:"lastOperation,omitempty"`
	LastFailure          time.Time `json:"lastFailure,omitempty"`
}

// Snapshot is the serializable view of the current metrics state.
type Snapshot struct {
	Started time.Time `json:"started"`
	Totals  Totals    `json:"totals"`
}

// NewCollector returns a collector stamped with the process start time.
func NewCollector() *Collector {
	return &Collector{started: time.Now()}
}

// RecordOperation tallies one completed reassignment operation.
func (c *Collector) RecordOperation(success bool, workspaces, windows, commandFailures int) {
	if c == nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals.Operations++
	c.totals.LastOperation = now
	if !success {
		c.totals.Failures++
		c.totals.LastFailure = now
	}
	c.totals.WorkspacesReassigned += uint64(workspaces)
	c.totals.WindowsMigrated += uint64(windows)
	c.totals.CommandFailures += uint64(commandFailures)
}

// Snapshot returns the current counters for serialization or display.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Started: c.started, Totals: c.totals}
}
