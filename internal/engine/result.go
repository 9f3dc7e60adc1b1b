package engine

import "time"

// MigrationRecord tracks one window whose output changed because its
// workspace moved. The workspace number itself never changes.
type MigrationRecord struct {
	WindowID    string    `json:"windowId"`
	WindowClass string    `json:"windowClass"`
	OldOutput   string    `json:"oldOutput"`
	NewOutput   string    `json:"newOutput"`
	Workspace   int       `json:"workspace"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReassignmentResult is the outcome of one full reassignment operation.
type ReassignmentResult struct {
	Success              bool              `json:"success"`
	Trigger              string            `json:"trigger"`
	Timestamp            time.Time         `json:"timestamp"`
	DurationMs           int64             `json:"durationMs"`
	MonitorCount         int               `json:"monitorCount"`
	WorkspacesReassigned int               `json:"workspacesReassigned"`
	CommandFailures      int               `json:"commandFailures"`
	WindowsMigrated      int               `json:"windowsMigrated"`
	ErrorMessage         string            `json:"errorMessage,omitempty"`
	Migrations           []MigrationRecord `json:"migrations,omitempty"`
}

// resultHistory is a fixed-capacity ring of reassignment results. The
// bound is an invariant of the type: appending past capacity evicts the
// oldest entry. It lives only in memory and vanishes on restart.
type resultHistory struct {
	buf      []ReassignmentResult
	start    int
	count    int
	capacity int
}

const defaultHistoryCapacity = 100

func newResultHistory(capacity int) *resultHistory {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &resultHistory{
		buf:      make([]ReassignmentResult, capacity),
		capacity: capacity,
	}
}

func (h *resultHistory) add(result ReassignmentResult) {
	if h == nil || h.capacity == 0 {
		return
	}
	rec := cloneResult(result)
	if h.count < h.capacity {
		idx := (h.start + h.count) % h.capacity
		h.buf[idx] = rec
		h.count++
		return
	}
	h.buf[h.start] = rec
	h.start = (h.start + 1) % h.capacity
}

func (h *resultHistory) len() int {
	if h == nil {
		return 0
	}
	return h.count
}

// recent returns up to limit results, newest first. limit <= 0 means all.
func (h *resultHistory) recent(limit int) []ReassignmentResult {
	if h == nil || h.count == 0 {
		return nil
	}
	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ReassignmentResult, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.start + h.count - 1 - i + h.capacity) % h.capacity
		out = append(out, cloneResult(h.buf[idx]))
	}
	return out
}

// latest returns the most recent result, or nil when the ring is empty.
func (h *resultHistory) latest() *ReassignmentResult {
	recent := h.recent(1)
	if len(recent) == 0 {
		return nil
	}
	return &recent[0]
}

func cloneResult(r ReassignmentResult) ReassignmentResult {
	cloned := r
	if len(r.Migrations) > 0 {
		cloned.Migrations = append([]MigrationRecord(nil), r.Migrations...)
	}
	return cloned
}
