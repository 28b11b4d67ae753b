package resilience

import (
	"sync"
	"time"
)

const defaultHistoryCapacity = 200

// Record is one persistent error log entry. Append-only; the only mutation
// after creation is marking resolution, which goes through the History so
// snapshots never race.
type Record struct {
	ID           string       `json:"id"`
	Context      ErrorContext `json:"context"`
	Message      string       `json:"message"`
	Resolution   Resolution   `json:"resolution"`
	FallbackUsed FallbackKind `json:"fallbackUsed,omitempty"`
	Resolved     bool         `json:"resolved"`
	ResolvedAt   *time.Time   `json:"resolvedAt,omitempty"`

	err error
}

// Err returns the original error payload.
func (r *Record) Err() error { return r.err }

// HealthSnapshot is the read-only view exposed on the health surface.
type HealthSnapshot struct {
	TotalErrors int64              `json:"totalErrors"`
	ByCategory  map[Category]int64 `json:"byCategory"`
	BySeverity  map[Severity]int64 `json:"bySeverity"`
	Recent      []Record           `json:"recent"`
}

// History is the in-process error log: a bounded ring of recent records
// plus cumulative counters. No consumer deletes entries.
type History struct {
	mu         sync.Mutex
	capacity   int
	records    []*Record
	total      int64
	byCategory map[Category]int64
	bySeverity map[Severity]int64
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &History{
		capacity:   capacity,
		byCategory: make(map[Category]int64),
		bySeverity: make(map[Severity]int64),
	}
}

func (h *History) Append(r *Record) {
	if r == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.total++
	h.byCategory[r.Context.Category]++
	h.bySeverity[r.Context.Severity]++

	h.records = append(h.records, r)
	if len(h.records) > h.capacity {
		h.records = h.records[len(h.records)-h.capacity:]
	}
}

// MarkResolved records which fallback (if any) resolved the failure.
func (h *History) MarkResolved(r *Record, used FallbackKind) {
	if r == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UTC()
	r.FallbackUsed = used
	r.Resolved = true
	r.ResolvedAt = &now
}

// Snapshot copies the cumulative counters and the last n records.
func (h *History) Snapshot(n int) HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.records) {
		n = len(h.records)
	}
	recent := make([]Record, 0, n)
	for _, r := range h.records[len(h.records)-n:] {
		recent = append(recent, *r)
	}

	byCat := make(map[Category]int64, len(h.byCategory))
	for k, v := range h.byCategory {
		byCat[k] = v
	}
	bySev := make(map[Severity]int64, len(h.bySeverity))
	for k, v := range h.bySeverity {
		bySev[k] = v
	}

	return HealthSnapshot{
		TotalErrors: h.total,
		ByCategory:  byCat,
		BySeverity:  bySev,
		Recent:      recent,
	}
}
