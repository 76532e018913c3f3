package engine

import (
	"sort"
	"time"
)

// Mode is the strategy of a run.
type Mode string

const (
	// ModeDelta upserts rows changed since the watermark.
	ModeDelta Mode = "delta"
	// ModeFull mirrors every table.
	ModeFull Mode = "full"
)

// SyncOutcome is the result of one run.
type SyncOutcome struct {
	Success       bool
	RecordsSynced int
	// PerTableCounts holds the rows applied per table that completed, for
	// diagnostics. Failed and skipped tables are absent.
	PerTableCounts map[string]int
	Err            error
	Mode           Mode
	StartedAt      time.Time
	Duration       time.Duration
	// Watermark is the stored watermark after a successful run.
	Watermark time.Time
}

// FailureReason returns a human-readable failure summary, or "".
func (o SyncOutcome) FailureReason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Tables returns the names in PerTableCounts, sorted.
func (o SyncOutcome) Tables() []string {
	names := make([]string, 0, len(o.PerTableCounts))
	for name := range o.PerTableCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
