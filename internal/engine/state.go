package engine

import (
	"fmt"
	"time"
)

// State is a phase of a sync run.
type State int

const (
	Idle State = iota
	CheckingConnectivity
	ComputingWatermark
	SyncingSequentialTier
	SyncingParallelTier
	AdvancingWatermark
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CheckingConnectivity:
		return "checking_connectivity"
	case ComputingWatermark:
		return "computing_watermark"
	case SyncingSequentialTier:
		return "syncing_sequential_tier"
	case SyncingParallelTier:
		return "syncing_parallel_tier"
	case AdvancingWatermark:
		return "advancing_watermark"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventType identifies an Event.
type EventType string

const (
	EventSyncStarted   EventType = "sync_started"
	EventStateChanged  EventType = "state_changed"
	EventTableSynced   EventType = "table_synced"
	EventTableFailed   EventType = "table_failed"
	EventSyncCompleted EventType = "sync_complete"
	EventSyncFailed    EventType = "sync_failed"
)

// Event is emitted to observers as a run progresses.
type Event struct {
	Type    EventType
	Time    time.Time
	Mode    Mode
	State   State
	Table   string
	Records int
	Err     error
	// Outcome is set on EventSyncCompleted and EventSyncFailed.
	Outcome *SyncOutcome
}

// Observer receives events. OnEvent is called synchronously from the sync
// goroutines (concurrently during the parallel tier) and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }
