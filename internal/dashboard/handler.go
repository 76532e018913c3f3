package dashboard

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Chwrld/Edu-IT13Project/internal/engine"
)

// SyncStartedData announces a run.
type SyncStartedData struct {
	Mode string `json:"mode"`
}

// StateData reports the run phase.
type StateData struct {
	Mode  string `json:"mode"`
	State string `json:"state"`
}

// TableData reports one table's result.
type TableData struct {
	Mode    string `json:"mode"`
	Table   string `json:"table"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

// SyncCompleteData summarizes a finished run.
type SyncCompleteData struct {
	Mode           string         `json:"mode"`
	Success        bool           `json:"success"`
	RecordsSynced  int            `json:"records_synced"`
	PerTableCounts map[string]int `json:"per_table_counts,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
	Watermark      *time.Time     `json:"watermark,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// ConnectivityData reports remote reachability.
type ConnectivityData struct {
	Online bool   `json:"online"`
	Status string `json:"status"`
}

// StatusData is the snapshot sent to new clients.
type StatusData struct {
	Online   *bool             `json:"online,omitempty"`
	State    string            `json:"state"`
	Runs     int               `json:"runs"`
	Failures int               `json:"failures"`
	Last     *SyncCompleteData `json:"last,omitempty"`
}

// Handler turns engine events into dashboard messages. It implements
// engine.Observer and is safe for concurrent use.
type Handler struct {
	server *Server
	logger *slog.Logger

	mu     sync.Mutex
	status StatusData
}

// NewHandler creates a handler broadcasting through server and registers
// its status as the server's welcome snapshot.
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
		status: StatusData{State: engine.Idle.String()},
	}
	server.SetSnapshot(h.snapshot)
	return h
}

// OnEvent implements engine.Observer.
func (h *Handler) OnEvent(e engine.Event) {
	mode := string(e.Mode)

	switch e.Type {
	case engine.EventSyncStarted:
		h.send(MessageTypeSyncStarted, e.Time, SyncStartedData{Mode: mode})

	case engine.EventStateChanged:
		h.mu.Lock()
		h.status.State = e.State.String()
		h.mu.Unlock()
		h.send(MessageTypeState, e.Time, StateData{Mode: mode, State: e.State.String()})

	case engine.EventTableSynced:
		h.send(MessageTypeTableSynced, e.Time, TableData{Mode: mode, Table: e.Table, Records: e.Records})

	case engine.EventTableFailed:
		h.send(MessageTypeTableFailed, e.Time, TableData{Mode: mode, Table: e.Table, Error: errString(e.Err)})

	case engine.EventSyncCompleted, engine.EventSyncFailed:
		if e.Outcome == nil {
			return
		}
		data := completeData(*e.Outcome)

		h.mu.Lock()
		h.status.Runs++
		if !data.Success {
			h.status.Failures++
		}
		h.status.Last = &data
		h.mu.Unlock()

		h.send(MessageTypeSyncComplete, e.Time, data)
	}
}

// OnConnectivity reports a reachability change. It matches the daemon's
// connectivity callback.
func (h *Handler) OnConnectivity(online bool) {
	h.mu.Lock()
	h.status.Online = &online
	h.mu.Unlock()

	status := engine.StatusOffline
	if online {
		status = engine.StatusOnline
	}
	h.send(MessageTypeConnectivity, time.Now(), ConnectivityData{Online: online, Status: status})
}

// Status returns a copy of the current snapshot.
func (h *Handler) Status() StatusData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Handler) snapshot() Message {
	st := h.Status()
	data, err := json.Marshal(st)
	if err != nil {
		h.logger.Error("failed to marshal status", "error", err)
	}
	return Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(typ MessageType, ts time.Time, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal dashboard message", "type", string(typ), "error", err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: ts, Data: data})
}

func completeData(out engine.SyncOutcome) SyncCompleteData {
	data := SyncCompleteData{
		Mode:           string(out.Mode),
		Success:        out.Success,
		RecordsSynced:  out.RecordsSynced,
		PerTableCounts: out.PerTableCounts,
		DurationMS:     out.Duration.Milliseconds(),
		Error:          errString(out.Err),
	}
	if out.Success && !out.Watermark.IsZero() {
		wm := out.Watermark
		data.Watermark = &wm
	}
	return data
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
