package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Chwrld/Edu-IT13Project/internal/engine"
	"github.com/Chwrld/Edu-IT13Project/internal/manifest"
	"github.com/Chwrld/Edu-IT13Project/internal/testutil"
	"github.com/Chwrld/Edu-IT13Project/internal/watermark"
)

func startServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{
		Host:   "127.0.0.1",
		Port:   0,
		Logger: slog.New(slog.DiscardHandler),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return msg
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ MessageType) Message {
	t.Helper()

	for i := 0; i < 100; i++ {
		if msg := readMessage(t, conn); msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %s message received", typ)
	return Message{}
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", server.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Logger: slog.New(slog.DiscardHandler)})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if server.Addr() == "" {
		t.Fatal("Addr() is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if body["status"] != "ok" || body["clients"] != float64(0) {
		t.Errorf("health = %v", body)
	}
}

func TestWelcomeSnapshot(t *testing.T) {
	server := startServer(t)
	h := NewHandler(server, slog.New(slog.DiscardHandler))
	h.OnConnectivity(false)

	conn := dial(t, server)
	msg := readMessage(t, conn)
	if msg.Type != MessageTypeStatus {
		t.Fatalf("first message type = %s, want %s", msg.Type, MessageTypeStatus)
	}

	var st StatusData
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		t.Fatalf("failed to unmarshal status: %v", err)
	}
	if st.Online == nil || *st.Online || st.State != "idle" {
		t.Errorf("status = %+v, want offline idle", st)
	}
	waitForClients(t, server, 1)
}

func TestHandlerBroadcastsEvents(t *testing.T) {
	server := startServer(t)
	h := NewHandler(server, slog.New(slog.DiscardHandler))

	conn := dial(t, server)
	readMessage(t, conn)
	waitForClients(t, server, 1)

	now := time.Now()
	h.OnEvent(engine.Event{Type: engine.EventTableFailed, Time: now, Mode: engine.ModeDelta, Table: "audit_log", Err: errors.New("no primary key")})

	msg := readUntil(t, conn, MessageTypeTableFailed)
	var td TableData
	if err := json.Unmarshal(msg.Data, &td); err != nil {
		t.Fatalf("failed to unmarshal table data: %v", err)
	}
	if td.Table != "audit_log" || td.Error != "no primary key" || td.Mode != "delta" {
		t.Errorf("table data = %+v", td)
	}

	out := engine.SyncOutcome{Mode: engine.ModeDelta, Err: errors.New("boom")}
	h.OnEvent(engine.Event{Type: engine.EventSyncFailed, Time: now, Mode: engine.ModeDelta, Outcome: &out})

	msg = readUntil(t, conn, MessageTypeSyncComplete)
	var sc SyncCompleteData
	if err := json.Unmarshal(msg.Data, &sc); err != nil {
		t.Fatalf("failed to unmarshal sync data: %v", err)
	}
	if sc.Success || sc.Error != "boom" || sc.Watermark != nil {
		t.Errorf("sync data = %+v", sc)
	}

	if st := h.Status(); st.Runs != 1 || st.Failures != 1 {
		t.Errorf("Status() = %+v, want 1 failed run", st)
	}
}

func TestEngineRunOverWebSocket(t *testing.T) {
	server := startServer(t)
	h := NewHandler(server, slog.New(slog.DiscardHandler))

	local := testutil.OpenSQLite(t, "local")
	remote := testutil.OpenSQLite(t, "remote")
	testutil.SeedAccounts(t, local, 2, "2024-01-10 00:00:00")

	m, err := manifest.New(testutil.Sequential, testutil.Parallel)
	if err != nil {
		t.Fatalf("manifest.New() failed: %v", err)
	}
	wm, err := watermark.New(local, watermark.DefaultConfig())
	if err != nil {
		t.Fatalf("watermark.New() failed: %v", err)
	}
	eng, err := engine.New(engine.Config{Local: local, Remote: remote, Manifest: m, Watermarks: wm},
		engine.WithObserver(h), engine.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}

	conn := dial(t, server)
	readMessage(t, conn)
	waitForClients(t, server, 1)

	if out := eng.RunDeltaSync(context.Background()); !out.Success {
		t.Fatalf("RunDeltaSync() failed: %v", out.Err)
	}

	msg := readUntil(t, conn, MessageTypeSyncComplete)
	var sc SyncCompleteData
	if err := json.Unmarshal(msg.Data, &sc); err != nil {
		t.Fatalf("failed to unmarshal sync data: %v", err)
	}
	if !sc.Success || sc.RecordsSynced != 2 || sc.PerTableCounts["accounts"] != 2 || sc.Watermark == nil {
		t.Errorf("sync data = %+v", sc)
	}
	if st := h.Status(); st.State != "idle" || st.Runs != 1 {
		t.Errorf("Status() = %+v", st)
	}
}
