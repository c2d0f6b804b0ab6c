package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/duetrack/duetrack/internal/sync"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Port:   0, // Use random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	// Give server time to start
	time.Sleep(100 * time.Millisecond)
	return server
}

func dialTest(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestServerStartStop(t *testing.T) {
	config := &Config{
		Port:   0,
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	}

	server := NewServer(config)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketWelcomeCarriesState(t *testing.T) {
	server := newTestServer(t)

	// Seed the replayed state the way Attach would.
	server.stateMu.Lock()
	server.state = sync.State{Status: sync.StatusSynced, LastSyncTime: 1234}
	server.stateMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTest(t, ctx, server)

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeSyncState {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeSyncState, msg.Type)
	}

	var st sync.State
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		t.Fatalf("Failed to unmarshal state payload: %v", err)
	}
	if st.Status != sync.StatusSynced || st.LastSyncTime != 1234 {
		t.Errorf("Welcome state = %+v", st)
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	clients := make([]*websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		clients[i] = dialTest(t, ctx, server)
		// Drain the welcome message.
		if _, _, err := clients[i].Read(ctx); err != nil {
			t.Fatalf("Failed to read welcome for client %d: %v", i, err)
		}
	}

	server.Broadcast(encode(MessageTypeMigration, sync.Progress{
		Phase: sync.PhaseUploadingBills, Current: 3, Total: 10,
	}))

	for i, conn := range clients {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Client %d failed to read broadcast: %v", i, err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if msg.Type != MessageTypeMigration {
			t.Errorf("Client %d got message type %s", i, msg.Type)
		}
		var p sync.Progress
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			t.Fatalf("Failed to unmarshal progress payload: %v", err)
		}
		if p.Phase != sync.PhaseUploadingBills || p.Current != 3 || p.Total != 10 {
			t.Errorf("Client %d got progress %+v", i, p)
		}
	}
}
