package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sourcetrader/internal/models"
	"sourcetrader/pkg/utils"
)

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := NewHub(utils.NewNopLogger())

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := NewOriginChecker([]string{"http://localhost:3000", "https://example.com"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://example.com", true},
		{"http://evil.com", false},
		{"http://localhost:8080", false},
	}

	for _, tt := range tests {
		if got := checker.Check(tt.origin); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	for _, origins := range [][]string{nil, {"*"}} {
		checker := NewOriginChecker(origins)
		if !checker.Check("https://anything.example.org") {
			t.Errorf("origins %v should allow any origin", origins)
		}
	}
}

func TestHub_BroadcastNonBlocking(t *testing.T) {
	hub := NewHub(utils.NewNopLogger())
	// Run не запущен: очередь заполнится, остальное отбрасывается

	for i := 0; i < broadcastBufferSize+10; i++ {
		hub.Broadcast(map[string]int{"i": i})
	}

	if got := hub.DroppedMessages(); got != 10 {
		t.Errorf("DroppedMessages() = %d, want 10", got)
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(utils.NewNopLogger())

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	hub.Stop()
	hub.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

// ============================================================
// Integration: реальное соединение через httptest
// ============================================================

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(hub.Handler(NewOriginChecker(nil)))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", hub.ClientCount())
	}
	return conn
}

func TestHub_BroadcastSignalDelivered(t *testing.T) {
	hub := NewHub(utils.NewNopLogger())
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)

	pnl := 10.0
	hub.BroadcastSignal(&models.Signal{ID: 2, Symbol: "BTCUSDT", Side: models.SideCloseLong, Price: 110, PnlPct: &pnl})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var msg SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg.Type != MessageTypeSignal {
		t.Errorf("Type = %q, want %q", msg.Type, MessageTypeSignal)
	}
	if msg.Data == nil || msg.Data.ID != 2 || msg.Data.PnlPct == nil || *msg.Data.PnlPct != 10 {
		t.Errorf("Data = %+v", msg.Data)
	}
}

func TestHub_BroadcastStatsDelivered(t *testing.T) {
	hub := NewHub(utils.NewNopLogger())
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)

	hub.BroadcastStats(&models.Performance{
		Day: models.WindowStats{Days: 1, Total: 2, Wins: 1, Losses: 1, WinRatePct: 50, SumPositivePct: 3.5},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if !strings.Contains(string(data), `"type":"stats"`) || !strings.Contains(string(data), `"winrate_pct":50`) {
		t.Errorf("message = %s", data)
	}
}

func TestHub_ClientRemovedOnClose(t *testing.T) {
	hub := NewHub(utils.NewNopLogger())
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0 after close", hub.ClientCount())
	}
}

// ============================================================
// Benchmarks
// ============================================================

func BenchmarkHub_BroadcastSignal(b *testing.B) {
	hub := NewHub(utils.NewNopLogger())
	go hub.Run()
	defer hub.Stop()

	signal := &models.Signal{ID: 1, Symbol: "BTCUSDT", Side: models.SideLong, Price: 50000, Time: time.Now()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastSignal(signal)
	}
}

func BenchmarkOriginChecker_Check(b *testing.B) {
	checker := NewOriginChecker([]string{"http://localhost:3000"})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		checker.Check("http://localhost:3000")
	}
}
