package stream

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func passAuth(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func startApp(t *testing.T, hub *Hub) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, passAuth("user-1"), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String()
}

func waitClients(t *testing.T, hub *Hub, key string, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.Clients(key) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients on %s, got %d", n, key, hub.Clients(key))
}

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil), passAuth("user-1"), nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/session-1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for non-websocket request")
	}
}

func TestStreamHandlersWebsocketBroadcast(t *testing.T) {
	hub := NewHub(nil)
	base := startApp(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/session-1", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	waitClients(t, hub, "session-1", 1)

	hub.Broadcast("session-1", []byte("hello"))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "hello" {
		t.Fatalf("unexpected message")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("client")); err != nil {
		t.Fatalf("write error: %v", err)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()
	waitClients(t, hub, "session-1", 0)
}

func TestStreamHandlersOwnerEvents(t *testing.T) {
	hub := NewHub(nil)
	base := startApp(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/events", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	waitClients(t, hub, OwnerKey("user-1"), 1)

	hub.Broadcast(OwnerKey("user-1"), []byte(`{"type":"prompt_show"}`))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != `{"type":"prompt_show"}` {
		t.Fatalf("unexpected event %s", msg)
	}
}

func TestStreamHandlersClientGone(t *testing.T) {
	hub := NewHub(nil)
	base := startApp(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/session-2", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	waitClients(t, hub, "session-2", 1)
	conn.Close()

	hub.Broadcast("session-2", []byte("ping"))
	waitClients(t, hub, "session-2", 0)
}

func TestViewerSocketRejectsOwnerKey(t *testing.T) {
	hub := NewHub(nil)
	base := startApp(t, hub)

	conn, resp, err := websocket.DefaultDialer.Dial(base+"/stream/ws/"+OwnerKey("user-1"), nil)
	if err == nil {
		conn.Close()
		t.Fatalf("viewer socket must not attach to an owner key")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %v", resp)
	}
	if hub.Clients(OwnerKey("user-1")) != 0 {
		t.Fatalf("no client should be registered on the owner key")
	}
}

func TestViewerSocketRequiresKnownSession(t *testing.T) {
	hub := NewHub(nil)
	app := fiber.New()
	known := func(_ context.Context, id string) bool { return id == "session-1" }
	RegisterRoutes(app.Group("/stream"), hub, passAuth("user-1"), known)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	base := "ws://" + ln.Addr().String()

	if _, resp, err := websocket.DefaultDialer.Dial(base+"/stream/ws/session-9", nil); err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session should be rejected")
	}

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/session-1", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	waitClients(t, hub, "session-1", 1)
}
