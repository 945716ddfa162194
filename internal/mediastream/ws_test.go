package mediastream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callbridge/internal/calls"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func dialMediaStream(t *testing.T, p *Processor, callID string) (*websocket.Conn, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/media", Handler(p))
	srv := httptest.NewServer(r)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/media?callId=" + callID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func waitForSessions(t *testing.T, p *Processor, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.sessionCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session count = %d, want %d", p.sessionCount(), want)
}

func TestMediaStreamLifecycle(t *testing.T) {
	p, store, _ := newTestProcessor(t)
	seedCall(t, store, calls.CallStatusInProgress)

	conn, cleanup := dialMediaStream(t, p, "c1")
	defer cleanup()

	writeJSON := func(v any) {
		t.Helper()
		if err := conn.WriteJSON(v); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	writeJSON(map[string]any{"event": "connected", "protocol": "Call"})
	writeJSON(map[string]any{"event": "start", "streamSid": "MZ1"})
	waitForSessions(t, p, 1)

	writeJSON(map[string]any{
		"event":     "media",
		"streamSid": "MZ1",
		"media":     map[string]any{"track": "inbound", "payload": mediaPayload(8)},
	})

	writeJSON(map[string]any{"event": "stop", "streamSid": "MZ1"})
	waitForSessions(t, p, 0)
}

func TestMediaStreamRequiresCallID(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/media", Handler(p))

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestMediaStreamCleanupOnDisconnect(t *testing.T) {
	p, store, _ := newTestProcessor(t)
	seedCall(t, store, calls.CallStatusInProgress)

	conn, cleanup := dialMediaStream(t, p, "c1")
	defer cleanup()

	if err := conn.WriteJSON(map[string]any{"event": "start", "streamSid": "MZ2"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForSessions(t, p, 1)

	// An abrupt socket close must discard the session without a stop frame.
	conn.Close()
	waitForSessions(t, p, 0)
}
